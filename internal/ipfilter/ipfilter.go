// Package ipfilter provides IP-based access control for HTTP listeners
package ipfilter

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Filter checks if IP addresses are allowed
type Filter struct {
	allowed []netip.Prefix
	name    string
	logger  *slog.Logger
}

// New creates a filter from a list of IPs/CIDRs. Invalid entries are logged
// and skipped. An empty list allows everyone.
func New(name string, allowedIPs []string, logger *slog.Logger) *Filter {
	f := &Filter{
		name:   name,
		logger: logger,
	}

	for _, entry := range allowedIPs {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				logger.Warn("invalid CIDR in allowed_ips", "filter", name, "cidr", entry, "error", err)
				continue
			}
			f.allowed = append(f.allowed, prefix.Masked())
			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			logger.Warn("invalid IP in allowed_ips", "filter", name, "ip", entry)
			continue
		}
		addr = addr.Unmap()
		f.allowed = append(f.allowed, netip.PrefixFrom(addr, addr.BitLen()))
	}

	if f.Enabled() {
		logger.Info("IP filtering enabled", "filter", name, "allowed_networks", len(f.allowed))
	}

	return f
}

// Enabled returns true if IP filtering is active
func (f *Filter) Enabled() bool {
	return len(f.allowed) > 0
}

// Count returns the number of allowed networks
func (f *Filter) Count() int {
	return len(f.allowed)
}

// IsAllowed checks if the IP is allowed
func (f *Filter) IsAllowed(ip netip.Addr) bool {
	if len(f.allowed) == 0 {
		return true
	}

	ip = ip.Unmap()
	for _, p := range f.allowed {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// IsAllowedAddr checks a host:port or bare IP
func (f *Filter) IsAllowedAddr(addr string) bool {
	ip, ok := parseHost(addr)
	if !ok {
		return len(f.allowed) == 0
	}
	return f.IsAllowed(ip)
}

func parseHost(addr string) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip, true
}

// HTTPMiddleware rejects requests whose RemoteAddr is outside the allowed
// networks. Forwarded headers are only honored when an earlier middleware
// (chi's RealIP) has rewritten RemoteAddr.
func (f *Filter) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		ip, ok := parseHost(r.RemoteAddr)
		if !ok {
			f.logger.Warn("could not parse client IP", "filter", f.name, "remote_addr", r.RemoteAddr)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		if !f.IsAllowed(ip) {
			f.logger.Warn("access denied by IP filter", "filter", f.name, "ip", ip.String(), "path", r.URL.Path)
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}
