package tls

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"

	"golang.org/x/crypto/acme/autocert"

	"github.com/foxzi/msghub/internal/config"
)

// Source supplies certificates to the API listener, either from PEM files
// or from Let's Encrypt
type Source struct {
	tlsConfig *tls.Config
	manager   *autocert.Manager
	cache     autocert.DirCache
	domains   []string
	certFile  string
}

// New builds a certificate source. It returns nil when TLS is not configured.
func New(cfg config.TLSConfig) (*Source, error) {
	if cfg.ACME.Enabled {
		cache := autocert.DirCache(cfg.ACME.CacheDir)
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			Email:      cfg.ACME.Email,
			HostPolicy: autocert.HostWhitelist(cfg.ACME.Domains...),
			Cache:      cache,
		}
		return &Source{
			tlsConfig: &tls.Config{
				GetCertificate: m.GetCertificate,
				MinVersion:     tls.VersionTLS12,
			},
			manager: m,
			cache:   cache,
			domains: cfg.ACME.Domains,
		}, nil
	}

	if cfg.CertFile == "" {
		return nil, nil
	}

	tlsConfig, err := LoadCertificate(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, err
	}
	return &Source{tlsConfig: tlsConfig, certFile: cfg.CertFile}, nil
}

// LoadCertificate loads a TLS certificate from PEM files
func LoadCertificate(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Config returns the server TLS configuration
func (s *Source) Config() *tls.Config {
	return s.tlsConfig
}

// ACME reports whether certificates come from Let's Encrypt
func (s *Source) ACME() bool {
	return s.manager != nil
}

// Domains returns the ACME domains
func (s *Source) Domains() []string {
	return s.domains
}

// ChallengeHandler answers HTTP-01 challenges and redirects everything else
// to HTTPS. It is nil for file certificates.
func (s *Source) ChallengeHandler() http.Handler {
	if s.manager == nil {
		return nil
	}
	return s.manager.HTTPHandler(http.HandlerFunc(redirectHTTPS))
}

func redirectHTTPS(w http.ResponseWriter, r *http.Request) {
	target := "https://" + r.Host + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}
	http.Redirect(w, r, target, http.StatusMovedPermanently)
}

// Obtain fetches or renews the certificate of every domain. The challenge
// handler must already be listening.
func (s *Source) Obtain(ctx context.Context) ([]CertificateInfo, error) {
	if s.manager == nil {
		return nil, fmt.Errorf("ACME is not enabled")
	}

	var results []CertificateInfo
	for _, domain := range s.domains {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		cert, err := s.manager.GetCertificate(&tls.ClientHelloInfo{ServerName: domain})
		if err != nil {
			return results, fmt.Errorf("failed to obtain certificate for %s: %w", domain, err)
		}
		if cert == nil || len(cert.Certificate) == 0 {
			continue
		}

		info, err := parseDER(cert.Certificate[0])
		if err != nil {
			return results, fmt.Errorf("failed to parse certificate for %s: %w", domain, err)
		}
		info.Domain = domain
		results = append(results, *info)
	}

	return results, nil
}

// Certificates reports the certificates currently in use without contacting
// Let's Encrypt. ACME domains missing from the cache are skipped.
func (s *Source) Certificates(ctx context.Context) ([]CertificateInfo, error) {
	if s.manager == nil {
		info, err := ReadCertificateFile(s.certFile)
		if err != nil {
			return nil, err
		}
		return []CertificateInfo{*info}, nil
	}

	var results []CertificateInfo
	for _, domain := range s.domains {
		data, err := s.cache.Get(ctx, domain)
		if err != nil {
			continue
		}

		// autocert stores the key and the chain in one PEM file
		cert, err := tls.X509KeyPair(data, data)
		if err != nil || len(cert.Certificate) == 0 {
			continue
		}

		info, err := parseDER(cert.Certificate[0])
		if err != nil {
			continue
		}
		info.Domain = domain
		results = append(results, *info)
	}

	return results, nil
}
