package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/foxzi/msghub/internal/models"
)

// Config represents the msghub configuration
type Config struct {
	Server        ServerConfig                          `yaml:"server"`
	Database      DatabaseConfig                        `yaml:"database"`
	API           APIConfig                             `yaml:"api"`
	Dispatch      DispatchConfig                        `yaml:"dispatch"`
	Tracking      TrackingConfig                        `yaml:"tracking"`
	Events        EventsConfig                          `yaml:"events"`
	Metrics       MetricsConfig                         `yaml:"metrics"`
	Logging       LoggingConfig                         `yaml:"logging"`
	Organizations map[string]*models.OrganizationConfig `yaml:"organizations"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	ListenAddr string    `yaml:"listen_addr"`
	Hostname   string    `yaml:"hostname"`   // HELO name for SMTP providers
	PublicURL  string    `yaml:"public_url"` // base URL for tracking links
	TLS        TLSConfig `yaml:"tls"`
}

// TLSConfig contains TLS certificate settings for the API listener
type TLSConfig struct {
	CertFile string     `yaml:"cert_file"`
	KeyFile  string     `yaml:"key_file"`
	ACME     ACMEConfig `yaml:"acme"`
}

// ACMEConfig contains Let's Encrypt ACME settings
type ACMEConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Email         string   `yaml:"email"`
	Domains       []string `yaml:"domains"`
	CacheDir      string   `yaml:"cache_dir"`
	ChallengeAddr string   `yaml:"challenge_addr"` // HTTP-01 listener, ":80" by default
}

// DatabaseConfig selects the SQL store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3, pgx
	DSN    string `yaml:"dsn"`
}

// APIConfig contains API authentication settings
type APIConfig struct {
	APIKey     string   `yaml:"api_key"`
	APIKeyHash string   `yaml:"api_key_hash"` // bcrypt hash, takes precedence over api_key
	AllowedIPs []string `yaml:"allowed_ips"`  // IPs/CIDRs allowed on /api/v1 (empty = allow all)
}

// DispatchConfig contains send pipeline settings
type DispatchConfig struct {
	Concurrency     int           `yaml:"concurrency"`
	ProviderTimeout time.Duration `yaml:"provider_timeout"`
	MaxRecipients   int             `yaml:"max_recipients"`
	Sandbox         SandboxConfig   `yaml:"sandbox"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig contains per-organization message quotas
type RateLimitConfig struct {
	Enabled             bool                    `yaml:"enabled"`
	Path                string                  `yaml:"path"`
	Global              *LimitConfig            `yaml:"global"`
	DefaultOrganization *LimitConfig            `yaml:"default_organization"`
	DefaultChannel      *LimitConfig            `yaml:"default_channel"`
	Organizations       map[string]*LimitConfig `yaml:"organizations"`
}

// LimitConfig contains rate limit values
type LimitConfig struct {
	MessagesPerHour int `yaml:"messages_per_hour"`
	MessagesPerDay  int `yaml:"messages_per_day"`
}

// SandboxConfig captures messages locally instead of calling providers
type SandboxConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Path      string  `yaml:"path"`
	ErrorRate float64 `yaml:"error_rate"` // share of captured sends reported as failed
}

// TrackingConfig contains open/click tracking settings
type TrackingConfig struct {
	Enabled      bool   `yaml:"enabled"`
	RewriteLinks bool   `yaml:"rewrite_links"`
	FallbackURL  string `yaml:"fallback_url"`
}

// EventsConfig selects where delivery events are published
type EventsConfig struct {
	Driver       string `yaml:"driver"` // none, redis, amqp
	RedisURL     string `yaml:"redis_url"`
	RedisChannel string `yaml:"redis_channel"`
	AMQPURL      string `yaml:"amqp_url"`
	AMQPExchange string `yaml:"amqp_exchange"`
}

// MetricsConfig contains Prometheus exporter settings
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	ListenAddr    string        `yaml:"listen_addr"`
	Path          string        `yaml:"path"`
	AllowedIPs    []string      `yaml:"allowed_ips"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv loads configuration and applies environment overrides before validation
func LoadWithEnv(path string, e *Env) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyEnv(e)
	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
	if c.Server.Hostname == "" {
		hostname, _ := os.Hostname()
		c.Server.Hostname = hostname
	}
	if c.Server.TLS.ACME.CacheDir == "" {
		c.Server.TLS.ACME.CacheDir = "/var/lib/msghub/certs"
	}
	if c.Server.TLS.ACME.ChallengeAddr == "" {
		c.Server.TLS.ACME.ChallengeAddr = ":80"
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite3"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite3" {
		c.Database.DSN = "/var/lib/msghub/msghub.db"
	}

	if c.Dispatch.Concurrency == 0 {
		c.Dispatch.Concurrency = 5
	}
	if c.Dispatch.ProviderTimeout == 0 {
		c.Dispatch.ProviderTimeout = 30 * time.Second
	}
	if c.Dispatch.MaxRecipients == 0 {
		c.Dispatch.MaxRecipients = 1000
	}
	if c.Dispatch.Sandbox.Path == "" {
		c.Dispatch.Sandbox.Path = "/var/lib/msghub/sandbox.db"
	}
	if c.Dispatch.RateLimit.Path == "" {
		c.Dispatch.RateLimit.Path = "/var/lib/msghub/ratelimit.db"
	}

	if c.Tracking.FallbackURL == "" {
		c.Tracking.FallbackURL = "https://example.com"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "none"
	}
	if c.Events.RedisChannel == "" {
		c.Events.RedisChannel = "msghub.events"
	}
	if c.Events.AMQPExchange == "" {
		c.Events.AMQPExchange = "msghub.events"
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.FlushInterval == 0 {
		c.Metrics.FlushInterval = 10 * time.Second
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	for id, org := range c.Organizations {
		if org != nil {
			org.OrganizationID = id
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	validDrivers := map[string]bool{"sqlite3": true, "pgx": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database.driver: %s (must be sqlite3 or pgx)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if err := c.validateTLS(); err != nil {
		return err
	}

	if c.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be at least 1")
	}
	if c.Dispatch.ProviderTimeout < 0 {
		return fmt.Errorf("dispatch.provider_timeout must not be negative")
	}
	if c.Dispatch.Sandbox.ErrorRate < 0 || c.Dispatch.Sandbox.ErrorRate > 1 {
		return fmt.Errorf("dispatch.sandbox.error_rate must be between 0 and 1")
	}
	if err := c.Dispatch.RateLimit.validate(); err != nil {
		return err
	}

	if c.Tracking.Enabled && c.Server.PublicURL == "" {
		return fmt.Errorf("server.public_url is required when tracking is enabled")
	}

	switch c.Events.Driver {
	case "none":
	case "redis":
		if c.Events.RedisURL == "" {
			return fmt.Errorf("events.redis_url is required for the redis driver")
		}
	case "amqp":
		if c.Events.AMQPURL == "" {
			return fmt.Errorf("events.amqp_url is required for the amqp driver")
		}
	default:
		return fmt.Errorf("invalid events.driver: %s (must be none, redis, or amqp)", c.Events.Driver)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	return c.validateOrganizations()
}

func (c *Config) validateTLS() error {
	tls := c.Server.TLS
	if (tls.CertFile == "") != (tls.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file must be set together")
	}
	if tls.CertFile != "" && tls.ACME.Enabled {
		return fmt.Errorf("cannot use both manual certificates and ACME")
	}

	if tls.ACME.Enabled {
		if tls.ACME.Email == "" {
			return fmt.Errorf("server.tls.acme.email is required when ACME is enabled")
		}
		if len(tls.ACME.Domains) == 0 {
			return fmt.Errorf("server.tls.acme.domains must not be empty when ACME is enabled")
		}
	}

	return nil
}

// HasTLS returns true if the API listener serves HTTPS
func (c *Config) HasTLS() bool {
	return c.Server.TLS.CertFile != "" || c.Server.TLS.ACME.Enabled
}

func (r *RateLimitConfig) validate() error {
	limits := map[string]*LimitConfig{
		"global":               r.Global,
		"default_organization": r.DefaultOrganization,
		"default_channel":      r.DefaultChannel,
	}
	for id, l := range r.Organizations {
		limits["organizations."+id] = l
	}
	for name, l := range limits {
		if l != nil && (l.MessagesPerHour < 0 || l.MessagesPerDay < 0) {
			return fmt.Errorf("dispatch.rate_limit.%s: limits must not be negative", name)
		}
	}
	return nil
}

func (c *Config) validateOrganizations() error {
	smsProviders := map[string]bool{
		"":                           true,
		models.SMSProviderTwilio:     true,
		models.SMSProviderTextLocal:  true,
		models.SMSProviderMSG91:      true,
		models.SMSProviderClickatell: true,
		models.SMSProviderCustom:     true,
	}
	emailProviders := map[string]bool{
		"":                          true,
		models.EmailProviderSMTP:   true,
		models.EmailProviderAWSSES: true,
	}
	waProviders := map[string]bool{
		"":                               true,
		models.WhatsAppProviderBusiness: true,
		models.WhatsAppProviderTwilio:   true,
	}

	for id, org := range c.Organizations {
		if org == nil {
			return fmt.Errorf("organizations.%s: empty configuration", id)
		}
		if !smsProviders[org.SMS.Provider] {
			return fmt.Errorf("organizations.%s.sms.provider: unknown provider %q", id, org.SMS.Provider)
		}
		if !emailProviders[org.Email.Provider] {
			return fmt.Errorf("organizations.%s.email.provider: unknown provider %q", id, org.Email.Provider)
		}
		if !waProviders[org.WhatsApp.Provider] {
			return fmt.Errorf("organizations.%s.whatsapp.provider: unknown provider %q", id, org.WhatsApp.Provider)
		}
	}
	return nil
}

// Organization returns the messaging configuration for an organization, or nil
func (c *Config) Organization(id string) *models.OrganizationConfig {
	return c.Organizations[id]
}
