package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foxzi/msghub/internal/api"
	"github.com/foxzi/msghub/internal/config"
	"github.com/foxzi/msghub/internal/db"
	"github.com/foxzi/msghub/internal/dispatch"
	"github.com/foxzi/msghub/internal/events"
	"github.com/foxzi/msghub/internal/metrics"
	"github.com/foxzi/msghub/internal/provider"
	"github.com/foxzi/msghub/internal/ratelimit"
	"github.com/foxzi/msghub/internal/repository"
	"github.com/foxzi/msghub/internal/sandbox"
	msghubTLS "github.com/foxzi/msghub/internal/tls"
	"github.com/foxzi/msghub/internal/tracking"
)

// App is the main application
type App struct {
	config *config.Config
	env    *config.Env
	logger *slog.Logger

	db         *db.DB
	store      *repository.Store
	sandbox    *sandbox.Storage
	limiter    *ratelimit.Limiter
	publisher  events.Publisher
	dispatcher *dispatch.Dispatcher
	tracker    *tracking.Tracker

	tlsSource        *msghubTLS.Source
	acmeServer       *http.Server
	apiServer        *api.Server
	metricsServer    *metrics.Server
	metricsCollector *metrics.Collector
}

// Options carries values decided by the caller rather than the config file
type Options struct {
	Env     *config.Env
	Logger  *slog.Logger
	Version string
}

// New creates a new application
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger(cfg.Logging)
	}
	env := opts.Env
	if env == nil {
		env = &config.Env{}
	}

	a := &App{config: cfg, env: env, logger: logger}

	d, err := db.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.db = d

	if err := d.Migrate(); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	a.store = repository.NewStore(d)

	if cfg.Dispatch.Sandbox.Enabled {
		a.sandbox, err = sandbox.Open(cfg.Dispatch.Sandbox.Path)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to open sandbox storage: %w", err)
		}
		logger.Warn("sandbox mode enabled, messages are captured and not delivered", "path", cfg.Dispatch.Sandbox.Path)
	}

	if cfg.Dispatch.RateLimit.Enabled {
		a.limiter, err = ratelimit.Open(cfg.Dispatch.RateLimit.Path, rateLimitConfig(cfg.Dispatch.RateLimit))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		logger.Info("rate limiting enabled", "path", cfg.Dispatch.RateLimit.Path)
	}

	a.publisher, err = events.New(ctx, cfg.Events)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}
	if cfg.Events.Driver != events.DriverNone {
		logger.Info("delivery events enabled", "driver", cfg.Events.Driver)
	}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		metrics.SetGlobal(m)
		a.metricsServer = metrics.NewServer(m, cfg.Metrics.ListenAddr, cfg.Metrics.Path, cfg.Metrics.AllowedIPs, logger.With("component", "metrics"))
		a.metricsCollector = metrics.NewCollector(m, a.store.Campaigns, cfg.Metrics.FlushInterval, logger.With("component", "metrics_collector"))
	}

	var tlsConfig *tls.Config
	if cfg.HasTLS() {
		a.tlsSource, err = msghubTLS.New(cfg.Server.TLS)
		if err != nil {
			a.close()
			return nil, err
		}
		tlsConfig = a.tlsSource.Config()
		if a.tlsSource.ACME() {
			logger.Info("ACME (Let's Encrypt) enabled", "domains", a.tlsSource.Domains())
		} else {
			logger.Info("TLS enabled with manual certificates")
		}
	}

	resolver := provider.NewResolver(provider.Options{
		Env:      env,
		Timeout:  cfg.Dispatch.ProviderTimeout,
		Hostname: cfg.Server.Hostname,
		Logger:   logger.With("component", "provider"),
	})

	a.dispatcher = dispatch.New(resolver, cfg, a.store, dispatch.Options{
		Concurrency:      cfg.Dispatch.Concurrency,
		MaxRecipients:    cfg.Dispatch.MaxRecipients,
		TrackingEnabled:  cfg.Tracking.Enabled,
		RewriteLinks:     cfg.Tracking.RewriteLinks,
		PublicURL:        cfg.Server.PublicURL,
		Sandbox:          a.sandbox,
		SandboxErrorRate: cfg.Dispatch.Sandbox.ErrorRate,
		Limiter:          a.limiter,
		Publisher:        a.publisher,
		EventDriver:      cfg.Events.Driver,
		Logger:           logger,
	})

	a.tracker = tracking.New(a.store, tracking.Options{
		FallbackURL: cfg.Tracking.FallbackURL,
		Publisher:   a.publisher,
		EventDriver: cfg.Events.Driver,
		Logger:      logger,
	})

	a.apiServer = api.NewServer(api.Deps{
		Dispatcher:      a.dispatcher,
		Tracker:         a.tracker,
		Store:           a.store,
		Sandbox:         a.sandbox,
		Limiter:         a.limiter,
		TwilioAuthToken: env.TwilioAuthToken,
		PublicURL:       cfg.Server.PublicURL,
		Version:         opts.Version,
		TLSConfig:       tlsConfig,
	}, &cfg.API, cfg.Server.ListenAddr, logger)

	return a, nil
}

// Dispatcher returns the dispatch orchestrator, for one-shot CLI sends
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Run starts all components and waits for shutdown
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("starting msghub",
		"hostname", a.config.Server.Hostname,
		"api_addr", a.config.Server.ListenAddr,
		"database", a.config.Database.Driver,
		"organizations", len(a.config.Organizations),
		"sandbox", a.sandbox != nil,
		"tls", a.tlsSource != nil,
	)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 2)

	go func() {
		if err := a.apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("api server: %w", err)
		}
	}()

	if a.tlsSource != nil && a.tlsSource.ACME() {
		a.acmeServer = &http.Server{
			Addr:              a.config.Server.TLS.ACME.ChallengeAddr,
			Handler:           a.tlsSource.ChallengeHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			a.logger.Info("starting ACME HTTP challenge server", "addr", a.acmeServer.Addr)
			if err := a.acmeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Warn("ACME HTTP server error", "error", err)
			}
		}()
	}

	if a.metricsServer != nil {
		a.metricsCollector.Start(ctx)
		go func() {
			if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
		a.logger.Error("server error", "error", runErr)
		cancel()
	}

	if err := a.Shutdown(context.Background()); err != nil {
		return err
	}
	return runErr
}

// Shutdown gracefully shuts down all components
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// in-flight dispatches finish before storage closes
	if err := a.apiServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("api server shutdown error", "error", err)
	}

	if a.acmeServer != nil {
		if err := a.acmeServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("acme server shutdown error", "error", err)
		}
	}

	if a.metricsServer != nil {
		a.metricsCollector.Stop()
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("metrics server shutdown error", "error", err)
		}
	}

	a.close()

	a.logger.Info("shutdown complete")
	return nil
}

// Close releases storage and broker connections without starting servers
func (a *App) Close() {
	a.close()
}

func (a *App) close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Error("event publisher close error", "error", err)
		}
		a.publisher = nil
	}
	if a.limiter != nil {
		// persists counters
		if err := a.limiter.Stop(); err != nil {
			a.logger.Error("rate limiter stop error", "error", err)
		}
		a.limiter = nil
	}
	if a.sandbox != nil {
		if err := a.sandbox.Close(); err != nil {
			a.logger.Error("sandbox storage close error", "error", err)
		}
		a.sandbox = nil
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("database close error", "error", err)
		}
		a.db = nil
	}
}

func rateLimitConfig(c config.RateLimitConfig) *ratelimit.Config {
	convert := func(l *config.LimitConfig) *ratelimit.LimitConfig {
		if l == nil {
			return nil
		}
		return &ratelimit.LimitConfig{
			MessagesPerHour: l.MessagesPerHour,
			MessagesPerDay:  l.MessagesPerDay,
		}
	}

	rl := &ratelimit.Config{
		Global:              convert(c.Global),
		DefaultOrganization: convert(c.DefaultOrganization),
		DefaultChannel:      convert(c.DefaultChannel),
	}
	if len(c.Organizations) > 0 {
		rl.Organizations = make(map[string]*ratelimit.LimitConfig, len(c.Organizations))
		for id, l := range c.Organizations {
			rl.Organizations[id] = convert(l)
		}
	}
	return rl
}

// NewLogger creates a logger based on configuration
func NewLogger(cfg config.LoggingConfig) *slog.Logger {
	var handler slog.Handler

	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
