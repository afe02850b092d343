package api

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/foxzi/msghub/internal/config"
	"github.com/foxzi/msghub/internal/dispatch"
	"github.com/foxzi/msghub/internal/ipfilter"
	"github.com/foxzi/msghub/internal/metrics"
	"github.com/foxzi/msghub/internal/ratelimit"
	"github.com/foxzi/msghub/internal/repository"
	"github.com/foxzi/msghub/internal/sandbox"
	"github.com/foxzi/msghub/internal/tracking"
)

// Deps are the collaborators the API serves
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	Tracker    *tracking.Tracker
	Store      *repository.Store
	Sandbox    *sandbox.Storage   // nil when sandbox mode is off
	Limiter    *ratelimit.Limiter // nil when quotas are off

	// TwilioAuthToken enables X-Twilio-Signature checks on the status webhook
	TwilioAuthToken string
	PublicURL       string
	Version         string

	// TLSConfig switches the listener to HTTPS
	TLSConfig *tls.Config
}

// Server is the HTTP API server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	deps       Deps
	config     *config.APIConfig
	listenAddr string
	logger     *slog.Logger
	startTime  time.Time
}

// NewServer creates a new API server
func NewServer(deps Deps, cfg *config.APIConfig, listenAddr string, logger *slog.Logger) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		deps:       deps,
		config:     cfg,
		listenAddr: listenAddr,
		logger:     logger.With("component", "api"),
		startTime:  time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(metrics.HTTPMiddleware)
	s.router.Use(middleware.Recoverer)

	// Health check (no auth required)
	s.router.Get("/health", s.handleHealth)

	// Tracking beacons are opened by recipients; the Twilio webhook checks
	// its own signature
	s.router.Get("/t/open/{id}", s.handleOpen)
	s.router.Get("/t/click/{id}", s.handleClick)
	s.router.Post("/webhooks/twilio/status", s.handleTwilioStatus)

	// Generic receipts change delivery state and need the API key
	s.router.With(s.authMiddleware).Post("/webhooks/status", s.handleStatusWebhook)

	// API v1 routes (auth required)
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(ipfilter.New("api", s.config.AllowedIPs, s.logger).HTTPMiddleware)
		r.Use(s.authMiddleware)

		r.Post("/dispatch", s.handleDispatch)

		r.Get("/campaigns", s.handleListCampaigns)
		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Post("/campaigns/{id}/cancel", s.handleCancelCampaign)
		r.Get("/campaigns/{id}/deliveries", s.handleListDeliveries)

		r.Get("/logs", s.handleListLogs)
		r.Get("/analytics/summary", s.handleAnalyticsSummary)
		r.Get("/variables", s.handleVariables)

		if s.deps.Limiter != nil {
			r.Get("/organizations/{id}/quota", s.handleQuota)
		}

		if s.deps.Sandbox != nil {
			s.registerSandboxRoutes(r)
		}
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // bulk dispatch runs inline
		IdleTimeout:  60 * time.Second,
		TLSConfig:    s.deps.TLSConfig,
	}

	if s.deps.TLSConfig != nil {
		s.logger.Info("starting HTTPS API server", "addr", s.listenAddr)
		return s.httpServer.ListenAndServeTLS("", "")
	}

	s.logger.Info("starting HTTP API server", "addr", s.listenAddr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP API server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
