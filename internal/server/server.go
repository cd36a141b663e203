package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/zdiemer/simplescraper/internal/config"
	apperrors "github.com/zdiemer/simplescraper/internal/errors"
	"github.com/zdiemer/simplescraper/internal/metrics"
	"github.com/zdiemer/simplescraper/internal/observability"
	"github.com/zdiemer/simplescraper/internal/server/handlers"
	servermw "github.com/zdiemer/simplescraper/internal/server/middleware"
)

// Options wires the server to the scraper and its collaborators.
type Options struct {
	Config  config.ServerConfig
	Fetcher handlers.Fetcher
	Health  *handlers.HealthManager
	// Store enables the /v1/store, /v1/cache and /v1/rate-limits admin routes.
	Store handlers.StoreAdmin
	// Registry is served on /metrics; nil leaves the endpoint unregistered.
	Registry *prometheus.Registry
}

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	cfg      config.ServerConfig
	fetcher  handlers.Fetcher
	health   *handlers.HealthManager
	store    handlers.StoreAdmin
	registry *prometheus.Registry
}

// New creates a new HTTP server instance
func New(opts Options) *Server {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// RequestID → Metrics → Recovery
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.Recovery)

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("The requested resource was not found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("The requested method is not allowed for this resource"))
	})

	health := opts.Health
	if health == nil {
		health = handlers.NewHealthManager(handlers.CurrentVersion().Build.Version, "")
	}

	s := &Server{
		router:   r,
		cfg:      opts.Config,
		fetcher:  opts.Fetcher,
		health:   health,
		store:    opts.Store,
		registry: opts.Registry,
	}

	if s.registry != nil {
		metrics.Install(metrics.NewHTTPMetrics(s.registry))
	}

	handlers.SetHTTPErrorResponder(HandleError)
	s.registerRoutes()

	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
}

// Start listens until Shutdown is called. A clean shutdown returns nil.
func (s *Server) Start() error {
	addr := s.Addr()

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	metrics.SetServerStartTime(time.Now())
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.cfg.Host),
			zap.Int("port", s.cfg.Port),
			zap.String("addr", addr))
	}

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the underlying router for testing and instrumentation
func (s *Server) Handler() http.Handler {
	return s.router
}
