package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/CedrosPay/secheaders/internal/logger"
	"github.com/CedrosPay/secheaders/internal/metrics"
	"github.com/CedrosPay/secheaders/internal/policy"
	"github.com/CedrosPay/secheaders/internal/ratelimit"
	"github.com/CedrosPay/secheaders/internal/settings"
)

var (
	serverStartTime = time.Now()
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Engine   *policy.Engine
	Store    settings.Store
	Metrics  *metrics.Metrics    // optional
	Gatherer prometheus.Gatherer // nil serves the default registry
	Logger   zerolog.Logger
}

// Server owns the listening http.Server.
type Server struct {
	httpServer *http.Server
}

type handlers struct {
	cfg      *config.Config
	engine   *policy.Engine
	store    settings.Store
	metrics  *metrics.Metrics
	validate *validator.Validate
	logger   zerolog.Logger
}

func newHandlers(cfg *config.Config, deps Deps) handlers {
	return handlers{
		cfg:      cfg,
		engine:   deps.Engine,
		store:    deps.Store,
		metrics:  deps.Metrics,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   deps.Logger,
	}
}

// New builds the HTTP server around a router prepared by ConfigureRouter.
func New(cfg *config.Config, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         cfg.Server.Address,
			ReadTimeout:  cfg.Server.ReadTimeout.Duration,
			WriteTimeout: cfg.Server.WriteTimeout.Duration,
			IdleTimeout:  cfg.Server.IdleTimeout.Duration,
			Handler:      handler,
		},
	}
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ConfigureRouter attaches the security header middleware, the admin API
// and the service endpoints to an existing router.
func ConfigureRouter(router chi.Router, cfg *config.Config, deps Deps) {
	if router == nil || deps.Engine == nil {
		return
	}

	if deps.Store == nil {
		deps.Store = settings.NewMemoryStore()
	}
	handler := newHandlers(cfg, deps)

	if len(cfg.Server.CORSAllowedOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins:   cfg.Server.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "PUT", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type", logger.RequestIDHeader},
			ExposedHeaders:   []string{logger.RequestIDHeader},
			AllowCredentials: false,
			MaxAge:           300,
		}).Handler)
	}

	// Logger goes before RequestID so the request logger is in context
	router.Use(logger.Middleware(deps.Logger))
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)

	// Headers are set here, before any handler can write the status line
	router.Use(deps.Engine.Middleware(NewResolver(cfg)))

	var metricsHandler http.Handler = promhttp.Handler()
	if deps.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})
	}

	// Lightweight endpoints with 5s timeout
	router.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(5 * time.Second))
		r.Get("/healthz", handler.health)
		r.With(adminAuth(cfg.Server.AdminAPIKey)).Handle("/metrics", metricsHandler)
	})

	limitCfg := ratelimit.Config{
		Enabled: cfg.RateLimit.AdminEnabled,
		Limit:   cfg.RateLimit.AdminLimit,
		Window:  cfg.RateLimit.AdminWindow.Duration,
		Metrics: deps.Metrics,
	}

	// Admin API. The limiter runs before auth.
	router.Route("/admin/headers", func(r chi.Router) {
		r.Use(ratelimit.AdminLimiter(limitCfg))
		r.Use(adminAuth(cfg.Server.AdminAPIKey))
		r.Use(middleware.Timeout(10 * time.Second))
		r.Get("/", handler.listHeaders)
		r.Post("/reset", handler.resetHeaders)
		r.Get("/{key}", handler.getHeader)
		r.Put("/{key}", handler.updateHeader)
	})

	router.Get("/*", handler.demo)
}

// NewResolver builds the request classifier from configuration.
func NewResolver(cfg *config.Config) policy.Resolver {
	res := policy.Resolver{
		InternalPrefixes:    cfg.Headers.InternalPrefixes,
		TrustForwardedProto: cfg.Server.TrustForwardedProto,
	}
	if len(res.InternalPrefixes) == 0 {
		res.InternalPrefixes = policy.DefaultInternalPrefixes()
	}
	return res
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
