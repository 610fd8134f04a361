// Package secheaders embeds the security header engine, its settings store
// and the admin API into a host application.
package secheaders

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/CedrosPay/secheaders/internal/circuitbreaker"
	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/CedrosPay/secheaders/internal/httpserver"
	"github.com/CedrosPay/secheaders/internal/lifecycle"
	"github.com/CedrosPay/secheaders/internal/logger"
	"github.com/CedrosPay/secheaders/internal/metrics"
	"github.com/CedrosPay/secheaders/internal/policy"
	"github.com/CedrosPay/secheaders/internal/settings"
)

// App wires the header engine, settings store and admin routes for reuse
// or standalone serving.
type App struct {
	Config *config.Config
	Store  settings.Store

	engine           *policy.Engine
	router           chi.Router
	resourceManager  *lifecycle.Manager
	metricsCollector *metrics.Metrics
	gatherer         prometheus.Gatherer
	log              zerolog.Logger
}

// Option configures App construction.
type Option func(*options)

type options struct {
	store       settings.Store
	router      chi.Router
	cspFilters  []policy.DirectiveFilter
	permFilters []policy.DirectiveFilter
	registerer  prometheus.Registerer
	logger      *zerolog.Logger
	skipSeed    bool
}

// WithStore sets a custom settings backend. The caller keeps ownership
// and must close it.
func WithStore(store settings.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRouter allows callers to provide an existing chi.Router to register routes onto.
func WithRouter(router chi.Router) Option {
	return func(o *options) {
		o.router = router
	}
}

// WithCSPFilter rewrites the Content-Security-Policy directives once at startup.
func WithCSPFilter(f policy.DirectiveFilter) Option {
	return func(o *options) {
		o.cspFilters = append(o.cspFilters, f)
	}
}

// WithPermissionsFilter rewrites the Permissions-Policy tokens once at startup.
func WithPermissionsFilter(f policy.DirectiveFilter) Option {
	return func(o *options) {
		o.permFilters = append(o.permFilters, f)
	}
}

// WithRegisterer registers metrics somewhere other than the default
// registry. A *prometheus.Registry is also served on /metrics.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = r
	}
}

// WithLogger replaces the logger built from cfg.Logging.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.logger = &log
	}
}

// WithActivation controls whether NewApp seeds missing settings. Tools
// that only remove settings turn it off.
func WithActivation(enabled bool) Option {
	return func(o *options) {
		o.skipSeed = !enabled
	}
}

// NewApp assembles the engine and its collaborators and, unless disabled
// with WithActivation, seeds any missing header settings with their defaults.
func NewApp(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("secheaders: config required")
	}

	optState := options{}
	for _, opt := range opts {
		opt(&optState)
	}

	var appLog zerolog.Logger
	if optState.logger != nil {
		appLog = *optState.logger
	} else {
		appLog = logger.New(logger.Config{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			Service:     "secheaders",
			Environment: cfg.Logging.Environment,
			FilePath:    cfg.Logging.FilePath,
			MaxSizeMB:   cfg.Logging.MaxSizeMB,
			MaxBackups:  cfg.Logging.MaxBackups,
			MaxAgeDays:  cfg.Logging.MaxAgeDays,
		})
	}

	app := &App{
		Config:          cfg,
		resourceManager: lifecycle.NewManager(appLog),
		log:             appLog,
	}

	registerer := optState.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if g, ok := registerer.(prometheus.Gatherer); ok && registerer != prometheus.DefaultRegisterer {
		app.gatherer = g
	}
	app.metricsCollector = metrics.New(registerer)

	if optState.store != nil {
		app.Store = optState.store
	} else {
		store, err := openStore(ctx, cfg, app.metricsCollector, appLog)
		if err != nil {
			return nil, err
		}
		app.Store = store
		app.resourceManager.Register("settings-store", store)
		if cfg.Settings.Backend == config.BackendMemory {
			appLog.Warn().Msg("secheaders: in-memory settings are lost on restart")
		}
	}

	tableOpts := []policy.TableOption{
		policy.WithCSPDirectives(cfg.Headers.CSPDirectives),
		policy.WithPermissionsDirectives(cfg.Headers.PermissionsDirectives),
	}
	for _, f := range optState.cspFilters {
		tableOpts = append(tableOpts, policy.WithCSPFilter(f))
	}
	for _, f := range optState.permFilters {
		tableOpts = append(tableOpts, policy.WithPermissionsFilter(f))
	}
	table, err := policy.DefaultTable(tableOpts...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("build header table: %w", err)
	}

	app.engine, err = policy.NewEngine(table, app.Store,
		policy.WithLogger(appLog),
		policy.WithMetrics(app.metricsCollector),
		policy.WithExcludeInternal(cfg.Headers.ExcludeInternalEnabled()),
	)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	if !optState.skipSeed {
		if err := app.engine.Activate(ctx, app.Store); err != nil {
			_ = app.Close()
			return nil, fmt.Errorf("activate: %w", err)
		}
	}

	if optState.router != nil {
		app.router = optState.router
	} else {
		app.router = chi.NewRouter()
	}

	httpserver.ConfigureRouter(app.router, cfg, httpserver.Deps{
		Engine:   app.engine,
		Store:    app.Store,
		Metrics:  app.metricsCollector,
		Gatherer: app.gatherer,
		Logger:   appLog,
	})

	return app, nil
}

// openStore builds the configured backend behind the breaker and cache.
func openStore(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log zerolog.Logger) (settings.Store, error) {
	deps := settings.Deps{Metrics: m, Log: log}
	if cfg.CircuitBreaker.Enabled {
		deps.Breaker = circuitbreaker.NewManagerFromConfig(cfg.CircuitBreaker, log,
			func(service circuitbreaker.ServiceType, _, to gobreaker.State) {
				m.ObserveBreakerState(string(service), to.String())
			})
	}
	store, err := settings.NewStore(ctx, cfg.Settings, deps)
	if err != nil {
		return nil, fmt.Errorf("open settings store: %w", err)
	}
	return store, nil
}

// Engine returns the header engine.
func (a *App) Engine() *policy.Engine {
	return a.engine
}

// Middleware returns the header middleware for use outside the app router.
func (a *App) Middleware() func(http.Handler) http.Handler {
	return a.engine.Middleware(httpserver.NewResolver(a.Config))
}

// Router returns the chi router with the admin routes registered.
func (a *App) Router() chi.Router {
	return a.router
}

// Handler exposes the router as an http.Handler.
func (a *App) Handler() http.Handler {
	return a.router
}

// Deactivate removes every header setting this app owns.
func (a *App) Deactivate(ctx context.Context) error {
	return a.engine.Deactivate(ctx, a.Store)
}

// Close releases resources owned by the app.
func (a *App) Close() error {
	return a.resourceManager.Close()
}
