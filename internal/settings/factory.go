package settings

import (
	"context"
	"fmt"

	"github.com/CedrosPay/secheaders/internal/circuitbreaker"
	"github.com/CedrosPay/secheaders/internal/config"
	"github.com/CedrosPay/secheaders/internal/metrics"
	"github.com/rs/zerolog"
)

// Deps are optional collaborators for NewStore.
type Deps struct {
	Metrics *metrics.Metrics
	Breaker *circuitbreaker.Manager
	Log     zerolog.Logger
}

// NewStore opens the configured backend and layers instrumentation, the
// circuit breaker and the read cache on top, outermost last.
func NewStore(ctx context.Context, cfg config.SettingsConfig, deps Deps) (Store, error) {
	base, err := withRetry(ctx, defaultRetryConfig(), deps.Log, func() (Store, error) {
		return openBackend(ctx, cfg)
	})
	if err != nil {
		return nil, err
	}

	var store Store = base
	if deps.Metrics != nil {
		store = NewInstrumentedStore(store, cfg.Backend, deps.Metrics)
	}
	if deps.Breaker != nil {
		store = NewBreakerStore(store, deps.Breaker)
	}
	if cfg.CacheTTL.Duration > 0 {
		store = NewCachedStore(store, cfg.CacheTTL.Duration, deps.Metrics)
	}

	deps.Log.Info().
		Str("backend", cfg.Backend).
		Dur("cache_ttl", cfg.CacheTTL.Duration).
		Bool("circuit_breaker", deps.Breaker != nil).
		Msg("settings.store_opened")

	return store, nil
}

func openBackend(ctx context.Context, cfg config.SettingsConfig) (Store, error) {
	switch cfg.Backend {
	case "", config.BackendMemory:
		return NewMemoryStore(), nil
	case config.BackendFile:
		return NewFileStore(cfg.FilePath)
	case config.BackendPostgres:
		return NewPostgresStore(ctx, cfg.PostgresURL, cfg.PostgresTable, cfg.PostgresPool)
	case config.BackendMongoDB:
		return NewMongoDBStore(ctx, cfg.MongoDBURL, cfg.MongoDBDatabase, cfg.MongoDBCollection)
	case config.BackendSQLite:
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	case config.BackendRedis:
		return NewRedisStore(ctx, cfg.RedisURL, cfg.RedisPrefix)
	default:
		return nil, fmt.Errorf("unsupported settings backend %q", cfg.Backend)
	}
}
