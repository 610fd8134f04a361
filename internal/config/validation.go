package config

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend names accepted by settings.backend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendMongoDB  = "mongodb"
	BackendSQLite   = "sqlite"
	BackendRedis    = "redis"
)

var defaultInternalPrefixes = []string{"/admin", "/internal", "/cron", "/ajax"}

// finalize applies defaults and validates the configuration.
func (c *Config) finalize() error {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "production"
	}
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	c.Settings.Backend = strings.ToLower(strings.TrimSpace(c.Settings.Backend))
	if c.Settings.Backend == "" {
		c.Settings.Backend = BackendMemory
	}
	if c.Settings.PostgresTable == "" {
		c.Settings.PostgresTable = "header_settings"
	}
	if c.Settings.MongoDBCollection == "" {
		c.Settings.MongoDBCollection = "header_settings"
	}
	if c.Settings.RedisPrefix == "" {
		c.Settings.RedisPrefix = "secheaders:"
	}

	if c.Headers.ExcludeInternal == nil {
		exclude := true
		c.Headers.ExcludeInternal = &exclude
	}
	if len(c.Headers.InternalPrefixes) == 0 {
		c.Headers.InternalPrefixes = append([]string(nil), defaultInternalPrefixes...)
	}

	if c.RateLimit.AdminLimit <= 0 {
		c.RateLimit.AdminLimit = 60
	}
	if c.RateLimit.AdminWindow.Duration <= 0 {
		c.RateLimit.AdminWindow = Duration{Duration: time.Minute}
	}

	return c.validate()
}

// validate checks that required configuration fields are set correctly.
func (c *Config) validate() error {
	var errs []string

	s := c.Settings
	switch s.Backend {
	case BackendMemory:
	case BackendFile:
		if s.FilePath == "" {
			errs = append(errs, "settings.file_path is required when backend is 'file'")
		}
	case BackendPostgres:
		if s.PostgresURL == "" {
			errs = append(errs, "settings.postgres_url is required when backend is 'postgres'")
		}
	case BackendMongoDB:
		if s.MongoDBURL == "" {
			errs = append(errs, "settings.mongodb_url is required when backend is 'mongodb'")
		}
		if s.MongoDBDatabase == "" {
			errs = append(errs, "settings.mongodb_database is required when backend is 'mongodb'")
		}
	case BackendSQLite:
		if s.SQLitePath == "" {
			errs = append(errs, "settings.sqlite_path is required when backend is 'sqlite'")
		}
	case BackendRedis:
		if s.RedisURL == "" {
			errs = append(errs, "settings.redis_url is required when backend is 'redis'")
		}
	default:
		errs = append(errs, fmt.Sprintf("settings.backend %q is not supported (memory, file, postgres, mongodb, sqlite, redis)", s.Backend))
	}
	if s.CacheTTL.Duration < 0 {
		errs = append(errs, "settings.cache_ttl must not be negative")
	}

	for _, prefix := range c.Headers.InternalPrefixes {
		if !strings.HasPrefix(prefix, "/") {
			errs = append(errs, fmt.Sprintf("headers.internal_prefixes entry %q must start with '/'", prefix))
		}
	}

	cb := c.CircuitBreaker.Settings
	if c.CircuitBreaker.Enabled && (cb.FailureRatio < 0 || cb.FailureRatio > 1) {
		errs = append(errs, "circuit_breaker.settings.failure_ratio must be between 0 and 1")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ApplyPostgresPoolSettings applies connection pool settings to a database connection.
// If pool config is not specified, applies sensible defaults.
func ApplyPostgresPoolSettings(db *sql.DB, pool PostgresPoolConfig) {
	maxOpen := pool.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25 // default
	}

	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5 // default
	}

	// maxIdle cannot exceed maxOpen
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}

	maxLifetime := pool.ConnMaxLifetime.Duration
	if maxLifetime <= 0 {
		maxLifetime = 5 * time.Minute // default
	}

	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
}
