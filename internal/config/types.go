package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support string based YAML decoding.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration values expressed as Go-style strings or numbers interpreted as seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		raw := strings.TrimSpace(value.Value)
		if raw == "" {
			d.Duration = 0
			return nil
		}
		parsed, err := time.ParseDuration(raw)
		if err == nil {
			d.Duration = parsed
			return nil
		}
		secs, convErr := time.ParseDuration(fmt.Sprintf("%ss", raw))
		if convErr == nil {
			d.Duration = secs
			return nil
		}
		return fmt.Errorf("invalid duration value %q: %w", raw, err)
	default:
		return fmt.Errorf("unsupported duration node kind: %v", value.Kind)
	}
}

// MarshalYAML renders the duration as a string to keep config edits human-friendly.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// Config holds application level configuration aggregated from file and environment variables.
type Config struct {
	Server         ServerConfig         `yaml:"server"`
	Logging        LoggingConfig        `yaml:"logging"`
	Headers        HeadersConfig        `yaml:"headers"`
	Settings       SettingsConfig       `yaml:"settings"`
	RateLimit      RateLimitConfig      `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Address             string   `yaml:"address"`
	ReadTimeout         Duration `yaml:"read_timeout"`
	WriteTimeout        Duration `yaml:"write_timeout"`
	IdleTimeout         Duration `yaml:"idle_timeout"`
	CORSAllowedOrigins  []string `yaml:"cors_allowed_origins"`
	AdminAPIKey         string   `yaml:"admin_api_key"`         // Bearer key for /admin and /metrics (empty disables protection)
	TrustForwardedProto bool     `yaml:"trust_forwarded_proto"` // Honour X-Forwarded-Proto from a TLS-terminating proxy
}

// LoggingConfig holds structured logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`        // debug, info, warn, error (default: info)
	Format      string `yaml:"format"`       // json, console (default: json)
	Environment string `yaml:"environment"`  // production, staging, development
	FilePath    string `yaml:"file_path"`    // Optional rotating log file
	MaxSizeMB   int    `yaml:"max_size_mb"`  // Rotate after this size (default: 50)
	MaxBackups  int    `yaml:"max_backups"`  // Rotated files to keep (default: 7)
	MaxAgeDays  int    `yaml:"max_age_days"` // Days to keep rotated files (default: 14)
}

// HeadersConfig controls which responses get security headers and what
// the directive-list headers contain.
type HeadersConfig struct {
	// ExcludeInternal leaves admin, cron and async responses untouched.
	// Pointer so an explicit false in YAML survives defaulting.
	ExcludeInternal       *bool    `yaml:"exclude_internal"`
	InternalPrefixes      []string `yaml:"internal_prefixes"`
	CSPDirectives         []string `yaml:"csp_directives"`         // Replaces the default CSP list when set
	PermissionsDirectives []string `yaml:"permissions_directives"` // Replaces the default Permissions-Policy list when set
}

// ExcludeInternalEnabled reports the effective exclusion setting.
func (h HeadersConfig) ExcludeInternalEnabled() bool {
	return h.ExcludeInternal == nil || *h.ExcludeInternal
}

// PostgresPoolConfig holds PostgreSQL connection pool settings.
type PostgresPoolConfig struct {
	MaxOpenConns    int      `yaml:"max_open_conns"`    // Maximum number of open connections (default: 25)
	MaxIdleConns    int      `yaml:"max_idle_conns"`    // Maximum number of idle connections (default: 5)
	ConnMaxLifetime Duration `yaml:"conn_max_lifetime"` // Maximum lifetime of connections (default: 5m)
}

// SettingsConfig selects where per-header enablement flags are persisted.
type SettingsConfig struct {
	Backend           string             `yaml:"backend"`            // "memory", "file", "postgres", "mongodb", "sqlite" or "redis"
	FilePath          string             `yaml:"file_path"`          // JSON file for the file backend
	PostgresURL       string             `yaml:"postgres_url"`       // PostgreSQL connection string
	PostgresTable     string             `yaml:"postgres_table"`     // Table name (default: header_settings)
	PostgresPool      PostgresPoolConfig `yaml:"postgres_pool"`      // PostgreSQL connection pool settings
	MongoDBURL        string             `yaml:"mongodb_url"`        // MongoDB connection string
	MongoDBDatabase   string             `yaml:"mongodb_database"`   // MongoDB database name
	MongoDBCollection string             `yaml:"mongodb_collection"` // Collection name (default: header_settings)
	SQLitePath        string             `yaml:"sqlite_path"`        // SQLite database file
	RedisURL          string             `yaml:"redis_url"`          // redis://host:port/db
	RedisPrefix       string             `yaml:"redis_prefix"`       // Key prefix (default: secheaders:)
	CacheTTL          Duration           `yaml:"cache_ttl"`          // Read cache lifetime; 0 disables caching
}

// RateLimitConfig holds rate limiting configuration for the admin API.
type RateLimitConfig struct {
	AdminEnabled bool     `yaml:"admin_enabled"` // Enable per-IP limiting on /admin
	AdminLimit   int      `yaml:"admin_limit"`   // Requests allowed per window
	AdminWindow  Duration `yaml:"admin_window"`  // Time window for the limit
}

// CircuitBreakerConfig holds circuit breaker configuration for the settings backend.
type CircuitBreakerConfig struct {
	Enabled  bool                 `yaml:"enabled"`  // Enable circuit breaking (default: true)
	Settings BreakerServiceConfig `yaml:"settings"` // Settings store breaker
}

// BreakerServiceConfig configures a circuit breaker for a specific external service.
type BreakerServiceConfig struct {
	MaxRequests         uint32   `yaml:"max_requests"`         // Max requests in half-open state (default: 3)
	Interval            Duration `yaml:"interval"`             // Stats reset interval in closed state (default: 60s)
	Timeout             Duration `yaml:"timeout"`              // Open state timeout before half-open (default: 30s)
	ConsecutiveFailures uint32   `yaml:"consecutive_failures"` // Consecutive failures to trip (default: 5)
	FailureRatio        float64  `yaml:"failure_ratio"`        // Failure ratio to trip 0.0-1.0 (default: 0.5)
	MinRequests         uint32   `yaml:"min_requests"`         // Minimum requests before checking ratio (default: 10)
}
