package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over YAML configuration.
// All env vars use SECHEADERS_ prefix for namespace isolation.
func (c *Config) applyEnvOverrides() {
	// Server config
	setIfEnv(&c.Server.Address, "SECHEADERS_SERVER_ADDRESS")
	setIfEnv(&c.Server.AdminAPIKey, "SECHEADERS_ADMIN_API_KEY")
	setBoolIfEnv(&c.Server.TrustForwardedProto, "SECHEADERS_TRUST_FORWARDED_PROTO")
	setListIfEnv(&c.Server.CORSAllowedOrigins, "SECHEADERS_CORS_ALLOWED_ORIGINS", ",")

	// Logging config
	setIfEnv(&c.Logging.Level, "SECHEADERS_LOG_LEVEL")
	setIfEnv(&c.Logging.Format, "SECHEADERS_LOG_FORMAT")
	setIfEnv(&c.Logging.Environment, "SECHEADERS_ENVIRONMENT")
	setIfEnv(&c.Logging.FilePath, "SECHEADERS_LOG_FILE")

	// Headers config
	if v := os.Getenv("SECHEADERS_EXCLUDE_INTERNAL"); v != "" {
		exclude := v == "1" || strings.EqualFold(v, "true")
		c.Headers.ExcludeInternal = &exclude
	}
	setListIfEnv(&c.Headers.InternalPrefixes, "SECHEADERS_INTERNAL_PREFIXES", ",")
	// CSP directives contain commas, so they are split on semicolons.
	setListIfEnv(&c.Headers.CSPDirectives, "SECHEADERS_CSP_DIRECTIVES", ";")
	setListIfEnv(&c.Headers.PermissionsDirectives, "SECHEADERS_PERMISSIONS_DIRECTIVES", ",")

	// Settings config
	setIfEnv(&c.Settings.Backend, "SECHEADERS_SETTINGS_BACKEND")
	setIfEnv(&c.Settings.FilePath, "SECHEADERS_SETTINGS_FILE_PATH")
	setIfEnv(&c.Settings.PostgresURL, "SECHEADERS_POSTGRES_URL")
	setIfEnv(&c.Settings.PostgresTable, "SECHEADERS_POSTGRES_TABLE")
	setIfEnv(&c.Settings.MongoDBURL, "SECHEADERS_MONGODB_URL")
	setIfEnv(&c.Settings.MongoDBDatabase, "SECHEADERS_MONGODB_DATABASE")
	setIfEnv(&c.Settings.MongoDBCollection, "SECHEADERS_MONGODB_COLLECTION")
	setIfEnv(&c.Settings.SQLitePath, "SECHEADERS_SQLITE_PATH")
	setIfEnv(&c.Settings.RedisURL, "SECHEADERS_REDIS_URL")
	setIfEnv(&c.Settings.RedisPrefix, "SECHEADERS_REDIS_PREFIX")
	setDurationIfEnv(&c.Settings.CacheTTL, "SECHEADERS_SETTINGS_CACHE_TTL")

	// Rate limit config
	setBoolIfEnv(&c.RateLimit.AdminEnabled, "SECHEADERS_RATE_LIMIT_ADMIN_ENABLED")
	setIntIfEnv(&c.RateLimit.AdminLimit, "SECHEADERS_RATE_LIMIT_ADMIN_LIMIT")
	setDurationIfEnv(&c.RateLimit.AdminWindow, "SECHEADERS_RATE_LIMIT_ADMIN_WINDOW")

	// Circuit breaker config
	setBoolIfEnv(&c.CircuitBreaker.Enabled, "SECHEADERS_CIRCUIT_BREAKER_ENABLED")
}

// setIfEnv sets a string pointer to the environment variable value if it exists.
func setIfEnv(target *string, key string) {
	if val := os.Getenv(key); val != "" {
		*target = val
	}
}

// setBoolIfEnv sets a boolean pointer from an environment variable.
// Accepts "1", "true", "TRUE", "True" as true values.
func setBoolIfEnv(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v == "1" || strings.EqualFold(v, "true")
	}
}

// setIntIfEnv sets an int pointer from an environment variable. Invalid values are ignored.
func setIntIfEnv(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*target = n
		}
	}
}

// setDurationIfEnv sets a Duration pointer from an environment variable.
// Uses time.ParseDuration to parse values like "5m", "120s", "1h30m".
func setDurationIfEnv(target *Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			*target = Duration{Duration: dur}
		}
	}
}

// setListIfEnv replaces a list with the sep-separated environment value.
// Blank entries are dropped.
func setListIfEnv(target *[]string, key, sep string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for _, part := range strings.Split(v, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*target = out
}
