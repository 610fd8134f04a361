package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":8080" {
		t.Errorf("address = %q", cfg.Server.Address)
	}
	if cfg.Settings.Backend != BackendMemory {
		t.Errorf("backend = %q", cfg.Settings.Backend)
	}
	if !cfg.Headers.ExcludeInternalEnabled() {
		t.Error("internal exclusion should default to on")
	}
	if strings.Join(cfg.Headers.InternalPrefixes, ",") != "/admin,/internal,/cron,/ajax" {
		t.Errorf("prefixes = %v", cfg.Headers.InternalPrefixes)
	}
	if cfg.Settings.CacheTTL.Duration != 30*time.Second {
		t.Errorf("cache ttl = %v", cfg.Settings.CacheTTL)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("logging = %+v", cfg.Logging)
	}
	if !cfg.CircuitBreaker.Enabled || cfg.CircuitBreaker.Settings.ConsecutiveFailures != 5 {
		t.Errorf("breaker = %+v", cfg.CircuitBreaker)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
  read_timeout: 5s
  admin_api_key: secret
  trust_forwarded_proto: true
headers:
  exclude_internal: false
  internal_prefixes: ["/wp-admin"]
  csp_directives:
    - "default-src 'self'"
settings:
  backend: file
  file_path: /tmp/headers.json
  cache_ttl: 0
rate_limit:
  admin_limit: 10
  admin_window: 30
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Address != ":9090" || cfg.Server.ReadTimeout.Duration != 5*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if !cfg.Server.TrustForwardedProto || cfg.Server.AdminAPIKey != "secret" {
		t.Errorf("server flags = %+v", cfg.Server)
	}
	if cfg.Headers.ExcludeInternalEnabled() {
		t.Error("explicit exclude_internal: false must be preserved")
	}
	if len(cfg.Headers.InternalPrefixes) != 1 || cfg.Headers.InternalPrefixes[0] != "/wp-admin" {
		t.Errorf("prefixes = %v", cfg.Headers.InternalPrefixes)
	}
	if len(cfg.Headers.CSPDirectives) != 1 {
		t.Errorf("csp = %v", cfg.Headers.CSPDirectives)
	}
	if cfg.Settings.Backend != BackendFile || cfg.Settings.CacheTTL.Duration != 0 {
		t.Errorf("settings = %+v", cfg.Settings)
	}
	if cfg.RateLimit.AdminWindow.Duration != 30*time.Second {
		t.Errorf("numeric duration should be seconds, got %v", cfg.RateLimit.AdminWindow)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfig_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "settings:\n  cache_ttl: soon\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "invalid duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

func TestValidate_Backends(t *testing.T) {
	tests := []struct {
		name     string
		settings SettingsConfig
		wantErr  string
	}{
		{name: "memory", settings: SettingsConfig{Backend: "memory"}},
		{name: "uppercase normalised", settings: SettingsConfig{Backend: "MEMORY"}},
		{name: "file missing path", settings: SettingsConfig{Backend: "file"}, wantErr: "settings.file_path is required"},
		{name: "postgres missing url", settings: SettingsConfig{Backend: "postgres"}, wantErr: "settings.postgres_url is required"},
		{name: "mongodb missing db", settings: SettingsConfig{Backend: "mongodb", MongoDBURL: "mongodb://x"}, wantErr: "settings.mongodb_database is required"},
		{name: "sqlite missing path", settings: SettingsConfig{Backend: "sqlite"}, wantErr: "settings.sqlite_path is required"},
		{name: "redis missing url", settings: SettingsConfig{Backend: "redis"}, wantErr: "settings.redis_url is required"},
		{name: "redis ok", settings: SettingsConfig{Backend: "redis", RedisURL: "redis://localhost:6379/0"}},
		{name: "unknown", settings: SettingsConfig{Backend: "etcd"}, wantErr: "is not supported"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Settings = tt.settings
			err := cfg.finalize()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidate_InternalPrefixes(t *testing.T) {
	cfg := defaultConfig()
	cfg.Headers.InternalPrefixes = []string{"/ok", "admin"}
	err := cfg.finalize()
	if err == nil || !strings.Contains(err.Error(), `"admin" must start with '/'`) {
		t.Fatalf("expected prefix error, got %v", err)
	}
}

func TestValidate_FailureRatio(t *testing.T) {
	cfg := defaultConfig()
	cfg.CircuitBreaker.Settings.FailureRatio = 1.5
	if err := cfg.finalize(); err == nil {
		t.Fatal("expected failure ratio error")
	}
}
