package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/observability"
)

// TestEnvHelpers tests typed environment lookups and their fallbacks
func TestEnvHelpers(t *testing.T) {
	const key = "FLEET_TEST_VALUE"

	tests := []struct {
		name   string
		value  string
		lookup func() interface{}
		want   interface{}
	}{
		{"string", " redis:6379 ", func() interface{} { return getEnv(key, "localhost") }, "redis:6379"},
		{"blank string", "   ", func() interface{} { return getEnv(key, "localhost") }, "localhost"},
		{"unset", "", func() interface{} { return getEnv(key, "fallback") }, "fallback"},
		{"bool", "TRUE", func() interface{} { return getEnvBool(key, false) }, true},
		{"bool zero", "0", func() interface{} { return getEnvBool(key, true) }, false},
		{"bool invalid", "maybe", func() interface{} { return getEnvBool(key, true) }, true},
		{"int", "8", func() interface{} { return getEnvInt(key, 4) }, 8},
		{"int invalid", "eight", func() interface{} { return getEnvInt(key, 4) }, 4},
		{"int64", "67108864", func() interface{} { return getEnvInt64(key, 1) }, int64(64 << 20)},
		{"float", "0.25", func() interface{} { return getEnvFloat64(key, 1) }, 0.25},
		{"float invalid", "quarter", func() interface{} { return getEnvFloat64(key, 1) }, 1.0},
		{"duration", "750ms", func() interface{} { return getEnvDuration(key, time.Second) }, 750 * time.Millisecond},
		{"duration without unit", "30", func() interface{} { return getEnvDuration(key, time.Second) }, time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(key, tt.value)
			if got := tt.lookup(); got != tt.want {
				t.Errorf("lookup of %q = %v (%T), want %v (%T)", tt.value, got, got, tt.want, tt.want)
			}
		})
	}
}

// clearEnv blanks every FLEET_* variable for the duration of the test
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if key, _, _ := strings.Cut(kv, "="); strings.HasPrefix(key, "FLEET_") {
			t.Setenv(key, "")
		}
	}
}

// TestLoadServerConfig tests server settings from the environment
func TestLoadServerConfig(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want ServerConfig
	}{
		{
			name: "defaults",
			env:  map[string]string{},
			want: Default().Server,
		},
		{
			name: "custom values",
			env: map[string]string{
				"FLEET_HOST":             "localhost",
				"FLEET_PORT":             "3000",
				"FLEET_READ_TIMEOUT":     "30s",
				"FLEET_WRITE_TIMEOUT":    "30s",
				"FLEET_IDLE_TIMEOUT":     "120s",
				"FLEET_SHUTDOWN_TIMEOUT": "60s",
				"FLEET_HEALTH_PORT":      "9091",
			},
			want: ServerConfig{
				Host:            "localhost",
				Port:            "3000",
				ReadTimeout:     30 * time.Second,
				WriteTimeout:    30 * time.Second,
				IdleTimeout:     120 * time.Second,
				ShutdownTimeout: 60 * time.Second,
				HealthPort:      "9091",
			},
		},
		{
			name: "invalid duration keeps default",
			env:  map[string]string{"FLEET_READ_TIMEOUT": "soon"},
			want: Default().Server,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got := Default().Server
			loadServerConfig(&got)
			if got != tt.want {
				t.Errorf("loadServerConfig() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

// TestLoadStorageConfig tests storage settings from the environment
func TestLoadStorageConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLEET_STORAGE_TYPE", "redis")
	t.Setenv("FLEET_PACKAGE_DIR", "/var/lib/fleet")
	t.Setenv("FLEET_REDIS_URL", "redis://cache:6379")
	t.Setenv("FLEET_REDIS_DB", "0")
	t.Setenv("FLEET_REDIS_POOL_SIZE", "20")

	got := Default().Storage
	got.RedisDB = 3
	loadStorageConfig(&got)

	if got.Type != "redis" {
		t.Errorf("Type = %q, want redis", got.Type)
	}
	if got.FilesystemRoot != "/var/lib/fleet" {
		t.Errorf("FilesystemRoot = %q", got.FilesystemRoot)
	}
	if got.RedisURL != "redis://cache:6379" {
		t.Errorf("RedisURL = %q", got.RedisURL)
	}
	if got.RedisDB != 0 {
		t.Errorf("RedisDB = %d, want 0 from the environment", got.RedisDB)
	}
	if got.RedisPoolSize != 20 {
		t.Errorf("RedisPoolSize = %d, want 20", got.RedisPoolSize)
	}
	if got.KeyPrefix != "fleet:" {
		t.Errorf("KeyPrefix = %q, want default", got.KeyPrefix)
	}
}

// TestLoadPluginsConfig tests plugin runtime settings from the environment
func TestLoadPluginsConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLEET_MAX_WORKERS", "2")
	t.Setenv("FLEET_COMMAND_TIMEOUT", "5s")
	t.Setenv("FLEET_WORKER_IDLE_TIMEOUT", "0s")
	t.Setenv("FLEET_STRICT_INTEGRITY", "true")
	t.Setenv("FLEET_HOST_VERSION", "2.1.0")
	t.Setenv("FLEET_WATCH_DIR", "/tmp/drop")
	t.Setenv("FLEET_ASSET_CACHE_BYTES", "1024")

	got := Default().Plugins
	loadPluginsConfig(&got)

	if got.MaxWorkers != 2 {
		t.Errorf("MaxWorkers = %d, want 2", got.MaxWorkers)
	}
	if got.CommandTimeout != 5*time.Second {
		t.Errorf("CommandTimeout = %v, want 5s", got.CommandTimeout)
	}
	if got.IdleTimeout != 0 {
		t.Errorf("IdleTimeout = %v, want 0", got.IdleTimeout)
	}
	if !got.StrictIntegrity {
		t.Error("StrictIntegrity = false, want true")
	}
	if got.HostVersion != "2.1.0" {
		t.Errorf("HostVersion = %q", got.HostVersion)
	}
	if got.WatchDir != "/tmp/drop" {
		t.Errorf("WatchDir = %q", got.WatchDir)
	}

	caches := got.CacheConfig()
	if caches.Asset.MaxSize != 1024 {
		t.Errorf("asset MaxSize = %d, want 1024", caches.Asset.MaxSize)
	}
	if caches.Asset.MaxEntries != cache.DefaultAssetEntries {
		t.Errorf("asset MaxEntries = %d, want default", caches.Asset.MaxEntries)
	}
	if caches.Component.MaxSize != cache.DefaultComponentSize {
		t.Errorf("component MaxSize = %d, want default", caches.Component.MaxSize)
	}
}

// TestLoadObservabilityConfig tests observability settings from the environment
func TestLoadObservabilityConfig(t *testing.T) {
	clearEnv(t)
	t.Setenv("FLEET_LOG_LEVEL", "debug")
	t.Setenv("FLEET_OTEL_ENABLED", "1")
	t.Setenv("FLEET_OTEL_ENDPOINT", "collector:4317")
	t.Setenv("FLEET_OTEL_SAMPLE_RATIO", "0.25")

	got := Default().Observability
	loadObservabilityConfig(&got)

	if got.Level() != observability.DebugLevel {
		t.Errorf("Level() = %v, want DEBUG", got.Level())
	}
	otel := got.OTel()
	if !otel.Enabled || otel.Endpoint != "collector:4317" || otel.ServiceName != "fleetd" || otel.SampleRatio != 0.25 {
		t.Errorf("OTel() = %+v", otel)
	}
}

// TestConfigValidate tests configuration validation
func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(c *Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"missing port", func(c *Config) { c.Server.Port = "" }, "server port is required"},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }, "must be different"},
		{"unknown storage", func(c *Config) { c.Storage.Type = "postgres" }, "invalid storage type"},
		{"redis without url", func(c *Config) { c.Storage.Type = "redis" }, "redis URL is required"},
		{"redis with url", func(c *Config) {
			c.Storage.Type = "redis"
			c.Storage.RedisURL = "redis://localhost:6379"
		}, ""},
		{"no package dir", func(c *Config) { c.Storage.FilesystemRoot = "" }, "package directory"},
		{"zero workers", func(c *Config) { c.Plugins.MaxWorkers = 0 }, "max workers"},
		{"zero timeout", func(c *Config) { c.Plugins.CallTimeout = 0 }, "timeouts must be positive"},
		{"negative idle", func(c *Config) { c.Plugins.IdleTimeout = -time.Second }, "idle timeout"},
		{"bad schedule", func(c *Config) { c.Plugins.MaintenanceSchedule = "sometimes" }, "invalid maintenance schedule"},
		{"cron schedule", func(c *Config) { c.Plugins.MaintenanceSchedule = "*/5 * * * *" }, ""},
		{"otel without endpoint", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelEndpoint = ""
		}, "endpoint is required"},
		{"otel sample ratio", func(c *Config) {
			c.Observability.OTelEnabled = true
			c.Observability.OTelSampleRatio = 1.5
		}, "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			switch {
			case tt.wantErr == "" && err != nil:
				t.Errorf("Validate() unexpected error: %v", err)
			case tt.wantErr != "" && err == nil:
				t.Errorf("Validate() = nil, want error containing %q", tt.wantErr)
			case tt.wantErr != "" && !strings.Contains(err.Error(), tt.wantErr):
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

// TestLoadConfig tests the file and environment layering
func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "fleet.yaml")
	doc := `
server:
  port: "7000"
  readTimeout: 5s
storage:
  filesystemRoot: /srv/fleet
plugins:
  maxWorkers: 3
  strictIntegrity: true
  caches:
    templateEntries: 10
observability:
  logLevel: warn
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLEET_CONFIG_FILE", path)
	t.Setenv("FLEET_MAX_WORKERS", "5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "7000" || cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.HealthPort != "9090" {
		t.Errorf("HealthPort = %q, want default", cfg.Server.HealthPort)
	}
	if cfg.Storage.FilesystemRoot != "/srv/fleet" {
		t.Errorf("FilesystemRoot = %q", cfg.Storage.FilesystemRoot)
	}
	if cfg.Plugins.MaxWorkers != 5 {
		t.Errorf("MaxWorkers = %d, want environment to win", cfg.Plugins.MaxWorkers)
	}
	if !cfg.Plugins.StrictIntegrity {
		t.Error("StrictIntegrity = false, want true")
	}
	if cfg.Plugins.CacheConfig().Template.MaxEntries != 10 {
		t.Errorf("template MaxEntries = %d", cfg.Plugins.CacheConfig().Template.MaxEntries)
	}
	if cfg.Observability.Level() != observability.WarnLevel {
		t.Errorf("Level() = %v", cfg.Observability.Level())
	}
}

// TestLoadConfig_Errors tests unreadable and invalid configuration
func TestLoadConfig_Errors(t *testing.T) {
	clearEnv(t)

	t.Setenv("FLEET_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() with missing file = nil error")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("server: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FLEET_CONFIG_FILE", path)
	if _, err := LoadConfig(); err == nil {
		t.Error("LoadConfig() with malformed file = nil error")
	}

	t.Setenv("FLEET_CONFIG_FILE", "")
	t.Setenv("FLEET_STORAGE_TYPE", "cassandra")
	if _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), "validation failed") {
		t.Errorf("LoadConfig() = %v, want validation error", err)
	}
}
