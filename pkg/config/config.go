package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/fleet/pkg/cache"
	"github.com/platinummonkey/fleet/pkg/observability"
	"github.com/platinummonkey/fleet/pkg/plugins"
	"github.com/platinummonkey/fleet/pkg/storage"
	"github.com/platinummonkey/fleet/pkg/worker"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Storage configuration
	Storage storage.Config `yaml:"storage"`

	// Plugin runtime configuration
	Plugins PluginsConfig `yaml:"plugins"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// Health/metrics server (separate port for probes)
	HealthPort string `yaml:"healthPort"`
}

// PluginsConfig holds plugin runtime settings
type PluginsConfig struct {
	MaxWorkers          int           `yaml:"maxWorkers"`
	CommandTimeout      time.Duration `yaml:"commandTimeout"`
	CallTimeout         time.Duration `yaml:"callTimeout"`
	IdleTimeout         time.Duration `yaml:"idleTimeout"` // 0 keeps idle hosts loaded
	MaxArchiveSize      int64         `yaml:"maxArchiveSize"`
	StrictIntegrity     bool          `yaml:"strictIntegrity"`
	HostVersion         string        `yaml:"hostVersion"`
	Theme               string        `yaml:"theme"`
	WatchDir            string        `yaml:"watchDir"` // empty disables the drop-directory watcher
	MaintenanceSchedule string        `yaml:"maintenanceSchedule"`
	RestoreWorkers      int           `yaml:"restoreWorkers"`

	Caches CacheSizes `yaml:"caches"`
}

// CacheSizes overrides the default cache bounds. Zero values keep defaults.
type CacheSizes struct {
	ComponentEntries int   `yaml:"componentEntries"`
	ComponentBytes   int64 `yaml:"componentBytes"`
	TemplateEntries  int   `yaml:"templateEntries"`
	TemplateBytes    int64 `yaml:"templateBytes"`
	AssetEntries     int   `yaml:"assetEntries"`
	AssetBytes       int64 `yaml:"assetBytes"`
	MetadataEntries  int   `yaml:"metadataEntries"`
	MetadataBytes    int64 `yaml:"metadataBytes"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel string `yaml:"logLevel"`

	// Metrics
	MetricsEnabled bool `yaml:"metricsEnabled"`

	// OpenTelemetry
	OTelEnabled        bool    `yaml:"otelEnabled"`
	OTelEndpoint       string  `yaml:"otelEndpoint"`
	OTelServiceName    string  `yaml:"otelServiceName"`
	OTelServiceVersion string  `yaml:"otelServiceVersion"`
	OTelInsecure       bool    `yaml:"otelInsecure"` // Use insecure gRPC connection
	OTelSampleRatio    float64 `yaml:"otelSampleRatio"`
}

// Level returns the parsed log level.
func (o ObservabilityConfig) Level() observability.LogLevel {
	return observability.ParseLogLevel(o.LogLevel)
}

// OTel returns the tracing setup for observability.InitOTel.
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Storage: storage.Config{
			Type:           "memory",
			FilesystemRoot: "./data/packages",
			KeyPrefix:      "fleet:",
		},
		Plugins: PluginsConfig{
			MaxWorkers:          plugins.DefaultMaxWorkers,
			CommandTimeout:      worker.DefaultCommandTimeout,
			CallTimeout:         worker.DefaultCallTimeout,
			IdleTimeout:         10 * time.Minute,
			MaxArchiveSize:      plugins.DefaultMaxArchiveSize,
			HostVersion:         plugins.DefaultHostVersion,
			Theme:               "dark",
			MaintenanceSchedule: plugins.DefaultMaintenanceSchedule,
			RestoreWorkers:      4,
		},
		Observability: ObservabilityConfig{
			LogLevel:           "info",
			MetricsEnabled:     true,
			OTelEndpoint:       "localhost:4317",
			OTelServiceName:    "fleetd",
			OTelServiceVersion: "1.0.0",
			OTelInsecure:       true,
			OTelSampleRatio:    1,
		},
	}
}

// LoadConfig builds the configuration from defaults, the YAML file named by
// FLEET_CONFIG_FILE (if any) and FLEET_* environment variables, in that order.
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := getEnv("FLEET_CONFIG_FILE", ""); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadFile overlays the YAML document at path onto c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	loadServerConfig(&c.Server)
	loadStorageConfig(&c.Storage)
	loadPluginsConfig(&c.Plugins)
	loadObservabilityConfig(&c.Observability)
}

// loadServerConfig loads server configuration from environment
func loadServerConfig(s *ServerConfig) {
	s.Host = getEnv("FLEET_HOST", s.Host)
	s.Port = getEnv("FLEET_PORT", s.Port)
	s.ReadTimeout = getEnvDuration("FLEET_READ_TIMEOUT", s.ReadTimeout)
	s.WriteTimeout = getEnvDuration("FLEET_WRITE_TIMEOUT", s.WriteTimeout)
	s.IdleTimeout = getEnvDuration("FLEET_IDLE_TIMEOUT", s.IdleTimeout)
	s.ShutdownTimeout = getEnvDuration("FLEET_SHUTDOWN_TIMEOUT", s.ShutdownTimeout)
	s.HealthPort = getEnv("FLEET_HEALTH_PORT", s.HealthPort)
}

// loadStorageConfig loads storage configuration from environment
func loadStorageConfig(s *storage.Config) {
	s.Type = getEnv("FLEET_STORAGE_TYPE", s.Type)
	s.FilesystemRoot = getEnv("FLEET_PACKAGE_DIR", s.FilesystemRoot)

	// Redis config
	s.RedisURL = getEnv("FLEET_REDIS_URL", s.RedisURL)
	s.RedisPassword = getEnv("FLEET_REDIS_PASSWORD", s.RedisPassword)
	if redisDB := getEnvInt("FLEET_REDIS_DB", -1); redisDB >= 0 {
		s.RedisDB = redisDB
	}
	s.RedisMaxRetries = getEnvInt("FLEET_REDIS_MAX_RETRIES", s.RedisMaxRetries)
	s.RedisPoolSize = getEnvInt("FLEET_REDIS_POOL_SIZE", s.RedisPoolSize)
	s.KeyPrefix = getEnv("FLEET_REDIS_KEY_PREFIX", s.KeyPrefix)
}

// loadPluginsConfig loads plugin runtime configuration from environment
func loadPluginsConfig(p *PluginsConfig) {
	p.MaxWorkers = getEnvInt("FLEET_MAX_WORKERS", p.MaxWorkers)
	p.CommandTimeout = getEnvDuration("FLEET_COMMAND_TIMEOUT", p.CommandTimeout)
	p.CallTimeout = getEnvDuration("FLEET_CALL_TIMEOUT", p.CallTimeout)
	p.IdleTimeout = getEnvDuration("FLEET_WORKER_IDLE_TIMEOUT", p.IdleTimeout)
	p.MaxArchiveSize = getEnvInt64("FLEET_MAX_ARCHIVE_SIZE", p.MaxArchiveSize)
	p.StrictIntegrity = getEnvBool("FLEET_STRICT_INTEGRITY", p.StrictIntegrity)
	p.HostVersion = getEnv("FLEET_HOST_VERSION", p.HostVersion)
	p.Theme = getEnv("FLEET_THEME", p.Theme)
	p.WatchDir = getEnv("FLEET_WATCH_DIR", p.WatchDir)
	p.MaintenanceSchedule = getEnv("FLEET_MAINTENANCE_SCHEDULE", p.MaintenanceSchedule)
	p.RestoreWorkers = getEnvInt("FLEET_RESTORE_WORKERS", p.RestoreWorkers)

	p.Caches.ComponentEntries = getEnvInt("FLEET_COMPONENT_CACHE_ENTRIES", p.Caches.ComponentEntries)
	p.Caches.ComponentBytes = getEnvInt64("FLEET_COMPONENT_CACHE_BYTES", p.Caches.ComponentBytes)
	p.Caches.AssetEntries = getEnvInt("FLEET_ASSET_CACHE_ENTRIES", p.Caches.AssetEntries)
	p.Caches.AssetBytes = getEnvInt64("FLEET_ASSET_CACHE_BYTES", p.Caches.AssetBytes)
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig(o *ObservabilityConfig) {
	o.LogLevel = getEnv("FLEET_LOG_LEVEL", o.LogLevel)
	o.MetricsEnabled = getEnvBool("FLEET_METRICS_ENABLED", o.MetricsEnabled)
	o.OTelEnabled = getEnvBool("FLEET_OTEL_ENABLED", o.OTelEnabled)
	o.OTelEndpoint = getEnv("FLEET_OTEL_ENDPOINT", o.OTelEndpoint)
	o.OTelServiceName = getEnv("FLEET_OTEL_SERVICE_NAME", o.OTelServiceName)
	o.OTelServiceVersion = getEnv("FLEET_OTEL_SERVICE_VERSION", o.OTelServiceVersion)
	o.OTelInsecure = getEnvBool("FLEET_OTEL_INSECURE", o.OTelInsecure)
	o.OTelSampleRatio = getEnvFloat64("FLEET_OTEL_SAMPLE_RATIO", o.OTelSampleRatio)
}

// CacheConfig applies the size overrides to the default cache configuration.
func (p PluginsConfig) CacheConfig() plugins.CacheConfig {
	cfg := plugins.DefaultCacheConfig()
	override(&cfg.Component, p.Caches.ComponentEntries, p.Caches.ComponentBytes)
	override(&cfg.Template, p.Caches.TemplateEntries, p.Caches.TemplateBytes)
	override(&cfg.Asset, p.Caches.AssetEntries, p.Caches.AssetBytes)
	override(&cfg.Metadata, p.Caches.MetadataEntries, p.Caches.MetadataBytes)
	return cfg
}

func override(c *cache.Config, entries int, bytes int64) {
	if entries > 0 {
		c.MaxEntries = entries
	}
	if bytes > 0 {
		c.MaxSize = bytes
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	// Validate storage config based on type
	switch c.Storage.Type {
	case "memory":
	case "redis":
		if c.Storage.RedisURL == "" {
			return fmt.Errorf("redis URL is required for redis storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or redis)", c.Storage.Type)
	}
	if c.Storage.FilesystemRoot == "" {
		return fmt.Errorf("package directory is required")
	}

	// Validate plugin runtime config
	if c.Plugins.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive, got %d", c.Plugins.MaxWorkers)
	}
	if c.Plugins.CommandTimeout <= 0 || c.Plugins.CallTimeout <= 0 {
		return fmt.Errorf("command and call timeouts must be positive")
	}
	if c.Plugins.IdleTimeout < 0 {
		return fmt.Errorf("worker idle timeout must not be negative")
	}
	if c.Plugins.MaxArchiveSize <= 0 {
		return fmt.Errorf("max archive size must be positive")
	}
	if c.Plugins.HostVersion == "" {
		return fmt.Errorf("host version is required")
	}
	if _, err := cron.ParseStandard(c.Plugins.MaintenanceSchedule); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", c.Plugins.MaintenanceSchedule, err)
	}

	// Validate OpenTelemetry config
	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %v", r)
		}
	}

	return nil
}

// env parses the variable key with parse. Unset, blank or unparsable values
// yield def.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, def string) string {
	return env(key, def, func(s string) (string, error) { return s, nil })
}

func getEnvBool(key string, def bool) bool { return env(key, def, strconv.ParseBool) }

func getEnvInt(key string, def int) int { return env(key, def, strconv.Atoi) }

func getEnvInt64(key string, def int64) int64 {
	return env(key, def, func(s string) (int64, error) { return strconv.ParseInt(s, 10, 64) })
}

func getEnvFloat64(key string, def float64) float64 {
	return env(key, def, func(s string) (float64, error) { return strconv.ParseFloat(s, 64) })
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	return env(key, def, time.ParseDuration)
}
