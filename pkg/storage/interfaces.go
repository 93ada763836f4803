package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound is returned when no archive is stored under a name
	ErrPackageNotFound = errors.New("package not found")

	// ErrInvalidName is returned for names that cannot be stored safely
	ErrInvalidName = errors.New("invalid package name")
)

// KV is a namespaced string store. Namespaces isolate plugins from each other.
type KV interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
	Delete(ctx context.Context, namespace, key string) error
	All(ctx context.Context, namespace string) (map[string]string, error)
	Clear(ctx context.Context, namespace string) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// Config for storage backends
type Config struct {
	Type string `yaml:"type"` // "memory" or "redis"

	// Filesystem config for package archives
	FilesystemRoot string `yaml:"filesystemRoot"`

	// Redis config
	RedisURL        string `yaml:"redisURL"`
	RedisPassword   string `yaml:"redisPassword"`
	RedisDB         int    `yaml:"redisDB"`
	RedisMaxRetries int    `yaml:"redisMaxRetries"`
	RedisPoolSize   int    `yaml:"redisPoolSize"`
	KeyPrefix       string `yaml:"keyPrefix"`
}

// NewKV creates the key/value backend selected by config.Type.
func NewKV(config Config) (KV, error) {
	switch config.Type {
	case "", "memory":
		return NewMemoryKV(), nil
	case "redis":
		return NewRedisKV(config)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", config.Type)
	}
}
