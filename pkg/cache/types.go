package cache

import (
	"time"
)

// Default capacities for the four runtime caches.
const (
	DefaultComponentEntries = 100
	DefaultComponentSize    = 50 * 1024 * 1024
	DefaultComponentTTL     = 30 * time.Minute

	DefaultTemplateEntries = 200
	DefaultTemplateSize    = 20 * 1024 * 1024
	DefaultTemplateTTL     = 60 * time.Minute

	DefaultAssetEntries = 500
	DefaultAssetSize    = 100 * 1024 * 1024
	DefaultAssetTTL     = 2 * time.Hour

	DefaultMetadataEntries = 1000
	DefaultMetadataSize    = 10 * 1024 * 1024
	DefaultMetadataTTL     = 24 * time.Hour
)

// Entry is a cached value plus its bookkeeping.
type Entry[V any] struct {
	Value          V
	CreatedAt      time.Time
	LastAccessedAt time.Time
	Size           int64
	AccessCount    int64
	TTL            time.Duration
}

func (e *Entry[V]) expired(now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.CreatedAt) > e.TTL
}

// Stats represents cache statistics
type Stats struct {
	Name          string  `json:"name"`
	Entries       int     `json:"entries"`
	SizeBytes     int64   `json:"sizeBytes"`
	MaxEntries    int     `json:"maxEntries"`
	MaxSize       int64   `json:"maxSize"`
	Hits          int64   `json:"hits"`
	Misses        int64   `json:"misses"`
	HitRate       float64 `json:"hitRate"`
	AverageAccess float64 `json:"averageAccess"`
	Evictions     int64   `json:"evictions"`
}

// Config holds cache configuration
type Config struct {
	Name       string
	MaxEntries int           // 0 means unbounded
	MaxSize    int64         // bytes, 0 means unbounded
	DefaultTTL time.Duration // 0 means entries never expire
}

// Observer receives cache activity, e.g. to feed metrics.
type Observer interface {
	CacheHit(name string)
	CacheMiss(name string)
	CacheEvict(name string, reason string)
	CacheSize(name string, entries int, bytes int64)
}

// Eviction reasons reported to observers.
const (
	EvictCapacity = "capacity"
	EvictExpired  = "expired"
	EvictPressure = "pressure"
)
