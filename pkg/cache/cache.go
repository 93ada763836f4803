package cache

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Store is a bounded LRU cache with per-entry TTL, an entry-count cap and a
// byte-size cap. It is safe for concurrent use.
type Store[V any] struct {
	config   Config
	sizeOf   SizeFunc
	now      func() time.Time
	observer Observer

	mu        sync.Mutex
	lru       *simplelru.LRU[string, *Entry[V]]
	totalSize int64

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64
}

// Option configures a Store
type Option func(*storeOptions)

type storeOptions struct {
	sizeOf   SizeFunc
	now      func() time.Time
	observer Observer
}

// WithSizeFunc overrides the size estimator.
func WithSizeFunc(fn SizeFunc) Option {
	return func(o *storeOptions) { o.sizeOf = fn }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(o *storeOptions) { o.now = now }
}

// WithObserver attaches an activity observer.
func WithObserver(obs Observer) Option {
	return func(o *storeOptions) { o.observer = obs }
}

// New creates a store from config
func New[V any](config Config, opts ...Option) *Store[V] {
	o := storeOptions{sizeOf: EstimateSize, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	capacity := config.MaxEntries
	if capacity <= 0 {
		capacity = math.MaxInt32
	}

	s := &Store[V]{
		config:   config,
		sizeOf:   o.sizeOf,
		now:      o.now,
		observer: o.observer,
	}

	// Capacity is enforced by Set before every insert, so the LRU never
	// evicts on its own; the callback only keeps the byte total honest.
	l, err := simplelru.NewLRU[string, *Entry[V]](capacity, func(_ string, e *Entry[V]) {
		s.totalSize -= e.Size
	})
	if err != nil {
		// only possible for a non-positive size, which is excluded above
		panic(err)
	}
	s.lru = l
	return s
}

// SetOption configures a single Set call
type SetOption func(*setOptions)

type setOptions struct {
	size    int64
	hasSize bool
	ttl     time.Duration
	hasTTL  bool
}

// WithSize supplies a precomputed size for the entry. Negative sizes count
// as zero.
func WithSize(size int64) SetOption {
	return func(o *setOptions) {
		o.size = max(size, 0)
		o.hasSize = true
	}
}

// WithTTL overrides the store's default TTL for the entry. Zero disables expiry.
func WithTTL(ttl time.Duration) SetOption {
	return func(o *setOptions) {
		o.ttl = ttl
		o.hasTTL = true
	}
}

// Set stores value under key, evicting least recently used entries until both
// caps hold.
func (s *Store[V]) Set(key string, value V, opts ...SetOption) error {
	if key == "" {
		return ErrInvalidKey
	}

	o := setOptions{ttl: s.config.DefaultTTL}
	for _, opt := range opts {
		opt(&o)
	}
	size := o.size
	if !o.hasSize {
		size = s.sizeOf(value)
	}
	if s.config.MaxSize > 0 && size > s.config.MaxSize {
		return ErrEntryTooLarge
	}

	now := s.now()

	s.mu.Lock()
	s.lru.Remove(key)
	s.purgeExpiredLocked(now)

	for s.lru.Len() > 0 && !s.fitsLocked(size) {
		if _, _, ok := s.lru.RemoveOldest(); ok {
			s.evictions.Add(1)
			s.notifyEvict(EvictCapacity)
		}
	}

	s.lru.Add(key, &Entry[V]{
		Value:          value,
		CreatedAt:      now,
		LastAccessedAt: now,
		Size:           size,
		TTL:            o.ttl,
	})
	s.totalSize += size
	entries, total := s.lru.Len(), s.totalSize
	s.mu.Unlock()

	s.notifySize(entries, total)
	return nil
}

func (s *Store[V]) fitsLocked(size int64) bool {
	if s.config.MaxEntries > 0 && s.lru.Len() >= s.config.MaxEntries {
		return false
	}
	if s.config.MaxSize > 0 && s.totalSize+size > s.config.MaxSize {
		return false
	}
	return true
}

// Get returns the value for key, refreshing its recency. Expired entries are
// removed and reported as misses.
func (s *Store[V]) Get(key string) (V, bool) {
	var zero V
	now := s.now()

	s.mu.Lock()
	entry, ok := s.lru.Peek(key)
	if ok && entry.expired(now) {
		s.lru.Remove(key)
		s.evictions.Add(1)
		s.notifyEvict(EvictExpired)
		ok = false
	}
	if !ok {
		s.mu.Unlock()
		s.misses.Add(1)
		if s.observer != nil {
			s.observer.CacheMiss(s.config.Name)
		}
		return zero, false
	}

	s.lru.Get(key)
	entry.AccessCount++
	entry.LastAccessedAt = now
	value := entry.Value
	s.mu.Unlock()

	s.hits.Add(1)
	if s.observer != nil {
		s.observer.CacheHit(s.config.Name)
	}
	return value, true
}

// Peek returns a copy of the entry for key without touching recency or stats.
func (s *Store[V]) Peek(key string) (Entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.lru.Peek(key)
	if !ok || entry.expired(s.now()) {
		return Entry[V]{}, false
	}
	return *entry, true
}

// Delete removes key and reports whether it was present.
func (s *Store[V]) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Remove(key)
}

// RemoveWhere deletes every key matching pred and returns how many were removed.
func (s *Store[V]) RemoveWhere(pred func(key string) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, key := range s.lru.Keys() {
		if pred(key) && s.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

// Keys returns the resident keys from least to most recently used.
func (s *Store[V]) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Keys()
}

// Len returns the number of resident entries, including expired ones not yet purged.
func (s *Store[V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Size returns the resident byte total.
func (s *Store[V]) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSize
}

// Clear drops every entry. Counters are kept.
func (s *Store[V]) Clear() {
	s.mu.Lock()
	s.lru.Purge()
	s.totalSize = 0
	s.mu.Unlock()

	s.notifySize(0, 0)
}

// PurgeExpired removes expired entries and returns how many were dropped.
func (s *Store[V]) PurgeExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeExpiredLocked(s.now())
}

func (s *Store[V]) purgeExpiredLocked(now time.Time) int {
	purged := 0
	for _, key := range s.lru.Keys() {
		entry, ok := s.lru.Peek(key)
		if ok && entry.expired(now) {
			s.lru.Remove(key)
			purged++
		}
	}
	if purged > 0 {
		s.evictions.Add(int64(purged))
		for i := 0; i < purged; i++ {
			s.notifyEvict(EvictExpired)
		}
	}
	return purged
}

// Shrink evicts the oldest fraction of entries. It is used under memory
// pressure and returns the number of evicted entries.
func (s *Store[V]) Shrink(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}

	s.mu.Lock()
	target := int(math.Ceil(float64(s.lru.Len()) * fraction))
	evicted := 0
	for evicted < target {
		if _, _, ok := s.lru.RemoveOldest(); !ok {
			break
		}
		evicted++
		s.notifyEvict(EvictPressure)
	}
	s.evictions.Add(int64(evicted))
	entries, total := s.lru.Len(), s.totalSize
	s.mu.Unlock()

	s.notifySize(entries, total)
	return evicted
}

// Stats returns a snapshot of cache statistics. Expired entries are purged first.
func (s *Store[V]) Stats() Stats {
	s.mu.Lock()
	s.purgeExpiredLocked(s.now())

	var accesses int64
	for _, key := range s.lru.Keys() {
		if entry, ok := s.lru.Peek(key); ok {
			accesses += entry.AccessCount
		}
	}
	stats := Stats{
		Name:       s.config.Name,
		Entries:    s.lru.Len(),
		SizeBytes:  s.totalSize,
		MaxEntries: s.config.MaxEntries,
		MaxSize:    s.config.MaxSize,
	}
	s.mu.Unlock()

	stats.Hits = s.hits.Load()
	stats.Misses = s.misses.Load()
	stats.Evictions = s.evictions.Load()
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total)
	}
	if stats.Entries > 0 {
		stats.AverageAccess = float64(accesses) / float64(stats.Entries)
	}
	return stats
}

// Name returns the configured cache name
func (s *Store[V]) Name() string {
	return s.config.Name
}

func (s *Store[V]) notifyEvict(reason string) {
	if s.observer != nil {
		s.observer.CacheEvict(s.config.Name, reason)
	}
}

func (s *Store[V]) notifySize(entries int, bytes int64) {
	if s.observer != nil {
		s.observer.CacheSize(s.config.Name, entries, bytes)
	}
}
