package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu     sync.Mutex
	hits   int
	misses int
	evicts map[string]int
}

func (o *recordingObserver) CacheHit(string)  { o.mu.Lock(); o.hits++; o.mu.Unlock() }
func (o *recordingObserver) CacheMiss(string) { o.mu.Lock(); o.misses++; o.mu.Unlock() }
func (o *recordingObserver) CacheEvict(_ string, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.evicts == nil {
		o.evicts = map[string]int{}
	}
	o.evicts[reason]++
}
func (o *recordingObserver) CacheSize(string, int, int64) {}

// TestStore_SetGet tests basic storage and hit/miss accounting
func TestStore_SetGet(t *testing.T) {
	s := New[string](Config{Name: "test", MaxEntries: 10})

	require.NoError(t, s.Set("a", "alpha"))

	v, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)

	stats := s.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 0.0001)
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(10), stats.SizeBytes) // 5 UTF-16 units * 2
}

// TestStore_EmptyKey tests that empty keys are rejected
func TestStore_EmptyKey(t *testing.T) {
	s := New[int](Config{})
	assert.ErrorIs(t, s.Set("", 1), ErrInvalidKey)
}

// TestStore_ReplaceExisting tests that re-setting a key replaces size accounting
func TestStore_ReplaceExisting(t *testing.T) {
	s := New[string](Config{MaxSize: 100})

	require.NoError(t, s.Set("k", "x", WithSize(40)))
	require.NoError(t, s.Set("k", "y", WithSize(30)))

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, int64(30), s.Size())
	v, _ := s.Get("k")
	assert.Equal(t, "y", v)
}

// TestStore_SizeCapEviction tests the LRU scenario with a 100 byte cap
func TestStore_SizeCapEviction(t *testing.T) {
	s := New[string](Config{MaxSize: 100})

	require.NoError(t, s.Set("A", "a", WithSize(40)))
	require.NoError(t, s.Set("B", "b", WithSize(40)))

	_, ok := s.Get("A")
	require.True(t, ok)

	require.NoError(t, s.Set("C", "c", WithSize(40)))

	_, okA := s.Peek("A")
	_, okB := s.Peek("B")
	_, okC := s.Peek("C")
	assert.True(t, okA, "recently read entry must survive")
	assert.False(t, okB, "least recently used entry must be evicted")
	assert.True(t, okC)
	assert.Equal(t, int64(80), s.Size())
	assert.Equal(t, int64(1), s.Stats().Evictions)
}

// TestStore_NegativeSize tests that a negative size cannot free capacity
func TestStore_NegativeSize(t *testing.T) {
	s := New[string](Config{MaxSize: 100})

	require.NoError(t, s.Set("neg", "n", WithSize(-500)))
	assert.Equal(t, int64(0), s.Size())

	require.NoError(t, s.Set("A", "a", WithSize(60)))
	require.NoError(t, s.Set("B", "b", WithSize(60)))

	assert.LessOrEqual(t, s.Size(), int64(100))
	_, okA := s.Peek("A")
	assert.False(t, okA)
}

// TestStore_CountCapEviction tests the entry count cap
func TestStore_CountCapEviction(t *testing.T) {
	s := New[int](Config{MaxEntries: 3})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("k%d", i), i))
	}

	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"k2", "k3", "k4"}, s.Keys())
}

// TestStore_EntryTooLarge tests that oversized entries are rejected
func TestStore_EntryTooLarge(t *testing.T) {
	s := New[string](Config{MaxSize: 10})
	require.NoError(t, s.Set("small", "s", WithSize(5)))

	err := s.Set("big", "b", WithSize(11))
	assert.True(t, errors.Is(err, ErrEntryTooLarge))
	assert.Equal(t, 1, s.Len())
}

// TestStore_TTLExpiry tests that expired entries are removed on read
func TestStore_TTLExpiry(t *testing.T) {
	clock := newFakeClock()
	s := New[string](Config{DefaultTTL: time.Minute}, WithClock(clock.Now))

	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Set("forever", "v", WithTTL(0)))

	clock.Advance(30 * time.Second)
	_, ok := s.Get("k")
	assert.True(t, ok)

	clock.Advance(31 * time.Second)
	_, ok = s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 1, s.Len(), "expired entry must be deleted on access")

	_, ok = s.Get("forever")
	assert.True(t, ok)
}

// TestStore_StatsPurgesExpired tests that Stats drops expired entries first
func TestStore_StatsPurgesExpired(t *testing.T) {
	clock := newFakeClock()
	s := New[string](Config{}, WithClock(clock.Now))

	require.NoError(t, s.Set("short", "v", WithTTL(time.Second)))
	require.NoError(t, s.Set("long", "v", WithTTL(time.Hour)))
	clock.Advance(2 * time.Second)

	stats := s.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Evictions)
}

// TestStore_AverageAccess tests access counting
func TestStore_AverageAccess(t *testing.T) {
	s := New[int](Config{})
	require.NoError(t, s.Set("a", 1))
	require.NoError(t, s.Set("b", 2))

	s.Get("a")
	s.Get("a")
	s.Get("a")
	s.Get("b")

	entry, ok := s.Peek("a")
	require.True(t, ok)
	assert.Equal(t, int64(3), entry.AccessCount)
	assert.InDelta(t, 2.0, s.Stats().AverageAccess, 0.0001)
}

// TestStore_RemoveWhere tests prefix style removal
func TestStore_RemoveWhere(t *testing.T) {
	s := New[int](Config{})
	require.NoError(t, s.Set("p1/a", 1))
	require.NoError(t, s.Set("p1/b", 2))
	require.NoError(t, s.Set("p2/a", 3))

	removed := s.RemoveWhere(func(k string) bool { return k[:3] == "p1/" })
	assert.Equal(t, 2, removed)
	assert.Equal(t, []string{"p2/a"}, s.Keys())
}

// TestStore_ShrinkAndClear tests pressure eviction and clearing
func TestStore_ShrinkAndClear(t *testing.T) {
	obs := &recordingObserver{}
	s := New[int](Config{Name: "shrink"}, WithObserver(obs))
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("k%d", i), i, WithSize(1)))
	}

	assert.Equal(t, 5, s.Shrink(0.5))
	assert.Equal(t, 5, s.Len())
	assert.Equal(t, int64(5), s.Size())
	assert.Equal(t, 5, obs.evicts[EvictPressure])

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, int64(0), s.Size())
}

// TestStore_Observer tests that observers see hits and misses
func TestStore_Observer(t *testing.T) {
	obs := &recordingObserver{}
	s := New[int](Config{Name: "obs"}, WithObserver(obs))
	require.NoError(t, s.Set("a", 1))
	s.Get("a")
	s.Get("b")

	assert.Equal(t, 1, obs.hits)
	assert.Equal(t, 1, obs.misses)
}

// TestStore_CapsProperty checks that the caps hold after any sequence of writes
func TestStore_CapsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxEntries := rapid.IntRange(1, 10).Draw(t, "maxEntries")
		maxSize := rapid.Int64Range(1, 200).Draw(t, "maxSize")
		s := New[int](Config{MaxEntries: maxEntries, MaxSize: maxSize})

		ops := rapid.IntRange(1, 50).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			key := rapid.StringMatching(`[a-e]`).Draw(t, "key")
			size := rapid.Int64Range(0, 250).Draw(t, "size")
			err := s.Set(key, i, WithSize(size))
			if size > maxSize {
				if !errors.Is(err, ErrEntryTooLarge) {
					t.Fatalf("expected ErrEntryTooLarge, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if s.Len() > maxEntries {
				t.Fatalf("entries %d exceed cap %d", s.Len(), maxEntries)
			}
			if s.Size() > maxSize {
				t.Fatalf("size %d exceeds cap %d", s.Size(), maxSize)
			}
		}
	})
}

// TestEstimateSize tests the default size estimator
func TestEstimateSize(t *testing.T) {
	assert.Equal(t, int64(0), EstimateSize(nil))
	assert.Equal(t, int64(6), EstimateSize("abc"))
	assert.Equal(t, int64(4), EstimateSize("😀"))
	assert.Equal(t, int64(3), EstimateSize([]byte("abc")))
	assert.Equal(t, int64(2*len(`{"a":1}`)), EstimateSize(map[string]int{"a": 1}))
	assert.Equal(t, int64(fallbackSize), EstimateSize(make(chan int)))
}
