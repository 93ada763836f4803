// Package cache provides the bounded caches used by the plugin runtime.
//
// # Store
//
// Store is a generic LRU keyed by string with three independent limits: an
// entry-count cap, a byte-size cap and a per-entry TTL. Sizes are supplied by
// the caller or estimated by a pluggable SizeFunc.
//
//	components := cache.New[*codec.SerializedComponent](cache.Config{
//		Name:       "component",
//		MaxEntries: cache.DefaultComponentEntries,
//		MaxSize:    cache.DefaultComponentSize,
//		DefaultTTL: cache.DefaultComponentTTL,
//	})
//
// # Memory monitor
//
// Monitor samples heap usage into a bounded history and reports a trend and
// whether utilization is critical, so callers can shrink caches under pressure.
package cache
