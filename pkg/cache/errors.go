package cache

import "errors"

var (
	// ErrEntryTooLarge is returned when a single entry exceeds the store's byte cap
	ErrEntryTooLarge = errors.New("cache entry exceeds maximum size")

	// ErrInvalidKey is returned for empty keys
	ErrInvalidKey = errors.New("invalid cache key")
)
