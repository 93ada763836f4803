package cache

import (
	"encoding/json"
	"unicode/utf16"
)

// fallbackSize is charged for values that cannot be encoded.
const fallbackSize = 1024

// SizeFunc estimates the resident byte size of a value.
type SizeFunc func(v any) int64

// EstimateSize is the default SizeFunc. Strings are charged two bytes per
// UTF-16 code unit, byte slices their length, and structured values twice the
// length of their JSON encoding.
func EstimateSize(v any) int64 {
	switch val := v.(type) {
	case nil:
		return 0
	case string:
		return int64(len(utf16.Encode([]rune(val)))) * 2
	case []byte:
		return int64(len(val))
	case json.RawMessage:
		return int64(len(val))
	}

	data, err := json.Marshal(v)
	if err != nil {
		return fallbackSize
	}
	return int64(len(data)) * 2
}
