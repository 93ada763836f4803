package ui

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"reflect"
)

// Fingerprint returns a stable hash of a declarative tree, which must already be
// converted with FromValue. Trees containing
// event handlers are not fingerprinted, since their compiled form depends on
// handler ids, and ok is false.
func Fingerprint(input any) (string, bool) {
	canonical, ok := canonicalize(input)
	if !ok {
		return "", false
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

func canonicalize(v any) (any, bool) {
	if IsHandler(v) {
		return nil, false
	}

	switch val := v.(type) {
	case *Element:
		if val == nil {
			return nil, true
		}
		props, ok := canonicalize(val.Props)
		if !ok {
			return nil, false
		}
		children, ok := canonicalize(val.Children)
		if !ok {
			return nil, false
		}
		return map[string]any{"type": val.Type, "props": props, "children": children}, true
	case Element:
		return canonicalize(&val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			c, ok := canonicalize(item)
			if !ok {
				return nil, false
			}
			out[k] = c
		}
		return out, true
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			c, ok := canonicalize(item)
			if !ok {
				return nil, false
			}
			out[i] = c
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.IsValid() && rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, rv.Len())
		for i := range out {
			c, ok := canonicalize(rv.Index(i).Interface())
			if !ok {
				return nil, false
			}
			out[i] = c
		}
		return out, true
	}
	return v, true
}
