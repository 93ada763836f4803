package ui

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// EventAttrPrefix marks the handler id of a bound event on a rendered node.
const EventAttrPrefix = "data-fc-on"

// EventBinder assigns ids to event handlers found in props.
type EventBinder interface {
	Bind(event string, handler any) string
}

// Action is a host-interpreted handler produced by built-in components, as
// opposed to a function supplied by plugin code.
type Action struct {
	Kind    string `json:"kind"`
	Content string `json:"content,omitempty"`
	URL     string `json:"url,omitempty"`
	Target  any    `json:"-"`
}

// Built-in action kinds.
const (
	ActionCopy = "copy"
	ActionOpen = "open"
	ActionPush = "push"
)

// IsHandler reports whether v can be bound as an event handler.
func IsHandler(v any) bool {
	if v == nil {
		return false
	}
	switch v.(type) {
	case Action, *Action:
		return true
	}
	return reflect.TypeOf(v).Kind() == reflect.Func
}

var propRenames = map[string]string{
	"className": "class",
	"htmlFor":   "for",
}

var skippedProps = map[string]bool{
	"children": true,
	"key":      true,
	"ref":      true,
}

// projectAttributes maps props onto node attributes and event bindings.
func projectAttributes(n *Node, props map[string]any, binder EventBinder) {
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if skippedProps[key] {
			continue
		}
		value := props[key]

		if event, ok := eventName(key); ok {
			if !IsHandler(value) || binder == nil {
				continue
			}
			id := binder.Bind(event, value)
			if id == "" {
				continue
			}
			if n.Events == nil {
				n.Events = make(map[string]string)
			}
			n.Events[event] = id
			n.SetAttr(EventAttrPrefix+event, id)
			continue
		}

		name := key
		if renamed, ok := propRenames[key]; ok {
			name = renamed
		}

		if key == "style" {
			if css := styleText(value); css != "" {
				n.SetAttr("style", css)
			}
			continue
		}

		if s, ok := attrValue(value); ok {
			n.SetAttr(name, s)
		}
	}
}

// eventName returns "click" for "onClick".
func eventName(prop string) (string, bool) {
	if len(prop) < 3 || !strings.HasPrefix(prop, "on") {
		return "", false
	}
	r := rune(prop[2])
	if !unicode.IsUpper(r) {
		return "", false
	}
	return strings.ToLower(prop[2:]), true
}

func attrValue(v any) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case bool:
		if !val {
			return "", false
		}
		return "", true
	case string:
		return val, true
	case json.Number:
		return val.String(), true
	}
	if s, ok := formatNumber(v); ok {
		return s, true
	}
	if IsHandler(v) {
		return "", false
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", false
	}
	return string(data), true
}

func formatNumber(v any) (string, bool) {
	switch val := v.(type) {
	case int:
		return strconv.Itoa(val), true
	case int32:
		return strconv.FormatInt(int64(val), 10), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case uint:
		return strconv.FormatUint(uint64(val), 10), true
	case uint64:
		return strconv.FormatUint(val, 10), true
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	}
	return "", false
}

// unitlessProperties take bare numbers.
var unitlessProperties = map[string]bool{
	"opacity":     true,
	"z-index":     true,
	"font-weight": true,
	"flex":        true,
	"flex-grow":   true,
	"flex-shrink": true,
	"line-height": true,
	"order":       true,
	"zoom":        true,
}

// styleText renders a style prop as CSS declarations in key order.
func styleText(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		decls := make([]string, 0, len(keys))
		for _, k := range keys {
			prop := kebabCase(k)
			value, ok := cssValue(prop, val[k])
			if !ok {
				continue
			}
			decls = append(decls, fmt.Sprintf("%s: %s", prop, value))
		}
		return strings.Join(decls, "; ")
	case map[string]string:
		m := make(map[string]any, len(val))
		for k, s := range val {
			m[k] = s
		}
		return styleText(m)
	}
	return ""
}

func cssValue(prop string, v any) (string, bool) {
	switch val := v.(type) {
	case nil, bool:
		return "", false
	case string:
		if val == "" {
			return "", false
		}
		return val, true
	}
	s, ok := formatNumber(v)
	if !ok {
		return "", false
	}
	if s == "0" || unitlessProperties[prop] {
		return s, true
	}
	return s + "px", true
}

// kebabCase converts backgroundColor to background-color.
func kebabCase(s string) string {
	if strings.Contains(s, "-") {
		return strings.ToLower(s)
	}
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
