package ui

import (
	"reflect"
)

// Fragment groups children without producing a wrapper node.
const Fragment = "Fragment"

// Element is a node of the declarative tree produced by plugin code.
// Children hold *Element values, strings, numbers, booleans, nil or nested slices.
type Element struct {
	Type     string         `json:"type"`
	Props    map[string]any `json:"props,omitempty"`
	Children []any          `json:"children,omitempty"`
}

// Create builds an element.
func Create(typ string, props map[string]any, children ...any) *Element {
	if props == nil {
		props = map[string]any{}
	}
	return &Element{Type: typ, Props: props, Children: children}
}

// Prop returns a single prop value.
func (e *Element) Prop(name string) any {
	if e == nil || e.Props == nil {
		return nil
	}
	return e.Props[name]
}

// AllChildren returns Children, falling back to the children prop.
func (e *Element) AllChildren() []any {
	if len(e.Children) > 0 {
		return e.Children
	}
	if c, ok := e.Props["children"]; ok && c != nil {
		if list, ok := c.([]any); ok {
			return list
		}
		return []any{c}
	}
	return nil
}

// FromValue converts a generic value, such as one exported from the
// interpreter, into an element tree. Maps carrying a string "type" become
// Elements; slices are converted element-wise; everything else is returned as is.
func FromValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case *Element:
		return val
	case Element:
		return &val
	case map[string]any:
		typ, ok := val["type"].(string)
		if !ok {
			return val
		}
		el := &Element{Type: typ, Props: map[string]any{}}
		if props, ok := val["props"].(map[string]any); ok {
			for k, p := range props {
				if k == "children" {
					continue
				}
				el.Props[k] = convertProp(p)
			}
			if c, ok := props["children"]; ok {
				el.Children = flattenChildren(c)
			}
		}
		if c, ok := val["children"]; ok && c != nil {
			el.Children = flattenChildren(c)
		}
		return el
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, FromValue(item))
		}
		return out
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() != reflect.Uint8 {
		out := make([]any, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out = append(out, FromValue(rv.Index(i).Interface()))
		}
		return out
	}
	return v
}

func flattenChildren(c any) []any {
	switch val := FromValue(c).(type) {
	case nil:
		return nil
	case []any:
		return val
	default:
		return []any{val}
	}
}

// convertProp turns element-shaped prop values (e.g. actions, metadata) into Elements.
func convertProp(p any) any {
	if m, ok := p.(map[string]any); ok {
		if _, isEl := m["type"].(string); isEl {
			if _, hasProps := m["props"]; hasProps {
				return FromValue(m)
			}
		}
	}
	return p
}
