package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/platinummonkey/fleet/pkg/ui"
)

// RootID is the id of the root of every serialized view.
const RootID = "plugin-root"

// RootClass is the class of the container a template is mounted into.
const RootClass = "fc-plugin-root"

// IDAttr carries a node's serialized id in synthesized stylesheet rules.
const IDAttr = "data-fc-id"

// TextType is the record type of a text node mixed with elements.
const TextType = "#text"

// SerializedComponent is the transport form of a rendered node.
type SerializedComponent struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Props       map[string]any         `json:"props,omitempty"`
	TextContent string                 `json:"textContent,omitempty"`
	ClassName   string                 `json:"className,omitempty"`
	Attributes  map[string]string      `json:"attributes,omitempty"`
	Styles      map[string]string      `json:"styles,omitempty"`
	Events      map[string]string      `json:"events,omitempty"`
	Children    []*SerializedComponent `json:"children,omitempty"`
}

// visualProperties are the style properties that survive serialization.
var visualProperties = map[string]bool{
	"display": true, "position": true, "top": true, "right": true, "bottom": true, "left": true,
	"width": true, "height": true, "min-width": true, "min-height": true, "max-width": true, "max-height": true,
	"margin": true, "margin-top": true, "margin-right": true, "margin-bottom": true, "margin-left": true,
	"padding": true, "padding-top": true, "padding-right": true, "padding-bottom": true, "padding-left": true,
	"color": true, "background": true, "background-color": true, "background-image": true,
	"font-family": true, "font-size": true, "font-weight": true, "font-style": true,
	"line-height": true, "text-align": true, "text-decoration": true, "white-space": true,
	"border": true, "border-radius": true, "border-color": true, "border-width": true, "border-style": true,
	"box-shadow": true, "opacity": true, "overflow": true, "z-index": true,
	"flex": true, "flex-direction": true, "flex-wrap": true, "justify-content": true, "align-items": true, "gap": true,
	"grid-template-columns": true, "grid-template-rows": true, "grid-gap": true,
}

// Mount wraps a compiled template in a fresh root container.
func Mount(tmpl ui.Template) *ui.Node {
	root := ui.NewElement("div", "id", RootID, "class", RootClass)
	root.Children = append(root.Children, tmpl...)
	return root
}

// Serialize converts a rendered tree into its transport form. The root gets
// RootID and descendants get ids composed from their child index path. Text
// children take an index too, so an element after a text sibling is child_1.
func Serialize(root *ui.Node) *SerializedComponent {
	if root == nil {
		return nil
	}
	return serialize(root, RootID, "child", nil)
}

// Snapshot serializes root and collects the view's stylesheet: the text of
// every style element plus one rule per inline-styled element.
func Snapshot(root *ui.Node) (*SerializedComponent, string) {
	if root == nil {
		return nil, ""
	}
	var sheet strings.Builder
	sc := serialize(root, RootID, "child", &sheet)
	return sc, sheet.String()
}

func serialize(n *ui.Node, id, childPrefix string, sheet *strings.Builder) *SerializedComponent {
	if n.Kind == ui.TextNode {
		return &SerializedComponent{ID: id, Type: TextType, TextContent: n.Text}
	}

	sc := &SerializedComponent{
		ID:   id,
		Type: strings.ToLower(n.Tag),
	}

	for _, attr := range n.Attrs {
		switch {
		case attr.Name == "class":
			sc.ClassName = attr.Value
		case attr.Name == "style":
			sc.Styles = filterStyles(attr.Value)
			if sheet != nil && len(sc.Styles) > 0 {
				writeRule(sheet, id, sc.Styles)
			}
		case strings.HasPrefix(attr.Name, ui.EventAttrPrefix):
			// carried in Events
		default:
			if sc.Attributes == nil {
				sc.Attributes = make(map[string]string)
			}
			sc.Attributes[attr.Name] = attr.Value
			if attr.Value == "" {
				// bare boolean attribute
				if sc.Props == nil {
					sc.Props = make(map[string]any)
				}
				sc.Props[attr.Name] = true
			}
		}
	}

	if len(n.Events) > 0 {
		sc.Events = make(map[string]string, len(n.Events))
		for event, handler := range n.Events {
			sc.Events[event] = handler
		}
	}

	if sheet != nil && sc.Type == "style" {
		sheet.WriteString(n.TextContent())
		sheet.WriteString("\n")
	}

	if textOnly(n) {
		sc.TextContent = n.TextContent()
		return sc
	}

	for i, child := range n.Children {
		childID := fmt.Sprintf("%s_%d", childPrefix, i)
		sc.Children = append(sc.Children, serialize(child, childID, childID, sheet))
	}
	return sc
}

func textOnly(n *ui.Node) bool {
	if len(n.Children) == 0 {
		return false
	}
	for _, c := range n.Children {
		if c.Kind != ui.TextNode {
			return false
		}
	}
	return true
}

// filterStyles parses inline CSS and keeps the visually relevant properties.
func filterStyles(css string) map[string]string {
	var styles map[string]string
	for _, decl := range strings.Split(css, ";") {
		name, value, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name == "" || value == "" || !visualProperties[name] {
			continue
		}
		if styles == nil {
			styles = make(map[string]string)
		}
		styles[name] = value
	}
	return styles
}

func writeRule(sheet *strings.Builder, id string, styles map[string]string) {
	names := make([]string, 0, len(styles))
	for name := range styles {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(sheet, "[%s=%q] {", IDAttr, id)
	for _, name := range names {
		fmt.Fprintf(sheet, " %s: %s;", name, styles[name])
	}
	sheet.WriteString(" }\n")
}

// Count returns the number of records in the tree.
func Count(sc *SerializedComponent) int {
	if sc == nil {
		return 0
	}
	n := 1
	for _, c := range sc.Children {
		n += Count(c)
	}
	return n
}

// Find returns the first record, depth-first, for which match returns true.
func Find(sc *SerializedComponent, match func(*SerializedComponent) bool) *SerializedComponent {
	if sc == nil {
		return nil
	}
	if match(sc) {
		return sc
	}
	for _, c := range sc.Children {
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// Marshal encodes a serialized tree as JSON.
func Marshal(sc *SerializedComponent) ([]byte, error) {
	data, err := json.Marshal(sc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal component: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a serialized tree.
func Unmarshal(data []byte) (*SerializedComponent, error) {
	var sc SerializedComponent
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal component: %w", err)
	}
	return &sc, nil
}
