package ui

import (
	"strings"
)

// NodeKind distinguishes element nodes from text nodes.
type NodeKind int

const (
	ElementNode NodeKind = iota
	TextNode
)

// Attr is a rendered attribute. Bare boolean attributes have an empty value.
type Attr struct {
	Name  string
	Value string
}

// Node is a primitive renderable node.
type Node struct {
	Kind     NodeKind
	Tag      string
	Text     string
	Attrs    []Attr
	Events   map[string]string // event name -> handler id
	Children []*Node
}

// Template is the output of a compilation: an ordered list of top-level nodes.
type Template []*Node

// NewText returns a text node.
func NewText(text string) *Node {
	return &Node{Kind: TextNode, Text: text}
}

// NewElement returns an element node with the given attributes as name/value pairs.
func NewElement(tag string, attrs ...string) *Node {
	n := &Node{Kind: ElementNode, Tag: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.SetAttr(attrs[i], attrs[i+1])
	}
	return n
}

// Attr returns the value of an attribute.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr adds or replaces an attribute, keeping first-set order.
func (n *Node) SetAttr(name, value string) {
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Append adds children.
func (n *Node) Append(children ...*Node) *Node {
	n.Children = append(n.Children, children...)
	return n
}

// TextContent concatenates all descendant text.
func (n *Node) TextContent() string {
	if n.Kind == TextNode {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Children {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// HasClass reports whether the node's class attribute contains class.
func (n *Node) HasClass(class string) bool {
	v, _ := n.Attr("class")
	for _, c := range strings.Fields(v) {
		if c == class {
			return true
		}
	}
	return false
}

// Walk visits n and its descendants depth-first. Returning false stops descent below that node.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the first node (depth-first) for which match returns true.
func (t Template) Find(match func(*Node) bool) *Node {
	var found *Node
	for _, root := range t {
		root.Walk(func(n *Node) bool {
			if found != nil {
				return false
			}
			if match(n) {
				found = n
				return false
			}
			return true
		})
		if found != nil {
			break
		}
	}
	return found
}

// ByClass returns the first node carrying class.
func (t Template) ByClass(class string) *Node {
	return t.Find(func(n *Node) bool { return n.Kind == ElementNode && n.HasClass(class) })
}
