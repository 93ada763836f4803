package ui

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

// maxDepth bounds recursion through components that project into themselves.
const maxDepth = 256

// DiagnosticClass marks placeholder nodes for unknown or failing components.
const DiagnosticClass = "fc-diagnostic"

// Projector maps a component's props and children onto a tree of lower level
// elements. The result is compiled recursively.
type Projector func(props map[string]any, children []any) (any, error)

// Compiler turns declarative element trees into primitive nodes. The component
// registry is fixed at construction so a Compiler is safe for concurrent use.
type Compiler struct {
	registry map[string]Projector
	log      *logrus.Logger
}

// CompilerOption configures a Compiler
type CompilerOption func(*Compiler)

// WithComponent registers an additional component.
func WithComponent(name string, p Projector) CompilerOption {
	return func(c *Compiler) { c.registry[name] = p }
}

// WithCompilerLogger sets the logger used for diagnostics.
func WithCompilerLogger(log *logrus.Logger) CompilerOption {
	return func(c *Compiler) { c.log = log }
}

// NewCompiler creates a compiler with the built-in components.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{registry: builtinComponents()}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logrus.New()
	}
	return c
}

// Has reports whether name is a registered component.
func (c *Compiler) Has(name string) bool {
	_, ok := c.registry[name]
	return ok
}

// Components returns the registered component names, sorted.
func (c *Compiler) Components() []string {
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile renders input into primitive nodes. Unknown or failing components
// become diagnostic placeholders; compilation never aborts.
func (c *Compiler) Compile(input any, binder EventBinder) Template {
	return Template(c.compile(input, binder, 0))
}

func (c *Compiler) compile(input any, binder EventBinder, depth int) []*Node {
	if depth > maxDepth {
		return []*Node{diagnostic("", "maximum component depth exceeded")}
	}

	switch v := input.(type) {
	case nil, bool:
		return nil
	case string:
		return []*Node{NewText(v)}
	case json.Number:
		return []*Node{NewText(v.String())}
	case *Element:
		if v == nil {
			return nil
		}
		return c.compileElement(v, binder, depth)
	case Element:
		return c.compileElement(&v, binder, depth)
	case []any:
		var out []*Node
		for _, item := range v {
			out = append(out, c.compile(item, binder, depth+1)...)
		}
		return out
	case []*Element:
		var out []*Node
		for _, item := range v {
			out = append(out, c.compile(item, binder, depth+1)...)
		}
		return out
	case map[string]any:
		if el, ok := FromValue(v).(*Element); ok {
			return c.compileElement(el, binder, depth)
		}
		return []*Node{diagnostic("", "objects are not valid as children")}
	}

	if s, ok := formatNumber(input); ok {
		return []*Node{NewText(s)}
	}
	if IsHandler(input) {
		return nil
	}
	rv := reflect.ValueOf(input)
	if rv.Kind() == reflect.Slice {
		return c.compile(FromValue(input), binder, depth)
	}
	return []*Node{NewText(fmt.Sprint(input))}
}

func (c *Compiler) compileElement(el *Element, binder EventBinder, depth int) []*Node {
	switch {
	case el.Type == "":
		return []*Node{diagnostic("", "element without a type")}
	case el.Type == Fragment || el.Type == "React.Fragment":
		return c.compile(el.AllChildren(), binder, depth+1)
	case isPrimitive(el.Type):
		n := &Node{Kind: ElementNode, Tag: el.Type}
		projectAttributes(n, el.Props, binder)
		n.Children = c.compile(el.AllChildren(), binder, depth+1)
		return []*Node{n}
	}

	projector, ok := c.registry[el.Type]
	if !ok {
		c.log.WithField("component", el.Type).Warn("Unknown component")
		return []*Node{diagnostic(el.Type, "Unknown component: "+el.Type)}
	}

	projected, err := c.project(projector, el)
	if err != nil {
		c.log.WithField("component", el.Type).WithError(err).Warn("Component failed to render")
		return []*Node{diagnostic(el.Type, fmt.Sprintf("%s failed: %v", el.Type, err))}
	}
	return c.compile(projected, binder, depth+1)
}

func (c *Compiler) project(p Projector, el *Element) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	props := el.Props
	if props == nil {
		props = map[string]any{}
	}
	return p(props, el.AllChildren())
}

func isPrimitive(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsLower(r)
}

func diagnostic(component, message string) *Node {
	n := NewElement("div", "class", DiagnosticClass)
	if component != "" {
		n.SetAttr("data-component", component)
	}
	return n.Append(NewText(message))
}
