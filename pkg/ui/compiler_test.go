package ui

import (
	"errors"
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBinder struct {
	bound map[string]any
	next  int
}

func (b *recordingBinder) Bind(event string, handler any) string {
	if b.bound == nil {
		b.bound = map[string]any{}
	}
	b.next++
	id := fmt.Sprintf("h%d", b.next)
	b.bound[id] = handler
	return id
}

func newTestCompiler(opts ...CompilerOption) (*Compiler, *test.Hook) {
	logger, hook := test.NewNullLogger()
	return NewCompiler(append([]CompilerOption{WithCompilerLogger(logger)}, opts...)...), hook
}

func warnings(hook *test.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			n++
		}
	}
	return n
}

// TestCompile_Scalars tests text, number and empty inputs
func TestCompile_Scalars(t *testing.T) {
	c, _ := newTestCompiler()

	assert.Empty(t, c.Compile(nil, nil))
	assert.Empty(t, c.Compile(false, nil))

	tmpl := c.Compile("hello", nil)
	require.Len(t, tmpl, 1)
	assert.Equal(t, TextNode, tmpl[0].Kind)
	assert.Equal(t, "hello", tmpl[0].Text)

	tmpl = c.Compile(int64(42), nil)
	require.Len(t, tmpl, 1)
	assert.Equal(t, "42", tmpl[0].Text)

	tmpl = c.Compile(1.5, nil)
	assert.Equal(t, "1.5", tmpl[0].Text)
}

// TestCompile_ArrayPreservesOrder tests concatenation of arrays
func TestCompile_ArrayPreservesOrder(t *testing.T) {
	c, _ := newTestCompiler()

	tmpl := c.Compile([]any{"a", Create("b", nil, "bold"), []any{"c", nil, "d"}}, nil)
	require.Len(t, tmpl, 4)
	assert.Equal(t, "a", tmpl[0].Text)
	assert.Equal(t, "b", tmpl[1].Tag)
	assert.Equal(t, "c", tmpl[2].Text)
	assert.Equal(t, "d", tmpl[3].Text)
}

// TestCompile_PrimitiveAttributes tests attribute projection
func TestCompile_PrimitiveAttributes(t *testing.T) {
	c, _ := newTestCompiler()
	binder := &recordingBinder{}
	handler := func() {}

	el := Create("div", map[string]any{
		"className": "box",
		"id":        "main",
		"disabled":  true,
		"hidden":    false,
		"title":     nil,
		"tabIndex":  int64(2),
		"data":      map[string]any{"k": "v"},
		"style":     map[string]any{"backgroundColor": "red", "marginTop": 4, "opacity": 0.5, "zIndex": 3, "padding": 0},
		"onClick":   handler,
		"onFocus":   "not a function",
		"key":       "k1",
	}, "text")

	tmpl := c.Compile(el, binder)
	require.Len(t, tmpl, 1)
	n := tmpl[0]

	assert.Equal(t, "div", n.Tag)
	class, _ := n.Attr("class")
	assert.Equal(t, "box", class)
	_, hasClassName := n.Attr("className")
	assert.False(t, hasClassName)

	disabled, ok := n.Attr("disabled")
	assert.True(t, ok)
	assert.Equal(t, "", disabled)
	_, ok = n.Attr("hidden")
	assert.False(t, ok)
	_, ok = n.Attr("title")
	assert.False(t, ok)
	_, ok = n.Attr("key")
	assert.False(t, ok)

	tab, _ := n.Attr("tabIndex")
	assert.Equal(t, "2", tab)
	data, _ := n.Attr("data")
	assert.JSONEq(t, `{"k":"v"}`, data)

	style, _ := n.Attr("style")
	assert.Equal(t, "background-color: red; margin-top: 4px; opacity: 0.5; padding: 0; z-index: 3", style)

	require.Len(t, n.Events, 1)
	id := n.Events["click"]
	assert.Equal(t, "h1", id)
	attr, _ := n.Attr(EventAttrPrefix + "click")
	assert.Equal(t, id, attr)
	_, hasFocus := n.Events["focus"]
	assert.False(t, hasFocus)

	require.Len(t, n.Children, 1)
	assert.Equal(t, "text", n.Children[0].Text)
}

// TestCompile_Fragment tests that fragments contribute only their children
func TestCompile_Fragment(t *testing.T) {
	c, _ := newTestCompiler()

	tmpl := c.Compile(Create(Fragment, nil, Create("span", nil, "one"), Create("span", nil, "two")), nil)
	require.Len(t, tmpl, 2)
	assert.Equal(t, "one", tmpl[0].TextContent())
	assert.Equal(t, "two", tmpl[1].TextContent())
}

// TestCompile_UnknownComponent tests the diagnostic placeholder and single warning
func TestCompile_UnknownComponent(t *testing.T) {
	c, hook := newTestCompiler()

	tmpl := c.Compile(Create("Foo", nil, "ignored"), nil)
	require.Len(t, tmpl, 1)
	assert.True(t, tmpl[0].HasClass(DiagnosticClass))
	assert.Contains(t, tmpl[0].TextContent(), "Foo")
	assert.Equal(t, 1, warnings(hook))
}

// TestCompile_FailingComponentIsolated tests that one failing subtree does not abort siblings
func TestCompile_FailingComponentIsolated(t *testing.T) {
	c, hook := newTestCompiler(
		WithComponent("Panics", func(map[string]any, []any) (any, error) { panic("boom") }),
		WithComponent("Errors", func(map[string]any, []any) (any, error) { return nil, errors.New("bad props") }),
	)

	tmpl := c.Compile(Create("div", nil,
		Create("Panics", nil),
		Create("span", nil, "sibling"),
		Create("Errors", nil),
	), nil)

	require.Len(t, tmpl, 1)
	children := tmpl[0].Children
	require.Len(t, children, 3)
	assert.True(t, children[0].HasClass(DiagnosticClass))
	assert.Contains(t, children[0].TextContent(), "boom")
	assert.Equal(t, "sibling", children[1].TextContent())
	assert.True(t, children[2].HasClass(DiagnosticClass))
	assert.Contains(t, children[2].TextContent(), "bad props")
	assert.Equal(t, 2, warnings(hook))
}

// TestCompile_SelfRecursiveComponent tests the depth guard
func TestCompile_SelfRecursiveComponent(t *testing.T) {
	c, _ := newTestCompiler(WithComponent("Loop", func(p map[string]any, _ []any) (any, error) {
		return Create("Loop", p), nil
	}))

	tmpl := c.Compile(Create("Loop", nil), nil)
	require.Len(t, tmpl, 1)
	assert.True(t, tmpl[0].HasClass(DiagnosticClass))
}

// TestCompile_DoesNotMutateInput tests that element trees are left untouched
func TestCompile_DoesNotMutateInput(t *testing.T) {
	c, _ := newTestCompiler()
	props := map[string]any{"title": "Item", "className": "x"}
	el := Create("List", nil, Create("List.Item", props))

	c.Compile(el, nil)

	assert.Equal(t, map[string]any{"title": "Item", "className": "x"}, props)
	assert.Len(t, el.Children, 1)
}

// TestCompile_List tests the list component
func TestCompile_List(t *testing.T) {
	c, _ := newTestCompiler()
	binder := &recordingBinder{}

	el := Create("List", map[string]any{"searchBarPlaceholder": "Find..."},
		Create("List.Item", map[string]any{
			"title":       "First",
			"subtitle":    "one",
			"accessories": []any{map[string]any{"text": "acc"}},
			"actions": Create("ActionPanel", nil,
				Create("Action.CopyToClipboard", map[string]any{"content": "copied"}),
			),
		}),
		Create("List.Item", map[string]any{"title": "Second"}),
	)

	tmpl := c.Compile(el, binder)
	require.Len(t, tmpl, 1)
	assert.True(t, tmpl[0].HasClass("fc-list"))

	search := tmpl.ByClass("fc-list-search")
	require.NotNil(t, search)
	ph, _ := search.Attr("placeholder")
	assert.Equal(t, "Find...", ph)

	items := tmpl.ByClass("fc-list-items")
	require.NotNil(t, items)
	require.Len(t, items.Children, 2)
	assert.Equal(t, "li", items.Children[0].Tag)
	assert.Equal(t, "First", Template{items.Children[0]}.ByClass("fc-list-item-title").TextContent())
	assert.Equal(t, "acc", Template{items.Children[0]}.ByClass("fc-accessory").TextContent())

	copyBtn := tmpl.ByClass("fc-action")
	require.NotNil(t, copyBtn)
	content, _ := copyBtn.Attr("data-content")
	assert.Equal(t, "copied", content)
	require.Contains(t, copyBtn.Events, "click")
	assert.Equal(t, Action{Kind: ActionCopy, Content: "copied"}, binder.bound[copyBtn.Events["click"]])
}

// TestCompile_ListSearchDisabledAndEmpty tests searchBar.enable and emptyState props
func TestCompile_ListSearchDisabledAndEmpty(t *testing.T) {
	c, _ := newTestCompiler()

	tmpl := c.Compile(Create("List", map[string]any{
		"searchBar":  map[string]any{"enable": false},
		"emptyState": map[string]any{"title": "Nothing here"},
		"isLoading":  true,
	}), nil)

	assert.Nil(t, tmpl.ByClass("fc-list-search"))
	empty := tmpl.ByClass("fc-list-empty-title")
	require.NotNil(t, empty)
	assert.Equal(t, "Nothing here", empty.TextContent())
	_, loadingAttr := tmpl[0].Attr("data-loading")
	assert.True(t, loadingAttr)
}

// TestCompile_DetailAndMetadata tests the detail component
func TestCompile_DetailAndMetadata(t *testing.T) {
	c, _ := newTestCompiler()

	tmpl := c.Compile(Create("Detail", map[string]any{
		"markdown": "# Title",
		"metadata": Create("Detail.Metadata", nil,
			Create("Detail.Metadata.Label", map[string]any{"title": "Key", "text": "Value"}),
		),
	}), nil)

	assert.Equal(t, "# Title", tmpl.ByClass("fc-detail-markdown").TextContent())
	dl := tmpl.ByClass("fc-metadata")
	require.NotNil(t, dl)
	require.Len(t, dl.Children, 2)
	assert.Equal(t, "dt", dl.Children[0].Tag)
	assert.Equal(t, "Value", dl.Children[1].TextContent())
}

// TestCompile_FormAndGrid tests form and grid components
func TestCompile_FormAndGrid(t *testing.T) {
	c, _ := newTestCompiler()

	form := c.Compile(Create("Form", nil,
		Create("Form.TextField", map[string]any{"id": "name", "title": "Name", "placeholder": "you"}),
		Create("Form.Checkbox", map[string]any{"id": "ok", "label": "Agree", "defaultValue": true}),
		Create("Form.Dropdown", map[string]any{"id": "pick"},
			Create("Form.Dropdown.Item", map[string]any{"value": "a", "title": "A"}),
		),
	), nil)

	input := form.Find(func(n *Node) bool { v, _ := n.Attr("name"); return n.Tag == "input" && v == "name" })
	require.NotNil(t, input)
	checkbox := form.Find(func(n *Node) bool { v, _ := n.Attr("type"); return v == "checkbox" })
	require.NotNil(t, checkbox)
	_, checked := checkbox.Attr("checked")
	assert.True(t, checked)
	option := form.Find(func(n *Node) bool { return n.Tag == "option" })
	require.NotNil(t, option)
	assert.Equal(t, "A", option.TextContent())

	grid := c.Compile(Create("Grid", map[string]any{"columns": int64(3)},
		Create("Grid.Item", map[string]any{"content": "icon.png", "title": "Pic"}),
	), nil)
	items := grid.ByClass("fc-grid-items")
	require.NotNil(t, items)
	style, _ := items.Attr("style")
	assert.Contains(t, style, "grid-template-columns: repeat(3, 1fr)")
	img := grid.Find(func(n *Node) bool { return n.Tag == "img" })
	require.NotNil(t, img)
}

// TestCompile_ActionPushAndOpen tests host-interpreted actions
func TestCompile_ActionPushAndOpen(t *testing.T) {
	c, hook := newTestCompiler()
	binder := &recordingBinder{}
	target := Create("Detail", map[string]any{"markdown": "pushed"})

	tmpl := c.Compile(Create("ActionPanel", nil,
		Create("Action.Push", map[string]any{"title": "Go", "target": target}),
		Create("Action.OpenInBrowser", map[string]any{"url": "https://example.com"}),
		Create("Action.OpenInBrowser", nil),
	), binder)

	panel := tmpl.ByClass("fc-action-panel")
	require.NotNil(t, panel)
	require.Len(t, panel.Children, 3)

	push := binder.bound[panel.Children[0].Events["click"]]
	assert.Equal(t, ActionPush, push.(Action).Kind)
	assert.Same(t, target, push.(Action).Target)

	url, _ := panel.Children[1].Attr("data-url")
	assert.Equal(t, "https://example.com", url)
	assert.True(t, panel.Children[2].HasClass(DiagnosticClass))
	assert.Equal(t, 1, warnings(hook))
}

// TestCompiler_Components tests the registry listing
func TestCompiler_Components(t *testing.T) {
	c, _ := newTestCompiler(WithComponent("Custom", func(map[string]any, []any) (any, error) { return nil, nil }))
	assert.True(t, c.Has("List.Item"))
	assert.True(t, c.Has("Custom"))
	assert.False(t, c.Has("Nope"))
	assert.Contains(t, c.Components(), "Grid.Section")
}

// TestFromValue tests conversion of exported interpreter values
func TestFromValue(t *testing.T) {
	raw := map[string]any{
		"type": "List",
		"props": map[string]any{
			"title": "x",
			"actions": map[string]any{
				"type":  "ActionPanel",
				"props": map[string]any{},
			},
		},
		"children": []any{
			map[string]any{"type": "List.Item", "props": map[string]any{"title": "a"}},
			"text",
		},
	}

	el, ok := FromValue(raw).(*Element)
	require.True(t, ok)
	assert.Equal(t, "List", el.Type)
	assert.Equal(t, "x", el.Props["title"])
	actions, ok := el.Props["actions"].(*Element)
	require.True(t, ok)
	assert.Equal(t, "ActionPanel", actions.Type)
	require.Len(t, el.Children, 2)
	assert.Equal(t, "List.Item", el.Children[0].(*Element).Type)
	assert.Equal(t, "text", el.Children[1])
}

// TestFingerprint tests hashing of handler-free trees
func TestFingerprint(t *testing.T) {
	a := Create("div", map[string]any{"b": 1, "a": "x"}, "text")
	b := Create("div", map[string]any{"a": "x", "b": 1}, "text")
	c := Create("div", map[string]any{"a": "y", "b": 1}, "text")

	fa, ok := Fingerprint(a)
	require.True(t, ok)
	fb, _ := Fingerprint(b)
	fc, _ := Fingerprint(c)
	assert.Equal(t, fa, fb)
	assert.NotEqual(t, fa, fc)

	_, ok = Fingerprint(Create("button", map[string]any{"onClick": func() {}}))
	assert.False(t, ok)
	_, ok = Fingerprint(Create("Action.Push", map[string]any{"target": Create("div", nil)}, Create("div", map[string]any{"onClick": Action{Kind: ActionOpen}})))
	assert.False(t, ok)
}
