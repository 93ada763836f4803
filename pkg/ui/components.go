package ui

import (
	"fmt"
	"strconv"
)

func builtinComponents() map[string]Projector {
	return map[string]Projector{
		"List":                  list,
		"List.Item":             listItem,
		"List.Section":          listSection,
		"List.EmptyView":        emptyView,
		"Detail":                detail,
		"Detail.Metadata":       detailMetadata,
		"Detail.Metadata.Label": metadataLabel,
		"Detail.Metadata.Separator": func(map[string]any, []any) (any, error) {
			return Create("hr", props("className", "fc-metadata-separator")), nil
		},
		"ActionPanel":             actionPanel,
		"ActionPanel.Section":     actionSection,
		"Action":                  action,
		"Action.CopyToClipboard":  copyAction,
		"Action.OpenInBrowser":    openAction,
		"Action.Push":             pushAction,
		"Form":                    form,
		"Form.TextField":          textField,
		"Form.TextArea":           textArea,
		"Form.Checkbox":           checkbox,
		"Form.Dropdown":           dropdown,
		"Form.Dropdown.Item":      dropdownItem,
		"Grid":                    grid,
		"Grid.Item":               gridItem,
		"Grid.Section":            gridSection,
	}
}

// props builds a prop map from name/value pairs, dropping nil values.
func props(kv ...any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		if kv[i+1] == nil {
			continue
		}
		m[kv[i].(string)] = kv[i+1]
	}
	return m
}

func str(p map[string]any, key string) string {
	switch v := p[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		if s, ok := formatNumber(v); ok {
			return s
		}
		return fmt.Sprint(v)
	}
}

func flag(p map[string]any, key string) bool {
	b, _ := p[key].(bool)
	return b
}

func nested(p map[string]any, key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// optionalText returns an element wrapping text, or nil when text is empty.
func optionalText(tag, class, text string) any {
	if text == "" {
		return nil
	}
	return Create(tag, props("className", class), text)
}

func loading(p map[string]any) any {
	if flag(p, "isLoading") {
		return true
	}
	return nil
}

func list(p map[string]any, children []any) (any, error) {
	searchEnabled := true
	placeholder := str(p, "searchBarPlaceholder")
	if sb := nested(p, "searchBar"); sb != nil {
		if enable, ok := sb["enable"].(bool); ok {
			searchEnabled = enable
		}
		if ph := str(sb, "placeholder"); ph != "" {
			placeholder = ph
		}
	}
	if placeholder == "" {
		placeholder = "Search..."
	}

	var search any
	if searchEnabled {
		search = Create("input", props(
			"className", "fc-list-search",
			"type", "search",
			"placeholder", placeholder,
			"onChange", p["onSearchTextChange"],
		))
	}

	var body any = Create("ul", props("className", "fc-list-items"), children...)
	if len(children) == 0 {
		if es := nested(p, "emptyState"); es != nil {
			body = Create("List.EmptyView", es)
		}
	}

	return Create("div", props("className", "fc-list", "data-loading", loading(p)),
		optionalText("h2", "fc-list-title", str(p, "navigationTitle")),
		search,
		body,
		p["actions"],
	), nil
}

func listItem(p map[string]any, _ []any) (any, error) {
	var accessories []any
	if raw, ok := p["accessories"].([]any); ok {
		for _, a := range raw {
			acc, ok := a.(map[string]any)
			if !ok {
				continue
			}
			text := str(acc, "text")
			if text == "" {
				text = str(acc, "tag")
			}
			accessories = append(accessories, Create("span", props(
				"className", "fc-accessory",
				"data-icon", acc["icon"],
				"title", acc["tooltip"],
			), text))
		}
	}

	return Create("li", props(
		"className", "fc-list-item",
		"data-id", p["id"],
		"onClick", p["onAction"],
	),
		iconNode(p["icon"]),
		optionalText("span", "fc-list-item-title", str(p, "title")),
		optionalText("span", "fc-list-item-subtitle", str(p, "subtitle")),
		Create("div", props("className", "fc-list-item-accessories"), accessories...),
		actionsSlot(p["actions"]),
	), nil
}

func iconNode(icon any) any {
	switch v := icon.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return Create("span", props("className", "fc-icon", "data-icon", v))
	case map[string]any:
		return Create("span", props("className", "fc-icon", "data-icon", v["source"], "data-tint", v["tintColor"]))
	}
	return nil
}

func actionsSlot(actions any) any {
	if actions == nil {
		return nil
	}
	return Create("div", props("className", "fc-actions"), actions)
}

func listSection(p map[string]any, children []any) (any, error) {
	return Create("section", props("className", "fc-list-section"),
		optionalText("h3", "fc-list-section-title", str(p, "title")),
		optionalText("span", "fc-list-section-subtitle", str(p, "subtitle")),
		Create("ul", props("className", "fc-list-items"), children...),
	), nil
}

func emptyView(p map[string]any, _ []any) (any, error) {
	title := str(p, "title")
	if title == "" {
		title = "No results"
	}
	return Create("div", props("className", "fc-list-empty"),
		iconNode(p["icon"]),
		Create("p", props("className", "fc-list-empty-title"), title),
		optionalText("p", "fc-list-empty-description", str(p, "description")),
		actionsSlot(p["actions"]),
	), nil
}

func detail(p map[string]any, children []any) (any, error) {
	return Create("div", props("className", "fc-detail", "data-loading", loading(p)),
		optionalText("h2", "fc-detail-title", str(p, "navigationTitle")),
		Create("div", props("className", "fc-detail-markdown", "data-format", "markdown"), str(p, "markdown")),
		metadataSlot(p["metadata"]),
		children,
		actionsSlot(p["actions"]),
	), nil
}

func metadataSlot(metadata any) any {
	if metadata == nil {
		return nil
	}
	return Create("aside", props("className", "fc-detail-metadata"), metadata)
}

func detailMetadata(_ map[string]any, children []any) (any, error) {
	return Create("dl", props("className", "fc-metadata"), children...), nil
}

func metadataLabel(p map[string]any, _ []any) (any, error) {
	text := str(p, "text")
	if t := nested(p, "text"); t != nil {
		text = str(t, "value")
	}
	return Create(Fragment, nil,
		Create("dt", props("className", "fc-metadata-label"), str(p, "title")),
		Create("dd", props("className", "fc-metadata-value"), iconNode(p["icon"]), text),
	), nil
}

func actionPanel(p map[string]any, children []any) (any, error) {
	return Create("div", props("className", "fc-action-panel", "role", "menu", "aria-label", p["title"]), children...), nil
}

func actionSection(p map[string]any, children []any) (any, error) {
	return Create("div", props("className", "fc-action-section"),
		optionalText("span", "fc-action-section-title", str(p, "title")),
		children,
	), nil
}

func actionButton(p map[string]any, defaultTitle, kind string, handler any, extra ...any) *Element {
	title := str(p, "title")
	if title == "" {
		title = defaultTitle
	}
	attrs := props(
		"className", "fc-action",
		"type", "button",
		"data-action", kind,
		"data-shortcut", p["shortcut"],
		"onClick", handler,
	)
	for i := 0; i+1 < len(extra); i += 2 {
		if extra[i+1] != nil && extra[i+1] != "" {
			attrs[extra[i].(string)] = extra[i+1]
		}
	}
	return Create("button", attrs, iconNode(p["icon"]), title)
}

func action(p map[string]any, _ []any) (any, error) {
	return actionButton(p, "Action", "custom", p["onAction"]), nil
}

func copyAction(p map[string]any, _ []any) (any, error) {
	content := str(p, "content")
	return actionButton(p, "Copy to Clipboard", ActionCopy, Action{Kind: ActionCopy, Content: content}, "data-content", content), nil
}

func openAction(p map[string]any, _ []any) (any, error) {
	url := str(p, "url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	return actionButton(p, "Open in Browser", ActionOpen, Action{Kind: ActionOpen, URL: url}, "data-url", url), nil
}

func pushAction(p map[string]any, _ []any) (any, error) {
	target := p["target"]
	if target == nil {
		return nil, fmt.Errorf("target is required")
	}
	return actionButton(p, "Open", ActionPush, Action{Kind: ActionPush, Target: target}), nil
}

func form(p map[string]any, children []any) (any, error) {
	return Create("form", props("className", "fc-form", "data-loading", loading(p), "onSubmit", p["onSubmit"]),
		optionalText("h2", "fc-form-title", str(p, "navigationTitle")),
		children,
		actionsSlot(p["actions"]),
	), nil
}

func field(p map[string]any, control *Element) *Element {
	return Create("label", props("className", "fc-form-field", "for", p["id"]),
		optionalText("span", "fc-form-label", str(p, "title")),
		control,
		optionalText("span", "fc-form-info", str(p, "info")),
		optionalText("span", "fc-form-error", str(p, "error")),
	)
}

func fieldValue(p map[string]any) any {
	if v, ok := p["value"]; ok {
		return v
	}
	return p["defaultValue"]
}

func textField(p map[string]any, _ []any) (any, error) {
	return field(p, Create("input", props(
		"type", "text",
		"id", p["id"],
		"name", p["id"],
		"placeholder", p["placeholder"],
		"value", fieldValue(p),
		"onChange", p["onChange"],
	))), nil
}

func textArea(p map[string]any, _ []any) (any, error) {
	return field(p, Create("textarea", props(
		"id", p["id"],
		"name", p["id"],
		"placeholder", p["placeholder"],
		"onChange", p["onChange"],
	), str(p, "value")+str(p, "defaultValue"))), nil
}

func checkbox(p map[string]any, _ []any) (any, error) {
	checked, _ := fieldValue(p).(bool)
	return field(p, Create("input", props(
		"type", "checkbox",
		"id", p["id"],
		"name", p["id"],
		"checked", checked,
		"onChange", p["onChange"],
	), optionalText("span", "fc-checkbox-label", str(p, "label")))), nil
}

func dropdown(p map[string]any, children []any) (any, error) {
	return field(p, Create("select", props(
		"id", p["id"],
		"name", p["id"],
		"value", fieldValue(p),
		"onChange", p["onChange"],
	), children...)), nil
}

func dropdownItem(p map[string]any, _ []any) (any, error) {
	title := str(p, "title")
	if title == "" {
		title = str(p, "value")
	}
	return Create("option", props("value", p["value"]), title), nil
}

func grid(p map[string]any, children []any) (any, error) {
	columns := 5
	if c, ok := p["columns"]; ok {
		if s, ok := formatNumber(c); ok {
			if n, err := strconv.ParseFloat(s, 64); err == nil && n > 0 {
				columns = int(n)
			}
		}
	}

	return Create("div", props("className", "fc-grid", "data-loading", loading(p), "data-columns", columns),
		Create("input", props("className", "fc-grid-search", "type", "search", "placeholder", p["searchBarPlaceholder"], "onChange", p["onSearchTextChange"])),
		Create("div", props(
			"className", "fc-grid-items",
			"style", map[string]any{"display": "grid", "gridTemplateColumns": fmt.Sprintf("repeat(%d, 1fr)", columns)},
		), children...),
	), nil
}

func gridItem(p map[string]any, _ []any) (any, error) {
	var content any
	switch c := p["content"].(type) {
	case string:
		content = Create("img", props("className", "fc-grid-item-content", "src", c, "alt", p["title"]))
	case map[string]any:
		content = Create("img", props("className", "fc-grid-item-content", "src", c["source"], "alt", p["title"]))
	}
	return Create("div", props("className", "fc-grid-item", "data-id", p["id"], "onClick", p["onAction"]),
		content,
		optionalText("span", "fc-grid-item-title", str(p, "title")),
		optionalText("span", "fc-grid-item-subtitle", str(p, "subtitle")),
		actionsSlot(p["actions"]),
	), nil
}

func gridSection(p map[string]any, children []any) (any, error) {
	return Create("section", props("className", "fc-grid-section"),
		optionalText("h3", "fc-grid-section-title", str(p, "title")),
		Create("div", props("className", "fc-grid-items"), children...),
	), nil
}
