// Package ui compiles declarative element trees produced by plugins into
// primitive renderable nodes.
//
// An Element names either a primitive tag (lowercase, e.g. "div"), the
// Fragment pseudo-component, or a registered component such as "List.Item".
// Components are projected onto primitives by a fixed registry built when the
// Compiler is constructed. Unknown components and components that fail to
// project are replaced with a diagnostic placeholder so the rest of the tree
// still renders.
//
//	compiler := ui.NewCompiler()
//	tmpl := compiler.Compile(ui.Create("List", nil,
//		ui.Create("List.Item", map[string]any{"title": "Hello"}),
//	), binder)
package ui
