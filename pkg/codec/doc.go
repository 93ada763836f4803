// Package codec converts rendered node trees into the transport records sent
// to the UI shell.
//
// Serialization is lossy: only tag, text, literal attributes, class names,
// event bindings and a fixed set of visually relevant style properties are
// kept. Each record gets an id that is unique within its view; the root is
// always "plugin-root".
package codec
