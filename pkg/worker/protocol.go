package worker

import (
	"encoding/json"

	"github.com/platinummonkey/fleet/pkg/codec"
)

// Command modes.
const (
	ModeView   = "view"
	ModeNoView = "no-view"
)

// Result kinds.
const (
	ResultViewCreated      = "viewCreated"
	ResultCommandCompleted = "commandCompleted"
)

// LoadRequest is the payload of a load envelope.
type LoadRequest struct {
	PluginID string            `json:"pluginId"`
	Commands []string          `json:"commands,omitempty"`
	Files    map[string]string `json:"files"`
	Entry    string            `json:"entry,omitempty"`
}

// Ready reports a loaded module.
type Ready struct {
	PluginID string   `json:"pluginId"`
	Entry    string   `json:"entry"`
	Commands []string `json:"commands"`
}

// ExecuteRequest is the payload of an execute envelope.
type ExecuteRequest struct {
	Command       string          `json:"command"`
	Mode          string          `json:"mode,omitempty"`
	Args          json.RawMessage `json:"args,omitempty"`
	CorrelationID string          `json:"correlationId,omitempty"`
}

// CommandResult is the reply to an execute envelope.
type CommandResult struct {
	Kind          string                     `json:"kind"`
	Command       string                     `json:"command"`
	RootID        string                     `json:"rootId,omitempty"`
	View          *codec.SerializedComponent `json:"view,omitempty"`
	Stylesheet    string                     `json:"stylesheet,omitempty"`
	CorrelationID string                     `json:"correlationId,omitempty"`
}

// EventRequest delivers a UI event to a mounted root. HandlerID addresses a
// bound handler; without it the root's listeners for Event are invoked.
type EventRequest struct {
	RootID    string          `json:"rootId"`
	HandlerID string          `json:"handlerId,omitempty"`
	Event     string          `json:"event,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// Event is emitted by plugin code or by built-in actions.
type Event struct {
	RootID string          `json:"rootId,omitempty"`
	Name   string          `json:"name"`
	Detail json.RawMessage `json:"detail,omitempty"`
}
