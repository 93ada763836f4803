package worker

import (
	"github.com/platinummonkey/fleet/pkg/rpc"
)

// Error codes reported by the execution host.
const (
	CodeCommandNotFound = "CommandNotFound"
	CodeEmptyView       = "EmptyView"
	CodePluginRuntime   = "PluginRuntimeError"
	CodeNotLoaded       = "NotLoaded"
	CodeUnknownRoot     = "UnknownRoot"
	CodeUnknownHandler  = "UnknownHandler"
)

// Errors cross the channel as rpc.RemoteError values, so callers on either
// side match them with errors.Is.
var (
	// ErrCommandNotFound is returned when the module exposes no such command
	ErrCommandNotFound = rpc.NewError(CodeCommandNotFound, "command not found")

	// ErrEmptyView is returned when a view command renders nothing
	ErrEmptyView = rpc.NewError(CodeEmptyView, "view command returned an empty tree")

	// ErrPluginRuntime is returned when plugin code throws or rejects
	ErrPluginRuntime = rpc.NewError(CodePluginRuntime, "plugin runtime error")

	// ErrNotLoaded is returned for commands sent before a module is loaded
	ErrNotLoaded = rpc.NewError(CodeNotLoaded, "no module loaded")

	// ErrUnknownRoot is returned for events addressed to an unmounted root
	ErrUnknownRoot = rpc.NewError(CodeUnknownRoot, "unknown root")

	// ErrUnknownHandler is returned for events naming an unbound handler
	ErrUnknownHandler = rpc.NewError(CodeUnknownHandler, "unknown handler")
)

func runtimeError(message, stack string) *rpc.RemoteError {
	if message == "" {
		message = ErrPluginRuntime.Message
	}
	return &rpc.RemoteError{Code: CodePluginRuntime, Message: message, Stack: stack}
}
