// Package contextkeys provides centralized context key definitions
//
// All context keys used across the runtime are defined here so key usage is
// discoverable and collisions are impossible.
//
//	ctx = context.WithValue(ctx, contextkeys.PluginIDKey, "hello-world")
//	id, _ := ctx.Value(contextkeys.PluginIDKey).(string)
package contextkeys

// Key is the type for context keys to prevent collisions
type Key string

const (
	// PluginIDKey contains the id of the plugin a capability call comes from,
	// or the plugin an HTTP request addresses
	// Set by: plugins.Manager when dispatching apiCall envelopes, api router
	// Used by: capability.Dispatcher, observability.FromContext
	// Type: string
	PluginIDKey Key = "plugin_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: HTTP middleware
	// Used by: Logger
	// Type: string
	RequestIDKey Key = "request_id"

	// LoggerKey contains the request-scoped logger
	// Set by: api router
	// Used by: observability.FromContext
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)
