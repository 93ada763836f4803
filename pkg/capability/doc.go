// Package capability defines the host API surface exposed to plugins.
//
// A plugin reaches the host only through named methods such as
// "navigation.push" or "localStorage.getItem". The Client implements API
// over remote calls; the Dispatcher decodes those calls on the host and
// routes them to a Provider, normally a Service bound to one plugin.
// Methods outside the surface fail with ErrUnknownMethod.
package capability
