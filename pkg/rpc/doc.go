// Package rpc implements the asynchronous request/response bridge between the
// plugin host and an isolated execution host.
//
// Both sides exchange Envelopes over a Channel. A Bridge assigns each outbound
// call a unique message id, keeps it in a pending table until the matching
// apiResponse arrives, the per-call timeout fires, or the bridge is closed.
// Responses are matched by id, never by arrival order, and responses for ids
// that are no longer pending are dropped.
package rpc
