/*
Package api exposes the plugin runtime over HTTP.

The server is a gorilla/mux router mounted under /api/v1:

	POST   /plugins                              install a package archive (raw body)
	GET    /plugins                              list installed plugins
	GET    /plugins/{id}                         one plugin with its package summary
	DELETE /plugins/{id}                         uninstall
	POST   /plugins/{id}/reload                  stop the host and drop cached views
	GET    /commands                             launcher command list
	POST   /plugins/{id}/commands/{command}      execute; the JSON body is the arguments
	GET    /plugins/{id}/commands/{command}/view last rendered view
	POST   /plugins/{id}/roots/{root}/events     forward a UI event
	GET    /plugins/{id}/assets/{path}           packaged asset
	GET    /cache/stats                          runtime cache statistics
	GET    /memory                               memory monitor sample
	GET    /events                               websocket event stream

Errors are JSON bodies carrying an error code. Plugin failures include the
plugin stack trace, manifest failures list the missing fields.

Handler wraps the router with otelhttp tracing, request ids, request logging
and panic recovery.
*/
package api
