package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/platinummonkey/fleet/pkg/httputil"
	"github.com/platinummonkey/fleet/pkg/observability"
	"github.com/platinummonkey/fleet/pkg/plugins"
	"github.com/platinummonkey/fleet/pkg/rpc"
	"github.com/platinummonkey/fleet/pkg/worker"
)

// Codes for errors that do not cross the execution boundary.
const (
	codeCorruptArchive      = "CorruptArchive"
	codeMissingManifest     = "MissingManifest"
	codeInvalidManifest     = "InvalidManifest"
	codeChecksumMismatch    = "ChecksumMismatch"
	codeIncompatibleVersion = "IncompatibleVersion"
	codeArchiveTooLarge     = "ArchiveTooLarge"
	codeNotInstalled        = "NotInstalled"
	codeShuttingDown        = "ShuttingDown"
)

// errorStatus maps runtime errors to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, plugins.ErrArchiveTooLarge):
		return http.StatusRequestEntityTooLarge, codeArchiveTooLarge
	case errors.Is(err, plugins.ErrCorruptArchive):
		return http.StatusBadRequest, codeCorruptArchive
	case errors.Is(err, plugins.ErrMissingManifest):
		return http.StatusBadRequest, codeMissingManifest
	case errors.Is(err, plugins.ErrInvalidManifest):
		return http.StatusBadRequest, codeInvalidManifest
	case errors.Is(err, plugins.ErrChecksumMismatch):
		return http.StatusBadRequest, codeChecksumMismatch
	case errors.Is(err, plugins.ErrIncompatibleVersion):
		return http.StatusBadRequest, codeIncompatibleVersion
	case errors.Is(err, plugins.ErrNotInstalled):
		return http.StatusNotFound, codeNotInstalled
	case errors.Is(err, plugins.ErrShuttingDown):
		return http.StatusServiceUnavailable, codeShuttingDown
	case errors.Is(err, worker.ErrCommandNotFound):
		return http.StatusNotFound, worker.CodeCommandNotFound
	case errors.Is(err, worker.ErrUnknownRoot), errors.Is(err, worker.ErrUnknownHandler):
		var remote *rpc.RemoteError
		errors.As(err, &remote)
		return http.StatusNotFound, remote.Code
	case errors.Is(err, worker.ErrEmptyView):
		return http.StatusUnprocessableEntity, worker.CodeEmptyView
	case errors.Is(err, rpc.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, rpc.CodeTimeout
	case errors.Is(err, worker.ErrPluginRuntime):
		return http.StatusInternalServerError, worker.CodePluginRuntime
	}

	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		return http.StatusInternalServerError, remote.Code
	}
	return http.StatusInternalServerError, rpc.CodeInternal
}

// writeError writes err with its status, code, missing manifest fields and
// plugin stack. Server-side failures are logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).WithField("code", code).Warn("Request failed")
	}
	body := httputil.ErrorResponse{Error: err.Error(), Code: code}

	var invalid *plugins.InvalidManifestError
	if errors.As(err, &invalid) {
		body.Missing = invalid.Missing
	}
	var remote *rpc.RemoteError
	if errors.As(err, &remote) {
		if remote.Message != "" {
			body.Error = remote.Message
		}
		body.Stack = remote.Stack
	}
	httputil.WriteErrorResponse(w, status, body)
}
