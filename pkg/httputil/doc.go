// Package httputil provides HTTP utilities shared by the fleetd API.
//
// Responses:
//
//	httputil.WriteSuccess(w, plugins)
//	httputil.WriteErrorResponse(w, http.StatusBadRequest, httputil.ErrorResponse{
//		Error:   err.Error(),
//		Code:    "InvalidManifest",
//		Missing: []string{"version"},
//	})
//
// Requests:
//
//	id, ok := httputil.PathVar(w, r, "id")
//	if !ok {
//		return // 400 already written
//	}
//	args, err := httputil.ReadRawJSON(r)
//
// Middleware:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//	)(router)
package httputil
