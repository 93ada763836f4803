package httputil

import (
	"encoding/json"
	"net/http"
)

// Codes written by the helpers themselves. Handlers supply their own codes
// through WriteErrorResponse.
const (
	CodeBadRequest = "BadRequest"
	CodeNotFound   = "NotFound"
)

// ErrorResponse is the body of every error reply. Code carries a stable
// machine-readable error kind; Missing lists absent manifest fields and Stack
// a plugin's JavaScript stack, when known.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Missing []string          `json:"missing,omitempty"`
	Stack   string            `json:"stack,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// WriteJSON sends v with status. Plugin views carry markup, so HTML is not
// escaped.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// WriteSuccess sends v with 200.
func WriteSuccess(w http.ResponseWriter, v interface{}) error {
	return WriteJSON(w, http.StatusOK, v)
}

// WriteCreated sends v with 201.
func WriteCreated(w http.ResponseWriter, v interface{}) error {
	return WriteJSON(w, http.StatusCreated, v)
}

// WriteNoContent sends an empty 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteErrorResponse sends body with status.
func WriteErrorResponse(w http.ResponseWriter, status int, body ErrorResponse) {
	_ = WriteJSON(w, status, body)
}

// WriteBadRequest sends a 400 with code BadRequest.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: CodeBadRequest})
}

// WriteNotFoundError sends a 404 with code NotFound.
func WriteNotFoundError(w http.ResponseWriter, message string) {
	WriteErrorResponse(w, http.StatusNotFound, ErrorResponse{Error: message, Code: CodeNotFound})
}
