package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// DecodeJSON decodes the body into dest, answering 400 and returning false
// when it is not valid JSON.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		WriteBadRequest(w, fmt.Sprintf("invalid JSON: %v", err))
		return false
	}
	return true
}

// ReadRawJSON returns the request body as raw JSON. An empty body is nil.
func ReadRawJSON(r *http.Request) (json.RawMessage, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("invalid JSON body")
	}
	return json.RawMessage(body), nil
}

// PathVar returns the named route variable, answering 400 and returning
// false when the route did not capture it.
func PathVar(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v := mux.Vars(r)[key]
	if v == "" {
		WriteBadRequest(w, "missing path parameter: "+key)
		return "", false
	}
	return v, true
}

// QueryInt parses an integer query parameter, def when absent.
func QueryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s: %q is not an integer", key, raw)
	}
	return n, nil
}

// QueryString returns a query parameter, def when absent.
func QueryString(r *http.Request, key, def string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return def
}
