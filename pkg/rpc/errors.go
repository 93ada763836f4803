package rpc

import (
	"errors"
	"fmt"
)

// Error codes shared by both sides of the boundary.
const (
	CodeTimeout       = "Timeout"
	CodeClosed        = "Closed"
	CodeInternal      = "InternalError"
	CodeUnknownMethod = "UnknownMethod"
)

// RemoteError is an error that crossed the boundary. Two RemoteErrors match
// under errors.Is when their codes are equal.
type RemoteError struct {
	Code    string
	Message string
	Stack   string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches on error code
func (e *RemoteError) Is(target error) bool {
	var t *RemoteError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	// ErrTimeout is returned when a call receives no response before its deadline
	ErrTimeout = &RemoteError{Code: CodeTimeout, Message: "call timed out"}

	// ErrClosed is returned for calls pending on, or issued to, a closed bridge
	ErrClosed = &RemoteError{Code: CodeClosed, Message: "bridge closed"}
)

// NewError builds a RemoteError with the given code.
func NewError(code, message string) *RemoteError {
	return &RemoteError{Code: code, Message: message}
}

// ToPayload converts err into a wire payload.
func ToPayload(err error) *ErrorPayload {
	if err == nil {
		return nil
	}
	var re *RemoteError
	if errors.As(err, &re) {
		return &ErrorPayload{Code: re.Code, Message: re.Message, Stack: re.Stack}
	}
	return &ErrorPayload{Code: CodeInternal, Message: err.Error()}
}

// FromPayload converts a wire payload back into an error.
func FromPayload(p *ErrorPayload) error {
	if p == nil {
		return nil
	}
	return &RemoteError{Code: p.Code, Message: p.Message, Stack: p.Stack}
}
