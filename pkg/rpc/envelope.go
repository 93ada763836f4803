package rpc

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MessageType identifies the kind of envelope crossing the boundary.
type MessageType string

const (
	TypeAPICall     MessageType = "apiCall"
	TypeAPIResponse MessageType = "apiResponse"
	TypeEvent       MessageType = "event"
	TypeReady       MessageType = "ready"
	TypeError       MessageType = "error"
	TypeLog         MessageType = "log"
	TypeExecute     MessageType = "execute"
	TypeLoad        MessageType = "load"
	TypeUnload      MessageType = "unload"
)

// Envelope is the unit exchanged over a Channel
type Envelope struct {
	ID      string          `json:"messageId"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorPayload   `json:"error,omitempty"`
}

// ErrorPayload carries a failure across the boundary.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// ResponsePayload is the payload of an apiResponse envelope.
type ResponsePayload struct {
	MessageID string          `json:"messageId"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// CallPayload is the payload of an apiCall envelope.
type CallPayload struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// LogPayload is the payload of a log envelope.
type LogPayload struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

var messageCounter atomic.Uint64

// NewMessageID returns an id that is unique within the process.
func NewMessageID() string {
	return fmt.Sprintf("msg_%d_%d_%s", time.Now().UnixNano(), messageCounter.Add(1), uuid.NewString()[:8])
}

// NewEnvelope builds an envelope with a fresh id, encoding payload as JSON.
func NewEnvelope(typ MessageType, payload any) (Envelope, error) {
	raw, err := Encode(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{ID: NewMessageID(), Type: typ, Payload: raw}, nil
}

// Encode marshals v unless it is already raw JSON.
func Encode(v any) (json.RawMessage, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return val, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// Decode unmarshals the envelope payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Type, err)
	}
	return nil
}
