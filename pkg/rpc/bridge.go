package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultCallTimeout applies to calls that do not set their own timeout.
const DefaultCallTimeout = 30 * time.Second

// Handler receives every inbound envelope that is not an apiResponse. It runs
// on the bridge's read loop and must not block.
type Handler func(env Envelope)

// Bridge correlates outbound calls with inbound responses over a Channel.
type Bridge struct {
	ch             Channel
	handler        Handler
	defaultTimeout time.Duration
	log            *logrus.Entry

	mu      sync.Mutex
	pending map[string]*pendingCall
	closed  bool

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

type pendingCall struct {
	typ      MessageType
	deadline time.Time
	result   chan callResult
}

type callResult struct {
	value json.RawMessage
	err   error
}

// BridgeOption configures a Bridge
type BridgeOption func(*Bridge)

// WithHandler sets the inbound message handler.
func WithHandler(h Handler) BridgeOption {
	return func(b *Bridge) { b.handler = h }
}

// WithDefaultTimeout sets the timeout for calls that do not specify one.
func WithDefaultTimeout(d time.Duration) BridgeOption {
	return func(b *Bridge) {
		if d > 0 {
			b.defaultTimeout = d
		}
	}
}

// WithLogger sets the bridge logger.
func WithLogger(log *logrus.Entry) BridgeOption {
	return func(b *Bridge) { b.log = log }
}

// NewBridge creates a bridge over ch. Call Start to begin reading.
func NewBridge(ch Channel, opts ...BridgeOption) *Bridge {
	b := &Bridge{
		ch:             ch,
		defaultTimeout: DefaultCallTimeout,
		pending:        make(map[string]*pendingCall),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return b
}

// Start launches the read loop. It stops when ctx ends, the bridge is closed
// or the channel is closed from the other end. Subsequent calls are no-ops.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		go b.readLoop(ctx)
	})
}

func (b *Bridge) readLoop(ctx context.Context) {
	defer b.Close()

	for {
		select {
		case env := <-b.ch.Receive():
			b.HandleMessage(env)
		case <-b.ch.Done():
			return
		case <-b.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

// HandleMessage routes a single inbound envelope.
func (b *Bridge) HandleMessage(env Envelope) {
	if env.Type == TypeAPIResponse {
		b.resolve(env)
		return
	}
	if b.handler == nil {
		b.log.Debugf("Dropping %s message %s: no handler", env.Type, env.ID)
		return
	}
	b.handler(env)
}

func (b *Bridge) resolve(env Envelope) {
	var resp ResponsePayload
	if err := env.Decode(&resp); err != nil {
		b.log.Warnf("Malformed response %s: %v", env.ID, err)
		return
	}

	b.mu.Lock()
	call, ok := b.pending[resp.MessageID]
	if ok {
		delete(b.pending, resp.MessageID)
	}
	b.mu.Unlock()

	if !ok {
		// unknown or already settled
		b.log.Debugf("Ignoring response for unknown call %s", resp.MessageID)
		return
	}

	call.result <- callResult{value: resp.Result, err: FromPayload(env.Error)}
}

// CallOption configures a single call
type CallOption func(*callOptions)

type callOptions struct {
	timeout time.Duration
}

// WithTimeout overrides the timeout for one call.
func WithTimeout(d time.Duration) CallOption {
	return func(o *callOptions) { o.timeout = d }
}

// Call sends an envelope of type typ and waits for the matching response.
// It fails with ErrTimeout when no response arrives in time and with
// ErrClosed when the bridge closes first.
func (b *Bridge) Call(ctx context.Context, typ MessageType, payload any, opts ...CallOption) (json.RawMessage, error) {
	o := callOptions{timeout: b.defaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.timeout <= 0 {
		o.timeout = b.defaultTimeout
	}

	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return nil, err
	}

	call := &pendingCall{
		typ:      typ,
		deadline: time.Now().Add(o.timeout),
		result:   make(chan callResult, 1),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.pending[env.ID] = call
	b.mu.Unlock()

	if err := b.ch.Send(env); err != nil {
		b.forget(env.ID)
		return nil, fmt.Errorf("failed to send %s: %w", typ, err)
	}

	timer := time.NewTimer(o.timeout)
	defer timer.Stop()

	select {
	case res := <-call.result:
		return res.value, res.err
	case <-timer.C:
		b.forget(env.ID)
		return nil, fmt.Errorf("%s %s after %s: %w", typ, env.ID, o.timeout, ErrTimeout)
	case <-ctx.Done():
		b.forget(env.ID)
		return nil, ctx.Err()
	}
}

func (b *Bridge) forget(id string) {
	b.mu.Lock()
	delete(b.pending, id)
	b.mu.Unlock()
}

// Reply answers req with either result or err.
func (b *Bridge) Reply(req Envelope, result any, err error) error {
	var raw json.RawMessage
	if err == nil {
		encoded, encErr := Encode(result)
		if encErr != nil {
			err = encErr
		} else {
			raw = encoded
		}
	}

	payload, encErr := json.Marshal(ResponsePayload{MessageID: req.ID, Result: raw})
	if encErr != nil {
		return fmt.Errorf("failed to encode response: %w", encErr)
	}

	return b.ch.Send(Envelope{
		ID:      NewMessageID(),
		Type:    TypeAPIResponse,
		Payload: payload,
		Error:   ToPayload(err),
	})
}

// Notify sends a fire-and-forget envelope.
func (b *Bridge) Notify(typ MessageType, payload any) error {
	env, err := NewEnvelope(typ, payload)
	if err != nil {
		return err
	}
	return b.ch.Send(env)
}

// NotifyError sends an error envelope describing err.
func (b *Bridge) NotifyError(err error) error {
	return b.ch.Send(Envelope{ID: NewMessageID(), Type: TypeError, Error: ToPayload(err)})
}

// Pending returns the number of calls awaiting a response.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// HasPending reports whether a call with the given id is awaiting a response.
func (b *Bridge) HasPending(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[id]
	return ok
}

// PendingIDs returns the ids of calls awaiting a response.
func (b *Bridge) PendingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	return ids
}

// Done is closed when the bridge is closed.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// Close rejects every pending call with ErrClosed and closes the channel.
// Responses arriving afterwards are dropped.
func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		pending := b.pending
		b.pending = make(map[string]*pendingCall)
		b.mu.Unlock()

		for _, call := range pending {
			call.result <- callResult{err: ErrClosed}
		}

		close(b.done)
		err = b.ch.Close()
	})
	return err
}
