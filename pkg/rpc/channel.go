package rpc

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Channel is one end of a bidirectional message transport.
type Channel interface {
	Send(env Envelope) error
	Receive() <-chan Envelope
	// Done is closed once the transport is closed from either end.
	Done() <-chan struct{}
	Close() error
}

type pipe struct {
	done      chan struct{}
	closeOnce sync.Once
}

type pipeEnd struct {
	p     *pipe
	inbox chan Envelope
	peer  *pipeEnd
}

// Pipe returns two connected in-memory channel ends. Every envelope is copied
// through its JSON encoding so the ends share no memory.
func Pipe(buffer int) (Channel, Channel) {
	p := &pipe{done: make(chan struct{})}
	a := &pipeEnd{p: p, inbox: make(chan Envelope, buffer)}
	b := &pipeEnd{p: p, inbox: make(chan Envelope, buffer)}
	a.peer, b.peer = b, a
	return a, b
}

func (e *pipeEnd) Send(env Envelope) error {
	select {
	case <-e.p.done:
		return ErrClosed
	default:
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	var copied Envelope
	if err := json.Unmarshal(data, &copied); err != nil {
		return fmt.Errorf("failed to decode envelope: %w", err)
	}

	select {
	case e.peer.inbox <- copied:
		return nil
	case <-e.p.done:
		return ErrClosed
	}
}

func (e *pipeEnd) Receive() <-chan Envelope {
	return e.inbox
}

func (e *pipeEnd) Done() <-chan struct{} {
	return e.p.done
}

func (e *pipeEnd) Close() error {
	e.p.closeOnce.Do(func() { close(e.p.done) })
	return nil
}
