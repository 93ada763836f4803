package worker

import (
	"fmt"
	"sort"
	"sync"

	"github.com/platinummonkey/fleet/pkg/ui"
)

// Registry tracks the event handlers and listeners of every mounted root.
// Unmounting a root drops all of them at once.
type Registry struct {
	mu     sync.Mutex
	nextID uint64
	roots  map[string]*scope
}

type scope struct {
	handlers  map[string]any
	listeners map[string][]any
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{roots: make(map[string]*scope)}
}

// NewRoot allocates a fresh root scope and returns its id.
func (r *Registry) NewRoot() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := fmt.Sprintf("root_%d", r.nextID)
	r.roots[id] = &scope{handlers: make(map[string]any), listeners: make(map[string][]any)}
	return id
}

// Binder returns an EventBinder that registers handlers under rootID.
func (r *Registry) Binder(rootID string) ui.EventBinder {
	return rootBinder{r: r, rootID: rootID}
}

type rootBinder struct {
	r      *Registry
	rootID string
}

func (b rootBinder) Bind(event string, handler any) string {
	b.r.mu.Lock()
	defer b.r.mu.Unlock()

	s, ok := b.r.roots[b.rootID]
	if !ok {
		return ""
	}
	b.r.nextID++
	id := fmt.Sprintf("h_%d_%s", b.r.nextID, event)
	s.handlers[id] = handler
	return id
}

// Handler returns the handler bound under id in rootID.
func (r *Registry) Handler(rootID, id string) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.roots[rootID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rootID, ErrUnknownRoot)
	}
	h, ok := s.handlers[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrUnknownHandler)
	}
	return h, nil
}

// Listen adds a listener for event on rootID.
func (r *Registry) Listen(rootID, event string, fn any) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.roots[rootID]
	if !ok {
		return false
	}
	s.listeners[event] = append(s.listeners[event], fn)
	return true
}

// Listeners returns the listeners for event on rootID.
func (r *Registry) Listeners(rootID, event string) ([]any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.roots[rootID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rootID, ErrUnknownRoot)
	}
	return append([]any(nil), s.listeners[event]...), nil
}

// Mounted reports whether rootID is mounted.
func (r *Registry) Mounted(rootID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.roots[rootID]
	return ok
}

// HandlerCount returns the number of handlers bound under rootID.
func (r *Registry) HandlerCount(rootID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.roots[rootID]; ok {
		return len(s.handlers)
	}
	return 0
}

// Unmount removes rootID and everything registered under it.
func (r *Registry) Unmount(rootID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.roots[rootID]; !ok {
		return false
	}
	delete(r.roots, rootID)
	return true
}

// UnmountAll removes every root and returns how many were mounted.
func (r *Registry) UnmountAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.roots)
	r.roots = make(map[string]*scope)
	return n
}

// Roots returns the mounted root ids, sorted.
func (r *Registry) Roots() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.roots))
	for id := range r.roots {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
