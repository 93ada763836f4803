package plugins

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// EventType names a manager event.
type EventType string

const (
	EventPluginRegistered   EventType = "pluginRegistered"
	EventPluginLoaded       EventType = "pluginLoaded"
	EventPluginUnregistered EventType = "pluginUnregistered"
	EventPluginReloaded     EventType = "pluginReloaded"
	EventPluginError        EventType = "pluginError"
	EventCommandExecuted    EventType = "commandExecuted"
	EventViewEvent          EventType = "viewEvent"
	EventToast              EventType = "toast"
	EventHUD                EventType = "hud"
	EventNavigation         EventType = "navigation"
	EventOpen               EventType = "open"
	EventPaste              EventType = "paste"
	EventLog                EventType = "log"
)

// Event is delivered to subscribers of the manager's bus.
type Event struct {
	Type      EventType `json:"type"`
	PluginID  string    `json:"pluginId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Handler receives events. Handlers run on the publishing goroutine and must
// not block.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
	types   map[EventType]bool
}

// Bus fans events out to subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	log    *logrus.Logger
}

// NewBus creates an event bus
func NewBus(log *logrus.Logger) *Bus {
	if log == nil {
		log = logrus.New()
	}
	return &Bus{log: log}
}

// Subscribe registers handler for the given types, or for every type when
// none are given. The returned function removes the subscription.
func (b *Bus) Subscribe(handler Handler, types ...EventType) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := subscription{id: b.nextID, handler: handler}
	if len(types) > 0 {
		sub.types = make(map[EventType]bool, len(types))
		for _, t := range types {
			sub.types[t] = true
		}
	}
	b.subs = append(b.subs, sub)

	id := sub.id
	return func() { b.unsubscribe(id) }
}

func (b *Bus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers an event to every matching subscriber. A panicking
// handler is logged and skipped.
func (b *Bus) Publish(t EventType, pluginID string, data any) {
	ev := Event{Type: t, PluginID: pluginID, Timestamp: time.Now(), Data: data}

	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.types != nil && !sub.types[t] {
			continue
		}
		b.deliver(sub.handler, ev)
	}
}

func (b *Bus) deliver(handler Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Errorf("Event handler panicked on %s: %v", ev.Type, r)
		}
	}()
	handler(ev)
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
