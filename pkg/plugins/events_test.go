package plugins

import (
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

// TestBus_Subscribe tests type filtering and unsubscribe
func TestBus_Subscribe(t *testing.T) {
	bus := NewBus(nil)

	var all, toasts []Event
	unsubAll := bus.Subscribe(func(ev Event) { all = append(all, ev) })
	unsubToast := bus.Subscribe(func(ev Event) { toasts = append(toasts, ev) }, EventToast)
	assert.Equal(t, 2, bus.Subscribers())

	bus.Publish(EventToast, "todo", map[string]string{"title": "hi"})
	bus.Publish(EventPluginLoaded, "todo", nil)

	assert.Len(t, all, 2)
	assert.Len(t, toasts, 1)
	assert.Equal(t, "todo", toasts[0].PluginID)
	assert.False(t, toasts[0].Timestamp.IsZero())

	unsubToast()
	bus.Publish(EventToast, "todo", nil)
	assert.Len(t, toasts, 1)
	assert.Len(t, all, 3)

	unsubAll()
	unsubAll()
	assert.Equal(t, 0, bus.Subscribers())
}

// TestBus_PanickingHandler tests that one failing subscriber does not stop delivery
func TestBus_PanickingHandler(t *testing.T) {
	logger, hook := test.NewNullLogger()
	bus := NewBus(logger)

	delivered := 0
	bus.Subscribe(func(Event) { panic("boom") })
	bus.Subscribe(func(Event) { delivered++ })

	bus.Publish(EventLog, "todo", nil)
	assert.Equal(t, 1, delivered)
	if assert.NotNil(t, hook.LastEntry()) {
		assert.Contains(t, hook.LastEntry().Message, "panicked")
	}
}
