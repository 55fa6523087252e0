package events

import (
	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a new event bus
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Publish publishes an event to all subscribers. A nil Bus drops it.
// Usage: bus.Publish(ProxyAccessEvent{...})
func (b *Bus) Publish(ev Event) {
	if b == nil {
		return
	}
	switch e := ev.(type) {
	case StreamDecisionEvent:
		event.Publish(b.dispatcher, e)
	case ProxyAccessEvent:
		event.Publish(b.dispatcher, e)
	case ProcessSpawnedEvent:
		event.Publish(b.dispatcher, e)
	case ProcessRestartedEvent:
		event.Publish(b.dispatcher, e)
	case SessionEndedEvent:
		event.Publish(b.dispatcher, e)
	case CapabilitiesProbedEvent:
		event.Publish(b.dispatcher, e)
	case SettingsReloadedEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function. The handler's
// parameter type selects the events it receives. Returns an unsubscribe
// function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e SessionEndedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(StreamDecisionEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProxyAccessEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessSpawnedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(ProcessRestartedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SessionEndedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(CapabilitiesProbedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(SettingsReloadedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
