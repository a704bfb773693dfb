package events

import (
	"sync/atomic"

	"github.com/kelindar/event"
)

// Bus wraps kelindar/event dispatcher for event broadcasting.
type Bus struct {
	dispatcher *event.Dispatcher
	dropped    atomic.Uint64
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		dispatcher: event.NewDispatcher(),
	}
}

// Dropped returns how many events channel subscribers have missed because
// their channel was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Publish publishes an event to all subscribers.
// Usage: bus.Publish(BackendPortEvent{...})
func (b *Bus) Publish(ev Event) {
	// kelindar/event is generic over the concrete type
	switch e := ev.(type) {
	case WindowCloseRequestedEvent:
		event.Publish(b.dispatcher, e)
	case BackendStateChangedEvent:
		event.Publish(b.dispatcher, e)
	case BackendExitedEvent:
		event.Publish(b.dispatcher, e)
	case BackendPortEvent:
		event.Publish(b.dispatcher, e)
	case LogEntryEvent:
		event.Publish(b.dispatcher, e)
	}
}

// Subscribe subscribes to events with a handler function.
// The handler's parameter type selects the events it receives.
// Returns an unsubscribe function; unknown handler types get a no-op.
// Usage: unsub := bus.Subscribe(func(e WindowCloseRequestedEvent) { ... })
func (b *Bus) Subscribe(handler any) func() {
	switch h := handler.(type) {
	case func(WindowCloseRequestedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BackendStateChangedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BackendExitedEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(BackendPortEvent):
		return event.Subscribe(b.dispatcher, h)
	case func(LogEntryEvent):
		return event.Subscribe(b.dispatcher, h)
	default:
		return func() {}
	}
}
