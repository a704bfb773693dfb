package events

import "github.com/kelindar/event"

// SubscribeToChannel forwards events of type T to ch for SSE handlers, which
// select over a channel. An event is dropped when ch is full so a slow
// client never blocks a publisher; see Bus.Dropped.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			bus.dropped.Add(1)
		}
	})
}

// SubscribeBackendEvents forwards backend state, exit, port and window close
// events to ch. The returned function removes all of them.
func SubscribeBackendEvents(bus *Bus, ch chan<- any) func() {
	unsubscribers := []func(){
		SubscribeToChannel[BackendStateChangedEvent](bus, ch),
		SubscribeToChannel[BackendExitedEvent](bus, ch),
		SubscribeToChannel[BackendPortEvent](bus, ch),
		SubscribeToChannel[WindowCloseRequestedEvent](bus, ch),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}
