package events

import (
	"sync"
	"testing"
	"time"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := New()
	received := make(chan BackendPortEvent, 1)

	unsub := bus.Subscribe(func(e BackendPortEvent) {
		received <- e
	})
	defer unsub()

	bus.Publish(BackendPortEvent{Port: 8000, Timestamp: "2025-01-27T10:30:00Z"})

	got := <-received
	if got.Port != 8000 {
		t.Errorf("Expected port 8000, got %d", got.Port)
	}
}

func TestBus_MultipleSubscribers(_ *testing.T) {
	bus := New()
	received1 := make(chan WindowCloseRequestedEvent, 1)
	received2 := make(chan WindowCloseRequestedEvent, 1)

	unsub1 := bus.Subscribe(func(e WindowCloseRequestedEvent) {
		received1 <- e
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(e WindowCloseRequestedEvent) {
		received2 <- e
	})
	defer unsub2()

	bus.Publish(WindowCloseRequestedEvent{WindowID: "main"})

	<-received1
	<-received2
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := New()
	received := make(chan BackendExitedEvent, 1)

	unsub := bus.Subscribe(func(e BackendExitedEvent) {
		received <- e
	})

	bus.Publish(BackendExitedEvent{PID: 1})
	<-received

	unsub()

	bus.Publish(BackendExitedEvent{PID: 2})
	select {
	case <-received:
		t.Fatal("Should not have received event after unsubscribe")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_TypeSafety(t *testing.T) {
	bus := New()

	stateReceived := make(chan bool, 1)
	portReceived := make(chan bool, 1)

	unsub1 := bus.Subscribe(func(_ BackendStateChangedEvent) {
		stateReceived <- true
	})
	defer unsub1()

	unsub2 := bus.Subscribe(func(_ BackendPortEvent) {
		portReceived <- true
	})
	defer unsub2()

	bus.Publish(BackendStateChangedEvent{From: "not_started", To: "running"})
	<-stateReceived

	select {
	case <-portReceived:
		t.Fatal("Port subscriber should NOT have received BackendStateChangedEvent")
	case <-time.After(10 * time.Millisecond):
	}
}

func TestBus_ThreadSafety(_ *testing.T) {
	bus := New()
	var wg sync.WaitGroup
	numGoroutines := 10
	eventsPerGoroutine := 100
	expected := numGoroutines * eventsPerGoroutine

	receivedCh := make(chan bool, expected)

	unsub := bus.Subscribe(func(_ LogEntryEvent) {
		receivedCh <- true
	})
	defer unsub()

	for range numGoroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range eventsPerGoroutine {
				bus.Publish(LogEntryEvent{Level: "info", Message: "line"})
			}
		}()
	}

	wg.Wait()

	for range expected {
		<-receivedCh
	}
}

func TestBus_UnknownHandler(_ *testing.T) {
	bus := New()
	unsub := bus.Subscribe(func(string) {})
	unsub()
}

func TestSubscribeToChannel(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeToChannel[BackendExitedEvent](bus, ch)
	defer unsub()

	bus.Publish(BackendExitedEvent{PID: 42, ExitCode: 3})

	select {
	case got := <-ch:
		ev, ok := got.(BackendExitedEvent)
		if !ok {
			t.Fatalf("unexpected event type %T", got)
		}
		if ev.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", ev.ExitCode)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscribeToChannelDropsWhenFull(t *testing.T) {
	bus := New()
	ch := make(chan any, 1)

	unsub := SubscribeBackendEvents(bus, ch)
	defer unsub()

	bus.Publish(BackendPortEvent{Port: 8000})
	bus.Publish(BackendExitedEvent{PID: 1})

	deadline := time.Now().Add(time.Second)
	for bus.Dropped() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected a dropped event")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if len(ch) != 1 {
		t.Errorf("channel holds %d events, want 1", len(ch))
	}
}
