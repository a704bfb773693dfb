package lifecycle

import (
	"time"

	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/metrics"
	"github.com/smazurov/pyhost/internal/process"
)

// EventPublisher publishes bus events.
type EventPublisher interface {
	Publish(ev events.Event)
}

// StateObserver returns supervisor callbacks that feed metrics and, when
// bus is not nil, the event bus.
func StateObserver(bus EventPublisher) (process.StateChangeCallback, process.ExitCallback) {
	onState := func(t process.Transition) {
		switch {
		case t.Err != nil:
			metrics.RecordStart(process.StartErrorKind(t.Err))
		case t.To == process.StateRunning:
			metrics.RecordStart("ok")
		case t.Unexpected:
			metrics.SetBackendDown()
		case t.To == process.StateStopped:
			metrics.RecordStop(t.Elapsed)
		}

		if bus == nil {
			return
		}
		ev := events.BackendStateChangedEvent{
			From:      string(t.From),
			To:        string(t.To),
			PID:       t.PID,
			Timestamp: time.Now().Format(time.RFC3339Nano),
		}
		if t.Err != nil {
			ev.Error = t.Err.Error()
		}
		bus.Publish(ev)
	}

	onExit := func(pid, exitCode int) {
		metrics.RecordExit(exitCode)
		if bus != nil {
			bus.Publish(events.BackendExitedEvent{
				PID:       pid,
				ExitCode:  exitCode,
				Timestamp: time.Now().Format(time.RFC3339),
			})
		}
	}

	return onState, onExit
}
