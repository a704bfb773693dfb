package events

// Event type constants for kelindar/event.
const (
	TypeWindowCloseRequested uint32 = iota + 1
	TypeBackendStateChanged
	TypeBackendExited
	TypeBackendPort
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// WindowCloseRequestedEvent is published when the frontend reports that the
// user asked a window to close.
type WindowCloseRequestedEvent struct {
	WindowID  string `json:"window_id" example:"7f9c2ba4-e88f-4a3e-9c1a-2d3e4f5a6b7c" doc:"Window identifier"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for WindowCloseRequestedEvent.
func (e WindowCloseRequestedEvent) Type() uint32 { return TypeWindowCloseRequested }

// BackendStateChangedEvent reports a supervisor transition. A failed start
// has From equal to To and Error set.
type BackendStateChangedEvent struct {
	From      string `json:"from" example:"not_started" doc:"Previous state"`
	To        string `json:"to" example:"running" doc:"New state"`
	PID       int    `json:"pid,omitempty" example:"4242" doc:"Backend process id"`
	Error     string `json:"error,omitempty" doc:"Start failure, if any"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BackendStateChangedEvent.
func (e BackendStateChangedEvent) Type() uint32 { return TypeBackendStateChanged }

// BackendExitedEvent is published when a backend process has been reaped.
type BackendExitedEvent struct {
	PID       int    `json:"pid" example:"4242" doc:"Backend process id"`
	ExitCode  int    `json:"exit_code" example:"0" doc:"Exit code, -1 when killed by a signal"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BackendExitedEvent.
func (e BackendExitedEvent) Type() uint32 { return TypeBackendExited }

// BackendPortEvent is published when the backend announces its listening port.
type BackendPortEvent struct {
	Port      int    `json:"port" example:"8000" doc:"Backend listening port"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for BackendPortEvent.
func (e BackendPortEvent) Type() uint32 { return TypeBackendPort }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"supervisor" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
