package process

import (
	"time"

	"github.com/smazurov/pyhost/internal/resources"
)

// State is the supervisor's view of the backend.
type State string

// Supervisor states. There is no failed state: a start that fails leaves the
// supervisor where it was.
const (
	StateNotStarted State = "not_started"
	StateRunning    State = "running"
	StateStopped    State = "stopped"
)

// Transition describes a state change, or a failed start when Err is set
// (From == To in that case). Unexpected marks a backend that exited on its
// own rather than through Stop.
type Transition struct {
	From       State
	To         State
	PID        int
	Err        error
	Elapsed    time.Duration
	Unexpected bool
}

// StateChangeCallback is invoked after every transition and failed start.
type StateChangeCallback func(t Transition)

// ExitCallback is invoked when a backend process has been reaped.
type ExitCallback func(pid, exitCode int)

// Info is a snapshot of the supervised backend.
type Info struct {
	State     State           `json:"state"`
	PID       int             `json:"pid,omitempty"`
	StartedAt time.Time       `json:"started_at,omitzero"`
	Paths     resources.Paths `json:"paths"`
	Exited    bool            `json:"exited"`
	ExitCode  int             `json:"exit_code"`
}
