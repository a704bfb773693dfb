package process

import (
	"errors"
	"fmt"
	"strings"

	"github.com/smazurov/pyhost/internal/resources"
)

var (
	// ErrAlreadyRunning is returned by Start under the reject policy.
	ErrAlreadyRunning = errors.New("backend already running")
	// ErrClosed is returned by Start once the supervisor has been closed.
	ErrClosed = errors.New("backend supervisor closed")
)

// ConfigurationError reports launch paths missing at start time.
type ConfigurationError struct {
	Paths   resources.Paths
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("backend installation incomplete under %q: missing %s",
		e.Paths.Root, strings.Join(e.Missing, ", "))
}

// SpawnError reports that the operating system refused to create the backend process.
type SpawnError struct {
	Interpreter string
	Err         error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start backend %s: %v", e.Interpreter, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// StartErrorKind classifies a Start error for metrics and API responses.
func StartErrorKind(err error) string {
	var cfgErr *ConfigurationError
	var spawnErr *SpawnError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &cfgErr):
		return "configuration_error"
	case errors.As(err, &spawnErr):
		return "spawn_error"
	case errors.Is(err, ErrAlreadyRunning):
		return "already_running"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "error"
	}
}
