package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/smazurov/pyhost/internal/resources"
)

// pipeWaitDelay bounds how long Wait keeps copying output once the backend
// has exited but a descendant still holds its stdout or stderr open.
const pipeWaitDelay = 2 * time.Second

// Handle is a running (or reaped) backend process.
type Handle struct {
	cmd       *exec.Cmd
	pid       int
	paths     resources.Paths
	startedAt time.Time

	done     chan struct{}
	mu       sync.Mutex
	exitCode int
	waitErr  error
}

// PID returns the operating system process id.
func (h *Handle) PID() int { return h.pid }

// Paths returns the launch paths the process was started with.
func (h *Handle) Paths() resources.Paths { return h.paths }

// StartedAt returns when the process was spawned.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Done is closed once the process has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has been reaped.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitCode returns the exit code and whether the process has been reaped.
// A process killed by a signal reports -1.
func (h *Handle) ExitCode() (int, bool) {
	if !h.Exited() {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitCode, true
}

// spawn starts the interpreter for paths and a goroutine that reaps it.
// onExit runs after the process has been reaped and its output drained.
func spawn(paths resources.Paths, platform Platform, env []string, output func(io.Reader, string), onExit func(*Handle)) (*Handle, error) {
	cmd := exec.Command(paths.Interpreter, paths.EntryScript)
	cmd.Dir = paths.WorkingDir
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}
	cmd.WaitDelay = pipeWaitDelay
	platform.Prepare(cmd)

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		_ = stdoutW.Close()
		_ = stderrW.Close()
		return nil, &SpawnError{Interpreter: paths.Interpreter, Err: err}
	}

	h := &Handle{
		cmd:       cmd,
		pid:       cmd.Process.Pid,
		paths:     paths,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		output(stdoutR, "stdout")
	}()
	go func() {
		defer streams.Done()
		output(stderrR, "stderr")
	}()

	go func() {
		err := cmd.Wait()
		_ = stdoutW.Close()
		_ = stderrW.Close()
		streams.Wait()

		h.mu.Lock()
		h.exitCode = exitCodeFromError(err)
		h.waitErr = err
		h.mu.Unlock()
		close(h.done)

		if onExit != nil {
			onExit(h)
		}
	}()

	return h, nil
}

// exitCodeFromError extracts the exit code from a Wait error.
// Returns 0 for nil, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}
