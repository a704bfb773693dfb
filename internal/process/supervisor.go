package process

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/pyhost/internal/resources"
)

// DefaultKillTimeout is how long Stop waits for a killed backend to be reaped.
const DefaultKillTimeout = 5 * time.Second

// Policy decides what Start does when a backend is already running.
type Policy string

const (
	// PolicyReplace spawns a new backend and stops tracking the old one,
	// which keeps running until it exits on its own.
	PolicyReplace Policy = "replace"
	// PolicyReject fails the second Start with ErrAlreadyRunning.
	PolicyReject Policy = "reject"
	// PolicyRestart stops the running backend before spawning a new one.
	PolicyRestart Policy = "restart"
)

// ParsePolicy validates a policy name. The empty string selects PolicyReplace.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyReject, PolicyRestart:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown backend policy %q (want replace, reject or restart)", s)
	}
}

// Locator resolves the resource directory. Implemented by *resources.Locator.
type Locator interface {
	Locate() resources.Result
}

// Options configures a Supervisor.
type Options struct {
	Locator  Locator
	Platform Platform // defaults to DefaultPlatform()

	// EntryScript is the file name under backend/. Defaults to main.py.
	EntryScript string
	// Env is appended to the host environment for the backend.
	Env []string

	OnRunning Policy
	// StopTimeout bounds the wait after Terminate. Zero waits forever;
	// otherwise the process is killed and awaited for KillTimeout more.
	StopTimeout time.Duration
	KillTimeout time.Duration

	OnStateChange StateChangeCallback
	OnExit        ExitCallback

	Logger       *slog.Logger
	OutputLogger *slog.Logger // backend stdout/stderr; defaults to Logger
	LogParser    LogParser    // defaults to ParsePythonLogLevel
}

// Supervisor owns the single backend slot.
type Supervisor struct {
	opts     Options
	platform Platform
	logger   *slog.Logger

	// startMu serializes Start so the running check and the spawn are not
	// interleaved with another Start.
	startMu sync.Mutex

	mu     sync.Mutex
	handle *Handle
	last   *Handle
	state  State
	closed bool
}

// NewSupervisor creates a Supervisor with an empty slot.
func NewSupervisor(opts Options) *Supervisor {
	if opts.Locator == nil {
		panic("process: Options.Locator is required")
	}
	if opts.Platform == nil {
		opts.Platform = DefaultPlatform()
	}
	if opts.EntryScript == "" {
		opts.EntryScript = resources.DefaultEntry
	}
	if opts.OnRunning == "" {
		opts.OnRunning = PolicyReplace
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = DefaultKillTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.OutputLogger == nil {
		opts.OutputLogger = opts.Logger
	}
	if opts.LogParser == nil {
		opts.LogParser = ParsePythonLogLevel
	}
	return &Supervisor{
		opts:     opts,
		platform: opts.Platform,
		logger:   opts.Logger,
		state:    StateNotStarted,
	}
}

// Start launches the backend. A failed start leaves the slot as it was.
func (s *Supervisor) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	begin := time.Now()
	if s.isClosed() {
		return s.failStart(ErrClosed, begin)
	}
	located := s.opts.Locator.Locate()
	paths := resources.PathsFor(located.Root, s.platform.InterpreterName(), s.opts.EntryScript)

	if err := s.checkPaths(located, paths); err != nil {
		return s.failStart(err, begin)
	}

	if current := s.current(); current != nil {
		switch s.opts.OnRunning {
		case PolicyReject:
			return s.failStart(ErrAlreadyRunning, begin)
		case PolicyRestart:
			s.logger.Info("Restarting running backend", "pid", current.PID())
			s.Stop()
		}
	}

	h, err := spawn(paths, s.platform, s.opts.Env, s.streamOutput, s.reaped)
	if err != nil {
		return s.failStart(err, begin)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Warn("Supervisor closed while starting, stopping new backend", "pid", h.PID())
		s.terminate(h)
		return s.failStart(ErrClosed, begin)
	}
	prev := s.handle
	from := s.state
	s.handle = h
	s.last = h
	s.state = StateRunning
	// The waiter may have reaped h before it was tracked.
	exitedEarly := h.Exited()
	if exitedEarly {
		s.handle = nil
		s.state = StateStopped
	}
	s.mu.Unlock()

	if prev != nil && !prev.Exited() {
		s.logger.Warn("Replaced running backend, previous process is no longer tracked",
			"orphaned_pid", prev.PID(), "pid", h.PID())
	}

	s.logger.Info("Backend started",
		"pid", h.PID(),
		"interpreter", paths.Interpreter,
		"working_dir", paths.WorkingDir,
		"strategy", located.Strategy)
	s.notify(Transition{From: from, To: StateRunning, PID: h.PID(), Elapsed: time.Since(begin)})
	if exitedEarly {
		code, _ := h.ExitCode()
		s.logger.Warn("Backend exited unexpectedly", "pid", h.PID(), "exit_code", code)
		s.notify(Transition{From: StateRunning, To: StateStopped, PID: h.PID(), Unexpected: true})
	}
	return nil
}

func (s *Supervisor) checkPaths(located resources.Result, paths resources.Paths) error {
	if located.Root == "" {
		return &ConfigurationError{Paths: paths, Missing: []string{resources.DirName}}
	}
	if missing := paths.Missing(); len(missing) > 0 {
		return &ConfigurationError{Paths: paths, Missing: missing}
	}
	return nil
}

func (s *Supervisor) failStart(err error, begin time.Time) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	s.logger.Error("Failed to start backend", "error", err, "kind", StartErrorKind(err))
	s.notify(Transition{From: state, To: state, Err: err, Elapsed: time.Since(begin)})
	return err
}

// Stop terminates the tracked backend and blocks until it has been reaped.
// Only the call that takes the handle out of the slot does any work; other
// calls return immediately. Termination failures are logged, never returned.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	h := s.handle
	s.handle = nil
	s.mu.Unlock()

	if h == nil {
		return
	}

	begin := time.Now()
	s.logger.Info("Stopping backend", "pid", h.PID(), "platform", s.platform.Name())

	s.terminate(h)

	s.mu.Lock()
	if s.handle == nil {
		s.state = StateStopped
	}
	s.mu.Unlock()

	code, _ := h.ExitCode()
	s.logger.Info("Backend stopped", "pid", h.PID(), "exit_code", code, "elapsed", time.Since(begin))
	s.notify(Transition{From: StateRunning, To: StateStopped, PID: h.PID(), Elapsed: time.Since(begin)})
}

// Close stops the backend and makes every later Start fail with ErrClosed.
// A Start already in progress stops the process it spawned.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.Stop()
}

func (s *Supervisor) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// terminate asks h to exit and waits until it has been reaped.
func (s *Supervisor) terminate(h *Handle) {
	if !h.Exited() {
		if err := s.platform.Terminate(h.cmd.Process); err != nil {
			s.logger.Warn("Backend termination reported an error", "pid", h.PID(), "error", err)
		}
	}
	s.awaitExit(h)
}

func (s *Supervisor) awaitExit(h *Handle) {
	if s.opts.StopTimeout <= 0 {
		<-h.Done()
		return
	}

	select {
	case <-h.Done():
		return
	case <-time.After(s.opts.StopTimeout):
	}

	s.logger.Warn("Backend did not exit in time, killing", "pid", h.PID(), "timeout", s.opts.StopTimeout)
	if err := h.cmd.Process.Kill(); err != nil {
		s.logger.Debug("Kill failed", "pid", h.PID(), "error", err)
	}

	select {
	case <-h.Done():
	case <-time.After(s.opts.KillTimeout):
		s.logger.Error("Backend did not exit after kill", "pid", h.PID())
	}
}

// Restart stops the running backend, if any, and starts a new one.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Status returns a snapshot of the slot and the most recent process.
func (s *Supervisor) Status() Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := Info{State: s.state}
	if s.last == nil {
		return info
	}
	info.PID = s.last.PID()
	info.StartedAt = s.last.StartedAt()
	info.Paths = s.last.Paths()
	info.ExitCode, info.Exited = s.last.ExitCode()
	return info
}

// Running reports whether a backend occupies the slot.
func (s *Supervisor) Running() bool {
	return s.current() != nil
}

func (s *Supervisor) current() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil || s.handle.Exited() {
		return nil
	}
	return s.handle
}

// reaped runs on the waiter goroutine of every spawned process.
func (s *Supervisor) reaped(h *Handle) {
	code, _ := h.ExitCode()

	s.mu.Lock()
	tracked := s.handle == h
	if tracked {
		s.handle = nil
		s.state = StateStopped
	}
	s.mu.Unlock()

	if tracked {
		s.logger.Warn("Backend exited unexpectedly", "pid", h.PID(), "exit_code", code)
		s.notify(Transition{From: StateRunning, To: StateStopped, PID: h.PID(), Unexpected: true})
	}
	if s.opts.OnExit != nil {
		s.opts.OnExit(h.PID(), code)
	}
}

func (s *Supervisor) streamOutput(r io.Reader, source string) {
	streamOutput(r, source, s.opts.OutputLogger, s.opts.LogParser)
}

func (s *Supervisor) notify(t Transition) {
	if s.opts.OnStateChange != nil {
		s.opts.OnStateChange(t)
	}
}
