package process

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"syscall"

	"github.com/smazurov/pyhost/internal/resources"
)

// Platform holds the operating-system specific parts of backend control.
type Platform interface {
	// Name identifies the platform family in logs.
	Name() string
	// InterpreterName is the file name of the bundled interpreter.
	InterpreterName() string
	// Prepare sets spawn attributes on cmd before it is started.
	Prepare(cmd *exec.Cmd)
	// Terminate asks proc, and where supported its descendants, to exit.
	// It does not wait. Errors are informational only.
	Terminate(proc *os.Process) error
}

// DefaultPlatform returns the Platform for the running operating system.
func DefaultPlatform() Platform {
	return PlatformFor(runtime.GOOS)
}

// PlatformFor returns the Platform for goos.
func PlatformFor(goos string) Platform {
	if goos == "windows" {
		return &WindowsPlatform{}
	}
	return &PosixPlatform{}
}

// CommandRunner runs an external command to completion.
type CommandRunner func(name string, args ...string) error

// WindowsPlatform spawns without a console window and kills whole process
// trees with taskkill, since the backend may have started children of its own.
type WindowsPlatform struct {
	// Run executes the termination utility. Defaults to running it hidden
	// with its output discarded.
	Run CommandRunner
}

// Name implements Platform.
func (p *WindowsPlatform) Name() string { return "windows" }

// InterpreterName implements Platform.
func (p *WindowsPlatform) InterpreterName() string { return resources.InterpreterName("windows") }

// Prepare implements Platform.
func (p *WindowsPlatform) Prepare(cmd *exec.Cmd) {
	hideConsole(cmd)
}

// Terminate runs "taskkill /F /T /PID <pid>" and then kills the local
// handle so the os.Process bookkeeping matches.
func (p *WindowsPlatform) Terminate(proc *os.Process) error {
	run := p.Run
	if run == nil {
		run = runHidden
	}

	var errs []error
	if err := run("taskkill", "/F", "/T", "/PID", strconv.Itoa(proc.Pid)); err != nil {
		errs = append(errs, fmt.Errorf("taskkill: %w", err))
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = append(errs, fmt.Errorf("kill: %w", err))
	}
	return errors.Join(errs...)
}

func runHidden(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	hideConsole(cmd)
	return cmd.Run()
}

// SignalFunc delivers sig to proc.
type SignalFunc func(proc *os.Process, sig os.Signal) error

// PosixPlatform terminates the immediate child with SIGTERM. No process
// tree primitive is assumed, so grandchildren are the backend's concern.
type PosixPlatform struct {
	// Signal delivers the termination signal. Defaults to proc.Signal.
	Signal SignalFunc
}

// Name implements Platform.
func (p *PosixPlatform) Name() string { return "posix" }

// InterpreterName implements Platform.
func (p *PosixPlatform) InterpreterName() string { return resources.InterpreterName("posix") }

// Prepare puts the backend in its own process group so a terminal Ctrl-C
// reaches only the host, which then stops the backend itself.
func (p *PosixPlatform) Prepare(cmd *exec.Cmd) {
	newProcessGroup(cmd)
}

// Terminate implements Platform.
func (p *PosixPlatform) Terminate(proc *os.Process) error {
	signal := p.Signal
	if signal == nil {
		signal = func(proc *os.Process, sig os.Signal) error { return proc.Signal(sig) }
	}
	err := signal(proc, syscall.SIGTERM)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
