// Package lifecycle ties host application startup and exit to the backend
// supervisor.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/process"
)

// DefaultWindowCheckDelay is how long a close request waits before counting windows.
const DefaultWindowCheckDelay = 100 * time.Millisecond

// ErrStandby is returned by Restart while another host instance owns the backend.
var ErrStandby = errors.New("another host instance owns the backend")

// Supervisor is the part of *process.Supervisor the binding drives.
type Supervisor interface {
	Start(ctx context.Context) error
	Restart(ctx context.Context) error
	Close()
	Status() process.Info
}

// WindowCounter reports how many windows are open.
type WindowCounter interface {
	WindowCount() int
}

// Watcher is a background component started next to the backend.
type Watcher interface {
	Start() error
	Stop() error
}

// Options configures a Binding.
type Options struct {
	Supervisor Supervisor
	Windows    WindowCounter

	// NewPortWatcher, when set, builds a watcher for a backend that started
	// successfully.
	NewPortWatcher func(info process.Info) Watcher

	// LockFile, when set, makes this host the single instance allowed to run
	// a backend. A second host runs without one.
	LockFile string

	WindowCheckDelay time.Duration
	Logger           *slog.Logger
}

// Binding runs the supervisor from application lifecycle hooks.
type Binding struct {
	opts   Options
	logger *slog.Logger

	startOnce sync.Once
	exitOnce  sync.Once

	lockMu sync.Mutex // serializes acquireLock

	mu          sync.Mutex
	lock        *flock.Flock
	portWatcher Watcher
	unsubscribe func()
	exited      bool

	checks sync.WaitGroup
}

// New creates a Binding.
func New(opts Options) *Binding {
	if opts.Supervisor == nil {
		panic("lifecycle: Options.Supervisor is required")
	}
	if opts.WindowCheckDelay <= 0 {
		opts.WindowCheckDelay = DefaultWindowCheckDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Binding{opts: opts, logger: opts.Logger}
}

// Startup starts the backend once. Failures are logged and the host keeps
// running without a backend.
func (b *Binding) Startup(ctx context.Context) {
	b.startOnce.Do(func() {
		b.startup(ctx)
	})
}

func (b *Binding) startup(ctx context.Context) {
	if !b.acquireLock() {
		return
	}

	if err := b.opts.Supervisor.Start(ctx); err != nil {
		b.logger.Error("Backend unavailable, continuing without it",
			"error", err,
			"kind", process.StartErrorKind(err))
		return
	}

	info := b.opts.Supervisor.Status()
	b.logger.Info("Backend running", "pid", info.PID, "root", info.Paths.Root)
	b.startPortWatcher(info)
}

// startPortWatcher starts the port watcher unless one is running or the
// application is exiting.
func (b *Binding) startPortWatcher(info process.Info) {
	if b.opts.NewPortWatcher == nil {
		return
	}
	b.mu.Lock()
	skip := b.exited || b.portWatcher != nil
	b.mu.Unlock()
	if skip {
		return
	}

	w := b.opts.NewPortWatcher(info)
	if err := w.Start(); err != nil {
		b.logger.Warn("Cannot watch backend port file", "root", info.Paths.Root, "error", err)
		return
	}

	b.mu.Lock()
	if b.exited || b.portWatcher != nil {
		b.mu.Unlock()
		_ = w.Stop()
		return
	}
	b.portWatcher = w
	b.mu.Unlock()
}

// Restart stops the backend and starts it again. While another instance
// holds the lock it fails with ErrStandby; a host that lost the lock at
// startup takes over once the owner has exited.
func (b *Binding) Restart(ctx context.Context) error {
	b.mu.Lock()
	exited := b.exited
	owner := b.opts.LockFile == "" || b.lock != nil
	b.mu.Unlock()

	if exited {
		return process.ErrClosed
	}
	if !owner && !b.acquireLock() {
		return ErrStandby
	}

	if err := b.opts.Supervisor.Restart(ctx); err != nil {
		return err
	}
	b.startPortWatcher(b.opts.Supervisor.Status())
	return nil
}

// Status returns the supervisor status.
func (b *Binding) Status() process.Info {
	return b.opts.Supervisor.Status()
}

// acquireLock returns false when another host owns the backend.
func (b *Binding) acquireLock() bool {
	if b.opts.LockFile == "" {
		return true
	}

	b.lockMu.Lock()
	defer b.lockMu.Unlock()

	b.mu.Lock()
	held := b.lock != nil
	b.mu.Unlock()
	if held {
		return true
	}

	if err := os.MkdirAll(filepath.Dir(b.opts.LockFile), 0o755); err != nil {
		b.logger.Warn("Cannot create lock directory, continuing unlocked", "path", b.opts.LockFile, "error", err)
		return true
	}

	lock := flock.New(b.opts.LockFile)
	locked, err := lock.TryLock()
	if err != nil {
		b.logger.Warn("Cannot acquire instance lock, continuing unlocked", "path", b.opts.LockFile, "error", err)
		return true
	}
	if !locked {
		b.logger.Warn("Another host instance owns the backend, not starting one", "lock", b.opts.LockFile)
		return false
	}

	b.mu.Lock()
	if b.exited {
		b.mu.Unlock()
		_ = lock.Unlock()
		return false
	}
	b.lock = lock
	b.mu.Unlock()
	return true
}

// Exit stops the backend and blocks until it has been reaped. Safe to call
// more than once; only the first call does anything.
func (b *Binding) Exit() {
	b.exitOnce.Do(func() {
		b.mu.Lock()
		b.exited = true
		unsubscribe := b.unsubscribe
		watcher := b.portWatcher
		lock := b.lock
		b.unsubscribe, b.portWatcher, b.lock = nil, nil, nil
		b.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}

		b.logger.Info("Application exiting, stopping backend")
		b.opts.Supervisor.Close()

		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				b.logger.Debug("Port watcher stop", "error", err)
			}
		}
		if lock != nil {
			if err := lock.Unlock(); err != nil {
				b.logger.Warn("Failed to release instance lock", "error", err)
			}
		}

		b.checks.Wait()
	})
}

// WindowCloseRequested schedules a check of the remaining windows. The check
// only logs; closing the last window does not exit the application.
func (b *Binding) WindowCloseRequested(windowID string) {
	b.mu.Lock()
	if b.exited {
		b.mu.Unlock()
		return
	}
	b.checks.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.checks.Done()
		time.Sleep(b.opts.WindowCheckDelay)

		remaining := -1
		if b.opts.Windows != nil {
			remaining = b.opts.Windows.WindowCount()
		}
		if remaining == 0 {
			b.logger.Debug("No windows remain after close request", "window", windowID)
			return
		}
		b.logger.Debug("Window close requested", "window", windowID, "remaining", remaining)
	}()
}

// Bind subscribes the binding to window close requests on bus.
func (b *Binding) Bind(bus *events.Bus) {
	unsubscribe := bus.Subscribe(func(e events.WindowCloseRequestedEvent) {
		b.WindowCloseRequested(e.WindowID)
	})

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exited {
		unsubscribe()
		return
	}
	b.unsubscribe = unsubscribe
}
