package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/process"
	"github.com/smazurov/pyhost/internal/resources"
)

type fakeSupervisor struct {
	startErr error
	root     string
	starts   atomic.Int32
	restarts atomic.Int32
	stops    atomic.Int32
}

func (s *fakeSupervisor) Start(context.Context) error {
	s.starts.Add(1)
	return s.startErr
}

func (s *fakeSupervisor) Restart(context.Context) error {
	s.restarts.Add(1)
	return nil
}

func (s *fakeSupervisor) Close() { s.stops.Add(1) }

func (s *fakeSupervisor) Status() process.Info {
	return process.Info{State: process.StateRunning, PID: 42, Paths: resources.Paths{Root: s.root}}
}

type fakeWindows struct{ count atomic.Int32 }

func (w *fakeWindows) WindowCount() int { return int(w.count.Load()) }

type fakeWatcher struct {
	root    string
	started atomic.Bool
	stopped atomic.Bool
}

func (w *fakeWatcher) Start() error { w.started.Store(true); return nil }
func (w *fakeWatcher) Stop() error  { w.stopped.Store(true); return nil }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLogger(out *syncBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func TestStartupStartsOnce(t *testing.T) {
	sup := &fakeSupervisor{root: "/opt/app/resources"}
	var watcher *fakeWatcher
	b := New(Options{
		Supervisor: sup,
		NewPortWatcher: func(info process.Info) Watcher {
			watcher = &fakeWatcher{root: info.Paths.Root}
			return watcher
		},
		Logger: newLogger(&syncBuffer{}),
	})

	b.Startup(context.Background())
	b.Startup(context.Background())

	assert.Equal(t, int32(1), sup.starts.Load())
	require.NotNil(t, watcher)
	assert.Equal(t, "/opt/app/resources", watcher.root)
	assert.True(t, watcher.started.Load())

	b.Exit()
	assert.True(t, watcher.stopped.Load())
}

func TestStartupFailureIsDegradedMode(t *testing.T) {
	out := &syncBuffer{}
	sup := &fakeSupervisor{startErr: &process.ConfigurationError{Missing: []string{"/x/backend/main.py"}}}
	watcherBuilt := false
	b := New(Options{
		Supervisor: sup,
		NewPortWatcher: func(process.Info) Watcher {
			watcherBuilt = true
			return &fakeWatcher{}
		},
		Logger: newLogger(out),
	})

	b.Startup(context.Background())

	assert.False(t, watcherBuilt)
	assert.Contains(t, out.String(), "kind=configuration_error")

	b.Exit()
	assert.Equal(t, int32(1), sup.stops.Load(), "exit always asks the supervisor to stop")
}

func TestExitIsIdempotent(t *testing.T) {
	sup := &fakeSupervisor{}
	b := New(Options{Supervisor: sup, Logger: newLogger(&syncBuffer{})})
	b.Startup(context.Background())

	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Exit()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), sup.stops.Load())
}

func TestSecondInstanceDoesNotStartBackend(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "run", "pyhost.lock")

	first := &fakeSupervisor{}
	b1 := New(Options{Supervisor: first, LockFile: lockFile, Logger: newLogger(&syncBuffer{})})
	b1.Startup(context.Background())
	require.Equal(t, int32(1), first.starts.Load())

	out := &syncBuffer{}
	second := &fakeSupervisor{}
	b2 := New(Options{Supervisor: second, LockFile: lockFile, Logger: newLogger(out)})
	b2.Startup(context.Background())

	assert.Equal(t, int32(0), second.starts.Load())
	assert.Contains(t, out.String(), "Another host instance owns the backend")
	b2.Exit()

	// Lock released on exit lets a new instance take over.
	b1.Exit()
	third := &fakeSupervisor{}
	b3 := New(Options{Supervisor: third, LockFile: lockFile, Logger: newLogger(&syncBuffer{})})
	b3.Startup(context.Background())
	assert.Equal(t, int32(1), third.starts.Load())
	b3.Exit()
}

func TestRestartInStandbyIsRejected(t *testing.T) {
	lockFile := filepath.Join(t.TempDir(), "pyhost.lock")

	owner := New(Options{Supervisor: &fakeSupervisor{}, LockFile: lockFile, Logger: newLogger(&syncBuffer{})})
	owner.Startup(context.Background())

	sup := &fakeSupervisor{}
	standby := New(Options{Supervisor: sup, LockFile: lockFile, Logger: newLogger(&syncBuffer{})})
	standby.Startup(context.Background())

	require.ErrorIs(t, standby.Restart(context.Background()), ErrStandby)
	assert.Equal(t, int32(0), sup.restarts.Load())
	assert.Equal(t, int32(0), sup.starts.Load())

	// Once the owner exits the standby host may take over.
	owner.Exit()
	require.NoError(t, standby.Restart(context.Background()))
	assert.Equal(t, int32(1), sup.restarts.Load())

	// The lock is now held, so a third host is the standby.
	third := New(Options{Supervisor: &fakeSupervisor{}, LockFile: lockFile, Logger: newLogger(&syncBuffer{})})
	require.ErrorIs(t, third.Restart(context.Background()), ErrStandby)

	standby.Exit()
	third.Exit()
}

func TestRestartAfterExitIsClosed(t *testing.T) {
	sup := &fakeSupervisor{}
	b := New(Options{Supervisor: sup, Logger: newLogger(&syncBuffer{})})
	b.Startup(context.Background())
	b.Exit()

	require.ErrorIs(t, b.Restart(context.Background()), process.ErrClosed)
	assert.Equal(t, int32(0), sup.restarts.Load())
}

func TestRestartStartsPortWatcherAfterFailedStartup(t *testing.T) {
	sup := &fakeSupervisor{startErr: &process.ConfigurationError{}, root: "/opt/app/resources"}
	var built atomic.Int32
	var watcher *fakeWatcher
	b := New(Options{
		Supervisor: sup,
		NewPortWatcher: func(info process.Info) Watcher {
			built.Add(1)
			watcher = &fakeWatcher{root: info.Paths.Root}
			return watcher
		},
		Logger: newLogger(&syncBuffer{}),
	})

	b.Startup(context.Background())
	assert.Equal(t, int32(0), built.Load())

	require.NoError(t, b.Restart(context.Background()))
	require.NoError(t, b.Restart(context.Background()))
	assert.Equal(t, int32(1), built.Load(), "one watcher across restarts")
	assert.True(t, watcher.started.Load())

	b.Exit()
	assert.True(t, watcher.stopped.Load())
}

func TestWindowCloseRequestIsInert(t *testing.T) {
	out := &syncBuffer{}
	sup := &fakeSupervisor{}
	windows := &fakeWindows{}
	b := New(Options{
		Supervisor:       sup,
		Windows:          windows,
		WindowCheckDelay: 10 * time.Millisecond,
		Logger:           newLogger(out),
	})
	b.Startup(context.Background())

	b.WindowCloseRequested("main")

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "No windows remain after close request")
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(0), sup.stops.Load(), "closing the last window must not stop the backend")

	b.Exit()
}

func TestWindowCloseRequestWithWindowsLeft(t *testing.T) {
	out := &syncBuffer{}
	windows := &fakeWindows{}
	windows.count.Store(2)
	b := New(Options{
		Supervisor:       &fakeSupervisor{},
		Windows:          windows,
		WindowCheckDelay: 10 * time.Millisecond,
		Logger:           newLogger(out),
	})

	b.WindowCloseRequested("settings")
	b.Exit() // waits for the pending check

	assert.Contains(t, out.String(), "remaining=2")
}

func TestBindSubscribesToCloseRequests(t *testing.T) {
	out := &syncBuffer{}
	bus := events.New()
	b := New(Options{
		Supervisor:       &fakeSupervisor{},
		Windows:          &fakeWindows{},
		WindowCheckDelay: time.Millisecond,
		Logger:           newLogger(out),
	})
	b.Bind(bus)

	bus.Publish(events.WindowCloseRequestedEvent{WindowID: "w-1"})

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "window=w-1")
	}, time.Second, 5*time.Millisecond)

	b.Exit()
}

func TestCloseRequestAfterExitIgnored(t *testing.T) {
	out := &syncBuffer{}
	b := New(Options{Supervisor: &fakeSupervisor{}, WindowCheckDelay: time.Millisecond, Logger: newLogger(out)})
	b.Exit()

	b.WindowCloseRequested("late")
	time.Sleep(20 * time.Millisecond)

	assert.NotContains(t, out.String(), "window=late")
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingBus) Publish(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func TestStateObserverPublishes(t *testing.T) {
	bus := &recordingBus{}
	onState, onExit := StateObserver(bus)

	onState(process.Transition{From: process.StateNotStarted, To: process.StateRunning, PID: 7})
	onState(process.Transition{From: process.StateStopped, To: process.StateStopped, Err: errors.New("boom")})
	onExit(7, 0)

	require.Len(t, bus.events, 3)

	started, ok := bus.events[0].(events.BackendStateChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "not_started", started.From)
	assert.Equal(t, "running", started.To)
	assert.Equal(t, 7, started.PID)

	failed, ok := bus.events[1].(events.BackendStateChangedEvent)
	require.True(t, ok)
	assert.Equal(t, "boom", failed.Error)

	exited, ok := bus.events[2].(events.BackendExitedEvent)
	require.True(t, ok)
	assert.Equal(t, 7, exited.PID)
}

func TestStateObserverWithoutBus(_ *testing.T) {
	onState, onExit := StateObserver(nil)
	onState(process.Transition{From: process.StateRunning, To: process.StateStopped, Elapsed: time.Millisecond})
	onState(process.Transition{From: process.StateRunning, To: process.StateStopped, Unexpected: true})
	onExit(1, -1)
}
