package process

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/pyhost/internal/resources"
)

const gracefulBackend = `#!/bin/sh
trap 'exit 0' TERM
pwd > started
echo "INFO:     backend up"
while :; do sleep 0.05; done
`

const stubbornBackend = `#!/bin/sh
trap '' TERM
pwd > started
while :; do sleep 0.05; done
`

const verboseBackend = `#!/bin/sh
trap 'exit 0' TERM
head -c 2000000 /dev/zero | tr '\0' x
echo
head -c 300000 /dev/zero | tr '\0' '\n'
pwd > started
while :; do sleep 0.05; done
`

const crashingBackend = `#!/bin/sh
echo "ERROR:root:boom" >&2
exit 3
`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticLocator string

func (l staticLocator) Locate() resources.Result {
	root := string(l)
	return resources.Result{Candidate: resources.Candidate{
		Strategy: resources.StrategyConfigured,
		Root:     root,
		Valid:    resources.Validate(root),
	}}
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fixture backends are shell scripts")
	}
}

// writeBackend lays out resources/python/<interpreter> running script and
// an empty resources/backend/main.py, returning the resources root.
func writeBackend(t *testing.T, interpreter, script string) string {
	t.Helper()
	root := filepath.Join(t.TempDir(), resources.DirName)
	require.NoError(t, os.MkdirAll(filepath.Join(root, resources.PythonDir), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, resources.BackendDir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, resources.PythonDir, interpreter), []byte(script), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, resources.BackendDir, resources.DefaultEntry), nil, 0o644))
	return root
}

func waitStarted(t *testing.T, root string) {
	t.Helper()
	marker := filepath.Join(root, resources.BackendDir, "started")
	require.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "backend never wrote %s", marker)
}

func newTestSupervisor(root string, opts Options) *Supervisor {
	opts.Locator = staticLocator(root)
	if opts.Platform == nil {
		opts.Platform = &PosixPlatform{}
	}
	opts.Logger = testLogger()
	return NewSupervisor(opts)
}

type countingPlatform struct {
	Platform
	calls atomic.Int32
}

func (p *countingPlatform) Terminate(proc *os.Process) error {
	p.calls.Add(1)
	return p.Platform.Terminate(proc)
}

func TestStartStopReapsChild(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)

	var mu sync.Mutex
	var transitions []Transition
	sup := newTestSupervisor(root, Options{
		OnStateChange: func(tr Transition) {
			mu.Lock()
			transitions = append(transitions, tr)
			mu.Unlock()
		},
	})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)

	info := sup.Status()
	assert.Equal(t, StateRunning, info.State)
	assert.Positive(t, info.PID)
	assert.Equal(t, filepath.Join(root, resources.BackendDir), info.Paths.WorkingDir)
	assert.True(t, sup.Running())

	h := sup.current()
	require.NotNil(t, h)

	sup.Stop()

	assert.False(t, sup.Running())
	assert.True(t, h.Exited(), "child must be reaped when Stop returns")
	assert.NotNil(t, h.cmd.ProcessState)

	info = sup.Status()
	assert.Equal(t, StateStopped, info.State)
	assert.True(t, info.Exited)
	assert.Equal(t, 0, info.ExitCode)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, transitions, 2)
	assert.Equal(t, StateNotStarted, transitions[0].From)
	assert.Equal(t, StateRunning, transitions[0].To)
	assert.Equal(t, StateRunning, transitions[1].From)
	assert.Equal(t, StateStopped, transitions[1].To)
}

func TestWorkingDirectoryIsBackendDir(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	sup := newTestSupervisor(root, Options{})

	require.NoError(t, sup.Start(context.Background()))
	defer sup.Stop()
	waitStarted(t, root)

	// The script writes pwd into its working directory.
	data, err := os.ReadFile(filepath.Join(root, resources.BackendDir, "started"))
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(filepath.Join(root, resources.BackendDir))
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(string(trimNewline(data)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}

func TestStopIsIdempotent(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	platform := &countingPlatform{Platform: &PosixPlatform{}}
	sup := newTestSupervisor(root, Options{Platform: platform})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)

	sup.Stop()
	sup.Stop()

	assert.Equal(t, int32(1), platform.calls.Load())
	assert.Equal(t, StateStopped, sup.Status().State)
}

func TestStopBeforeStartIsNoop(t *testing.T) {
	platform := &countingPlatform{Platform: &PosixPlatform{}}
	sup := newTestSupervisor(t.TempDir(), Options{Platform: platform})

	sup.Stop()

	assert.Equal(t, int32(0), platform.calls.Load())
	assert.Equal(t, StateNotStarted, sup.Status().State)
}

func TestConcurrentStopTerminatesOnce(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	platform := &countingPlatform{Platform: &PosixPlatform{}}
	sup := newTestSupervisor(root, Options{Platform: platform})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.Stop()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), platform.calls.Load())
	assert.False(t, sup.Running())
}

func TestStartMissingEntryScript(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	entry := filepath.Join(root, resources.BackendDir, resources.DefaultEntry)
	require.NoError(t, os.Remove(entry))

	var failed []Transition
	sup := newTestSupervisor(root, Options{
		OnStateChange: func(tr Transition) { failed = append(failed, tr) },
	})

	err := sup.Start(context.Background())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{entry}, cfgErr.Missing)
	assert.Equal(t, "configuration_error", StartErrorKind(err))
	assert.False(t, sup.Running())
	assert.Equal(t, StateNotStarted, sup.Status().State)

	require.Len(t, failed, 1)
	assert.Equal(t, StateNotStarted, failed[0].To)
	assert.Error(t, failed[0].Err)
}

func TestStartWithoutResourceRoot(t *testing.T) {
	sup := newTestSupervisor("", Options{})

	err := sup.Start(context.Background())

	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{resources.DirName}, cfgErr.Missing)
}

func TestStartSpawnError(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	// Present but not executable.
	require.NoError(t, os.Chmod(filepath.Join(root, resources.PythonDir, "python3"), 0o644))

	sup := newTestSupervisor(root, Options{})
	err := sup.Start(context.Background())

	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "spawn_error", StartErrorKind(err))
	assert.False(t, sup.Running())
}

func TestStartCancelledContext(t *testing.T) {
	sup := newTestSupervisor(t.TempDir(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, sup.Start(ctx), context.Canceled)
}

func TestWindowsPathUsesTreeKill(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python.exe", gracefulBackend)

	var mu sync.Mutex
	var calls [][]string
	platform := &WindowsPlatform{Run: func(name string, args ...string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, append([]string{name}, args...))
		return errors.New("taskkill unavailable")
	}}
	sup := newTestSupervisor(root, Options{Platform: platform})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)
	pid := sup.Status().PID

	sup.Stop()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)}, calls[0])
	assert.True(t, sup.Status().Exited, "local Kill must still reap the child")
}

func TestPosixPathSendsSingleSigterm(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)

	var mu sync.Mutex
	var signals []os.Signal
	var pids []int
	platform := &PosixPlatform{Signal: func(proc *os.Process, sig os.Signal) error {
		mu.Lock()
		signals = append(signals, sig)
		pids = append(pids, proc.Pid)
		mu.Unlock()
		return proc.Signal(sig)
	}}
	sup := newTestSupervisor(root, Options{Platform: platform})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)
	pid := sup.Status().PID

	sup.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []os.Signal{syscall.SIGTERM}, signals)
	assert.Equal(t, []int{pid}, pids)
}

func TestStopTimeoutEscalatesToKill(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", stubbornBackend)
	sup := newTestSupervisor(root, Options{
		StopTimeout: 200 * time.Millisecond,
		KillTimeout: 5 * time.Second,
	})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)

	begin := time.Now()
	sup.Stop()

	assert.GreaterOrEqual(t, time.Since(begin), 200*time.Millisecond)
	info := sup.Status()
	assert.True(t, info.Exited)
	assert.Equal(t, -1, info.ExitCode, "killed by signal")
}

func TestPolicyReject(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	sup := newTestSupervisor(root, Options{OnRunning: PolicyReject})

	require.NoError(t, sup.Start(context.Background()))
	defer sup.Stop()
	pid := sup.Status().PID

	err := sup.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, pid, sup.Status().PID)
}

func TestPolicyRestart(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	sup := newTestSupervisor(root, Options{OnRunning: PolicyRestart})

	require.NoError(t, sup.Start(context.Background()))
	first := sup.current()
	require.NotNil(t, first)

	require.NoError(t, sup.Start(context.Background()))
	defer sup.Stop()

	assert.True(t, first.Exited(), "previous backend must be stopped first")
	assert.NotEqual(t, first.PID(), sup.Status().PID)
}

func TestPolicyReplaceOrphansPrevious(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	sup := newTestSupervisor(root, Options{OnRunning: PolicyReplace})

	require.NoError(t, sup.Start(context.Background()))
	first := sup.current()
	require.NotNil(t, first)
	t.Cleanup(func() {
		_ = first.cmd.Process.Kill()
		<-first.Done()
	})

	require.NoError(t, sup.Start(context.Background()))
	sup.Stop()

	assert.False(t, first.Exited(), "replaced backend is no longer stopped by the supervisor")
}

func TestUnexpectedExitEmptiesSlot(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", crashingBackend)

	exits := make(chan int, 1)
	sup := newTestSupervisor(root, Options{
		OnExit: func(_, code int) { exits <- code },
	})

	require.NoError(t, sup.Start(context.Background()))

	select {
	case code := <-exits:
		assert.Equal(t, 3, code)
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for backend exit")
	}

	assert.False(t, sup.Running())
	info := sup.Status()
	assert.Equal(t, StateStopped, info.State)
	assert.Equal(t, 3, info.ExitCode)

	// Nothing left to terminate.
	sup.Stop()
}

func TestRestart(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	sup := newTestSupervisor(root, Options{OnRunning: PolicyReject})

	require.NoError(t, sup.Start(context.Background()))
	first := sup.Status().PID

	require.NoError(t, sup.Restart(context.Background()))
	defer sup.Stop()

	assert.NotEqual(t, first, sup.Status().PID)
	assert.Equal(t, StateRunning, sup.Status().State)
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]Policy{
		"":        PolicyReplace,
		"replace": PolicyReplace,
		"reject":  PolicyReject,
		"restart": PolicyRestart,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestPlatformFor(t *testing.T) {
	win := PlatformFor("windows")
	assert.IsType(t, &WindowsPlatform{}, win)
	assert.Equal(t, "python.exe", win.InterpreterName())

	for _, goos := range []string{"linux", "darwin", "freebsd"} {
		p := PlatformFor(goos)
		assert.IsType(t, &PosixPlatform{}, p, goos)
		assert.Equal(t, "python3", p.InterpreterName())
	}
}

func TestPosixTerminateAfterExitIsQuiet(t *testing.T) {
	platform := &PosixPlatform{Signal: func(*os.Process, os.Signal) error {
		return os.ErrProcessDone
	}}
	assert.NoError(t, platform.Terminate(&os.Process{Pid: 1}))
}

func TestLongOutputLineDoesNotBlockBackend(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", verboseBackend)
	sup := newTestSupervisor(root, Options{OutputLogger: testLogger()})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)

	stopped := make(chan struct{})
	go func() {
		sup.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked after the backend wrote an oversized line")
	}
	code, exited := sup.Status().ExitCode, sup.Status().Exited
	assert.True(t, exited)
	assert.Equal(t, 0, code)
}

func TestCloseRejectsLaterStart(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	sup := newTestSupervisor(root, Options{})

	require.NoError(t, sup.Start(context.Background()))
	waitStarted(t, root)

	sup.Close()
	assert.False(t, sup.Running())
	assert.Equal(t, StateStopped, sup.Status().State)

	err := sup.Start(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, "closed", StartErrorKind(err))
	assert.False(t, sup.Running())

	require.ErrorIs(t, sup.Restart(context.Background()), ErrClosed)
	assert.False(t, sup.Running())
}

// gatedLocator blocks Locate until release is closed.
type gatedLocator struct {
	root    string
	entered chan struct{}
	release chan struct{}
}

func (l *gatedLocator) Locate() resources.Result {
	close(l.entered)
	<-l.release
	return staticLocator(l.root).Locate()
}

func TestCloseDuringStartStopsNewBackend(t *testing.T) {
	requireShell(t)
	root := writeBackend(t, "python3", gracefulBackend)
	locator := &gatedLocator{root: root, entered: make(chan struct{}), release: make(chan struct{})}
	platform := &countingPlatform{Platform: &PosixPlatform{}}
	sup := NewSupervisor(Options{Locator: locator, Platform: platform, Logger: testLogger()})

	startErr := make(chan error, 1)
	go func() { startErr <- sup.Start(context.Background()) }()

	<-locator.entered
	sup.Close()
	close(locator.release)

	select {
	case err := <-startErr:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after Close")
	}

	assert.False(t, sup.Running())
	assert.Equal(t, int32(1), platform.calls.Load(), "the backend spawned during Close must be terminated")
}
