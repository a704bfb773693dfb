// Package host is the host application context: where the binary lives,
// where the platform keeps its resources and which windows are open.
package host

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrWindowNotFound is returned for unknown window ids.
var ErrWindowNotFound = errors.New("window not found")

// Window is an open frontend window.
type Window struct {
	ID       string    `json:"id" example:"7f9c2ba4-e88f-4a3e-9c1a-2d3e4f5a6b7c" doc:"Window identifier"`
	Label    string    `json:"label" example:"main" doc:"Window label"`
	OpenedAt time.Time `json:"opened_at" doc:"Registration time"`
}

// Options configures an App.
type Options struct {
	// Name is the application name used for platform resource paths.
	Name string
	// ResourceDir overrides the platform resource directory.
	ResourceDir string
	// Executable returns the running binary. Defaults to os.Executable.
	Executable func() (string, error)
	// GOOS selects the platform layout. Defaults to runtime.GOOS.
	GOOS string
}

// App implements resources.HostContext and tracks open windows.
type App struct {
	opts   Options
	logger *slog.Logger

	mu      sync.RWMutex
	windows map[string]Window
}

// New creates an App.
func New(opts Options, logger *slog.Logger) *App {
	if opts.Name == "" {
		opts.Name = "pyhost"
	}
	if opts.Executable == nil {
		opts.Executable = os.Executable
	}
	if opts.GOOS == "" {
		opts.GOOS = runtime.GOOS
	}
	return &App{
		opts:    opts,
		logger:  logger,
		windows: make(map[string]Window),
	}
}

// Executable returns the absolute path of the running binary with symlinks resolved.
func (a *App) Executable() (string, error) {
	exe, err := a.opts.Executable()
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Abs(exe)
}

// ResourceDir returns where the platform installs bundled resources:
// beside the binary on Windows, Contents/Resources inside a macOS bundle,
// and <prefix>/lib/<name> for a binary in <prefix>/bin elsewhere.
func (a *App) ResourceDir() (string, error) {
	if a.opts.ResourceDir != "" {
		return filepath.Abs(a.opts.ResourceDir)
	}
	exe, err := a.Executable()
	if err != nil {
		return "", err
	}
	return platformResourceDir(a.opts.GOOS, exe, a.opts.Name), nil
}

func platformResourceDir(goos, exe, name string) string {
	dir := filepath.Dir(exe)
	switch goos {
	case "windows":
		return dir
	case "darwin":
		return filepath.Join(filepath.Dir(dir), "Resources")
	default:
		return filepath.Join(filepath.Dir(dir), "lib", strings.ToLower(name))
	}
}

// Register records a newly opened window and returns it with a fresh id.
func (a *App) Register(label string) Window {
	w := Window{
		ID:       uuid.NewString(),
		Label:    label,
		OpenedAt: time.Now(),
	}
	a.mu.Lock()
	a.windows[w.ID] = w
	count := len(a.windows)
	a.mu.Unlock()

	a.logger.Debug("Window registered", "id", w.ID, "label", label, "open", count)
	return w
}

// Unregister forgets a closed window.
func (a *App) Unregister(id string) error {
	a.mu.Lock()
	_, ok := a.windows[id]
	delete(a.windows, id)
	count := len(a.windows)
	a.mu.Unlock()

	if !ok {
		return ErrWindowNotFound
	}
	a.logger.Debug("Window unregistered", "id", id, "open", count)
	return nil
}

// Window returns the window with id.
func (a *App) Window(id string) (Window, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	w, ok := a.windows[id]
	return w, ok
}

// Windows returns the open windows, oldest first.
func (a *App) Windows() []Window {
	a.mu.RLock()
	list := make([]Window, 0, len(a.windows))
	for _, w := range a.windows {
		list = append(list, w)
	}
	a.mu.RUnlock()

	slices.SortFunc(list, func(x, y Window) int {
		if c := x.OpenedAt.Compare(y.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(x.ID, y.ID)
	})
	return list
}

// WindowCount returns the number of open windows.
func (a *App) WindowCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.windows)
}
