// Package backend follows what the running backend announces about itself.
package backend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/smazurov/pyhost/internal/config"
	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/metrics"
	"github.com/smazurov/pyhost/internal/process"
)

// PortFile is written by the backend into the resource root once it has
// picked a listening port.
const PortFile = "port_config.json"

// PortConfig is the content of PortFile.
type PortConfig struct {
	Port int `json:"port"`
}

// LoadPortConfig reads and validates a port file.
func LoadPortConfig(path string) (PortConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PortConfig{}, err
	}
	var cfg PortConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return PortConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return PortConfig{}, fmt.Errorf("parse %s: port %d out of range", path, cfg.Port)
	}
	return cfg, nil
}

// EventBus is the part of *events.Bus the watcher uses.
type EventBus interface {
	Publish(ev events.Event)
	Subscribe(handler any) func()
}

// portFile is a loaded PortFile with its modification time.
type portFile struct {
	PortConfig
	modTime time.Time
}

func loadPortFile(path string) (portFile, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return portFile{}, err
	}
	cfg, err := LoadPortConfig(path)
	if err != nil {
		return portFile{}, err
	}
	return portFile{PortConfig: cfg, modTime: fi.ModTime()}, nil
}

// PortWatcher tracks the port announced in PortFile by the running backend.
// A file written before the backend started is left over from an earlier run
// and ignored. The port is cleared when the backend stops.
type PortWatcher struct {
	watcher     *config.Watcher[portFile]
	bus         EventBus
	logger      *slog.Logger
	port        atomic.Int64
	notBefore   atomic.Int64 // unix nanoseconds
	unsubscribe func()
}

// NewPortWatcher watches PortFile under root for a backend started at
// startedAt. bus may be nil.
func NewPortWatcher(root string, startedAt time.Time, bus EventBus, debounce time.Duration, logger *slog.Logger) *PortWatcher {
	w := &PortWatcher{bus: bus, logger: logger, unsubscribe: func() {}}
	if !startedAt.IsZero() {
		w.notBefore.Store(startedAt.UnixNano())
	}
	w.watcher = config.NewConfigWatcher(
		filepath.Join(root, PortFile),
		loadPortFile,
		logger,
		config.WithDebounce[portFile](debounce),
		config.WithInitialLoad[portFile](),
	)
	w.watcher.OnReload(w.update)
	return w
}

// Start begins watching. root must exist.
func (w *PortWatcher) Start() error {
	if w.bus != nil {
		w.unsubscribe = w.bus.Subscribe(w.backendStateChanged)
	}
	if err := w.watcher.Start(); err != nil {
		w.unsubscribe()
		return err
	}
	return nil
}

// Stop stops watching.
func (w *PortWatcher) Stop() error {
	w.unsubscribe()
	return w.watcher.Stop()
}

// Port returns the port announced by the running backend, or 0.
func (w *PortWatcher) Port() int {
	return int(w.port.Load())
}

func (w *PortWatcher) backendStateChanged(e events.BackendStateChangedEvent) {
	switch {
	case e.Error != "":
	case e.To == string(process.StateRunning):
		if at, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
			w.notBefore.Store(at.UnixNano())
		}
	case e.To == string(process.StateStopped):
		w.set(0)
	}
}

func (w *PortWatcher) update(f portFile) {
	if f.modTime.UnixNano() < w.notBefore.Load() {
		w.logger.Debug("Ignoring port file from an earlier run", "port", f.Port, "modified", f.modTime)
		return
	}
	w.set(f.Port)
}

func (w *PortWatcher) set(port int) {
	if old := w.port.Swap(int64(port)); old == int64(port) {
		return
	}
	if port == 0 {
		w.logger.Info("Backend port cleared")
	} else {
		w.logger.Info("Backend port announced", "port", port)
	}
	metrics.SetBackendPort(port)
	if w.bus != nil {
		w.bus.Publish(events.BackendPortEvent{
			Port:      port,
			Timestamp: time.Now().Format(time.RFC3339),
		})
	}
}
