package config

import (
	"log/slog"
	"time"

	"github.com/smazurov/pyhost/internal/logging"
)

// NewLoggingWatcher watches the config file and applies [logging] module
// levels when it changes. Global level and format need a restart.
func NewLoggingWatcher(path string, debounce time.Duration, logger *slog.Logger) *Watcher[logging.Config] {
	w := NewConfigWatcher(path, func(p string) (logging.Config, error) {
		return LoadLoggingConfig(p), nil
	}, logger, WithDebounce[logging.Config](debounce))

	w.OnReload(func(cfg logging.Config) {
		applyModuleLevels(cfg, logger)
	})
	return w
}

func applyModuleLevels(cfg logging.Config, logger *slog.Logger) {
	for module, level := range cfg.Modules {
		if !logging.SetModuleLevel(module, level) {
			logger.Warn("Ignoring invalid module log level", "module", module, "level", level)
			continue
		}
		logger.Debug("Module log level applied", "module", module, "level", level)
	}
}
