package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"

	"github.com/smazurov/pyhost/cmd"
	"github.com/smazurov/pyhost/internal/api"
	"github.com/smazurov/pyhost/internal/backend"
	"github.com/smazurov/pyhost/internal/config"
	"github.com/smazurov/pyhost/internal/events"
	"github.com/smazurov/pyhost/internal/host"
	"github.com/smazurov/pyhost/internal/lifecycle"
	"github.com/smazurov/pyhost/internal/logging"
	"github.com/smazurov/pyhost/internal/metrics"
	"github.com/smazurov/pyhost/internal/process"
	"github.com/smazurov/pyhost/internal/resources"
	"github.com/smazurov/pyhost/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"pyhost.toml"`

	// Host settings
	HostName             string `help:"Application name used for platform resource paths" default:"pyhost" toml:"host.name" env:"HOST_NAME"`
	HostLockFile         string `help:"Single instance lock file (empty disables)" default:"" toml:"host.lock_file" env:"HOST_LOCK_FILE"`
	HostWindowCheckDelay string `help:"Delay before counting windows after a close request" default:"100ms" toml:"host.window_check_delay" env:"HOST_WINDOW_CHECK_DELAY"`

	// API settings
	APIEnabled bool   `help:"Serve the loopback HTTP API" default:"true" toml:"api.enabled" env:"API_ENABLED"`
	Listen     string `help:"Address the API listens on" short:"l" default:"127.0.0.1:8765" toml:"api.listen" env:"API_LISTEN"`
	APIOrigins string `help:"Comma separated frontend origins allowed by CORS (empty allows any)" default:"" toml:"api.origins" env:"API_ORIGINS"`

	// Resource discovery settings
	ResourcesDir         string `help:"Resource directory, tried before every other strategy" default:"" toml:"resources.dir" env:"RESOURCES_DIR"`
	ResourcesPlatformDir string `help:"Override of the platform resource directory" default:"" toml:"resources.platform_dir" env:"RESOURCES_PLATFORM_DIR"`
	ResourcesMarkerDir   string `help:"Directory marking the project root" default:"src-tauri" toml:"resources.marker_dir" env:"RESOURCES_MARKER_DIR"`

	// Backend settings
	BackendEntryScript  string `help:"Entry script under backend/" default:"main.py" toml:"backend.entry_script" env:"BACKEND_ENTRY_SCRIPT"`
	BackendOnRunning    string `help:"Start while running (replace, reject, restart)" default:"replace" toml:"backend.on_running" env:"BACKEND_ON_RUNNING"`
	BackendStopTimeout  string `help:"Wait after terminate before killing (0 waits forever)" default:"0s" toml:"backend.stop_timeout" env:"BACKEND_STOP_TIMEOUT"`
	BackendKillTimeout  string `help:"Wait after kill" default:"5s" toml:"backend.kill_timeout" env:"BACKEND_KILL_TIMEOUT"`
	BackendPortDebounce string `help:"Debounce for port file changes" default:"250ms" toml:"backend.port_debounce" env:"BACKEND_PORT_DEBOUNCE"`

	// Metrics settings
	MetricsEnabled bool `help:"Serve Prometheus metrics at /metrics" default:"true" toml:"metrics.enabled" env:"METRICS_ENABLED"`

	// Logging settings
	LoggingLevel      string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat     string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingSupervisor string `help:"Supervisor logging level" default:"info" toml:"logging.supervisor" env:"LOGGING_SUPERVISOR"`
	LoggingBackend    string `help:"Backend output logging level" default:"debug" toml:"logging.backend" env:"LOGGING_BACKEND"`
	LoggingResources  string `help:"Resource discovery logging level" default:"info" toml:"logging.resources" env:"LOGGING_RESOURCES"`
	LoggingLifecycle  string `help:"Lifecycle logging level" default:"info" toml:"logging.lifecycle" env:"LOGGING_LIFECYCLE"`
	LoggingAPI        string `help:"API logging level" default:"info" toml:"logging.api" env:"LOGGING_API"`
}

func parseDuration(logger *slog.Logger, name, value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		logger.Warn("Invalid duration, using default", "option", name, "value", value, "default", fallback)
		return fallback
	}
	return d
}

func main() {
	var (
		cli     humacli.CLI
		locator *resources.Locator
		opts    *Options
	)

	cli = humacli.New(func(hooks humacli.Hooks, o *Options) {
		opts = o

		// Load configuration automatically
		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"supervisor": opts.LoggingSupervisor,
				"backend":    opts.LoggingBackend,
				"resources":  opts.LoggingResources,
				"lifecycle":  opts.LoggingLifecycle,
				"api":        opts.LoggingAPI,
			},
		})

		logger := logging.GetLogger("main")

		var logWatcher *config.Watcher[logging.Config]
		if opts.Config != "" {
			logWatcher = config.NewLoggingWatcher(opts.Config, time.Second, logging.GetLogger("config"))
		}

		eventBus := events.New()
		logging.SetLogCallback(func(entry logging.LogEntry) {
			eventBus.Publish(api.ToLogEntryEvent(entry))
		})

		app := host.New(host.Options{
			Name:        opts.HostName,
			ResourceDir: opts.ResourcesPlatformDir,
		}, logging.GetLogger("host"))

		locator = resources.NewLocator(app, resources.Options{
			Dir:       opts.ResourcesDir,
			MarkerDir: opts.ResourcesMarkerDir,
			Logger:    logging.GetLogger("resources"),
		})

		policy, err := process.ParsePolicy(opts.BackendOnRunning)
		if err != nil {
			logger.Warn("Invalid backend policy, using replace", "error", err)
			policy = process.PolicyReplace
		}

		onState, onExit := lifecycle.StateObserver(eventBus)
		supervisor := process.NewSupervisor(process.Options{
			Locator:       locator,
			Platform:      process.DefaultPlatform(),
			EntryScript:   opts.BackendEntryScript,
			OnRunning:     policy,
			StopTimeout:   parseDuration(logger, "backend.stop_timeout", opts.BackendStopTimeout, 0),
			KillTimeout:   parseDuration(logger, "backend.kill_timeout", opts.BackendKillTimeout, process.DefaultKillTimeout),
			OnStateChange: onState,
			OnExit:        onExit,
			Logger:        logging.GetLogger("supervisor"),
			OutputLogger:  logging.GetLogger("backend"),
		})

		portDebounce := parseDuration(logger, "backend.port_debounce", opts.BackendPortDebounce, 250*time.Millisecond)
		binding := lifecycle.New(lifecycle.Options{
			Supervisor: supervisor,
			Windows:    app,
			NewPortWatcher: func(info process.Info) lifecycle.Watcher {
				return backend.NewPortWatcher(info.Paths.Root, info.StartedAt, eventBus, portDebounce, logging.GetLogger("backend"))
			},
			LockFile:         opts.HostLockFile,
			WindowCheckDelay: parseDuration(logger, "host.window_check_delay", opts.HostWindowCheckDelay, lifecycle.DefaultWindowCheckDelay),
			Logger:           logging.GetLogger("lifecycle"),
		})
		binding.Bind(eventBus)

		var server *api.Server
		if opts.APIEnabled {
			apiOpts := &api.Options{
				Backend:     binding,
				Windows:     app,
				EventBus:    eventBus,
				CORSOrigins: api.ParseOrigins(opts.APIOrigins),
			}
			if opts.MetricsEnabled {
				apiOpts.PrometheusHandler = metrics.Handler()
			}
			server = api.NewServer(apiOpts)
		}

		hooks.OnStart(func() {
			logger.Info("Starting", "version", version.Get().String())
			if logWatcher != nil {
				if watchErr := logWatcher.Start(); watchErr != nil {
					logger.Warn("Config file not watched, log levels will not reload", "error", watchErr)
				}
			}
			binding.Startup(context.Background())

			if server == nil {
				// Nothing else owns the main goroutine; wait for a signal.
				select {}
			}

			logger.Info("Starting HTTP server", "addr", opts.Listen)
			if startErr := server.Start(opts.Listen); startErr != nil && !errors.Is(startErr, http.ErrServerClosed) {
				logger.Error("Failed to start HTTP server", "error", startErr)
				binding.Exit()
				os.Exit(1)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			if server != nil {
				if stopErr := server.Stop(); stopErr != nil {
					logger.Error("Error stopping HTTP server", "error", stopErr)
				}
			}

			// Stop the backend after the API stops accepting requests
			binding.Exit()

			if logWatcher != nil {
				_ = logWatcher.Stop()
			}
		})
	})

	cli.Root().Use = "pyhost"
	cli.Root().Short = "Host a bundled Python backend next to a desktop frontend"
	cli.Root().Version = version.Get().String()

	cli.Root().AddCommand(cmd.CreateLocateCmd(func() (resources.Result, resources.Paths) {
		result := locator.Locate()
		return result, resources.PathsFor(result.Root, resources.DefaultInterpreterName(), opts.BackendEntryScript)
	}))
	cli.Root().AddCommand(cmd.CreateScanCmd())

	// Run the CLI
	cli.Run()
}
