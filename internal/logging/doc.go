// Package logging provides structured logging with per-module log levels.
//
// Records are routed to every available destination:
//   - stdout (text or json) when a terminal, pipe or file is attached
//   - the systemd journal when journald is running
//   - an in-memory ring buffer served by the local API, so the GUI can show
//     host and backend output even when the app was launched without a console
//
// Initialize once at startup, then ask for module loggers:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",
//		Format: "text",
//		Modules: map[string]string{
//			"backend": "debug",
//		},
//	})
//
//	logger := logging.GetLogger("supervisor")
//	logger.Info("Backend started", "pid", pid)
//
// On Linux the journal can be filtered by module:
//
//	journalctl -t pyhost MODULE=backend
package logging
