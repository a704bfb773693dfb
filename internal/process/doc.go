// Package process supervises the bundled Python backend.
//
// A Supervisor owns a single slot holding at most one running backend
// Handle. Start resolves the resource directory, checks that the interpreter,
// entry script and working directory exist, and spawns the interpreter with
// the entry script as its only argument. Stop empties the slot in one
// critical section, so concurrent or repeated calls terminate the backend
// exactly once, then blocks until the child has been reaped.
//
// Everything that differs per operating system sits behind Platform:
//
//   - Windows: spawn with CREATE_NO_WINDOW; terminate with
//     "taskkill /F /T /PID <pid>" so grandchildren die too, then Kill the
//     local handle.
//   - Everything else: SIGTERM to the immediate child only.
//
// Example:
//
//	sup := process.NewSupervisor(process.Options{
//	    Locator:  locator,
//	    Platform: process.DefaultPlatform(),
//	})
//	if err := sup.Start(ctx); err != nil {
//	    logger.Warn("Running without backend", "error", err)
//	}
//	defer sup.Stop()
package process
