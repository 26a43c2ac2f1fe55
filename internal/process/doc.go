// Package process provides generic subprocess lifecycle management.
//
// It exists to supervise the bundled tapo-rest backend, but knows nothing
// about it: any long-running child process can be managed.
//
// Features:
//   - Start/stop with graceful shutdown (SIGTERM, then SIGKILL)
//   - Automatic restart on failure with exponential backoff
//   - Health-check watchdog that kills hung processes
//   - Log capture from subprocess stdout/stderr
//   - Context-based cancellation for clean shutdown
//
// Example usage:
//
//	mgr := process.NewManager(process.DefaultConfig(
//	    "tapo-rest", "/usr/local/bin/tapo-rest", []string{"--port", "4666"},
//	))
//
//	if err := mgr.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer mgr.Stop()
package process
