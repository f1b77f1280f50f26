// Package logging provides structured logging with per-module log level configuration.
//
// # Overview
//
// The logging system uses Go's slog package with automatic output routing:
//   - Logs to systemd journal when available (Linux systems with journald)
//   - Logs to stdout when a terminal, pipe, or file is connected
//   - Logs to both when both are available
//
// # Usage
//
// Initialize the logging system once at startup:
//
//	logging.Initialize(logging.Config{
//		Level:  "info",      // Global log level: debug, info, warn, error
//		Format: "text",      // Output format: text or json
//		Modules: map[string]string{
//			"capture": "debug",  // Per-module overrides
//			"api":     "warn",
//		},
//	})
//
// Get a logger for your module:
//
//	logger := logging.GetLogger("capture")
//	logger.Info("Session streaming", "device", "/dev/video0")
//
// Add contextual attributes:
//
//	logger := logging.GetLogger("capture").With("session_id", id)
//	logger.Info("Frame grabbed")  // Includes session_id in all logs
//
// # Runtime Changes
//
// Every module logger owns a [slog.LevelVar]. ApplyLevels updates those in
// place, so loggers already handed out change level without being recreated.
// The config watcher calls it when the TOML file changes.
//
// # Output Destinations
//
//	Journal available + stdout available → both, each with its own level check
//	Journal available only              → JournalHandler
//	Stdout available only               → TextHandler or JSONHandler
//
// Journal availability is checked via [github.com/coreos/go-systemd/v22/journal.Enabled].
//
// # Viewing Logs
//
//	journalctl -t v4l2cam              # All v4l2cam logs
//	journalctl -t v4l2cam -f           # Follow live
//	journalctl -t v4l2cam -p err       # Errors only
//	journalctl -t v4l2cam MODULE=capture
//
// # Configuration
//
// Example TOML configuration:
//
//	[logging]
//	level = "info"
//	format = "text"
//
//	[logging.modules]
//	capture = "debug"
//	linuxav = "debug"
//	api = "warn"
package logging
