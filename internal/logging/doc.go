// Package logging provides structured logging for espcam.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the scanner, the connection session and the camera
// simulator. Logging is silent by default so the CLI and TUI output stay clean.
//
// # Log Levels
//
//   - Debug: per-probe results, stream frames, raw HTTP details
//   - Info: scan start/finish, session transitions, captures
//   - Warn: stream drops, capture failures
//   - Error: startup failures
//
// # Structured Logging
//
//	logging.Info("Scan started",
//	    zap.String("base", "192.168.4"),
//	    zap.Int("start", 1),
//	    zap.Int("end", 20),
//	)
//
// # Specialized Logging
//
//	logging.LogProbe(address, reachable, elapsed)
//	logging.LogScanProgress(percent, found)
//	logging.LogTransition(address, from, to)
//	logging.LogCapture(address, size, err)
//	logging.LogHTTPRequest(remoteAddr, method, path, status)
//
// # Configuration
//
//	if err := logging.Initialize("debug"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// When the level is empty the ESPCAM_LOG_LEVEL environment variable is used.
// All functions are safe for concurrent use.
package logging
