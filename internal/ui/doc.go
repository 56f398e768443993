// Package ui renders the styled output of the espcam CLI commands.
//
// Unlike the interactive wizard, these components print and move on:
//
//   - Header: command banner with the settings in effect
//   - ScanProgress: one-line bar for range scan snapshots
//   - Result: success, failure or warning box with details and tips
//   - Confirm: y/N prompt for destructive commands
//
// A Printer ties them to an io.Writer and only redraws progress in place
// when the writer is a terminal, so piped output stays readable.
//
// Example:
//
//	p := ui.NewPrinter(os.Stdout)
//	p.PrintHeader("Range scan", "espcam scan",
//	    ui.F("Range", "192.168.4.1 - 192.168.4.20"))
//
//	state, err := ctrl.Scan(ctx, cfg, p.ScanObserver("Probing"))
//	p.FinishProgress(state)
//	p.PrintResult(ui.NewSuccessResult("Found 2 camera(s)"))
//
// Logging stays silent unless ESPCAM_LOG_LEVEL is set, so this output is
// not interleaved with zap lines by default.
package ui
