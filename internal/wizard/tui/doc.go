// Package tui implements the terminal user interface for espcam.
//
// Built on Bubble Tea, it follows the Model-Update-View pattern with two
// screens coordinated by AppModel:
//
//   - Discovery: scan form, live progress bar, discovered and saved cameras,
//     manual address entry and removal of saved cameras
//   - Session: one camera's connection state, frame counter, capture,
//     closing and writing the captured image
//
// All camera work goes through a wizard.Controller. Scan snapshots reach the
// UI over a buffered channel read by a tea.Cmd (one message per probe), and
// session changes arrive the same way through the session's OnChange hook,
// which never blocks.
//
// # Usage Example
//
//	app := tui.NewAppModel(tui.Options{
//	    Controller:   ctrl,
//	    ScanDefaults: registry.Preferences.Scan.ScanConfig,
//	    CaptureDir:   registry.Preferences.CaptureDir,
//	    Context:      ctx,
//	})
//	program := tea.NewProgram(app, tea.WithAltScreen())
//	if _, err := program.Run(); err != nil {
//	    log.Fatal(err)
//	}
package tui
