// Package wizard coordinates discovery, the saved camera list and the open
// viewing session for the user interfaces.
//
// Controller implements the user intents (scan, select a camera, add one by
// address, remove a saved one, capture, close the captured image) once, so
// the terminal UI in the tui subpackage and the plain CLI commands share the
// same behaviour. Selecting a camera always saves it first; only one session
// is open at a time.
package wizard
