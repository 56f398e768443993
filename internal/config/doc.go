// Package config provides user configuration management for espcam.
//
// This package manages a YAML configuration file holding the scan form
// defaults, stream settings, the device store backend and per-camera
// overrides. The configuration follows OS-specific conventions for storage
// location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/espcam/config.yaml or $HOME/.config/espcam/config.yaml
//   - macOS: $HOME/.config/espcam/config.yaml
//   - Windows: %LOCALAPPDATA%\espcam\config.yaml
//
// ESPCAM_CONFIG_DIR overrides all of these.
//
// # Example File
//
//	version: 1
//	preferences:
//	  scan:
//	    base_address: 192.168.4
//	    start_range: 1
//	    end_range: 20
//	    probe_timeout_ms: 1000
//	  stream:
//	    mode: mjpeg
//	    port: 81
//	  store:
//	    backend: file
//	  capture_dir: captures
//	cameras:
//	  192.168.1.40:
//	    stream_mode: websocket
//
// Keys left out of the file take their default values.
//
// # Usage Example
//
//	registry, err := config.LoadRegistry()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	mode, port := registry.StreamSettings("192.168.4.1")
//	registry.MarkConnected("192.168.4.1")
//	if err := registry.Save(); err != nil {
//	    log.Printf("failed to save config: %v", err)
//	}
package config
