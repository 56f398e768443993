package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/muurk/espcam/internal/camera"
	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/store"
)

const (
	// CurrentVersion is the config file schema version
	CurrentVersion = 1

	defaultCaptureDir  = "captures"
	defaultMDNSTimeout = 5
)

// Registry represents the entire user configuration file.
// It holds application preferences and per-camera overrides; the saved
// camera list itself lives in the device store.
//
// The camera methods are safe for concurrent use; Preferences is read-only
// once loaded.
type Registry struct {
	mu sync.RWMutex

	Version     int                    `yaml:"version"`
	Cameras     map[string]*CameraMeta `yaml:"cameras,omitempty"` // Keyed by camera address
	Preferences *Preferences           `yaml:"preferences,omitempty"`
}

// CameraMeta is user metadata for one camera
type CameraMeta struct {
	StreamMode    string    `yaml:"stream_mode,omitempty"` // Overrides Preferences.Stream.Mode
	StreamPort    int       `yaml:"stream_port,omitempty"` // Overrides Preferences.Stream.Port
	LastConnected time.Time `yaml:"last_connected,omitempty"`
	Captures      int       `yaml:"captures,omitempty"` // Photos saved to disk from this camera
}

// Preferences represents application-wide user preferences.
type Preferences struct {
	Scan        ScanPrefs   `yaml:"scan"`
	Stream      StreamPrefs `yaml:"stream"`
	Store       StorePrefs  `yaml:"store"`
	CaptureDir  string      `yaml:"capture_dir"`  // Relative paths resolve against the working directory
	MDNSTimeout int         `yaml:"mdns_timeout"` // Seconds
}

// ScanPrefs are the defaults offered by the scan form
type ScanPrefs struct {
	discovery.ScanConfig `yaml:",inline"`
	ProbeTimeoutMs       int `yaml:"probe_timeout_ms"`
}

// StreamPrefs select how live frames are read
type StreamPrefs struct {
	Mode string `yaml:"mode"` // mjpeg or websocket
	Port int    `yaml:"port"`
}

// StorePrefs select the saved-camera backend
type StorePrefs struct {
	Backend string `yaml:"backend"`       // file or sqlite
	Dir     string `yaml:"dir,omitempty"` // Defaults to the config directory
}

// DefaultPreferences returns the preferences used when nothing is configured
func DefaultPreferences() *Preferences {
	return &Preferences{
		Scan: ScanPrefs{
			ScanConfig:     discovery.DefaultScanConfig(),
			ProbeTimeoutMs: int(discovery.DefaultProbeTimeout / time.Millisecond),
		},
		Stream: StreamPrefs{
			Mode: camera.StreamModeMJPEG,
			Port: discovery.DefaultStreamPort,
		},
		Store: StorePrefs{
			Backend: store.BackendFile,
		},
		CaptureDir:  defaultCaptureDir,
		MDNSTimeout: defaultMDNSTimeout,
	}
}

// NewRegistry creates a new Registry with default values.
func NewRegistry() *Registry {
	return &Registry{
		Version:     CurrentVersion,
		Cameras:     make(map[string]*CameraMeta),
		Preferences: DefaultPreferences(),
	}
}

// fillDefaults replaces zero-valued preferences with their defaults, so a
// hand-written file only needs the keys it changes.
func (r *Registry) fillDefaults() {
	if r.Cameras == nil {
		r.Cameras = make(map[string]*CameraMeta)
	}
	def := DefaultPreferences()
	if r.Preferences == nil {
		r.Preferences = def
		return
	}

	p := r.Preferences
	if p.Scan.BaseAddress == "" {
		p.Scan.BaseAddress = def.Scan.BaseAddress
	}
	if p.Scan.StartRange == 0 {
		p.Scan.StartRange = def.Scan.StartRange
	}
	if p.Scan.EndRange == 0 {
		p.Scan.EndRange = def.Scan.EndRange
	}
	if p.Scan.ProbeTimeoutMs <= 0 {
		p.Scan.ProbeTimeoutMs = def.Scan.ProbeTimeoutMs
	}
	if p.Stream.Mode == "" {
		p.Stream.Mode = def.Stream.Mode
	}
	if p.Stream.Port <= 0 {
		p.Stream.Port = def.Stream.Port
	}
	if p.Store.Backend == "" {
		p.Store.Backend = def.Store.Backend
	}
	if p.CaptureDir == "" {
		p.CaptureDir = def.CaptureDir
	}
	if p.MDNSTimeout <= 0 {
		p.MDNSTimeout = def.MDNSTimeout
	}
}

// Validate checks the preferences a command would act on
func (r *Registry) Validate() error {
	p := r.Preferences
	if p == nil {
		return nil
	}
	if err := p.Scan.Validate(); err != nil {
		return fmt.Errorf("preferences.scan: %w", err)
	}
	switch p.Stream.Mode {
	case camera.StreamModeMJPEG, camera.StreamModeWebSocket:
	default:
		return fmt.Errorf("preferences.stream.mode: unknown mode %q", p.Stream.Mode)
	}
	if p.Stream.Port < 1 || p.Stream.Port > 65535 {
		return fmt.Errorf("preferences.stream.port: %d out of range", p.Stream.Port)
	}
	switch p.Store.Backend {
	case store.BackendFile, store.BackendSQLite, store.BackendMemory:
	default:
		return fmt.Errorf("preferences.store.backend: unknown backend %q", p.Store.Backend)
	}
	return nil
}

// ProbeTimeout returns the configured probe timeout
func (p *Preferences) ProbeTimeout() time.Duration {
	return time.Duration(p.Scan.ProbeTimeoutMs) * time.Millisecond
}

// GetCamera retrieves a copy of the camera metadata for address.
// Returns nil if the camera doesn't exist in the registry.
func (r *Registry) GetCamera(address string) *CameraMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	meta, exists := r.Cameras[address]
	if !exists {
		return nil
	}
	out := *meta
	return &out
}

// EnsureCamera returns the metadata entry for address, creating it if needed.
// The entry is live: only edit it before the registry is shared.
func (r *Registry) EnsureCamera(address string) *CameraMeta {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureLocked(address)
}

func (r *Registry) ensureLocked(address string) *CameraMeta {
	if r.Cameras == nil {
		r.Cameras = make(map[string]*CameraMeta)
	}
	if meta, exists := r.Cameras[address]; exists {
		return meta
	}
	meta := &CameraMeta{}
	r.Cameras[address] = meta
	return meta
}

// MarkConnected records a successful connection to address
func (r *Registry) MarkConnected(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(address).LastConnected = time.Now()
}

// CountCapture records one photo saved from address
func (r *Registry) CountCapture(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(address).Captures++
}

// ForgetCamera drops any metadata for address
func (r *Registry) ForgetCamera(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.Cameras, address)
}

// StreamSettings returns the stream mode and port for address, applying any
// per-camera override on top of the preferences.
func (r *Registry) StreamSettings(address string) (mode string, port int) {
	prefs := r.Preferences
	if prefs == nil {
		prefs = DefaultPreferences()
	}
	mode, port = prefs.Stream.Mode, prefs.Stream.Port

	r.mu.RLock()
	defer r.mu.RUnlock()
	if meta := r.Cameras[address]; meta != nil {
		if meta.StreamMode != "" {
			mode = meta.StreamMode
		}
		if meta.StreamPort > 0 {
			port = meta.StreamPort
		}
	}
	return mode, port
}
