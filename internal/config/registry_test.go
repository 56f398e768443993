package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

func TestGetConfigDir(t *testing.T) {
	t.Setenv(ConfigDirEnvVar, "")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir == "" {
		t.Error("GetConfigDir() returned empty string")
	}
	if !strings.Contains(configDir, "espcam") {
		t.Errorf("GetConfigDir() = %v, should contain 'espcam'", configDir)
	}

	switch runtime.GOOS {
	case "windows":
		if !strings.Contains(configDir, "AppData") && !strings.Contains(configDir, "Local") {
			t.Errorf("Windows config dir should contain 'AppData' or 'Local', got: %v", configDir)
		}
	case "darwin":
		if !strings.Contains(configDir, ".config") {
			t.Errorf("macOS config dir should contain '.config', got: %v", configDir)
		}
	}
}

func TestGetConfigDir_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("XDG_CONFIG_HOME only applies on Linux")
	}
	t.Setenv(ConfigDirEnvVar, "")
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != filepath.Join("/tmp/xdg", "espcam") {
		t.Errorf("GetConfigDir() = %v, want /tmp/xdg/espcam", configDir)
	}
}

func TestGetConfigDir_Override(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnvVar, dir)

	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if configDir != dir {
		t.Errorf("GetConfigDir() = %v, want %v", configDir, dir)
	}

	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry()

	if reg.Version != 1 {
		t.Errorf("NewRegistry().Version = %v, want 1", reg.Version)
	}
	if reg.Cameras == nil {
		t.Error("NewRegistry().Cameras should not be nil")
	}
	if reg.Preferences == nil {
		t.Fatal("NewRegistry().Preferences should not be nil")
	}

	p := reg.Preferences
	if p.Scan.BaseAddress != "192.168.4" || p.Scan.StartRange != 1 || p.Scan.EndRange != 20 {
		t.Errorf("default scan = %+v, want 192.168.4 1..20", p.Scan.ScanConfig)
	}
	if p.Scan.ProbeTimeoutMs != 1000 {
		t.Errorf("ProbeTimeoutMs = %d, want 1000", p.Scan.ProbeTimeoutMs)
	}
	if p.Stream.Mode != "mjpeg" || p.Stream.Port != 81 {
		t.Errorf("default stream = %+v, want mjpeg:81", p.Stream)
	}
	if p.Store.Backend != "file" {
		t.Errorf("Store.Backend = %q, want file", p.Store.Backend)
	}
	if err := reg.Validate(); err != nil {
		t.Errorf("default registry should validate: %v", err)
	}
}

func TestRegistryEnsureCamera(t *testing.T) {
	reg := NewRegistry()

	meta := reg.EnsureCamera("192.168.4.1")
	if meta == nil {
		t.Fatal("EnsureCamera() returned nil")
	}
	if again := reg.EnsureCamera("192.168.4.1"); again != meta {
		t.Error("EnsureCamera() should return the existing entry")
	}
	if reg.GetCamera("192.168.4.2") != nil {
		t.Error("GetCamera() should return nil for unknown address")
	}
}

func TestRegistryMarkConnectedAndCount(t *testing.T) {
	reg := NewRegistry()

	reg.MarkConnected("192.168.4.1")
	reg.CountCapture("192.168.4.1")
	reg.CountCapture("192.168.4.1")

	meta := reg.GetCamera("192.168.4.1")
	if meta.LastConnected.IsZero() {
		t.Error("LastConnected should be set")
	}
	if meta.Captures != 2 {
		t.Errorf("Captures = %d, want 2", meta.Captures)
	}

	reg.ForgetCamera("192.168.4.1")
	if reg.GetCamera("192.168.4.1") != nil {
		t.Error("ForgetCamera() should drop the entry")
	}
}

func TestRegistryConcurrentUpdatesAndSave(t *testing.T) {
	reg := NewRegistry()
	path := filepath.Join(t.TempDir(), "config.yaml")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		address := "192.168.4." + strings.Repeat("1", i%3+1)
		wg.Add(4)
		go func() {
			defer wg.Done()
			reg.MarkConnected(address)
		}()
		go func() {
			defer wg.Done()
			reg.CountCapture(address)
		}()
		go func() {
			defer wg.Done()
			reg.ForgetCamera(address)
			reg.StreamSettings(address)
			reg.GetCamera(address)
		}()
		go func() {
			defer wg.Done()
			if err := reg.SaveFile(path); err != nil {
				t.Errorf("SaveFile() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if _, err := LoadFile(path); err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
}

func TestRegistryGetCameraReturnsCopy(t *testing.T) {
	reg := NewRegistry()
	reg.CountCapture("192.168.4.1")

	meta := reg.GetCamera("192.168.4.1")
	meta.Captures = 10

	if got := reg.GetCamera("192.168.4.1").Captures; got != 1 {
		t.Errorf("Captures = %d, want 1", got)
	}
}

func TestRegistryStreamSettings(t *testing.T) {
	reg := NewRegistry()
	reg.EnsureCamera("192.168.1.40").StreamMode = "websocket"
	reg.EnsureCamera("192.168.1.41").StreamPort = 8081

	tests := []struct {
		address  string
		wantMode string
		wantPort int
	}{
		{"192.168.4.1", "mjpeg", 81},
		{"192.168.1.40", "websocket", 81},
		{"192.168.1.41", "mjpeg", 8081},
	}

	for _, tt := range tests {
		mode, port := reg.StreamSettings(tt.address)
		if mode != tt.wantMode || port != tt.wantPort {
			t.Errorf("StreamSettings(%s) = %s:%d, want %s:%d", tt.address, mode, port, tt.wantMode, tt.wantPort)
		}
	}
}

func TestRegistrySaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	reg := NewRegistry()
	reg.Preferences.Scan.BaseAddress = "10.0.0"
	reg.Preferences.Scan.EndRange = 50
	reg.Preferences.Store.Backend = "sqlite"
	reg.EnsureCamera("10.0.0.5").StreamMode = "websocket"

	if err := reg.SaveFile(path); err != nil {
		t.Fatalf("SaveFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("config file not created: %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config file permissions = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file should not remain after save")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if loaded.Preferences.Scan.BaseAddress != "10.0.0" {
		t.Errorf("BaseAddress = %v, want 10.0.0", loaded.Preferences.Scan.BaseAddress)
	}
	if loaded.Preferences.Scan.EndRange != 50 {
		t.Errorf("EndRange = %v, want 50", loaded.Preferences.Scan.EndRange)
	}
	if loaded.Preferences.Store.Backend != "sqlite" {
		t.Errorf("Store.Backend = %v, want sqlite", loaded.Preferences.Store.Backend)
	}
	if meta := loaded.GetCamera("10.0.0.5"); meta == nil || meta.StreamMode != "websocket" {
		t.Errorf("camera override not round-tripped: %+v", meta)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	reg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if reg.Preferences.Scan.EndRange != 20 {
		t.Error("missing file should give defaults")
	}
}

func TestLoadFile_PartialFillsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "version: 1\npreferences:\n  scan:\n    end_range: 40\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	p := reg.Preferences
	if p.Scan.EndRange != 40 || p.Scan.StartRange != 1 || p.Scan.BaseAddress != "192.168.4" {
		t.Errorf("scan = %+v", p.Scan.ScanConfig)
	}
	if p.Stream.Port != 81 || p.Stream.Mode != "mjpeg" {
		t.Errorf("stream = %+v", p.Stream)
	}
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "version: [1"},
		{"wrong version", "version: 2\n"},
		{"bad range", "version: 1\npreferences:\n  scan:\n    start_range: 30\n    end_range: 10\n"},
		{"bad stream mode", "version: 1\npreferences:\n  stream:\n    mode: rtsp\n"},
		{"bad backend", "version: 1\npreferences:\n  store:\n    backend: redis\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFile(path); err == nil {
				t.Error("LoadFile() should fail")
			}
		})
	}
}

func TestGlobalRegistry(t *testing.T) {
	t.Setenv(ConfigDirEnvVar, t.TempDir())

	reg, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	reg.Preferences.CaptureDir = "/srv/photos"
	if err := SaveGlobal(); err != nil {
		t.Fatalf("SaveGlobal() error = %v", err)
	}

	again, err := ReloadRegistry()
	if err != nil {
		t.Fatalf("ReloadRegistry() error = %v", err)
	}
	if again == reg {
		t.Error("ReloadRegistry() should read a fresh instance")
	}
	if again.Preferences.CaptureDir != "/srv/photos" {
		t.Errorf("CaptureDir = %q, want /srv/photos", again.Preferences.CaptureDir)
	}

	dir, err := again.StoreDir()
	if err != nil {
		t.Fatal(err)
	}
	if dir != os.Getenv(ConfigDirEnvVar) {
		t.Errorf("StoreDir() = %q, want config dir", dir)
	}
}

func BenchmarkEnsureCamera(b *testing.B) {
	reg := NewRegistry()
	for i := 0; i < b.N; i++ {
		reg.EnsureCamera("192.168.4.1")
	}
}
