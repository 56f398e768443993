package wizard

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/camera"
	"github.com/muurk/espcam/internal/config"
	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
	"github.com/muurk/espcam/internal/session"
	"github.com/muurk/espcam/internal/store"
)

// SessionFactory builds the session for a selected camera
type SessionFactory func(device discovery.Device, onChange func(session.SessionState)) (*session.Session, error)

// Controller holds the shared application state behind the user interfaces:
// the running scan, the saved camera list and the one open session.
type Controller struct {
	Scanner *discovery.RangeScanner
	Store   *store.DeviceStore

	// Registry supplies per-camera stream settings; it may be nil
	Registry *config.Registry

	// SaveRegistry persists Registry after it changes; it may be nil
	SaveRegistry func() error

	// NewSession overrides how sessions are built (tests inject fakes here)
	NewSession SessionFactory

	mu         sync.Mutex
	current    *session.Session
	scanCancel context.CancelFunc
	scanID     int
}

// NewController creates a controller over scanner and deviceStore
func NewController(scanner *discovery.RangeScanner, deviceStore *store.DeviceStore, registry *config.Registry) *Controller {
	return &Controller{
		Scanner:  scanner,
		Store:    deviceStore,
		Registry: registry,
	}
}

// Scan runs a range scan. Starting a scan cancels any scan still running.
func (c *Controller) Scan(ctx context.Context, cfg discovery.ScanConfig, observe discovery.Observer) (discovery.ScanState, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.scanCancel != nil {
		c.scanCancel()
	}
	c.scanID++
	id := c.scanID
	c.scanCancel = cancel
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.scanID == id {
			c.scanCancel = nil
		}
		c.mu.Unlock()
	}()

	return c.Scanner.Scan(ctx, cfg, observe)
}

// CancelScan aborts the running scan, if any
func (c *Controller) CancelScan() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scanCancel != nil {
		c.scanCancel()
		c.scanCancel = nil
	}
}

// SavedDevices returns the persisted camera list
func (c *Controller) SavedDevices() ([]discovery.Device, error) {
	return c.Store.Load()
}

// SelectDevice saves device and opens a session for it, closing any session
// already open. A failure to save is logged and does not block connecting.
func (c *Controller) SelectDevice(ctx context.Context, device discovery.Device, onChange func(session.SessionState)) (*session.Session, error) {
	if err := c.Store.Add(device); err != nil {
		logging.Warn("Failed to save camera",
			zap.String("address", device.Address),
			zap.Error(err),
		)
	}

	sess, err := c.buildSession(device, onChange)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	previous := c.current
	c.current = sess
	c.mu.Unlock()

	if previous != nil {
		previous.Close()
	}

	sess.Start(ctx)
	c.updateRegistry(func(r *config.Registry) { r.MarkConnected(device.Address) })
	return sess, nil
}

// AddManual normalizes a typed address, then saves and selects it
func (c *Controller) AddManual(ctx context.Context, input string, onChange func(session.SessionState)) (*session.Session, error) {
	address, err := discovery.NormalizeAddress(input)
	if err != nil {
		return nil, err
	}
	return c.SelectDevice(ctx, discovery.NewDevice(address), onChange)
}

// RemoveSaved deletes address from the saved list
func (c *Controller) RemoveSaved(address string) error {
	if err := c.Store.Remove(address); err != nil {
		return err
	}
	c.updateRegistry(func(r *config.Registry) { r.ForgetCamera(address) })
	return nil
}

// Session returns the open session, or nil
func (c *Controller) Session() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// CapturePhoto captures on the open session
func (c *Controller) CapturePhoto(ctx context.Context) error {
	sess := c.Session()
	if sess == nil {
		return session.ErrNotConnected
	}
	return sess.CapturePhoto(ctx)
}

// CloseCapturedImage releases the open session's captured image
func (c *Controller) CloseCapturedImage() {
	if sess := c.Session(); sess != nil {
		sess.CloseCapturedImage()
	}
}

// SaveCapturedImage writes the open session's captured image into dir and
// returns the file path.
func (c *Controller) SaveCapturedImage(dir string) (string, error) {
	sess := c.Session()
	if sess == nil {
		return "", session.ErrNotConnected
	}

	state := sess.Snapshot()
	if !state.HasCapturedImage() {
		return "", fmt.Errorf("no captured image to save")
	}
	data, err := state.CapturedImage.Bytes()
	if err != nil {
		return "", err
	}

	path, err := WriteImage(dir, state.Device.Address, data, time.Now())
	if err != nil {
		return "", err
	}
	c.updateRegistry(func(r *config.Registry) { r.CountCapture(state.Device.Address) })
	return path, nil
}

// LeaveSession closes the open session, if any
func (c *Controller) LeaveSession() {
	c.mu.Lock()
	sess := c.current
	c.current = nil
	c.mu.Unlock()

	if sess != nil {
		sess.Close()
	}
}

// Close cancels any scan and closes the open session
func (c *Controller) Close() {
	c.CancelScan()
	c.LeaveSession()
}

func (c *Controller) buildSession(device discovery.Device, onChange func(session.SessionState)) (*session.Session, error) {
	if c.NewSession != nil {
		return c.NewSession(device, onChange)
	}

	mode, port := camera.StreamModeMJPEG, discovery.DefaultStreamPort
	if c.Registry != nil {
		mode, port = c.Registry.StreamSettings(device.Address)
	}
	source, err := camera.NewStreamSource(mode, device, port)
	if err != nil {
		return nil, err
	}

	return session.New(device, session.Options{
		Stream:   source,
		OnChange: onChange,
	}), nil
}

func (c *Controller) updateRegistry(update func(*config.Registry)) {
	if c.Registry == nil {
		return
	}
	update(c.Registry)
	if c.SaveRegistry == nil {
		return
	}
	if err := c.SaveRegistry(); err != nil {
		logging.Warn("Failed to save config", zap.Error(err))
	}
}

// WriteImage writes data as <dir>/<host>-<timestamp>.jpg and returns the path
func WriteImage(dir, address string, data []byte, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create capture directory: %w", err)
	}

	host := discovery.NewDevice(address).Host()
	host = strings.NewReplacer(":", "_", "/", "_").Replace(host)
	name := fmt.Sprintf("%s-%s.jpg", host, now.Format("20060102-150405.000"))
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write capture: %w", err)
	}

	logging.Info("Capture saved", zap.String("path", path), zap.Int("size", len(data)))
	return path, nil
}
