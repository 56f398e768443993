// Package session tracks one live connection to a camera: the stream
// subscription, photo captures and the captured image they produce.
//
// A Session starts in Probing. The first stream frame moves it to Connected;
// a stream error before that moves it to Failed. CapturePhoto is only
// accepted while Connected and passes through CaptureInProgress. Close tears
// everything down and leaves the session Idle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/blob"
	"github.com/muurk/espcam/internal/camera"
	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
)

var (
	// ErrNotConnected is returned by CapturePhoto outside the Connected state
	ErrNotConnected = errors.New("camera is not connected")

	// ErrClosed is returned when the session was closed while a capture was running
	ErrClosed = errors.New("session closed")
)

// State is a session lifecycle state
type State int

const (
	Idle State = iota
	Probing
	Connected
	CaptureInProgress
	Failed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Probing:
		return "Probing"
	case Connected:
		return "Connected"
	case CaptureInProgress:
		return "CaptureInProgress"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Capturer takes one still photo
type Capturer interface {
	Capture(ctx context.Context) (camera.Image, error)
}

// SessionState is an immutable snapshot of a session
type SessionState struct {
	ID     string
	Device discovery.Device
	State  State

	// CapturedImage is the most recent successful capture, if it is still open
	CapturedImage *blob.Handle

	// ErrorMessage describes the last stream or capture failure
	ErrorMessage string

	// Streaming is true while the stream subscription is delivering frames
	Streaming bool

	// StreamError is set when the stream broke after the session connected
	StreamError string

	Frames      int
	LastFrameAt time.Time
}

// HasCapturedImage reports whether a captured image is open
func (s SessionState) HasCapturedImage() bool {
	return s.CapturedImage != nil
}

// Options configures a Session. Zero values get the camera defaults.
type Options struct {
	// Stream is the live frame source (default: MJPEG on StreamPort)
	Stream camera.StreamSource

	// Capturer takes stills (default: camera.Client for the device)
	Capturer Capturer

	// Blobs owns captured images (default: a private registry)
	Blobs *blob.Registry

	// StreamPort is used when Stream is nil (default 81)
	StreamPort int

	// OnChange is called with a snapshot after every state change. It runs
	// with the session locked and must not call back into the Session.
	OnChange func(SessionState)
}

// Session is the state machine for one selected camera
type Session struct {
	id       string
	device   discovery.Device
	stream   camera.StreamSource
	capturer Capturer
	blobs    *blob.Registry
	onChange func(SessionState)

	mu          sync.Mutex
	state       State
	handle      *blob.Handle
	errMessage  string
	streaming   bool
	streamError string
	frames      int
	lastFrame   camera.Frame
	lastFrameAt time.Time
	started     bool
	closed      bool
	cancel      context.CancelFunc
	done        chan struct{}
}

// New creates a session for device in the Probing state. Nothing touches the
// network until Start.
func New(device discovery.Device, opts Options) *Session {
	s := &Session{
		id:       uuid.NewString(),
		device:   device,
		stream:   opts.Stream,
		capturer: opts.Capturer,
		blobs:    opts.Blobs,
		onChange: opts.OnChange,
		state:    Probing,
		done:     make(chan struct{}),
	}
	if s.stream == nil {
		s.stream = camera.NewMJPEGSource(device, opts.StreamPort)
	}
	if s.capturer == nil {
		s.capturer = camera.NewClient(device.Address)
	}
	if s.blobs == nil {
		s.blobs = blob.NewRegistry()
	}
	return s
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Device returns the camera this session targets
func (s *Session) Device() discovery.Device {
	return s.device
}

// Start subscribes to the stream in the background. Calling it again, or
// after Close, does nothing.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	logging.Info("Session started",
		zap.String("session", s.id),
		zap.String("address", s.device.Address),
	)

	go func() {
		defer close(s.done)
		err := s.stream.Stream(ctx, s.onFrame)
		s.onStreamEnd(ctx, err)
	}()
}

func (s *Session) onFrame(frame camera.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.frames++
	s.lastFrame = frame
	s.lastFrameAt = time.Now()
	if !s.streaming {
		s.streaming = true
		s.streamError = ""
	}
	if s.state == Probing {
		s.transitionLocked(Connected)
	}
}

func (s *Session) onStreamEnd(ctx context.Context, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.streaming = false

	// The caller cancelled the parent context without closing the session
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = camera.NewStreamError(s.device.Address, "stream ended", nil)
	}

	if s.state == Probing {
		s.errMessage = fmt.Sprintf("Failed to connect to camera stream at %s: %s",
			s.device.Address, camera.GetShortErrorMessage(err))
		s.transitionLocked(Failed)
		return
	}

	// Once connected, a broken stream is reported but does not change the state
	s.streamError = camera.GetShortErrorMessage(err)
	logging.Warn("Camera stream lost",
		zap.String("session", s.id),
		zap.String("address", s.device.Address),
		zap.Error(err),
	)
	s.notifyLocked()
}

// CapturePhoto takes one still. It returns ErrNotConnected, without touching
// the session, unless the state is Connected. On success the new image
// replaces any previous one, which is released as the capture starts; on
// failure ErrorMessage is set and no image is left open. Either way the
// session returns to Connected.
func (s *Session) CapturePhoto(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Connected {
		s.mu.Unlock()
		return ErrNotConnected
	}
	s.errMessage = ""
	// A captured image only exists while Connected
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	s.transitionLocked(CaptureInProgress)
	s.mu.Unlock()

	image, err := s.capturer.Capture(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	if err != nil {
		s.errMessage = "Failed to capture image: " + camera.GetShortErrorMessage(err)
	} else {
		s.handle = s.blobs.Create(image.Data, image.ContentType)
	}
	s.transitionLocked(Connected)
	return err
}

// CloseCapturedImage releases the open captured image, if any
func (s *Session) CloseCapturedImage() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle == nil {
		return
	}
	s.handle.Release()
	s.handle = nil
	s.notifyLocked()
}

// Close stops the stream, releases any captured image and leaves the session
// Idle. It waits for the stream goroutine to exit.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.handle != nil {
		s.handle.Release()
		s.handle = nil
	}
	s.streaming = false
	s.transitionLocked(Idle)
	s.closed = true
	started, cancel := s.started, s.cancel
	s.mu.Unlock()

	if started {
		cancel()
		<-s.done
	}
	logging.Info("Session closed", zap.String("session", s.id))
}

// Snapshot returns the current state
func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// LatestFrame returns a copy of the most recent stream frame
func (s *Session) LatestFrame() (camera.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == 0 {
		return camera.Frame{}, false
	}
	return camera.Frame{
		Data:        append([]byte(nil), s.lastFrame.Data...),
		ContentType: s.lastFrame.ContentType,
	}, true
}

func (s *Session) snapshotLocked() SessionState {
	return SessionState{
		ID:            s.id,
		Device:        s.device,
		State:         s.state,
		CapturedImage: s.handle,
		ErrorMessage:  s.errMessage,
		Streaming:     s.streaming,
		StreamError:   s.streamError,
		Frames:        s.frames,
		LastFrameAt:   s.lastFrameAt,
	}
}

func (s *Session) transitionLocked(to State) {
	from := s.state
	s.state = to
	logging.LogTransition(s.device.Address, from.String(), to.String())
	s.notifyLocked()
}

func (s *Session) notifyLocked() {
	if s.onChange != nil {
		s.onChange(s.snapshotLocked())
	}
}
