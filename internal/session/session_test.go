package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/espcam/internal/blob"
	"github.com/muurk/espcam/internal/camera"
	"github.com/muurk/espcam/internal/discovery"
)

var jpeg = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0xFF, 0xD9}

// fakeStream delivers frames and errors pushed by the test
type fakeStream struct {
	frames chan camera.Frame
	fail   chan error
}

func newFakeStream() *fakeStream {
	return &fakeStream{frames: make(chan camera.Frame), fail: make(chan error)}
}

func (f *fakeStream) Stream(ctx context.Context, onFrame func(camera.Frame)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-f.frames:
			onFrame(frame)
		case err := <-f.fail:
			return err
		}
	}
}

type capturerFunc func(ctx context.Context) (camera.Image, error)

func (f capturerFunc) Capture(ctx context.Context) (camera.Image, error) { return f(ctx) }

func okCapturer() Capturer {
	return capturerFunc(func(context.Context) (camera.Image, error) {
		return camera.Image{Data: jpeg, ContentType: "image/jpeg"}, nil
	})
}

func failingCapturer() Capturer {
	return capturerFunc(func(context.Context) (camera.Image, error) {
		return camera.Image{}, camera.NewHTTPError("192.168.4.1", 500, "Failed to capture image")
	})
}

// recorder collects OnChange snapshots
type recorder struct {
	mu     sync.Mutex
	states []State
}

func (r *recorder) record(s SessionState) {
	r.mu.Lock()
	r.states = append(r.states, s.State)
	r.mu.Unlock()
}

func (r *recorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

type fixture struct {
	session *Session
	stream  *fakeStream
	blobs   *blob.Registry
	changes *recorder
}

func newFixture(t *testing.T, capturer Capturer) *fixture {
	t.Helper()
	f := &fixture{
		stream:  newFakeStream(),
		blobs:   blob.NewRegistry(),
		changes: &recorder{},
	}
	f.session = New(discovery.NewDevice("192.168.4.1"), Options{
		Stream:   f.stream,
		Capturer: capturer,
		Blobs:    f.blobs,
		OnChange: f.changes.record,
	})
	t.Cleanup(f.session.Close)
	return f
}

// connect starts the session and delivers the first frame
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	f.session.Start(context.Background())
	f.stream.frames <- camera.Frame{Data: jpeg, ContentType: "image/jpeg"}
	require.Eventually(t, func() bool {
		return f.session.Snapshot().State == Connected
	}, time.Second, 5*time.Millisecond)
}

func TestNew_StartsProbing(t *testing.T) {
	f := newFixture(t, okCapturer())

	snap := f.session.Snapshot()
	assert.Equal(t, Probing, snap.State)
	assert.Equal(t, "192.168.4.1", snap.Device.Address)
	assert.NotEmpty(t, snap.ID)
	assert.Nil(t, snap.CapturedImage)
	assert.Empty(t, snap.ErrorMessage)
}

func TestFirstFrameConnects(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.connect(t)

	snap := f.session.Snapshot()
	assert.True(t, snap.Streaming)
	assert.Equal(t, 1, snap.Frames)
	assert.Equal(t, []State{Connected}, f.changes.all())

	frame, ok := f.session.LatestFrame()
	require.True(t, ok)
	assert.Equal(t, jpeg, frame.Data)
}

func TestStreamErrorWhileProbingFails(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.session.Start(context.Background())

	f.stream.fail <- camera.NewStreamError("192.168.4.1", "stream returned HTTP 503", nil)

	require.Eventually(t, func() bool {
		return f.session.Snapshot().State == Failed
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, f.session.Snapshot().ErrorMessage, "192.168.4.1")
}

func TestStreamLossAfterConnectKeepsState(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.connect(t)

	f.stream.fail <- camera.NewStreamError("192.168.4.1", "stream closed by camera", nil)

	require.Eventually(t, func() bool {
		return !f.session.Snapshot().Streaming
	}, time.Second, 5*time.Millisecond)

	snap := f.session.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.NotEmpty(t, snap.StreamError)
	assert.NoError(t, f.session.CapturePhoto(context.Background()), "capture is independent of the stream")
}

func TestCapturePhoto_Success(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.connect(t)

	require.NoError(t, f.session.CapturePhoto(context.Background()))

	snap := f.session.Snapshot()
	assert.Equal(t, Connected, snap.State)
	require.NotNil(t, snap.CapturedImage)
	data, err := snap.CapturedImage.Bytes()
	require.NoError(t, err)
	assert.Equal(t, jpeg, data)
	assert.Equal(t, []State{Connected, CaptureInProgress, Connected}, f.changes.all())
}

func TestCapturePhoto_FailureStaysConnected(t *testing.T) {
	f := newFixture(t, failingCapturer())
	f.connect(t)

	err := f.session.CapturePhoto(context.Background())
	require.Error(t, err)
	assert.True(t, camera.IsHTTPError(err))

	snap := f.session.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.Contains(t, snap.ErrorMessage, "Failed to capture image")
	assert.Nil(t, snap.CapturedImage)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestCapturePhoto_OutsideConnectedIsNoOp(t *testing.T) {
	calls := 0
	capturer := capturerFunc(func(context.Context) (camera.Image, error) {
		calls++
		return camera.Image{Data: jpeg}, nil
	})

	t.Run("probing", func(t *testing.T) {
		f := newFixture(t, capturer)
		before := f.session.Snapshot()

		assert.ErrorIs(t, f.session.CapturePhoto(context.Background()), ErrNotConnected)
		assert.Equal(t, before, f.session.Snapshot())
		assert.Empty(t, f.changes.all())
	})

	t.Run("failed", func(t *testing.T) {
		f := newFixture(t, capturer)
		f.session.Start(context.Background())
		f.stream.fail <- errors.New("boom")
		require.Eventually(t, func() bool { return f.session.Snapshot().State == Failed }, time.Second, 5*time.Millisecond)

		before := f.session.Snapshot()
		assert.ErrorIs(t, f.session.CapturePhoto(context.Background()), ErrNotConnected)
		assert.Equal(t, before, f.session.Snapshot())
	})

	t.Run("idle", func(t *testing.T) {
		f := newFixture(t, capturer)
		f.session.Close()

		assert.ErrorIs(t, f.session.CapturePhoto(context.Background()), ErrNotConnected)
		assert.Equal(t, Idle, f.session.Snapshot().State)
	})

	assert.Equal(t, 0, calls)
}

func TestCapturePhoto_RejectedWhileInProgress(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	capturer := capturerFunc(func(context.Context) (camera.Image, error) {
		close(entered)
		<-release
		return camera.Image{Data: jpeg, ContentType: "image/jpeg"}, nil
	})
	f := newFixture(t, capturer)
	f.connect(t)

	errc := make(chan error, 1)
	go func() { errc <- f.session.CapturePhoto(context.Background()) }()
	<-entered

	assert.Equal(t, CaptureInProgress, f.session.Snapshot().State)
	assert.ErrorIs(t, f.session.CapturePhoto(context.Background()), ErrNotConnected)

	close(release)
	require.NoError(t, <-errc)
	assert.Equal(t, Connected, f.session.Snapshot().State)
}

func TestCapturePhoto_ReplacesAndReleasesPrevious(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.connect(t)

	require.NoError(t, f.session.CapturePhoto(context.Background()))
	first := f.session.Snapshot().CapturedImage
	require.NoError(t, f.session.CapturePhoto(context.Background()))
	second := f.session.Snapshot().CapturedImage

	assert.True(t, first.Released())
	assert.False(t, second.Released())
	assert.Equal(t, 1, f.blobs.Len())
}

func TestCapturePhoto_NoImageWhileInProgress(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	entered := make(chan struct{})
	capturer := capturerFunc(func(context.Context) (camera.Image, error) {
		if calls.Add(1) > 1 {
			close(entered)
			<-release
		}
		return camera.Image{Data: jpeg, ContentType: "image/jpeg"}, nil
	})
	f := newFixture(t, capturer)
	f.connect(t)

	require.NoError(t, f.session.CapturePhoto(context.Background()))
	first := f.session.Snapshot().CapturedImage
	require.NotNil(t, first)

	errc := make(chan error, 1)
	go func() { errc <- f.session.CapturePhoto(context.Background()) }()
	<-entered

	snap := f.session.Snapshot()
	assert.Equal(t, CaptureInProgress, snap.State)
	assert.False(t, snap.HasCapturedImage())
	assert.True(t, first.Released())
	assert.Equal(t, 0, f.blobs.Len())

	close(release)
	require.NoError(t, <-errc)
	snap = f.session.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.True(t, snap.HasCapturedImage())
}

func TestCloseCapturedImage(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.connect(t)
	require.NoError(t, f.session.CapturePhoto(context.Background()))
	handle := f.session.Snapshot().CapturedImage

	f.session.CloseCapturedImage()

	snap := f.session.Snapshot()
	assert.Nil(t, snap.CapturedImage)
	assert.True(t, handle.Released())
	assert.Equal(t, 0, f.blobs.Len())
	assert.Equal(t, Connected, snap.State)
	assert.True(t, snap.Streaming, "stream view is untouched")

	// closing again is harmless
	f.session.CloseCapturedImage()
}

func TestClose_ReleasesAndStopsStream(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.connect(t)
	require.NoError(t, f.session.CapturePhoto(context.Background()))

	f.session.Close()

	snap := f.session.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Nil(t, snap.CapturedImage)
	assert.False(t, snap.Streaming)
	assert.Equal(t, 0, f.blobs.Len())

	select {
	case <-f.session.done:
	default:
		t.Fatal("stream goroutine still running after Close")
	}
}

func TestClose_DuringCaptureDiscardsResult(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	capturer := capturerFunc(func(context.Context) (camera.Image, error) {
		close(entered)
		<-release
		return camera.Image{Data: jpeg}, nil
	})
	f := newFixture(t, capturer)
	f.connect(t)

	errc := make(chan error, 1)
	go func() { errc <- f.session.CapturePhoto(context.Background()) }()
	<-entered

	f.session.Close()
	close(release)

	assert.ErrorIs(t, <-errc, ErrClosed)
	assert.Equal(t, Idle, f.session.Snapshot().State)
	assert.Equal(t, 0, f.blobs.Len())
}

func TestStart_AfterCloseDoesNothing(t *testing.T) {
	f := newFixture(t, okCapturer())
	f.session.Close()
	f.session.Start(context.Background())

	assert.Equal(t, Idle, f.session.Snapshot().State)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "CaptureInProgress", CaptureInProgress.String())
	assert.Equal(t, "State(42)", State(42).String())
}

// TestSessionAgainstHTTPCamera runs the default MJPEG source and capture
// client against an in-process camera.
func TestSessionAgainstHTTPCamera(t *testing.T) {
	const boundary = "frame"
	var captureStatus atomic.Int32
	captureStatus.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
		fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg))
		_, _ = w.Write(jpeg)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})
	mux.HandleFunc("/capture", func(w http.ResponseWriter, r *http.Request) {
		if status := int(captureStatus.Load()); status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	address := strings.TrimPrefix(server.URL, "http://")
	device := discovery.NewDevice(address)
	s := New(device, Options{
		Stream: &camera.MJPEGSource{URL: server.URL + "/stream", Address: address},
	})
	defer s.Close()

	s.Start(context.Background())
	require.Eventually(t, func() bool { return s.Snapshot().State == Connected }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.CapturePhoto(context.Background()))
	require.NotNil(t, s.Snapshot().CapturedImage)

	captureStatus.Store(http.StatusInternalServerError)
	require.Error(t, s.CapturePhoto(context.Background()))
	snap := s.Snapshot()
	assert.Equal(t, Connected, snap.State)
	assert.NotEmpty(t, snap.ErrorMessage)
	assert.Nil(t, snap.CapturedImage)
}
