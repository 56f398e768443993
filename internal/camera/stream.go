package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
)

const (
	// StreamModeMJPEG reads multipart/x-mixed-replace from /stream
	StreamModeMJPEG = "mjpeg"

	// StreamModeWebSocket reads binary JPEG messages from /ws
	StreamModeWebSocket = "websocket"

	// DefaultConnectTimeout bounds dialing the stream port and waiting for headers
	DefaultConnectTimeout = 10 * time.Second
)

// Frame is one JPEG from a live stream
type Frame struct {
	Data        []byte
	ContentType string
}

// StreamSource delivers live frames from one camera.
//
// Stream blocks and calls onFrame for every frame received, on the calling
// goroutine. It returns ctx.Err() once ctx is cancelled and a *DeviceError of
// type ErrTypeStream (or a network type) when the stream cannot be opened or
// breaks. It never returns nil.
type StreamSource interface {
	Stream(ctx context.Context, onFrame func(Frame)) error
}

// NewStreamSource returns the stream source for mode ("mjpeg" or "websocket")
func NewStreamSource(mode string, device discovery.Device, port int) (StreamSource, error) {
	switch strings.ToLower(mode) {
	case "", StreamModeMJPEG:
		return NewMJPEGSource(device, port), nil
	case StreamModeWebSocket:
		return NewWebSocketSource(device, port), nil
	default:
		return nil, fmt.Errorf("unknown stream mode %q (want %s or %s)", mode, StreamModeMJPEG, StreamModeWebSocket)
	}
}

// MJPEGSource reads the camera's multipart JPEG stream, the format the stock
// camera web server emits on port 81.
type MJPEGSource struct {
	URL     string
	Address string

	// HTTPClient must not carry an overall Timeout; the stream never ends on its own
	HTTPClient *http.Client
}

// NewMJPEGSource creates an MJPEG source for device's stream port
func NewMJPEGSource(device discovery.Device, port int) *MJPEGSource {
	return &MJPEGSource{
		URL:        device.StreamURL(port),
		Address:    device.Address,
		HTTPClient: newStreamClient(),
	}
}

func newStreamClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 nil,
			DialContext:           (&net.Dialer{Timeout: DefaultConnectTimeout}).DialContext,
			ResponseHeaderTimeout: DefaultConnectTimeout,
			DisableKeepAlives:     true,
		},
	}
}

// Stream implements StreamSource
func (s *MJPEGSource) Stream(ctx context.Context, onFrame func(Frame)) error {
	client := s.HTTPClient
	if client == nil {
		client = newStreamClient()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return NewStreamError(s.Address, "failed to create stream request", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return NewNetworkError(s.Address, "Failed to connect to camera stream", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &DeviceError{
			Type:       ErrTypeStream,
			Message:    fmt.Sprintf("stream returned HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
			Address:    s.Address,
		}
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") || params["boundary"] == "" {
		return NewStreamError(s.Address,
			fmt.Sprintf("stream is not multipart (Content-Type %q)", resp.Header.Get("Content-Type")), err)
	}

	logging.Debug("MJPEG stream opened",
		zap.String("address", s.Address),
		zap.String("boundary", params["boundary"]),
	)

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for {
		part, err := reader.NextPart()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return NewStreamError(s.Address, "stream closed by camera", nil)
			}
			return NewStreamError(s.Address, "failed to read stream part", err)
		}

		data, err := readFrame(part)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return NewStreamError(s.Address, "failed to read frame", err)
		}
		// The firmware occasionally emits an empty part between frames
		if len(data) == 0 {
			continue
		}

		contentType := part.Header.Get("Content-Type")
		if contentType == "" {
			contentType = DefaultContentType
		}
		onFrame(Frame{Data: data, ContentType: contentType})
	}
}

// readFrame reads one part body. The firmware announces Content-Length, which
// lets the frame be delivered before the next boundary arrives; without it the
// part runs until the next boundary.
func readFrame(part *multipart.Part) ([]byte, error) {
	if n, err := strconv.Atoi(part.Header.Get("Content-Length")); err == nil && n >= 0 {
		if n > MaxImageSize {
			return nil, fmt.Errorf("frame of %d bytes exceeds %d", n, MaxImageSize)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(part, data); err != nil {
			return nil, err
		}
		return data, nil
	}

	data, err := io.ReadAll(io.LimitReader(part, MaxImageSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("frame exceeds %d bytes", MaxImageSize)
	}
	return data, nil
}
