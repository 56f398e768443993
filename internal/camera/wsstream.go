package camera

import (
	"context"
	"net/url"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
)

// WebSocketPath is where websocket firmware builds publish frames
const WebSocketPath = "/ws"

// WebSocketSource reads binary JPEG messages from a websocket endpoint.
// Text messages are control chatter and are skipped.
type WebSocketSource struct {
	URL     string
	Address string
	Dialer  *websocket.Dialer
}

// NewWebSocketSource creates a websocket source for device's stream port
func NewWebSocketSource(device discovery.Device, port int) *WebSocketSource {
	u := url.URL{
		Scheme: "ws",
		Host:   device.StreamHost(port),
		Path:   WebSocketPath,
	}
	return &WebSocketSource{
		URL:     u.String(),
		Address: device.Address,
		Dialer: &websocket.Dialer{
			Proxy:            nil,
			HandshakeTimeout: DefaultConnectTimeout,
		},
	}
}

// Stream implements StreamSource
func (s *WebSocketSource) Stream(ctx context.Context, onFrame func(Frame)) error {
	dialer := s.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{HandshakeTimeout: DefaultConnectTimeout}
	}

	conn, resp, err := dialer.DialContext(ctx, s.URL, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if resp != nil {
			return &DeviceError{
				Type:       ErrTypeStream,
				Message:    "websocket handshake rejected",
				StatusCode: resp.StatusCode,
				Err:        err,
				Address:    s.Address,
			}
		}
		return NewNetworkError(s.Address, "Failed to connect to camera stream", err)
	}

	// ReadMessage does not observe ctx, so closing the connection unblocks it
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
			_ = conn.Close()
		}
	}()

	logging.Debug("WebSocket stream opened", zap.String("address", s.Address), zap.String("url", s.URL))

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return NewStreamError(s.Address, "stream closed by camera", err)
			}
			return NewStreamError(s.Address, "failed to read websocket frame", err)
		}

		if messageType != websocket.BinaryMessage {
			logging.Debug("Skipping non-binary websocket message",
				zap.String("address", s.Address),
				zap.Int("type", messageType),
			)
			continue
		}
		if len(data) == 0 {
			continue
		}
		onFrame(Frame{Data: data, ContentType: DefaultContentType})
	}
}
