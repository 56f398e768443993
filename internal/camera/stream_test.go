package camera

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/muurk/espcam/internal/discovery"
)

const testBoundary = "123456789000000000000987654321"

// mjpegHandler writes frames the way the camera firmware does, then either
// holds the connection open or ends the response.
func mjpegHandler(frames [][]byte, hold bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+testBoundary)
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "\r\n--%s\r\n", testBoundary)
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(f))
			_, _ = w.Write(f)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}
}

func mjpegSourceFor(srv *httptest.Server) *MJPEGSource {
	return &MJPEGSource{
		URL:        srv.URL + discovery.StreamPath,
		Address:    strings.TrimPrefix(srv.URL, "http://"),
		HTTPClient: newStreamClient(),
	}
}

func TestMJPEGSource_DeliversFramesUntilCancelled(t *testing.T) {
	frames := [][]byte{fakeJPEG, append([]byte{0xFF, 0xD8}, bytes.Repeat([]byte{0x42}, 4096)...)}
	server := httptest.NewServer(mjpegHandler(frames, true))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []Frame
	err := mjpegSourceFor(server).Stream(ctx, func(f Frame) {
		got = append(got, f)
		if len(got) == len(frames) {
			cancel()
		}
	})

	if err != context.Canceled {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	for i := range frames {
		if !bytes.Equal(got[i].Data, frames[i]) {
			t.Errorf("frame %d mismatch", i)
		}
		if got[i].ContentType != "image/jpeg" {
			t.Errorf("frame %d ContentType = %q", i, got[i].ContentType)
		}
	}
}

func TestMJPEGSource_StreamEndsIsError(t *testing.T) {
	server := httptest.NewServer(mjpegHandler([][]byte{fakeJPEG}, false))
	defer server.Close()

	frames := 0
	err := mjpegSourceFor(server).Stream(context.Background(), func(Frame) { frames++ })

	if !IsStreamError(err) {
		t.Fatalf("Stream() error = %v, want stream error", err)
	}
	if frames != 1 {
		t.Errorf("frames = %d, want 1", frames)
	}
}

func TestMJPEGSource_OpenFailures(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "503",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "not multipart",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				_, _ = w.Write([]byte("<html></html>"))
			},
		},
		{
			name: "multipart without boundary",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "multipart/x-mixed-replace")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			called := false
			err := mjpegSourceFor(server).Stream(context.Background(), func(Frame) { called = true })
			if !IsStreamError(err) {
				t.Errorf("Stream() error = %v, want stream error", err)
			}
			if called {
				t.Error("onFrame must not be called")
			}
		})
	}
}

func TestMJPEGSource_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	source := mjpegSourceFor(server)
	server.Close()

	err := source.Stream(context.Background(), func(Frame) {})
	if !IsNetworkError(err) {
		t.Fatalf("Stream() error = %v, want network error", err)
	}
	if !strings.Contains(err.Error(), "Failed to connect to camera stream") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNewMJPEGSource_URL(t *testing.T) {
	source := NewMJPEGSource(discovery.NewDevice("192.168.4.1"), 81)

	if source.URL != "http://192.168.4.1:81/stream" {
		t.Errorf("URL = %q", source.URL)
	}
	if source.Address != "192.168.4.1" {
		t.Errorf("Address = %q", source.Address)
	}
}

func TestNewStreamSource(t *testing.T) {
	device := discovery.NewDevice("192.168.4.1")

	tests := []struct {
		mode    string
		want    string
		wantErr bool
	}{
		{"", "*camera.MJPEGSource", false},
		{"mjpeg", "*camera.MJPEGSource", false},
		{"WebSocket", "*camera.WebSocketSource", false},
		{"rtsp", "", true},
	}

	for _, tt := range tests {
		source, err := NewStreamSource(tt.mode, device, 81)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewStreamSource(%q) error = %v, wantErr %v", tt.mode, err, tt.wantErr)
			continue
		}
		if tt.wantErr {
			continue
		}
		if got := fmt.Sprintf("%T", source); got != tt.want {
			t.Errorf("NewStreamSource(%q) = %s, want %s", tt.mode, got, tt.want)
		}
	}
}

func TestNewWebSocketSource_URL(t *testing.T) {
	source := NewWebSocketSource(discovery.NewDevice("192.168.4.1:8080"), 9081)

	if source.URL != "ws://192.168.4.1:9081/ws" {
		t.Errorf("URL = %q", source.URL)
	}
}

func wsServer(t *testing.T, send func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer func() { _ = conn.Close() }()
		send(conn)
	}))
}

func wsSourceFor(srv *httptest.Server) *WebSocketSource {
	return &WebSocketSource{
		URL:     "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath,
		Address: strings.TrimPrefix(srv.URL, "http://"),
		Dialer:  &websocket.Dialer{HandshakeTimeout: time.Second},
	}
}

func TestWebSocketSource_BinaryFramesOnly(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"camera"}`))
		_ = conn.WriteMessage(websocket.BinaryMessage, fakeJPEG)
		_ = conn.WriteMessage(websocket.BinaryMessage, fakeJPEG)
		// Wait for the client to hang up
		_, _, _ = conn.ReadMessage()
	})
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := 0
	err := wsSourceFor(server).Stream(ctx, func(f Frame) {
		frames++
		if !bytes.Equal(f.Data, fakeJPEG) {
			t.Errorf("frame data mismatch")
		}
		if frames == 2 {
			cancel()
		}
	})

	if err != context.Canceled {
		t.Fatalf("Stream() error = %v, want context.Canceled", err)
	}
	if frames != 2 {
		t.Errorf("frames = %d, want 2", frames)
	}
}

func TestWebSocketSource_CloseIsStreamError(t *testing.T) {
	server := wsServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, fakeJPEG)
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})
	defer server.Close()

	err := wsSourceFor(server).Stream(context.Background(), func(Frame) {})
	if !IsStreamError(err) {
		t.Fatalf("Stream() error = %v, want stream error", err)
	}
}

func TestWebSocketSource_HandshakeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	err := wsSourceFor(server).Stream(context.Background(), func(Frame) {})
	devErr, ok := err.(*DeviceError)
	if !ok {
		t.Fatalf("Stream() error = %T %v, want *DeviceError", err, err)
	}
	if devErr.Type != ErrTypeStream || devErr.StatusCode != http.StatusNotFound {
		t.Errorf("got %v (status %d)", devErr.Type, devErr.StatusCode)
	}
}
