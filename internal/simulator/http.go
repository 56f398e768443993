package simulator

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/logging"
)

const (
	// StreamBoundary is the multipart boundary used on /stream
	StreamBoundary = "frame"

	// DefaultFrameInterval paces the stream at roughly 10 fps
	DefaultFrameInterval = 100 * time.Millisecond

	requestTimeout = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handlers serves the simulated camera over HTTP
type Handlers struct {
	Camera        *Camera
	FrameInterval time.Duration
	CORS          bool
}

// ControlRouter returns the router for the control port (/status and /capture)
func (h *Handlers) ControlRouter() http.Handler {
	r := h.newRouter()
	r.Use(middleware.Timeout(requestTimeout))
	r.Get("/status", h.handleStatus)
	r.Get("/capture", h.handleCapture)
	return r
}

// StreamRouter returns the router for the stream port (/stream and /ws)
func (h *Handlers) StreamRouter() http.Handler {
	r := h.newRouter()
	r.Get("/stream", h.handleStream)
	r.Get("/ws", h.handleWebSocket)
	return r
}

func (h *Handlers) newRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logRequests)
	if h.CORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	return r
}

func (h *Handlers) interval() time.Duration {
	if h.FrameInterval <= 0 {
		return DefaultFrameInterval
	}
	return h.FrameInterval
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		logging.LogHTTPRequest(r.RemoteAddr, r.Method, r.URL.Path, status)
	})
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.Camera.Status()); err != nil {
		logging.Error("Failed to write status", zap.Error(err))
	}
}

func (h *Handlers) handleCapture(w http.ResponseWriter, r *http.Request) {
	if h.Camera.CaptureFails() {
		http.Error(w, "Camera capture failed", http.StatusInternalServerError)
		return
	}

	frame, err := h.Camera.Capture()
	if err != nil {
		logging.Error("Failed to render capture", zap.Error(err))
		http.Error(w, "Camera capture failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Disposition", "inline; filename=capture.jpg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame)))
	_, _ = w.Write(frame)
}

// handleStream writes frames as multipart/x-mixed-replace until the client goes away
func (h *Handlers) handleStream(w http.ResponseWriter, r *http.Request) {
	if h.Camera.StreamFails() {
		http.Error(w, "Stream unavailable", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+StreamBoundary)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()

	for {
		frame, err := h.Camera.NextFrame()
		if err != nil {
			logging.Error("Failed to render frame", zap.Error(err))
			return
		}

		header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", StreamBoundary, len(frame))
		if _, err := w.Write([]byte(header)); err != nil {
			return
		}
		if _, err := w.Write(frame); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

// handleWebSocket sends each frame as one binary message
func (h *Handlers) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.Camera.StreamFails() {
		http.Error(w, "Stream unavailable", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn("WebSocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	defer func() { _ = conn.Close() }()

	// Drain control frames so close and ping are handled
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.interval())
	defer ticker.Stop()

	for {
		frame, err := h.Camera.NextFrame()
		if err != nil {
			logging.Error("Failed to render frame", zap.Error(err))
			return
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
			logging.Debug("WebSocket client went away", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
			return
		}

		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
