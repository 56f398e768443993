package simulator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/logging"
)

const shutdownTimeout = 10 * time.Second

// Config holds the simulator configuration
type Config struct {
	Host          string
	Port          int // Control port serving /status and /capture (0 picks a free port)
	StreamPort    int // Stream port serving /stream and /ws (0 picks a free port)
	FrameInterval time.Duration
	CORS          bool
	FailCapture   bool
	FailStream    bool
}

// DefaultConfig matches the stock camera firmware's ports
func DefaultConfig() Config {
	return Config{
		Port:          80,
		StreamPort:    81,
		FrameInterval: DefaultFrameInterval,
	}
}

// Server runs the simulated camera on its control and stream ports
type Server struct {
	config Config
	camera *Camera

	mu         sync.Mutex
	controlLn  net.Listener
	streamLn   net.Listener
	controlSrv *http.Server
	streamSrv  *http.Server
}

// New creates a new Server instance
func New(config Config) *Server {
	cam := NewCamera()
	cam.SetFailCapture(config.FailCapture)
	cam.SetFailStream(config.FailStream)

	h := &Handlers{
		Camera:        cam,
		FrameInterval: config.FrameInterval,
		CORS:          config.CORS,
	}

	return &Server{
		config:     config,
		camera:     cam,
		controlSrv: &http.Server{Handler: h.ControlRouter(), ReadHeaderTimeout: 5 * time.Second},
		streamSrv:  &http.Server{Handler: h.StreamRouter(), ReadHeaderTimeout: 5 * time.Second},
	}
}

// Camera returns the simulated camera, for flipping failure knobs
func (s *Server) Camera() *Camera {
	return s.camera
}

// Listen opens both ports without serving yet
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	controlLn, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port)))
	if err != nil {
		return fmt.Errorf("failed to listen on control port: %w", err)
	}
	streamLn, err := net.Listen("tcp", net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.StreamPort)))
	if err != nil {
		_ = controlLn.Close()
		return fmt.Errorf("failed to listen on stream port: %w", err)
	}

	s.controlLn = controlLn
	s.streamLn = streamLn
	return nil
}

// ControlAddr returns the bound control address, or "" before Listen
func (s *Server) ControlAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.controlLn == nil {
		return ""
	}
	return s.controlLn.Addr().String()
}

// StreamPort returns the bound stream port, or 0 before Listen
func (s *Server) StreamPort() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.streamLn == nil {
		return 0
	}
	return s.streamLn.Addr().(*net.TCPAddr).Port
}

// Serve blocks until ctx is cancelled or a listener fails, then shuts down
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	controlLn, streamLn := s.controlLn, s.streamLn
	s.mu.Unlock()
	if controlLn == nil || streamLn == nil {
		return errors.New("simulator is not listening")
	}

	logging.Info("Camera simulator listening",
		zap.String("control_addr", controlLn.Addr().String()),
		zap.String("stream_addr", streamLn.Addr().String()),
		zap.Bool("fail_capture", s.camera.CaptureFails()),
		zap.Bool("fail_stream", s.camera.StreamFails()),
	)

	errChan := make(chan error, 2)
	go func() { errChan <- s.controlSrv.Serve(controlLn) }()
	go func() { errChan <- s.streamSrv.Serve(streamLn) }()

	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received, stopping simulator...")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		_ = s.Shutdown(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Run listens and serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Shutdown gracefully shuts down both ports
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	// Streams never finish on their own, so close them rather than wait
	streamErr := s.streamSrv.Close()
	controlErr := s.controlSrv.Shutdown(ctx)

	logging.Info("Camera simulator stopped",
		zap.Uint64("frames_served", s.camera.FramesServed()),
		zap.Uint64("captures_served", s.camera.CapturesServed()),
	)
	logging.Sync()

	return errors.Join(controlErr, streamErr)
}
