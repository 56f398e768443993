// Espcam-sim serves a simulated ESP32 camera for development and testing.
//
// It answers /status and /capture on the control port and streams
// generated JPEG frames as MJPEG on /stream and as WebSocket binary
// messages on /ws from the stream port, mirroring the stock camera
// firmware's two-port layout.
//
// Usage:
//
//	espcam-sim [flags]
//
// See 'espcam-sim --help' for available options.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/muurk/espcam/internal/logging"
	"github.com/muurk/espcam/internal/simulator"
	"github.com/muurk/espcam/internal/version"
)

func main() {
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Simulator flags
var (
	host          string
	port          int
	streamPort    int
	frameInterval time.Duration
	enableCORS    bool
	failCapture   bool
	failStream    bool
	logLevel      string
)

var rootCmd = &cobra.Command{
	Use:   "espcam-sim",
	Short: "Simulated ESP32 camera",
	Long: `A stand-in ESP32 camera that needs no hardware.

The control port answers GET /status with a JSON sensor document and
GET /capture with a JPEG still. The stream port serves the same generated
frames as multipart MJPEG on /stream and as WebSocket binary messages on /ws.

Failure switches make captures answer 500 or streams answer 503, to
exercise error handling in clients.`,
	Example: `  # Serve on the firmware's ports (80 and 81, may need privileges)
  espcam-sim

  # Serve on unprivileged ports and capture from it
  espcam-sim --port 8080 --stream-port 8081
  espcam capture 127.0.0.1:8080

  # Slow stream, failing captures, debug logging
  espcam-sim --port 8080 --stream-port 8081 --interval 1s --fail-capture --log-level debug`,
	Version:      version.Version,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runSimulator,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	defaults := simulator.DefaultConfig()
	rootCmd.Flags().StringVar(&host, "host", "", "Listen address (empty = all interfaces)")
	rootCmd.Flags().IntVar(&port, "port", defaults.Port, "Control port for /status and /capture")
	rootCmd.Flags().IntVar(&streamPort, "stream-port", defaults.StreamPort, "Stream port for /stream and /ws")
	rootCmd.Flags().DurationVar(&frameInterval, "interval", defaults.FrameInterval, "Delay between stream frames")
	rootCmd.Flags().BoolVar(&enableCORS, "cors", false, "Send permissive CORS headers on the control port")
	rootCmd.Flags().BoolVar(&failCapture, "fail-capture", false, "Answer /capture with 500")
	rootCmd.Flags().BoolVar(&failStream, "fail-stream", false, "Answer /stream and /ws with 503")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
}

func runSimulator(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return err
	}
	if frameInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}

	srv := simulator.New(simulator.Config{
		Host:          host,
		Port:          port,
		StreamPort:    streamPort,
		FrameInterval: frameInterval,
		CORS:          enableCORS,
		FailCapture:   failCapture,
		FailStream:    failStream,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("espcam-sim %s (commit: %s)\n", version.Version, version.Commit)
	},
}
