// Espcam finds ESP32 IP cameras on the local network and connects to them.
//
// It scans an address range for cameras, keeps a list of saved cameras,
// follows a camera's live stream and captures still photos. With no
// subcommand on a terminal it launches the interactive wizard.
//
// Usage:
//
//	espcam [command] [flags]
//
// See 'espcam --help' for available commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/muurk/espcam/internal/config"
	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/logging"
	"github.com/muurk/espcam/internal/store"
	"github.com/muurk/espcam/internal/version"
	"github.com/muurk/espcam/internal/wizard"
	"github.com/muurk/espcam/internal/wizard/tui"
)

var logLevel string

func main() {
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "espcam",
	Short: "ESP32 IP camera discovery and viewer",
	Long: `Find ESP32 cameras on the local network and connect to them.

Scans an address range for cameras answering on /status, remembers the
cameras you connect to, follows a camera's live stream and captures stills.

If no command is specified on a terminal, the interactive wizard launches.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is the common case
		_ = godotenv.Load()
		return logging.Initialize(logLevel)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			return cmd.Help()
		}
		return runWizard(cmd, args)
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when unset")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(wizardCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("espcam %s (commit: %s)\n", version.Version, version.Commit)
	},
}

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Launch the interactive camera wizard",
	Long: `Launch the interactive TUI.

The wizard scans an address range with a live progress bar, lists
discovered and saved cameras, accepts a typed address, and opens a
session showing the stream state with capture controls.`,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signalContext()
	defer stop()

	app := tui.NewAppModel(tui.Options{
		Controller:   env.ctrl,
		ScanDefaults: env.registry.Preferences.Scan.ScanConfig,
		CaptureDir:   env.registry.Preferences.CaptureDir,
		Context:      ctx,
	})

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("wizard error: %w", err)
	}
	return nil
}

// env is the state every command shares: config, device store and controller
type env struct {
	registry *config.Registry
	kv       store.KV
	ctrl     *wizard.Controller
}

func openEnv() (*env, error) {
	registry, err := config.LoadRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	dir, err := registry.StoreDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve store directory: %w", err)
	}
	kv, err := store.Open(registry.Preferences.Store.Backend, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}

	prober := discovery.NewHTTPProber(registry.Preferences.ProbeTimeout())
	ctrl := wizard.NewController(discovery.NewRangeScanner(prober), store.NewDeviceStore(kv), registry)
	ctrl.SaveRegistry = registry.Save

	return &env{registry: registry, kv: kv, ctrl: ctrl}, nil
}

// Close ends any session and releases the store
func (e *env) Close() {
	e.ctrl.Close()
	if err := e.kv.Close(); err != nil {
		logging.Warn("Failed to close device store", zap.Error(err))
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
