package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/muurk/espcam/internal/camera"
	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/session"
	"github.com/muurk/espcam/internal/ui"
	"github.com/muurk/espcam/internal/wizard"
)

// Command flags
var (
	scanBase     string
	scanStart    int
	scanEnd      int
	scanTimeout  int
	scanMDNS     bool
	scanSave     bool
	connectWatch bool
	removeYes    bool
	captureOut   string
	captureCron  string
	captureCount int
)

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(savedCmd)
	rootCmd.AddCommand(connectCmd)
	rootCmd.AddCommand(captureCmd)

	savedCmd.AddCommand(savedListCmd)
	savedCmd.AddCommand(savedAddCmd)
	savedCmd.AddCommand(savedRemoveCmd)
}

// scanCmd probes an address range for cameras
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan an address range for cameras",
	Long: `Probe <base>.<start> through <base>.<end> one address at a time.

An address counts as a camera when GET /status answers with any HTTP
response before the probe timeout. Defaults come from the config file.`,
	Example: `  # Scan the camera's own access point range (192.168.4.1-20)
  espcam scan

  # Scan a home network range with a shorter probe timeout
  espcam scan --base 192.168.1 --start 100 --end 150 --timeout 300

  # Also listen for cameras announcing themselves over mDNS
  espcam scan --mdns

  # Save everything found
  espcam scan --save`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanBase, "base", "", "First three octets, e.g. 192.168.4 (default from config)")
	scanCmd.Flags().IntVar(&scanStart, "start", 0, "First host number (default from config)")
	scanCmd.Flags().IntVar(&scanEnd, "end", 0, "Last host number (default from config)")
	scanCmd.Flags().IntVar(&scanTimeout, "timeout", 0, "Per-address probe timeout in milliseconds (default from config)")
	scanCmd.Flags().BoolVar(&scanMDNS, "mdns", false, "Also browse mDNS for cameras")
	scanCmd.Flags().BoolVar(&scanSave, "save", false, "Add the cameras found to the saved list")
}

func runScan(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	prefs := env.registry.Preferences
	cfg := prefs.Scan.ScanConfig
	if scanBase != "" {
		cfg.BaseAddress = scanBase
	}
	if scanStart != 0 {
		cfg.StartRange = scanStart
	}
	if scanEnd != 0 {
		cfg.EndRange = scanEnd
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if scanTimeout > 0 {
		env.ctrl.Scanner = discovery.NewRangeScanner(discovery.NewHTTPProber(time.Duration(scanTimeout) * time.Millisecond))
	}

	ctx, stop := signalContext()
	defer stop()

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Range scan", cmd.CommandPath(),
		ui.F("Range", fmt.Sprintf("%s - %s", cfg.Address(cfg.StartRange), cfg.Address(cfg.EndRange))),
		ui.F("Addresses", fmt.Sprintf("%d", cfg.Total())),
	)

	state, err := env.ctrl.Scan(ctx, cfg, p.ScanObserver("Probing"))
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	p.FinishProgress(state)
	if ctx.Err() != nil {
		p.Println("  Scan cancelled, showing partial results.")
	}

	found := state.Results
	if scanMDNS && ctx.Err() == nil {
		scanner := discovery.NewMDNSScanner()
		scanner.Timeout = time.Duration(prefs.MDNSTimeout) * time.Second
		p.Printf("  Listening for mDNS announcements (%s)...\n", scanner.Timeout)
		hints, err := scanner.Browse(ctx)
		if err != nil {
			p.Printf("  mDNS browse failed: %v\n", err)
		}
		found = mergeDevices(found, hints)
	}
	p.Newline()

	if len(found) == 0 {
		p.PrintResult(ui.NewWarningResult("No cameras found",
			"Check the camera is powered and joined to this network",
			"Connect to the camera's own access point and scan 192.168.4",
			"Try a larger --timeout on slow networks",
			"Use 'espcam saved add <address>' if you know the address",
		))
		return nil
	}

	result := ui.NewSuccessResult(fmt.Sprintf("Found %d camera(s)", len(found)))
	for _, device := range found {
		result.AddDetail(device.Address, device.StreamURL(prefs.Stream.Port))
		if scanSave {
			if err := env.ctrl.Store.Add(device); err != nil {
				return fmt.Errorf("failed to save %s: %w", device.Address, err)
			}
		}
	}
	if scanSave {
		result.AddDetail("Saved", "yes")
	}
	p.PrintResult(result)
	p.Println("Use 'espcam connect <address>' to open a camera")

	return nil
}

// mergeDevices appends extra devices not already present, keeping order
func mergeDevices(devices, extra []discovery.Device) []discovery.Device {
	seen := make(map[string]bool, len(devices))
	for _, d := range devices {
		seen[d.Address] = true
	}
	for _, d := range extra {
		if !seen[d.Address] {
			seen[d.Address] = true
			devices = append(devices, d)
		}
	}
	return devices
}

// savedCmd groups the saved camera list commands
var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "Manage the saved camera list",
}

var savedListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved cameras",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		devices, err := env.ctrl.SavedDevices()
		if err != nil {
			return err
		}
		if len(devices) == 0 {
			fmt.Println("No saved cameras.")
			return nil
		}
		for i, device := range devices {
			line := fmt.Sprintf("%d. %s", i+1, device.Name)
			if meta := env.registry.GetCamera(device.Address); meta != nil {
				if !meta.LastConnected.IsZero() {
					line += fmt.Sprintf("  last connected %s", meta.LastConnected.Format(time.DateTime))
				}
				if meta.Captures > 0 {
					line += fmt.Sprintf("  %d capture(s)", meta.Captures)
				}
			}
			fmt.Println(line)
		}
		return nil
	},
}

var savedAddCmd = &cobra.Command{
	Use:     "add <address>",
	Short:   "Add a camera by address",
	Example: "  espcam saved add 192.168.1.50",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address, err := discovery.NormalizeAddress(args[0])
		if err != nil {
			return err
		}

		env, err := openEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		device := discovery.NewDevice(address)
		if err := env.ctrl.Store.Add(device); err != nil {
			return fmt.Errorf("failed to save camera: %w", err)
		}
		fmt.Printf("✓ Saved %s\n", device.Name)
		return nil
	},
}

var savedRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a saved camera",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := openEnv()
		if err != nil {
			return err
		}
		defer env.Close()

		if !removeYes && !ui.Confirm(cmd.InOrStdin(), cmd.OutOrStdout(), fmt.Sprintf("Remove %s from saved cameras?", args[0])) {
			return nil
		}

		if err := env.ctrl.RemoveSaved(args[0]); err != nil {
			return fmt.Errorf("failed to remove camera: %w", err)
		}
		fmt.Printf("✓ Removed %s\n", args[0])
		return nil
	},
}

func init() {
	savedRemoveCmd.Flags().BoolVarP(&removeYes, "yes", "y", false, "Do not ask for confirmation")
}

// connectCmd opens a session and reports its state changes
var connectCmd = &cobra.Command{
	Use:   "connect <address>",
	Short: "Connect to a camera and follow its stream",
	Long: `Save the camera, subscribe to its stream and report the session state.

Without --watch the command returns once the first frame arrives or the
connection fails. With --watch it keeps reporting until interrupted.`,
	Example: `  espcam connect 192.168.4.1
  espcam connect 192.168.1.50 --watch`,
	Args: cobra.ExactArgs(1),
	RunE: runConnect,
}

func init() {
	connectCmd.Flags().BoolVar(&connectWatch, "watch", false, "Keep following the stream until interrupted")
}

func runConnect(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, stop := signalContext()
	defer stop()

	// The session calls back under its own lock; hand snapshots off
	changes := make(chan session.SessionState, 16)
	onChange := func(s session.SessionState) {
		select {
		case changes <- s:
		default:
		}
	}

	sess, err := env.ctrl.AddManual(ctx, args[0], onChange)
	if err != nil {
		return err
	}
	device := sess.Device()
	streamURL := device.StreamURL(env.registry.Preferences.Stream.Port)

	p := ui.NewPrinter(os.Stdout)
	p.PrintHeader("Connect", cmd.CommandPath(),
		ui.F("Camera", device.Name),
		ui.F("Stream", streamURL),
	)

	w := &connectWatcher{p: p, device: device, watch: connectWatch}

	// State changes arrive on changes; frame counts are only seen by polling
	ticker := time.NewTicker(connectPollInterval)
	defer ticker.Stop()

	for {
		var s session.SessionState
		select {
		case <-ctx.Done():
			p.Println("  Disconnected.")
			return nil
		case s = <-changes:
		case <-ticker.C:
			s = sess.Snapshot()
		}

		if done, err := w.observe(s); done {
			return err
		}
	}
}

const (
	connectPollInterval = time.Second

	// connectFrameStep is how many frames pass between watch reports
	connectFrameStep = 50
)

// connectWatcher reports session snapshots for the connect command
type connectWatcher struct {
	p        *ui.Printer
	device   discovery.Device
	watch    bool
	last     session.State
	reported int
}

// observe prints what changed since the last snapshot and reports whether
// the command is done, with its result.
func (w *connectWatcher) observe(s session.SessionState) (bool, error) {
	if s.State != w.last {
		w.p.Printf("  %s %s\n", time.Now().Format(time.TimeOnly), s.State)
		w.last = s.State
	}
	if s.State == session.Failed {
		w.p.PrintResult(ui.NewFailureResult("Connect to "+w.device.Name, errors.New(s.ErrorMessage),
			"Check the camera is powered and reachable",
			"Check the stream port and mode in the config file",
			"Close other viewers; the firmware serves one stream at a time",
		))
		return true, fmt.Errorf("connection failed")
	}
	if s.StreamError != "" {
		return true, fmt.Errorf("stream lost: %s", s.StreamError)
	}

	switch {
	case s.Frames == 0:
	case w.reported == 0:
		w.p.PrintResult(ui.NewSuccessResult("Streaming",
			ui.F("Camera", w.device.Name),
			ui.F("Session", s.ID),
		))
		if !w.watch {
			return true, nil
		}
		w.reported = s.Frames
	case s.Frames-w.reported >= connectFrameStep:
		w.p.Printf("  %s %d frames\n", time.Now().Format(time.TimeOnly), s.Frames)
		w.reported = s.Frames
	}
	return false, nil
}

// captureCmd saves stills from a camera, once or on a schedule
var captureCmd = &cobra.Command{
	Use:   "capture <address>",
	Short: "Capture still photos to disk",
	Long: `Fetch a still from the camera's /capture endpoint and write it as a JPEG.

With --schedule the capture repeats on a cron schedule until interrupted
(or until --count captures have been written). Standard five-field specs
and descriptors such as "@every 30s" are accepted.`,
	Example: `  # One photo into the configured capture directory
  espcam capture 192.168.4.1

  # A photo every minute into ./garage
  espcam capture 192.168.1.50 --out garage --schedule "* * * * *"

  # Ten photos, thirty seconds apart
  espcam capture 192.168.1.50 --schedule "@every 30s" --count 10`,
	Args: cobra.ExactArgs(1),
	RunE: runCapture,
}

func init() {
	captureCmd.Flags().StringVar(&captureOut, "out", "", "Output directory (default from config)")
	captureCmd.Flags().StringVar(&captureCron, "schedule", "", "Cron schedule for repeated captures")
	captureCmd.Flags().IntVar(&captureCount, "count", 0, "Stop after this many scheduled captures (0 = no limit)")
}

func runCapture(cmd *cobra.Command, args []string) error {
	address, err := discovery.NormalizeAddress(args[0])
	if err != nil {
		return err
	}

	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	dir := captureOut
	if dir == "" {
		dir = env.registry.Preferences.CaptureDir
	}

	ctx, stop := signalContext()
	defer stop()

	p := ui.NewPrinter(os.Stdout)
	client := camera.NewClient(address)
	shoot := func() error {
		path, size, err := captureOnce(ctx, client, dir)
		if err != nil {
			p.Printf("  %s %s  %s\n", ui.FailureMarker, time.Now().Format(time.TimeOnly), camera.GetShortErrorMessage(err))
			return err
		}
		env.registry.CountCapture(address)
		if err := env.registry.Save(); err != nil {
			p.Printf("  warning: failed to save config: %v\n", err)
		}
		p.Printf("  %s %s  %s (%d bytes)\n", ui.SuccessMarker, time.Now().Format(time.TimeOnly), path, size)
		return nil
	}

	if captureCron == "" {
		path, size, err := captureOnce(ctx, client, dir)
		if err != nil {
			p.PrintResult(ui.NewFailureResult("Capture from "+client.Device.Name,
				errors.New(camera.GetShortErrorMessage(err)), troubleshootingTips(err)...))
			return fmt.Errorf("capture failed: %w", err)
		}
		env.registry.CountCapture(address)
		if err := env.registry.Save(); err != nil {
			p.Printf("warning: failed to save config: %v\n", err)
		}
		p.PrintResult(ui.NewSuccessResult("Capture saved",
			ui.F("Camera", client.Device.Name),
			ui.F("File", path),
			ui.F("Size", fmt.Sprintf("%d bytes", size)),
		))
		return nil
	}

	p.PrintHeader("Scheduled capture", cmd.CommandPath(),
		ui.F("Camera", client.Device.Name),
		ui.F("Schedule", captureCron),
		ui.F("Directory", dir),
	)
	return runSchedule(ctx, p, captureCron, captureCount, shoot)
}

// troubleshootingTips splits a camera hint into one tip per line
func troubleshootingTips(err error) []string {
	var tips []string
	for _, line := range strings.Split(camera.GetTroubleshootingHint(err), "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "•"))
		if line == "" || line == "Troubleshooting:" {
			continue
		}
		tips = append(tips, line)
	}
	return tips
}

// captureOnce fetches one still and writes it into dir
func captureOnce(ctx context.Context, client *camera.Client, dir string) (string, int, error) {
	img, err := client.Capture(ctx)
	if err != nil {
		return "", 0, err
	}
	path, err := wizard.WriteImage(dir, client.Device.Address, img.Data, time.Now())
	return path, len(img.Data), err
}

// runSchedule runs job on schedule until ctx ends or limit successful runs
func runSchedule(ctx context.Context, p *ui.Printer, schedule string, limit int, job func() error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{}, 1)
	successes := 0

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		if err := job(); err != nil {
			return
		}
		successes++
		if limit > 0 && successes >= limit {
			select {
			case done <- struct{}{}:
			default:
			}
		}
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	p.Printf("  Capturing on schedule %q, press Ctrl+C to stop\n", schedule)
	c.Start()

	select {
	case <-ctx.Done():
	case <-done:
	}
	<-c.Stop().Done()
	return nil
}
