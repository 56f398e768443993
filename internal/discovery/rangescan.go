package discovery

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/espcam/internal/logging"
)

const (
	// MinRange and MaxRange bound the last octet of a candidate address
	MinRange = 1
	MaxRange = 254

	// NoDevicesMessage is reported when a completed scan found nothing
	NoDevicesMessage = "no devices found in range"

	// CancelledMessage is reported for an aborted scan when ReportCancel is set
	CancelledMessage = "scan cancelled"
)

// ErrInvalidRange is returned for a ScanConfig that cannot be scanned
var ErrInvalidRange = errors.New("invalid scan range")

// ScanConfig describes the candidate addresses base.start .. base.end
type ScanConfig struct {
	BaseAddress string `yaml:"base_address"`
	StartRange  int    `yaml:"start_range"`
	EndRange    int    `yaml:"end_range"`
}

// DefaultScanConfig matches the address plan of a camera running its own access point
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		BaseAddress: "192.168.4",
		StartRange:  1,
		EndRange:    20,
	}
}

// Validate checks 1 <= start <= end <= 254 and a three-octet base address
func (c ScanConfig) Validate() error {
	octets := strings.Split(c.BaseAddress, ".")
	if len(octets) != 3 {
		return fmt.Errorf("%w: base address %q must have three octets (e.g. 192.168.4)", ErrInvalidRange, c.BaseAddress)
	}
	for _, o := range octets {
		n, err := strconv.Atoi(o)
		if err != nil || n < 0 || n > 255 {
			return fmt.Errorf("%w: base address %q has invalid octet %q", ErrInvalidRange, c.BaseAddress, o)
		}
	}

	if c.StartRange < MinRange || c.EndRange > MaxRange || c.StartRange > c.EndRange {
		return fmt.Errorf("%w: need %d <= start (%d) <= end (%d) <= %d",
			ErrInvalidRange, MinRange, c.StartRange, c.EndRange, MaxRange)
	}

	return nil
}

// Address returns the candidate address for index i
func (c ScanConfig) Address(i int) string {
	return c.BaseAddress + "." + strconv.Itoa(i)
}

// Total returns the number of candidate addresses
func (c ScanConfig) Total() int {
	return c.EndRange - c.StartRange + 1
}

// ScanState is a snapshot of a range scan
type ScanState struct {
	Results         []Device
	ProgressPercent int
	Running         bool
	ErrorMessage    string
}

func (s ScanState) clone() ScanState {
	out := s
	out.Results = append([]Device(nil), s.Results...)
	return out
}

// Observer receives a snapshot after every probe and once more on abort.
// It is called on the scanning goroutine.
type Observer func(ScanState)

// Progress returns round(100 * done / total), rounding halves up
func Progress(done, total int) int {
	if total <= 0 {
		return 100
	}
	return (200*done + total) / (2 * total)
}

// RangeScanner probes a range of addresses one at a time.
//
// Probes are never issued concurrently: the access point firmware on these
// cameras drops connections when several arrive at once, so probe i+1 is
// only sent after probe i has resolved.
type RangeScanner struct {
	Prober Prober

	// ReportCancel sets CancelledMessage on an aborted scan
	ReportCancel bool
}

// NewRangeScanner creates a scanner driving prober
func NewRangeScanner(prober Prober) *RangeScanner {
	return &RangeScanner{Prober: prober}
}

// Scan probes cfg's addresses in ascending order and returns the final state.
// Cancelling ctx stops the scan between probes and aborts the in-flight one;
// the partial results found so far are kept.
func (s *RangeScanner) Scan(ctx context.Context, cfg ScanConfig, observe Observer) (ScanState, error) {
	if err := cfg.Validate(); err != nil {
		return ScanState{}, err
	}
	if observe == nil {
		observe = func(ScanState) {}
	}
	prober := s.Prober
	if prober == nil {
		prober = NewHTTPProber(DefaultProbeTimeout)
	}

	logging.Info("Range scan started",
		zap.String("base", cfg.BaseAddress),
		zap.Int("start", cfg.StartRange),
		zap.Int("end", cfg.EndRange),
	)

	state := ScanState{Running: true}
	total := cfg.Total()

	for i := cfg.StartRange; i <= cfg.EndRange; i++ {
		if ctx.Err() != nil {
			return s.abort(state, observe), nil
		}

		address := cfg.Address(i)
		reachable := prober.Probe(ctx, address)
		if ctx.Err() != nil {
			return s.abort(state, observe), nil
		}

		if reachable {
			state.Results = append(state.Results, NewDevice(address))
		}
		state.ProgressPercent = Progress(i-cfg.StartRange+1, total)

		if i == cfg.EndRange {
			state = finish(state)
		}

		logging.LogScanProgress(state.ProgressPercent, len(state.Results))
		observe(state.clone())
	}

	logging.Info("Range scan finished",
		zap.Int("found", len(state.Results)),
		zap.String("message", state.ErrorMessage),
	)

	return state.clone(), nil
}

func finish(state ScanState) ScanState {
	if len(state.Results) == 0 {
		state.ErrorMessage = NoDevicesMessage
	}
	state.Running = false
	state.ProgressPercent = 100
	return state
}

func (s *RangeScanner) abort(state ScanState, observe Observer) ScanState {
	state.Running = false
	state.ProgressPercent = 100
	if s.ReportCancel {
		state.ErrorMessage = CancelledMessage
	}

	logging.Info("Range scan cancelled", zap.Int("found", len(state.Results)))
	observe(state.clone())
	return state.clone()
}
