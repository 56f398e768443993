package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/muurk/espcam/internal/discovery"
)

func TestHeaderRender(t *testing.T) {
	h := NewHeader("Range scan", "espcam scan --base 10.0.0",
		F("Range", "10.0.0.1 - 10.0.0.20"),
		F("Timeout", "1s"),
	)
	h.Width = 80

	out := h.Render()

	for _, want := range []string{"RANGE SCAN", "espcam scan --base 10.0.0", "10.0.0.1 - 10.0.0.20", "Timeout:"} {
		if !strings.Contains(out, want) {
			t.Errorf("header missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "Range:") > strings.Index(out, "Timeout:") {
		t.Error("params should keep their order")
	}
}

func TestResultRender(t *testing.T) {
	tests := []struct {
		name   string
		result *Result
		want   []string
	}{
		{
			name:   "success",
			result: NewSuccessResult("Capture saved", F("Path", "captures/a.jpg"), F("Size", "12.0 KiB")),
			want:   []string{SuccessMarker, "SUCCESS", "Capture saved", "captures/a.jpg", "12.0 KiB"},
		},
		{
			name:   "failure",
			result: NewFailureResult("Capture failed", errors.New("connection refused"), "Check the camera is powered"),
			want:   []string{FailureMarker, "FAILED", "Error: connection refused", "Troubleshooting:", "Check the camera is powered"},
		},
		{
			name:   "warning",
			result: NewWarningResult("No cameras found", "Try a larger --timeout"),
			want:   []string{WarningMarker, "WARNING", "No cameras found", "Try a larger --timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.result.Width = 80
			out := tt.result.Render()
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("result missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestResultAddDetailKeepsOrder(t *testing.T) {
	r := NewSuccessResult("Connected").AddDetail("First", "1").AddDetail("Second", "2")
	r.Width = 80
	out := r.Render()

	if strings.Index(out, "First:") > strings.Index(out, "Second:") {
		t.Errorf("details out of order:\n%s", out)
	}
}

func TestScanProgressRender(t *testing.T) {
	p := NewScanProgress("Probing", 80)
	line := p.Render(discovery.ScanState{
		ProgressPercent: 42,
		Results:         []discovery.Device{discovery.NewDevice("192.168.4.3")},
	})

	if !strings.Contains(line, " 42%") {
		t.Errorf("line missing percentage: %q", line)
	}
	if !strings.Contains(line, "found 1") {
		t.Errorf("line missing found count: %q", line)
	}
	if strings.Contains(line, "\n") {
		t.Errorf("progress must stay on one line: %q", line)
	}
}

func TestPrinterNonInteractiveProgress(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)
	if p.Interactive() {
		t.Fatal("a buffer is not a terminal")
	}

	observe := p.ScanObserver("Probing")
	observe(discovery.ScanState{ProgressPercent: 50, Running: true})
	if buf.Len() != 0 {
		t.Errorf("intermediate snapshots should not print when piped, got %q", buf.String())
	}

	p.FinishProgress(discovery.ScanState{ProgressPercent: 100})
	if !strings.Contains(buf.String(), "100%") {
		t.Errorf("final progress missing: %q", buf.String())
	}

	buf.Reset()
	p.FinishProgress(discovery.ScanState{ProgressPercent: 100})
	if buf.Len() != 0 {
		t.Error("FinishProgress without a scan should print nothing")
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got := Confirm(strings.NewReader(tt.input), &out, "Remove camera?")
		if got != tt.want {
			t.Errorf("Confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Remove camera? [y/N]") {
			t.Errorf("prompt missing: %q", out.String())
		}
	}
}
