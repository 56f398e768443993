package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/espcam/internal/discovery"
)

// ScanProgress renders one line per range scan snapshot:
// a bar, the percentage and the number of cameras found so far.
type ScanProgress struct {
	Label string
	bar   progress.Model
}

// NewScanProgress creates a progress line sized for width
func NewScanProgress(label string, width int) *ScanProgress {
	barWidth := clampWidth(width) - 40
	if barWidth < 20 {
		barWidth = 20
	}
	if barWidth > 50 {
		barWidth = 50
	}
	return &ScanProgress{
		Label: label,
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(barWidth),
			progress.WithoutPercentage(),
		),
	}
}

// Render returns the line for state
func (p *ScanProgress) Render(state discovery.ScanState) string {
	percent := float64(state.ProgressPercent) / 100
	return lipgloss.NewStyle().PaddingLeft(2).Render(fmt.Sprintf("%s  %s  %3d%%  found %d",
		ProgressLabelStyle.Render(p.Label),
		p.bar.ViewAs(percent),
		state.ProgressPercent,
		len(state.Results),
	))
}
