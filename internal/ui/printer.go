package ui

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/muurk/espcam/internal/discovery"
)

// Printer writes command output. On a terminal it redraws the scan
// progress line in place; otherwise progress is only printed once done.
type Printer struct {
	out         io.Writer
	width       int
	interactive bool
	progress    *ScanProgress
}

// NewPrinter creates a Printer for w. If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	interactive := false
	if f, ok := w.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{
		out:         w,
		width:       GetTerminalWidth(),
		interactive: interactive,
	}
}

// Interactive reports whether output goes to a terminal
func (p *Printer) Interactive() bool {
	return p.interactive
}

// Printf writes formatted text
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Newline prints an empty line
func (p *Printer) Newline() {
	_, _ = fmt.Fprintln(p.out)
}

// PrintHeader prints a command header box
func (p *Printer) PrintHeader(title, command string, params ...Field) {
	h := NewHeader(title, command, params...)
	h.Width = p.width
	p.Println(h.Render())
}

// PrintResult prints a result box
func (p *Printer) PrintResult(r *Result) {
	r.Width = p.width
	p.Println(r.Render())
}

// ScanObserver returns a scan observer that draws progress. Call
// FinishProgress after the scan returns.
func (p *Printer) ScanObserver(label string) discovery.Observer {
	p.progress = NewScanProgress(label, p.width)
	return func(state discovery.ScanState) {
		if p.interactive {
			p.Printf("\r%s", p.progress.Render(state))
		}
	}
}

// FinishProgress ends the progress line with the final state
func (p *Printer) FinishProgress(state discovery.ScanState) {
	if p.progress == nil {
		return
	}
	if p.interactive {
		p.Printf("\r%s\n", p.progress.Render(state))
	} else {
		p.Println(p.progress.Render(state))
	}
	p.progress = nil
}
