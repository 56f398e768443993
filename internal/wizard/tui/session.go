package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/session"
	"github.com/muurk/espcam/internal/wizard"
)

// Session messages carry their screen's updates channel so a late message
// from a session already left is ignored.
type sessionOpenedMsg struct {
	updates chan session.SessionState
	sess    *session.Session
	err     error
}

type sessionChangedMsg struct {
	updates chan session.SessionState
	state   session.SessionState
}

type captureDoneMsg struct {
	err error
}

type imageSavedMsg struct {
	path string
	err  error
}

type tickMsg time.Time

// sessionKeyMap defines key bindings for the session screen
type sessionKeyMap struct {
	Capture    key.Binding
	CloseImage key.Binding
	SaveImage  key.Binding
	Back       key.Binding
	Quit       key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k sessionKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Capture, k.CloseImage, k.SaveImage, k.Back, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k sessionKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Capture, k.CloseImage, k.SaveImage},
		{k.Back, k.Quit},
	}
}

// SessionModel shows one camera's connection and its captured image
type SessionModel struct {
	ctrl       *wizard.Controller
	ctx        context.Context
	captureDir string

	Device  discovery.Device
	State   session.SessionState
	updates chan session.SessionState

	Err       string
	SavedPath string

	backRequested bool

	Width   int
	Height  int
	Spinner spinner.Model
	Help    help.Model
	Keys    sessionKeyMap
}

// NewSessionModel creates the session screen for device. The session itself
// is opened by Init.
func NewSessionModel(ctx context.Context, ctrl *wizard.Controller, device discovery.Device, captureDir string) SessionModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	keys := sessionKeyMap{
		Capture: key.NewBinding(
			key.WithKeys("c", " "),
			key.WithHelp("c", "capture"),
		),
		CloseImage: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "close image"),
		),
		SaveImage: key.NewBinding(
			key.WithKeys("w"),
			key.WithHelp("w", "write image"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc", "b"),
			key.WithHelp("esc", "back"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}

	return SessionModel{
		ctrl:       ctrl,
		ctx:        ctx,
		captureDir: captureDir,
		Device:     device,
		State:      session.SessionState{Device: device, State: session.Probing},
		updates:    make(chan session.SessionState, 1),
		Spinner:    s,
		Help:       help.New(),
		Keys:       keys,
	}
}

// Init opens the session and starts listening for its changes
func (m SessionModel) Init() tea.Cmd {
	return tea.Batch(
		openSession(m.ctx, m.ctrl, m.Device, m.updates),
		waitForChange(m.updates),
		m.Spinner.Tick,
		tick(),
	)
}

// Update handles messages and updates the model
func (m SessionModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height

	case sessionOpenedMsg:
		if msg.updates != m.updates {
			return m, nil
		}
		if msg.err != nil {
			m.Err = msg.err.Error()
			m.State.State = session.Failed
			return m, nil
		}
		m.State = msg.sess.Snapshot()

	case sessionChangedMsg:
		if msg.updates != m.updates {
			return m, nil
		}
		m.State = msg.state
		return m, waitForChange(m.updates)

	case captureDoneMsg:
		// Capture failures are reported through the session's ErrorMessage
		m.Err = ""
		if errors.Is(msg.err, session.ErrNotConnected) {
			m.Err = "Camera is not connected"
		}

	case imageSavedMsg:
		if msg.err != nil {
			m.Err = msg.err.Error()
			return m, nil
		}
		m.SavedPath = msg.path

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SessionModel) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.Keys.Capture):
		if m.State.State != session.Connected {
			return m, nil
		}
		m.SavedPath = ""
		return m, capturePhoto(m.ctx, m.ctrl)

	case key.Matches(msg, m.Keys.CloseImage):
		m.ctrl.CloseCapturedImage()
		m.SavedPath = ""
		return m, nil

	case key.Matches(msg, m.Keys.SaveImage):
		if !m.State.HasCapturedImage() {
			return m, nil
		}
		return m, saveImage(m.ctrl, m.captureDir)

	case key.Matches(msg, m.Keys.Back):
		m.ctrl.LeaveSession()
		m.backRequested = true
		return m, nil

	case key.Matches(msg, m.Keys.Quit):
		m.ctrl.LeaveSession()
		return m, tea.Quit
	}
	return m, nil
}

// IsBackRequested reports whether the user left the session
func (m SessionModel) IsBackRequested() bool {
	return m.backRequested
}

// View renders the session screen
func (m SessionModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle(m.Device.Name))
	b.WriteString("\n")

	status := RenderState(m.State.State)
	if m.State.State == session.Probing || m.State.State == session.CaptureInProgress {
		status = m.Spinner.View() + " " + status
	}
	b.WriteString(RenderField("Status", status))
	b.WriteString("\n")
	b.WriteString(RenderField("Address", m.Device.Address))
	b.WriteString("\n")
	b.WriteString(RenderField("Stream", m.streamLine()))
	b.WriteString("\n")

	if m.State.HasCapturedImage() {
		img := m.State.CapturedImage
		info := fmt.Sprintf("%s  %s  %s", img.URL(), img.ContentType(), FormatBytes(img.Size()))
		b.WriteString("\n")
		b.WriteString(InfoBoxStyle.Render(RenderSuccess("Captured image") + "\n" + info))
		b.WriteString("\n")
	}

	if m.SavedPath != "" {
		b.WriteString("\n  ")
		b.WriteString(SubtitleStyle.Render("Saved to " + m.SavedPath))
		b.WriteString("\n")
	}

	errText := m.State.ErrorMessage
	if m.Err != "" {
		errText = m.Err
	}
	if errText != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(errText))
		b.WriteString("\n")
	}
	if m.State.State == session.Failed {
		b.WriteString("\n  Press esc to go back and select the camera again.\n")
	}

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}

func (m SessionModel) streamLine() string {
	switch {
	case m.State.StreamError != "":
		return WarningStyle.Render("lost: " + m.State.StreamError)
	case m.State.Frames == 0:
		return "waiting for first frame"
	}
	age := time.Since(m.State.LastFrameAt).Round(100 * time.Millisecond)
	return fmt.Sprintf("%d frames, last %s ago", m.State.Frames, age)
}

// notify forwards snapshots without blocking; a slow reader sees the latest
func notify(updates chan session.SessionState) func(session.SessionState) {
	return func(s session.SessionState) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}
}

func openSession(ctx context.Context, ctrl *wizard.Controller, device discovery.Device, updates chan session.SessionState) tea.Cmd {
	return func() tea.Msg {
		sess, err := ctrl.SelectDevice(ctx, device, notify(updates))
		return sessionOpenedMsg{updates: updates, sess: sess, err: err}
	}
}

func waitForChange(updates chan session.SessionState) tea.Cmd {
	return func() tea.Msg {
		return sessionChangedMsg{updates: updates, state: <-updates}
	}
}

func capturePhoto(ctx context.Context, ctrl *wizard.Controller) tea.Cmd {
	return func() tea.Msg {
		return captureDoneMsg{err: ctrl.CapturePhoto(ctx)}
	}
}

func saveImage(ctrl *wizard.Controller, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := ctrl.SaveCapturedImage(dir)
		return imageSavedMsg{path: path, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
