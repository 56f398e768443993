package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/wizard"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenDiscovery Screen = "discovery"
	ScreenSession   Screen = "session"
)

// Options configures the application
type Options struct {
	Controller *wizard.Controller

	// ScanDefaults pre-fill the scan form
	ScanDefaults discovery.ScanConfig

	// CaptureDir is where saved captures are written
	CaptureDir string

	// Context bounds the stream subscriptions of opened sessions
	Context context.Context
}

// AppModel is the top-level coordinator model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	DiscoveryModel DiscoveryModel
	SessionModel   SessionModel

	opts Options

	Width  int
	Height int
}

// NewAppModel creates the application starting on the discovery screen
func NewAppModel(opts Options) AppModel {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	return AppModel{
		CurrentScreen:  ScreenDiscovery,
		DiscoveryModel: NewDiscoveryModel(opts.Controller, opts.ScanDefaults),
		opts:           opts,
	}
}

// Init initializes the application
func (m AppModel) Init() tea.Cmd {
	return m.DiscoveryModel.Init()
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		updated, _ := m.DiscoveryModel.Update(msg)
		m.DiscoveryModel = updated.(DiscoveryModel)
		m.SessionModel.Width = msg.Width
		m.SessionModel.Height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.opts.Controller.Close()
			return m, tea.Quit
		}
		if m.CurrentScreen == ScreenDiscovery && msg.String() == "q" &&
			m.DiscoveryModel.Mode == modeBrowse && !m.DiscoveryModel.Scanning {
			m.opts.Controller.Close()
			return m, tea.Quit
		}
	}

	return m.updateCurrentScreen(msg)
}

// updateCurrentScreen routes updates to the currently active screen
func (m AppModel) updateCurrentScreen(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.CurrentScreen {
	case ScreenDiscovery:
		updated, c := m.DiscoveryModel.Update(msg)
		m.DiscoveryModel = updated.(DiscoveryModel)
		cmd = c

		if m.DiscoveryModel.Selected {
			return m.transitionTo(ScreenSession)
		}

	case ScreenSession:
		updated, c := m.SessionModel.Update(msg)
		m.SessionModel = updated.(SessionModel)
		cmd = c

		if m.SessionModel.IsBackRequested() {
			return m.transitionTo(ScreenDiscovery)
		}
	}

	return m, cmd
}

// transitionTo transitions to a new screen
func (m AppModel) transitionTo(screen Screen) (tea.Model, tea.Cmd) {
	m.CurrentScreen = screen

	switch screen {
	case ScreenSession:
		device := m.DiscoveryModel.SelectedDevice
		m.SessionModel = NewSessionModel(m.opts.Context, m.opts.Controller, device, m.opts.CaptureDir)
		m.SessionModel.Width = m.Width
		m.SessionModel.Height = m.Height
		return m, m.SessionModel.Init()

	case ScreenDiscovery:
		// The selection was saved on connect, so reload the saved list
		return m, m.DiscoveryModel.Reset()
	}

	return m, nil
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenDiscovery:
		return m.DiscoveryModel.View()
	case ScreenSession:
		return m.SessionModel.View()
	default:
		return "Unknown screen"
	}
}
