package tui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/espcam/internal/discovery"
	"github.com/muurk/espcam/internal/wizard"
)

// Messages for async operations
type savedLoadedMsg struct {
	devices []discovery.Device
	err     error
}

type scanProgressMsg discovery.ScanState

type scanCompleteMsg struct{}

type removeDoneMsg struct {
	address string
	err     error
}

// discoveryMode is what the keyboard currently drives
type discoveryMode int

const (
	modeBrowse discoveryMode = iota
	modeForm
	modeManual
)

// Scan form fields
const (
	fieldBase = iota
	fieldStart
	fieldEnd
	fieldCount
)

// browseKeyMap defines key bindings for the camera list
type browseKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Connect key.Binding
	Scan    key.Binding
	Manual  key.Binding
	Remove  key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k browseKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Connect, k.Scan, k.Manual, k.Remove, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k browseKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Connect},
		{k.Scan, k.Manual, k.Remove, k.Quit},
	}
}

// formKeyMap defines key bindings for the scan form and manual entry
type formKeyMap struct {
	Next    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k formKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Next, k.Confirm, k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k formKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Next, k.Confirm, k.Cancel}}
}

// scanningKeyMap defines key bindings while a scan runs
type scanningKeyMap struct {
	Cancel key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k scanningKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cancel}
}

// FullHelp returns keybindings for the expanded help view
func (k scanningKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Cancel}}
}

// deviceItem wraps a Device for use with bubbles/list
type deviceItem struct {
	device     discovery.Device
	discovered bool
	saved      bool
}

// FilterValue implements list.Item
func (d deviceItem) FilterValue() string {
	return d.device.Name + " " + d.device.Address
}

// deviceDelegate renders one camera per line with its source tags
type deviceDelegate struct{}

func (d deviceDelegate) Height() int { return 1 }

func (d deviceDelegate) Spacing() int { return 0 }

func (d deviceDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d deviceDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	di, ok := item.(deviceItem)
	if !ok {
		return
	}

	var tags []string
	if di.discovered {
		tags = append(tags, TagStyle.Render("found"))
	}
	if di.saved {
		tags = append(tags, TagStyle.Render("saved"))
	}

	line := fmt.Sprintf("%-32s %s", di.device.Name, strings.Join(tags, " "))
	if index == m.Index() {
		fmt.Fprint(w, SelectedMenuItemStyle.Render("→ "+line))
		return
	}
	fmt.Fprint(w, "  "+line)
}

// DiscoveryModel represents the camera discovery screen state
type DiscoveryModel struct {
	ctrl *wizard.Controller

	Mode       discoveryMode
	Scanning   bool
	ScanState  discovery.ScanState
	progressCh chan discovery.ScanState

	Saved      []discovery.Device
	DeviceList list.Model

	Form        [fieldCount]textinput.Model
	FormFocus   int
	ManualInput textinput.Model

	// Selected is set when the user picked a camera to connect to
	Selected       bool
	SelectedDevice discovery.Device

	Err    string
	Notice string

	Width        int
	Height       int
	Spinner      spinner.Model
	ProgressBar  progress.Model
	Help         help.Model
	Keys         browseKeyMap
	FormKeys     formKeyMap
	ScanningKeys scanningKeyMap
}

// NewDiscoveryModel creates the discovery screen with the scan form
// pre-filled from defaults.
func NewDiscoveryModel(ctrl *wizard.Controller, defaults discovery.ScanConfig) DiscoveryModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	var form [fieldCount]textinput.Model
	for i := range form {
		ti := textinput.New()
		ti.Width = 16
		ti.PromptStyle = BlurredInputStyle
		form[i] = ti
	}
	form[fieldBase].Prompt = "Base address: "
	form[fieldBase].Placeholder = "192.168.4"
	form[fieldBase].CharLimit = 11
	form[fieldBase].SetValue(defaults.BaseAddress)
	form[fieldStart].Prompt = "Start:        "
	form[fieldStart].CharLimit = 3
	form[fieldStart].SetValue(strconv.Itoa(defaults.StartRange))
	form[fieldEnd].Prompt = "End:          "
	form[fieldEnd].CharLimit = 3
	form[fieldEnd].SetValue(strconv.Itoa(defaults.EndRange))

	manual := textinput.New()
	manual.Prompt = "Address: "
	manual.Placeholder = "192.168.4.1"
	manual.CharLimit = 64
	manual.Width = 30

	progressBar := progress.New(progress.WithDefaultGradient())
	progressBar.Width = 40

	deviceList := list.New([]list.Item{}, deviceDelegate{}, 0, 0)
	deviceList.Title = "Cameras"
	deviceList.SetShowStatusBar(false)
	deviceList.SetShowHelp(false)
	deviceList.SetFilteringEnabled(false)
	deviceList.Styles.Title = TitleStyle

	keys := browseKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "move down"),
		),
		Connect: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "connect"),
		),
		Scan: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "scan"),
		),
		Manual: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "manual address"),
		),
		Remove: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "remove saved"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q"),
			key.WithHelp("q", "quit"),
		),
	}

	formKeys := formKeyMap{
		Next: key.NewBinding(
			key.WithKeys("tab", "shift+tab"),
			key.WithHelp("tab", "next field"),
		),
		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "confirm"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "cancel"),
		),
	}

	scanningKeys := scanningKeyMap{
		Cancel: key.NewBinding(
			key.WithKeys("esc", "c"),
			key.WithHelp("esc/c", "cancel scan"),
		),
	}

	return DiscoveryModel{
		ctrl:         ctrl,
		Mode:         modeBrowse,
		DeviceList:   deviceList,
		Form:         form,
		ManualInput:  manual,
		Spinner:      s,
		ProgressBar:  progressBar,
		Help:         help.New(),
		Keys:         keys,
		FormKeys:     formKeys,
		ScanningKeys: scanningKeys,
	}
}

// Init loads the saved camera list
func (m DiscoveryModel) Init() tea.Cmd {
	return tea.Batch(loadSaved(m.ctrl), m.Spinner.Tick)
}

// Update handles messages and updates the model
func (m DiscoveryModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case m.Mode == modeForm:
			return m.updateForm(msg)
		case m.Mode == modeManual:
			return m.updateManual(msg)
		case m.Scanning:
			return m.updateScanning(msg)
		}
		return m.updateBrowse(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.DeviceList.SetWidth(msg.Width - 4)
		m.DeviceList.SetHeight(max(5, msg.Height-16))

	case savedLoadedMsg:
		if msg.err != nil {
			m.Err = fmt.Sprintf("Failed to load saved cameras: %v", msg.err)
		} else {
			m.Saved = msg.devices
		}
		m.refreshList()

	case scanProgressMsg:
		m.ScanState = discovery.ScanState(msg)
		m.Scanning = m.ScanState.Running
		m.refreshList()
		return m, listenForProgress(m.progressCh)

	case scanCompleteMsg:
		m.Scanning = false
		m.progressCh = nil
		if m.ScanState.ErrorMessage != "" {
			m.Notice = m.ScanState.ErrorMessage
		} else {
			m.Notice = fmt.Sprintf("Found %d camera(s)", len(m.ScanState.Results))
		}

	case removeDoneMsg:
		if msg.err != nil {
			m.Err = fmt.Sprintf("Failed to remove %s: %v", msg.address, msg.err)
			return m, nil
		}
		m.Notice = "Removed " + msg.address
		return m, loadSaved(m.ctrl)

	case spinner.TickMsg:
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m DiscoveryModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, m.Keys.Connect):
		if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok {
			m.Selected = true
			m.SelectedDevice = item.device
		}
		return m, nil

	case key.Matches(msg, m.Keys.Scan):
		m.Mode = modeForm
		m.Err = ""
		m.focusField(fieldBase)
		return m, textinput.Blink

	case key.Matches(msg, m.Keys.Manual):
		m.Mode = modeManual
		m.Err = ""
		m.ManualInput.SetValue("")
		m.ManualInput.Focus()
		return m, textinput.Blink

	case key.Matches(msg, m.Keys.Remove):
		if item, ok := m.DeviceList.SelectedItem().(deviceItem); ok && item.saved {
			return m, removeSaved(m.ctrl, item.device.Address)
		}
		return m, nil
	}

	m.DeviceList, cmd = m.DeviceList.Update(msg)
	return m, cmd
}

func (m DiscoveryModel) updateForm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.String() {
	case "esc":
		m.Mode = modeBrowse
		m.blurForm()
		return m, nil

	case "tab", "down":
		m.focusField((m.FormFocus + 1) % fieldCount)
		return m, nil

	case "shift+tab", "up":
		m.focusField((m.FormFocus + fieldCount - 1) % fieldCount)
		return m, nil

	case "enter":
		cfg, err := m.scanConfig()
		if err != nil {
			m.Err = err.Error()
			return m, nil
		}
		m.Mode = modeBrowse
		m.blurForm()
		return m.startScan(cfg)
	}

	m.Form[m.FormFocus], cmd = m.Form[m.FormFocus].Update(msg)
	return m, cmd
}

func (m DiscoveryModel) updateManual(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg.String() {
	case "esc":
		m.Mode = modeBrowse
		m.ManualInput.Blur()
		return m, nil

	case "enter":
		address, err := discovery.NormalizeAddress(m.ManualInput.Value())
		if err != nil {
			m.Err = err.Error()
			return m, nil
		}
		m.Mode = modeBrowse
		m.ManualInput.Blur()
		m.Selected = true
		m.SelectedDevice = discovery.NewDevice(address)
		return m, nil
	}

	m.ManualInput, cmd = m.ManualInput.Update(msg)
	return m, cmd
}

func (m DiscoveryModel) updateScanning(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.ScanningKeys.Cancel) {
		m.ctrl.CancelScan()
	}
	return m, nil
}

func (m *DiscoveryModel) focusField(i int) {
	m.blurForm()
	m.FormFocus = i
	m.Form[i].Focus()
	m.Form[i].PromptStyle = FocusedInputStyle
}

func (m *DiscoveryModel) blurForm() {
	for i := range m.Form {
		m.Form[i].Blur()
		m.Form[i].PromptStyle = BlurredInputStyle
	}
}

// scanConfig parses and validates the form
func (m DiscoveryModel) scanConfig() (discovery.ScanConfig, error) {
	start, err := strconv.Atoi(strings.TrimSpace(m.Form[fieldStart].Value()))
	if err != nil {
		return discovery.ScanConfig{}, fmt.Errorf("start must be a number")
	}
	end, err := strconv.Atoi(strings.TrimSpace(m.Form[fieldEnd].Value()))
	if err != nil {
		return discovery.ScanConfig{}, fmt.Errorf("end must be a number")
	}
	cfg := discovery.ScanConfig{
		BaseAddress: strings.TrimSpace(m.Form[fieldBase].Value()),
		StartRange:  start,
		EndRange:    end,
	}
	return cfg, cfg.Validate()
}

func (m DiscoveryModel) startScan(cfg discovery.ScanConfig) (tea.Model, tea.Cmd) {
	m.Scanning = true
	m.Err = ""
	m.Notice = ""
	m.ScanState = discovery.ScanState{Running: true}
	m.refreshList()

	// One snapshot per probe plus one on abort; the buffer never fills
	m.progressCh = make(chan discovery.ScanState, cfg.Total()+1)
	return m, tea.Batch(performScan(m.ctrl, cfg, m.progressCh), m.Spinner.Tick)
}

// refreshList merges scan results and saved cameras, scan results first
func (m *DiscoveryModel) refreshList() {
	saved := make(map[string]bool, len(m.Saved))
	for _, d := range m.Saved {
		saved[d.Address] = true
	}

	var items []list.Item
	seen := make(map[string]bool)
	for _, d := range m.ScanState.Results {
		items = append(items, deviceItem{device: d, discovered: true, saved: saved[d.Address]})
		seen[d.Address] = true
	}
	for _, d := range m.Saved {
		if seen[d.Address] {
			continue
		}
		items = append(items, deviceItem{device: d, saved: true})
	}
	m.DeviceList.SetItems(items)
}

// Reset clears the selection so the screen can be shown again
func (m *DiscoveryModel) Reset() tea.Cmd {
	m.Selected = false
	m.SelectedDevice = discovery.Device{}
	return loadSaved(m.ctrl)
}

// View renders the discovery screen
func (m DiscoveryModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var b strings.Builder
	b.WriteString(m.renderScanPanel(width))
	b.WriteString("\n")

	switch m.Mode {
	case modeManual:
		b.WriteString(RenderSubtitle("Connect to a camera by address"))
		b.WriteString("\n\n  ")
		b.WriteString(m.ManualInput.View())
		b.WriteString("\n")
	default:
		if len(m.DeviceList.Items()) == 0 {
			b.WriteString("\n  ")
			b.WriteString(WarningStyle.Render("No cameras yet"))
			b.WriteString("\n\n  Press s to scan a range or m to enter an address.\n")
		} else {
			b.WriteString(m.DeviceList.View())
		}
	}

	if m.Err != "" {
		b.WriteString("\n")
		b.WriteString(RenderError(m.Err))
	} else if m.Notice != "" {
		b.WriteString("\n  ")
		b.WriteString(SubtitleStyle.Render(m.Notice))
	}
	b.WriteString("\n")

	var helpText string
	switch {
	case m.Mode != modeBrowse:
		helpText = m.Help.View(m.FormKeys)
	case m.Scanning:
		helpText = m.Help.View(m.ScanningKeys)
	default:
		helpText = m.Help.View(m.Keys)
	}

	return RenderApplicationContainer(b.String(), helpText, m.Width, m.Height)
}

func (m DiscoveryModel) renderScanPanel(width int) string {
	if m.Mode == modeForm {
		var b strings.Builder
		b.WriteString(RenderSubtitle("Scan an address range"))
		b.WriteString("\n")
		for i := range m.Form {
			b.WriteString("\n")
			b.WriteString(m.Form[i].View())
		}
		return InfoBoxStyle.Render(b.String())
	}

	if !m.Scanning {
		return ""
	}

	title := fmt.Sprintf("%s SCANNING FOR CAMERAS", m.Spinner.View())
	found := fmt.Sprintf("Found so far: %d", len(m.ScanState.Results))
	content := lipgloss.JoinVertical(lipgloss.Center,
		TitleStyle.Render(title),
		m.ProgressBar.ViewAs(float64(m.ScanState.ProgressPercent)/100.0),
		"",
		SubtitleStyle.Render(found),
	)
	return lipgloss.Place(width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

// loadSaved reads the saved camera list
func loadSaved(ctrl *wizard.Controller) tea.Cmd {
	return func() tea.Msg {
		devices, err := ctrl.SavedDevices()
		return savedLoadedMsg{devices: devices, err: err}
	}
}

func removeSaved(ctrl *wizard.Controller, address string) tea.Cmd {
	return func() tea.Msg {
		return removeDoneMsg{address: address, err: ctrl.RemoveSaved(address)}
	}
}

// listenForProgress waits for the next scan snapshot
func listenForProgress(progressCh <-chan discovery.ScanState) tea.Cmd {
	return func() tea.Msg {
		state, ok := <-progressCh
		if !ok {
			return scanCompleteMsg{}
		}
		return scanProgressMsg(state)
	}
}

// performScan runs the scan in the background, feeding progressCh
func performScan(ctrl *wizard.Controller, cfg discovery.ScanConfig, progressCh chan discovery.ScanState) tea.Cmd {
	return func() tea.Msg {
		go func() {
			defer close(progressCh)
			_, _ = ctrl.Scan(context.Background(), cfg, func(s discovery.ScanState) {
				progressCh <- s
			})
		}()
		return listenForProgress(progressCh)()
	}
}
