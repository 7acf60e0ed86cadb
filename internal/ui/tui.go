package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/msaeedsaeedi/deploytui/internal/domain"
)

var (
	colorActiveBlue = lipgloss.Color("39")
	colorDimGray    = lipgloss.Color("240")
	colorGreen      = lipgloss.Color("42")
	colorRed        = lipgloss.Color("196")
	colorYellow     = lipgloss.Color("220")
	colorWhite      = lipgloss.Color("255")

	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorActiveBlue).
			Padding(0, 2)
	styleDim     = lipgloss.NewStyle().Foreground(colorDimGray)
	styleSuccess = lipgloss.NewStyle().Foreground(colorGreen)
	styleFailure = lipgloss.NewStyle().Foreground(colorRed)
	styleRunning = lipgloss.NewStyle().Foreground(colorYellow)

	styleButton = lipgloss.NewStyle().
			Padding(0, 2).
			MarginRight(2).
			Border(lipgloss.NormalBorder()).
			BorderForeground(colorDimGray)
	styleButtonFocused = styleButton.
				BorderForeground(colorActiveBlue).
				Foreground(colorActiveBlue).
				Bold(true)

	styleLog    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDimGray)
	styleScreen = lipgloss.NewStyle().Margin(0, 1)
)

const (
	buttonValidate = iota
	buttonClear
	buttonCount
)

var buttonLabels = [buttonCount]string{
	buttonValidate: "Validate Prerequisites",
	buttonClear:    "Clear Output",
}

// Controller is the part of the session the TUI drives.
type Controller interface {
	StartRun() error
	ClearOutput()
}

type lineMsg struct{ text string }
type clearMsg struct{}
type completeMsg struct{ result domain.RunResult }
type errorMsg struct{ err *domain.RunError }
type rejectedMsg struct{ err error }
type tickMsg time.Time

type keyMap struct {
	Validate key.Binding
	Clear    key.Binding
	Focus    key.Binding
	Press    key.Binding
	Scroll   key.Binding
	Quit     key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Validate, k.Clear, k.Focus, k.Scroll, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Validate, k.Clear, k.Press}, {k.Focus, k.Scroll, k.Quit}}
}

func defaultKeyMap() keyMap {
	return keyMap{
		Validate: key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "validate")),
		Clear:    key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "clear")),
		Focus:    key.NewBinding(key.WithKeys("tab", "shift+tab"), key.WithHelp("tab", "focus")),
		Press:    key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "press")),
		Scroll:   key.NewBinding(key.WithKeys("pgup", "pgdown", "up", "down"), key.WithHelp("↑/↓ pgup/pgdn", "scroll")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

type Model struct {
	root         string
	stderrPrefix string
	ctrl         Controller

	keys     keyMap
	help     help.Model
	viewport viewport.Model

	lines    []string
	maxLines int
	focused  int

	running      bool
	runStarted   time.Time
	lastTickTime time.Time
	status       string
	statusStyle  lipgloss.Style

	width  int
	height int
}

func NewModel(root, stderrPrefix string) *Model {
	vp := viewport.New(80, 20)
	return &Model{
		root:         root,
		stderrPrefix: stderrPrefix,
		keys:         defaultKeyMap(),
		help:         help.New(),
		viewport:     vp,
		maxLines:     10000,
		status:       "Idle",
		statusStyle:  styleDim,
	}
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(time.Second/10, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case lineMsg:
		m.appendLine(msg.text)
		return m, nil

	case clearMsg:
		m.lines = m.lines[:0]
		m.viewport.SetContent("")
		m.viewport.GotoTop()
		return m, nil

	case completeMsg:
		m.running = false
		m.status, m.statusStyle = resultStatus(msg.result)
		return m, nil

	case errorMsg:
		m.running = false
		m.status = fmt.Sprintf("Error: %s", msg.err.Kind)
		m.statusStyle = styleFailure
		return m, nil

	case rejectedMsg:
		if errors.Is(msg.err, domain.ErrRunInProgress) {
			m.appendLine(domain.MsgRunInProgress)
			return m, nil
		}
		m.running = false
		m.status = "Error: " + msg.err.Error()
		m.statusStyle = styleFailure
		return m, nil

	case tickMsg:
		m.lastTickTime = time.Time(msg)
		if m.running {
			return m, tick()
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Validate):
			return m, m.startRun()
		case key.Matches(msg, m.keys.Clear):
			return m, m.clearOutput()
		case key.Matches(msg, m.keys.Focus):
			if msg.String() == "shift+tab" {
				m.focused = (m.focused + buttonCount - 1) % buttonCount
			} else {
				m.focused = (m.focused + 1) % buttonCount
			}
			return m, nil
		case key.Matches(msg, m.keys.Press):
			if m.focused == buttonValidate {
				return m, m.startRun()
			}
			return m, m.clearOutput()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// startRun asks the controller for a run off the event loop; the session
// reports back through the formatter.
func (m *Model) startRun() tea.Cmd {
	if m.running {
		m.appendLine(domain.MsgRunInProgress)
		return nil
	}
	if m.ctrl == nil {
		return nil
	}

	m.running = true
	m.runStarted = time.Now()
	m.lastTickTime = m.runStarted
	m.status = "Running..."
	m.statusStyle = styleRunning

	ctrl := m.ctrl
	return tea.Batch(func() tea.Msg {
		if err := ctrl.StartRun(); err != nil {
			return rejectedMsg{err: err}
		}
		return nil
	}, tick())
}

func (m *Model) clearOutput() tea.Cmd {
	if m.ctrl == nil {
		return nil
	}
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.ClearOutput()
		return nil
	}
}

func (m *Model) appendLine(text string) {
	if strings.HasPrefix(text, m.stderrPrefix) && m.stderrPrefix != "" {
		text = styleFailure.Render(text)
	}

	m.lines = append(m.lines, text)
	if len(m.lines) > m.maxLines {
		m.lines = m.lines[len(m.lines)-m.maxLines:]
	}

	follow := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	// title(3) + buttons(3) + status(1) + help(1) + log border(2)
	const chrome = 10
	m.viewport.Width = max(20, m.width-4)
	m.viewport.Height = max(5, m.height-chrome)
	m.help.Width = m.width
	m.viewport.GotoBottom()
}

func resultStatus(res domain.RunResult) (string, lipgloss.Style) {
	switch res.Classification {
	case domain.ClassificationSuccess:
		return fmt.Sprintf("Success (%s)", res.Duration.Round(time.Millisecond)), styleSuccess
	case domain.ClassificationWarning:
		return fmt.Sprintf("Warnings (%s)", res.Duration.Round(time.Millisecond)), styleRunning
	default:
		return fmt.Sprintf("Failed (Exit Code: %d)", res.ExitCode), styleFailure
	}
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	title := styleTitle.Render(domain.AppTitle)

	var buttons []string
	for i := 0; i < buttonCount; i++ {
		style := styleButton
		if i == m.focused {
			style = styleButtonFocused
		}
		buttons = append(buttons, style.Render(buttonLabels[i]))
	}
	buttonRow := lipgloss.JoinHorizontal(lipgloss.Top, buttons...)

	status := m.status
	if m.running && !m.runStarted.IsZero() {
		status = fmt.Sprintf("Running... %s", m.lastTickTime.Sub(m.runStarted).Round(100*time.Millisecond))
	}
	statusLine := styleDim.Render("Status: ") + m.statusStyle.Render(status) +
		styleDim.Render("   "+m.root)

	body := lipgloss.JoinVertical(lipgloss.Left,
		title,
		buttonRow,
		styleLog.Render(m.viewport.View()),
		statusLine,
		m.help.View(m.keys),
	)

	return styleScreen.Render(body)
}

// TUIFormatter adapts the bubbletea program to the session's handler
// interface. Events are delivered with Program.Send.
type TUIFormatter struct {
	model   *Model
	program *tea.Program
	ready   chan struct{}
	once    sync.Once
}

func NewTUIFormatter(root, stderrPrefix string) *TUIFormatter {
	return &TUIFormatter{model: NewModel(root, stderrPrefix), ready: make(chan struct{})}
}

// Bind connects the buttons to ctrl. It must be called before Run.
func (f *TUIFormatter) Bind(ctrl Controller) {
	f.model.ctrl = ctrl
}

func (f *TUIFormatter) Run(ctx context.Context) error {
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if ctx != nil {
		opts = append(opts, tea.WithContext(ctx))
	}

	f.program = tea.NewProgram(f.model, opts...)
	f.once.Do(func() { close(f.ready) })

	_, err := f.program.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

func (f *TUIFormatter) WaitReady(ctx context.Context) error {
	select {
	case <-f.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *TUIFormatter) send(msg tea.Msg) {
	if f.program != nil {
		f.program.Send(msg)
	}
}

func (f *TUIFormatter) OnLine(text string) {
	f.send(lineMsg{text: text})
}

func (f *TUIFormatter) OnClear() {
	f.send(clearMsg{})
}

func (f *TUIFormatter) OnComplete(result domain.RunResult) {
	f.send(completeMsg{result: result})
}

func (f *TUIFormatter) OnError(err *domain.RunError) {
	f.send(errorMsg{err: err})
}
