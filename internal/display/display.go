// Package display provides the terminal UI using Bubble Tea.
//
// The [UI] type keeps a status bar (assistant name, turn state, live
// partial transcript) and an input prompt at the bottom of the terminal.
// All other output is printed above via Program.Println, so concurrent
// writes never garble the display.
package display

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hammamikhairi/james/internal/domain"
	"github.com/hammamikhairi/james/internal/engine"
)

// ── Styles ───────────────────────────────────────────────────────

var (
	barBg = lipgloss.NewStyle().
		Background(lipgloss.Color("#27272a")).
		Foreground(lipgloss.Color("#a1a1aa"))

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#e4e4e7")).
			Bold(true)

	idleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a")).
			Italic(true)

	listeningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bbf7d0"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#fde68a"))

	interimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#a1a1aa")).
			Italic(true)

	sepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#52525b"))

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	// BannerStyle is the muted slate used for the startup banner.
	BannerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#94a3b8"))

	chatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#bae6fd"))

	primaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#d4d4d8"))

	secondaryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#71717a"))

	urgentOutputStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#fca5a5"))

	userInputEchoStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#a1a1aa"))
)

// ── UI ───────────────────────────────────────────────────────────

// Option configures the UI.
type Option func(*UI)

// WithPrompt sets the input prompt (plain text, no styling).
func WithPrompt(p string) Option {
	return func(u *UI) { u.prompt = p }
}

// WithBlankSubmit delivers empty lines on InputChan, so a bare Enter can
// mean something (ending a voice session).
func WithBlankSubmit() Option {
	return func(u *UI) { u.blank = true }
}

// UI manages the terminal through Bubble Tea.
//
// Call [NewUI] then [UI.Run] (blocking). Other goroutines may safely
// print and read from [UI.InputChan] after [UI.WaitReady] returns.
type UI struct {
	name    string
	prompt  string
	blank   bool
	program *tea.Program
	inputCh chan string
	readyCh chan struct{}
	quitCh  chan struct{}
	done    atomic.Bool
}

var _ engine.Notifier = (*UI)(nil)

// NewUI creates the display. Call Run to start.
func NewUI(name string, opts ...Option) *UI {
	u := &UI{
		name:    name,
		prompt:  strings.ToLower(name) + "> ",
		inputCh: make(chan string, 16),
		readyCh: make(chan struct{}),
		quitCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Println prints a line above the prompt. Before Run starts (or after
// it returns) it falls back to fmt.Println.
func (u *UI) Println(a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Println(a...)
	} else {
		fmt.Println(a...)
	}
}

// Printf prints formatted text above the prompt.
func (u *UI) Printf(format string, a ...interface{}) {
	if u.program != nil && !u.done.Load() {
		u.program.Printf(format, a...)
	} else {
		fmt.Printf(format+"\n", a...)
	}
}

// InputChan returns completed user-input lines.
func (u *UI) InputChan() <-chan string { return u.inputCh }

// ── Styled print helpers ─────────────────────────────────────────

// PrintChat prints an assistant line.
func (u *UI) PrintChat(text string) {
	u.Println(nameStyle.Render(u.name) + secondaryStyle.Render(": ") + chatStyle.Render(text))
}

// PrintUser prints what the user said.
func (u *UI) PrintUser(text string) {
	u.Println(secondaryStyle.Render("you: ") + primaryStyle.Render(text))
}

// PrintHint prints a dimmed line.
func (u *UI) PrintHint(text string) {
	u.Println(secondaryStyle.Render("  " + text))
}

// PrintUrgent prints an error line.
func (u *UI) PrintUrgent(text string) {
	u.Println(urgentOutputStyle.Render("  " + text))
}

// SetState updates the status bar.
func (u *UI) SetState(s domain.TurnState) { u.send(stateMsg(s)) }

func (u *UI) send(msg tea.Msg) {
	if u.program != nil && !u.done.Load() {
		u.program.Send(msg)
	}
}

// ── engine.Notifier ──────────────────────────────────────────────

func (u *UI) Activated(reason string) {
	u.PrintHint(fmt.Sprintf("(%s) listening, press Enter to stop", reason))
}

func (u *UI) Interim(text string) { u.send(interimMsg(text)) }

func (u *UI) Heard(text string) {
	u.send(interimMsg(""))
	u.PrintUser(text)
}

func (u *UI) Said(text string) { u.PrintChat(text) }

func (u *UI) Hint(msg string) { u.PrintHint(msg) }

func (u *UI) Ended(reason string) {
	u.send(interimMsg(""))
	u.PrintHint("session ended (" + reason + "), say my name to wake me")
}

// ── lifecycle ────────────────────────────────────────────────────

// WaitReady blocks until the Bubble Tea event loop is running.
func (u *UI) WaitReady() { <-u.readyCh }

// Quit tells Bubble Tea to exit.
func (u *UI) Quit() {
	if u.program != nil {
		u.program.Quit()
	}
}

// QuitChan is closed when Run returns.
func (u *UI) QuitChan() <-chan struct{} { return u.quitCh }

// Run starts the Bubble Tea event loop. Blocks until quit.
func (u *UI) Run() error {
	u.program = tea.NewProgram(newModel(u))
	_, err := u.program.Run()
	u.done.Store(true)
	close(u.quitCh)
	return err
}

// ── Bubble Tea model ─────────────────────────────────────────────

type (
	stateMsg   domain.TurnState
	interimMsg string
)

type model struct {
	name    string
	input   textinput.Model
	inputCh chan<- string
	readyCh chan struct{}
	blank   bool
	echoFn  func(string)
	state   domain.TurnState
	interim string
	width   int
}

func newModel(u *UI) model {
	ti := textinput.New()
	// Plain-text prompt: styled prompts add ANSI bytes that break the
	// textinput width math.
	ti.Prompt = u.prompt
	ti.PromptStyle = promptStyle
	ti.TextStyle = userInputEchoStyle
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#94a3b8"))
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	return model{
		name:    u.name,
		input:   ti,
		inputCh: u.inputCh,
		readyCh: u.readyCh,
		blank:   u.blank,
		echoFn: func(v string) {
			u.Println(promptStyle.Render(strings.TrimSpace(u.prompt)) + " " + userInputEchoStyle.Render(v))
		},
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		signalReady(m.readyCh),
		tea.SetWindowTitle(m.name),
	)
}

func signalReady(ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		close(ch)
		return nil
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			v := m.input.Value()
			m.input.Reset()
			if strings.TrimSpace(v) == "" {
				if m.blank {
					m.inputCh <- ""
				}
				return m, nil
			}
			m.inputCh <- v
			echoFn := m.echoFn
			return m, func() tea.Msg {
				echoFn(v)
				return nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - len(m.input.Prompt); w > 0 {
			m.input.Width = w
		}
		return m, nil

	case stateMsg:
		m.state = domain.TurnState(msg)
		if m.state != domain.TurnListening {
			m.interim = ""
		}
		return m, tea.SetWindowTitle(m.name + " · " + m.state.String())

	case interimMsg:
		m.interim = string(msg)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(m.renderBar())
	b.WriteString("\n\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m model) renderBar() string {
	parts := []string{nameStyle.Render(m.name), stateLabel(m.state)}
	if m.interim != "" {
		parts = append(parts, interimStyle.Render(truncate(m.interim, 60)))
	}
	content := " " + strings.Join(parts, sepStyle.Render("  │  ")) + " "

	w := m.width
	if w <= 0 {
		w = 80
	}
	return barBg.Width(w).Render(content)
}

func stateLabel(s domain.TurnState) string {
	switch s {
	case domain.TurnListening:
		return listeningStyle.Render("● listening")
	case domain.TurnMuted:
		return mutedStyle.Render("◆ speaking")
	default:
		return idleStyle.Render("○ asleep")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
