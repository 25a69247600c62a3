package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/voiceloop-ai/voiceloop-core/core"
)

type (
	turnMsg    orchestration.Turn
	stateMsg   orchestration.State
	interimMsg string
	modeMsg    struct {
		mode         orchestration.Mode
		confirmation string
	}
	fatalMsg struct{ err error }
	tickMsg  time.Time
)

var (
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Italic(true)
	interimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

type model struct {
	coordinator *orchestration.Coordinator

	viewport  viewport.Model
	input     textinput.Model
	spinner   spinner.Model
	turns     []orchestration.Turn
	interim   string
	state     orchestration.State
	lastError error

	width  int
	height int
	ready  bool
}

func newModel(coordinator *orchestration.Coordinator) model {
	input := textinput.New()
	input.Placeholder = "Type a message, or just speak"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return model{
		coordinator: coordinator,
		input:       input,
		spinner:     sp,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEsc:
			m.coordinator.EmergencyStop()
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.coordinator.SubmitText(text)
				m.input.Reset()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 4
		}
		m.viewport.SetContent(m.renderTurns())

	case turnMsg:
		m.turns = append(m.turns, orchestration.Turn(msg))
		m.interim = ""
		m.viewport.SetContent(m.renderTurns())
		m.viewport.GotoBottom()

	case stateMsg:
		m.state = orchestration.State(msg)

	case interimMsg:
		m.interim = string(msg)
		m.viewport.SetContent(m.renderTurns())
		m.viewport.GotoBottom()

	case modeMsg:
		// The confirmation also arrives as a system turn; nothing extra to
		// render here.

	case fatalMsg:
		m.lastError = msg.err
		return m, tea.Quit

	case tickMsg:
		cmds = append(cmds, tick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return "starting..."
	}

	status := m.renderStatus()
	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), status, m.input.View())
}

func (m model) renderTurns() string {
	width := max(m.width-2, 20)

	var b strings.Builder
	for _, turn := range m.turns {
		var style lipgloss.Style
		var label string
		switch turn.Role {
		case orchestration.TurnRoleUser:
			style, label = userStyle, "you"
		case orchestration.TurnRoleAgent:
			style, label = agentStyle, "agent"
		default:
			style, label = systemStyle, "system"
		}

		b.WriteString(style.Render(label+":") + " ")
		b.WriteString(wordwrap.String(turn.Text, width))
		b.WriteString("\n\n")
	}

	if m.interim != "" {
		b.WriteString(interimStyle.Render(wordwrap.String(m.interim+"...", width)))
		b.WriteString("\n")
	}

	return b.String()
}

func (m model) renderStatus() string {
	if m.lastError != nil {
		return errorStyle.Render("error: " + m.lastError.Error())
	}

	parts := []string{string(m.state.Mode)}

	switch {
	case m.state.IsProcessing && !m.state.IsResponding:
		parts = append(parts, m.spinner.View()+"thinking")
	case m.state.IsResponding || m.state.IsAudioPlaying:
		parts = append(parts, "speaking")
	case m.state.Phase == orchestration.PhaseCooldown:
		if remaining := time.Until(m.state.CooldownUntil); remaining > 0 {
			parts = append(parts, fmt.Sprintf("cooldown %.1fs", remaining.Seconds()))
		}
	case m.state.IsMicrophonePaused:
		parts = append(parts, "mic paused")
	default:
		parts = append(parts, "listening")
	}

	return statusStyle.Render(strings.Join(parts, " · "))
}
