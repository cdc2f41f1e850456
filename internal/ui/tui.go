// Package ui implements the terminal chat window: a read-only scrollback
// transcript plus a single-line composer, built on the same bubbletea /
// bubbles / lipgloss stack the retrieved pack's samcharles93 TUI uses for
// this exact shape of component.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"rumorpeer/internal/engine"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	transcriptStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#6B7280")).
			Padding(0, 1)

	inputStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#10B981")).
			Padding(0, 1)

	ownLineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	peerLineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
)

// NewTranscript returns a buffered channel the render callback can be built
// around: deliveries that would block are dropped rather than stalling the
// engine's event loop, since a transcript missing one line under extreme
// UI lag is preferable to wedging the gossip engine.
func NewTranscript() chan engine.Line {
	return make(chan engine.Line, 256)
}

// RenderFunc adapts a transcript channel into the engine.RenderFunc the
// engine calls from inside its event loop.
func RenderFunc(transcript chan engine.Line) engine.RenderFunc {
	return func(l engine.Line) {
		select {
		case transcript <- l:
		default:
		}
	}
}

type lineMsg engine.Line

// Model is the bubbletea model for the chat window.
type Model struct {
	self       string
	eng        *engine.Engine
	transcript chan engine.Line

	lines    []engine.Line
	viewport viewport.Model
	input    textinput.Model

	ready         bool
	width, height int
}

// New builds a chat window model bound to eng. self is used only to style
// the local peer's own lines distinctly; it does not affect protocol
// behavior.
func New(self string, eng *engine.Engine, transcript chan engine.Line) *Model {
	ti := textinput.New()
	ti.Placeholder = "say something..."
	ti.Focus()
	ti.CharLimit = 2048
	ti.Width = 60

	vp := viewport.New(80, 20)

	return &Model{self: self, eng: eng, transcript: transcript, viewport: vp, input: ti}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listenForLines())
}

func (m *Model) listenForLines() tea.Cmd {
	return func() tea.Msg {
		return lineMsg(<-m.transcript)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var inputCmd, viewportCmd tea.Cmd
	m.input, inputCmd = m.input.Update(msg)
	m.viewport, viewportCmd = m.viewport.Update(msg)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				m.eng.SubmitLine(text)
				m.input.Reset()
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.viewport.Width = m.width - 4
		m.viewport.Height = m.height - 7
		m.input.Width = m.width - 6
		m.renderTranscript()

	case lineMsg:
		m.lines = append(m.lines, engine.Line(msg))
		m.renderTranscript()
		m.viewport.GotoBottom()
		return m, m.listenForLines()
	}

	return m, tea.Batch(inputCmd, viewportCmd)
}

func (m *Model) renderTranscript() {
	var b strings.Builder
	for _, l := range m.lines {
		b.WriteString(m.renderLine(l))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())
}

func (m *Model) renderLine(l engine.Line) string {
	if l.Own || l.Origin == m.self {
		return fmt.Sprintf("%s %s", ownLineStyle.Render("[you]"), l.Text)
	}
	return fmt.Sprintf("%s %s", peerLineStyle.Render("["+l.Origin+"]"), l.Text)
}

func (m *Model) View() string {
	if !m.ready {
		return "\n  starting up...\n"
	}

	header := headerStyle.Render(fmt.Sprintf("rumorpeer — %s", m.self))
	transcript := transcriptStyle.Width(m.width - 2).Height(m.viewport.Height + 2).Render(m.viewport.View())
	input := inputStyle.Width(m.width - 2).Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, transcript, input)
}
