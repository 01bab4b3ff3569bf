package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nodeedge/nodeedge/metrics"
)

// EngineStats is the subset of *engine.Engine the live view polls. Kept as
// an interface here (rather than importing the engine package directly)
// so the TUI has no hand in bridge lifecycle, only its reported counters.
type EngineStats interface {
	ID() string
	Metrics() metrics.Snapshot
}

var quitKeys = key.NewBinding(
	key.WithKeys("q", "ctrl+c", "esc"),
	key.WithHelp("q", "quit"),
)

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// EngineStateModel is a Bubble Tea model polling an engine's metrics
// snapshot on a fixed interval.
type EngineStateModel struct {
	engine   EngineStats
	snap     metrics.Snapshot
	quitting bool
}

// NewEngineStateModel creates a new engine-state model.
func NewEngineStateModel(engine EngineStats) EngineStateModel {
	return EngineStateModel{engine: engine}
}

// Init implements tea.Model.
func (m EngineStateModel) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m EngineStateModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		m.snap = m.engine.Metrics()
		return m, tick()
	}
	return m, nil
}

// View implements tea.Model.
func (m EngineStateModel) View() string {
	if m.quitting {
		return ""
	}

	var b []string
	b = append(b, TitleStyle.Render(fmt.Sprintf("Engine %s", m.engine.ID())))
	b = append(b, m.renderBoxes())
	b = append(b, HelpStyle.Render("Press q to quit"))

	out := ""
	for i, line := range b {
		if i > 0 {
			out += "\n"
		}
		out += line
	}
	return out
}

func (m EngineStateModel) renderBoxes() string {
	boxes := []string{
		m.renderStatBox("Requests Sent", m.snap.RequestsSent, highlightColor),
		m.renderStatBox("Results Received", m.snap.ResultsReceived, successColor),
		m.renderStatBox("JS Errors", m.snap.JavaScriptErrors, errorColor),
		m.renderStatBox("Protocol Errors", m.snap.ProtocolErrors, errorColor),
		m.renderStatBox("Pointers Outstanding", m.snap.PointersOutstanding, warningColor),
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, boxes...)
}

func (m EngineStateModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)
	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)
	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)
	return boxStyle.Render(content)
}

// RunEngineStateTUI runs the live engine-state TUI. data must implement
// EngineStats (an *engine.Engine satisfies this).
func RunEngineStateTUI(data any) error {
	engineData, ok := data.(EngineStats)
	if !ok {
		return fmt.Errorf("invalid data type for engine_state view")
	}
	model := NewEngineStateModel(engineData)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
