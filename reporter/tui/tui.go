// Package tui implements a live Bubble Tea dashboard reporter, one row
// per Client, updating as events arrive on the bus. Grounded on the
// standard Bubble Tea model shape (Init/Update/View, tea.WindowSizeMsg
// handling, a quit keybinding) with a lipgloss color palette and box
// styles, adapted to render a model that mutates as bus events stream
// in by funnelling each Event through tea.Program.Send as a tea.Msg.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/qunitjs/qtap/types"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	successColor = lipgloss.Color("#10B981")
	warningColor = lipgloss.Color("#F59E0B")
	errorColor   = lipgloss.Color("#EF4444")
	mutedColor   = lipgloss.Color("#6B7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	helpStyle  = lipgloss.NewStyle().Foreground(mutedColor).MarginTop(1)
	labelStyle = lipgloss.NewStyle().Foreground(mutedColor).Width(18)
)

type quitKeys struct {
	Quit key.Binding
}

var keys = quitKeys{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c")),
}

type rowState string

const (
	rowLaunching rowState = "launching"
	rowOnline    rowState = "online"
	rowPassed    rowState = "passed"
	rowFailed    rowState = "failed"
	rowBailed    rowState = "bailed"
)

type row struct {
	displayName string
	testFile    string
	state       rowState
	summary     string
}

// Model is the Bubble Tea model driving the dashboard. It is
// value-typed per Bubble Tea convention; Update returns the mutated
// copy.
type Model struct {
	rows     map[string]row
	order    []string
	finished bool
	finish   types.FinishEvent
	quitting bool
}

// NewModel creates an empty dashboard model.
func NewModel() Model {
	return Model{rows: make(map[string]row)}
}

// eventMsg wraps a bus event as a tea.Msg.
type eventMsg struct{ event types.Event }

// Init implements tea.Model.
func (m Model) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	case eventMsg:
		m.apply(msg.event)
		if _, ok := msg.event.(types.FinishEvent); ok {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) apply(e types.Event) {
	switch ev := e.(type) {
	case types.ClientEvent:
		if _, ok := m.rows[ev.ClientID]; !ok {
			m.order = append(m.order, ev.ClientID)
		}
		r := m.rows[ev.ClientID]
		r.displayName = ev.BrowserName
		r.testFile = ev.TestFile
		r.state = rowLaunching
		m.rows[ev.ClientID] = r
	case types.OnlineEvent:
		r := m.rows[ev.ClientID]
		r.state = rowOnline
		m.rows[ev.ClientID] = r
	case types.ResultEvent:
		r := m.rows[ev.ClientID]
		if ev.OK {
			r.state = rowPassed
		} else {
			r.state = rowFailed
		}
		r.summary = fmt.Sprintf("%d/%d passed", ev.Passed, ev.Total)
		m.rows[ev.ClientID] = r
	case types.BailEvent:
		r := m.rows[ev.ClientID]
		r.state = rowBailed
		r.summary = ev.Reason
		m.rows[ev.ClientID] = r
	case types.FinishEvent:
		m.finished = true
		m.finish = ev
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b []byte
	b = append(b, titleStyle.Render("qtap")+"\n"...)

	for _, id := range m.order {
		r := m.rows[id]
		b = append(b, fmt.Sprintf("%s %s\n", stateStyle(r.state).Render(string(r.state)), labelStyle.Render(r.displayName+" "+r.testFile)+" "+r.summary)...)
	}

	if m.finished {
		status := "PASS"
		style := stateStyle(rowPassed)
		if !m.finish.OK {
			status = "FAIL"
			style = stateStyle(rowFailed)
		}
		b = append(b, "\n"+style.Render(status)+fmt.Sprintf(" %d total, %d passed, %d failed\n", m.finish.Total, m.finish.Passed, m.finish.Failed)...)
	}

	b = append(b, helpStyle.Render("Press q or Ctrl+C to quit")...)
	return string(b)
}

func stateStyle(s rowState) lipgloss.Style {
	switch s {
	case rowPassed, rowOnline:
		return lipgloss.NewStyle().Foreground(successColor)
	case rowFailed, rowBailed:
		return lipgloss.NewStyle().Foreground(errorColor)
	case rowLaunching:
		return lipgloss.NewStyle().Foreground(warningColor)
	default:
		return lipgloss.NewStyle()
	}
}

// Reporter drives a running tea.Program from bus events. New starts the
// program, so it must be called before the bus begins publishing; Wait
// blocks until the program exits (on FinishEvent or a user quit keypress).
type Reporter struct {
	program *tea.Program
	done    chan struct{}
}

// New creates and starts the dashboard program.
func New() *Reporter {
	p := tea.NewProgram(NewModel(), tea.WithAltScreen())
	r := &Reporter{program: p, done: make(chan struct{})}
	go func() {
		_, _ = p.Run()
		close(r.done)
	}()
	return r
}

// Handle implements bus.Subscriber by forwarding the event into the
// running Bubble Tea event loop.
func (r *Reporter) Handle(e types.Event) {
	r.program.Send(eventMsg{event: e})
}

// Wait blocks until the dashboard program exits.
func (r *Reporter) Wait() {
	<-r.done
}

// Quit requests the dashboard exit, e.g. on orchestrator cancellation.
func (r *Reporter) Quit() {
	r.program.Send(tea.Quit())
}
