// Package progress renders a live deployment progress view: phase
// transitions as they happen, a spinner on the active phase, elapsed time
// and the final verdict.
package progress

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/omniagent/devboxctl/internal/deploy"
)

// PhaseMsg reports a deployment phase transition.
type PhaseMsg struct {
	Phase   deploy.Phase
	Attempt int
}

// DoneMsg reports the final deployment outcome.
type DoneMsg struct {
	Result deploy.Result
	Err    error
}

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type phaseEntry struct {
	phase   deploy.Phase
	attempt int
	at      time.Time
}

type tickMsg time.Time

// Model is the bubbletea model for deploy --progress.
type Model struct {
	role   string
	msgs   <-chan tea.Msg
	start  time.Time
	frame  int
	phases []phaseEntry

	finished bool
	result   deploy.Result
	err      error
}

// New creates a progress model fed by msgs. The producer must send PhaseMsg
// values followed by exactly one DoneMsg.
func New(role string, msgs <-chan tea.Msg) Model {
	return Model{
		role:  role,
		msgs:  msgs,
		start: time.Now(),
	}
}

// Finished reports whether the deployment reached its final verdict, and
// with what outcome. Valid after the program exits.
func (m Model) Finished() (deploy.Result, error, bool) {
	return m.result, m.err, m.finished
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.listen(), tick())
}

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.msgs
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The deployment keeps running server-side; quitting only detaches
		// the view.
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
		return m, nil

	case tickMsg:
		if m.finished {
			return m, nil
		}
		m.frame = (m.frame + 1) % len(spinnerFrames)
		return m, tick()

	case PhaseMsg:
		m.phases = append(m.phases, phaseEntry{phase: msg.Phase, attempt: msg.Attempt, at: time.Now()})
		return m, m.listen()

	case DoneMsg:
		m.finished = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Deploying %s", m.role)) + "\n\n")

	for i, entry := range m.phases {
		label := phaseLabel(entry.phase, entry.attempt)
		if i == len(m.phases)-1 && !m.finished {
			b.WriteString(fmt.Sprintf("  %s %s\n", spinnerFrames[m.frame], label))
			continue
		}
		b.WriteString(doneStyle.Render("  ✓ ") + label + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render(fmt.Sprintf("elapsed %s", time.Since(m.start).Round(time.Second))) + "\n")

	if m.finished {
		b.WriteString("\n" + m.verdict() + "\n")
	}
	return b.String()
}

func (m Model) verdict() string {
	if m.err != nil || m.result.Status != deploy.StatusSuccess {
		detail := m.result.Error
		if detail == "" && m.err != nil {
			detail = m.err.Error()
		}
		return failStyle.Render("deployment failed: " + detail)
	}
	return doneStyle.Render(fmt.Sprintf("deployed %s in %s (retries: %d)",
		m.result.DevboxID, m.result.Elapsed.Round(100*time.Millisecond), m.result.RetryCount))
}

func phaseLabel(phase deploy.Phase, attempt int) string {
	label := strings.ReplaceAll(string(phase), "_", " ")
	if attempt > 0 {
		return fmt.Sprintf("%s (attempt %d)", label, attempt+1)
	}
	return label
}
