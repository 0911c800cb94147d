package watch

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/azkit/internal/workflow"
)

// DefaultInterval is the status poll period.
const DefaultInterval = 2 * time.Second

// Model is the BubbleTea model for the watch TUI.
type Model struct {
	ctx    context.Context
	source StatusSource
	execID int

	interval     time.Duration
	exitOnFinish bool

	width  int
	height int
	now    time.Time

	exec        *workflow.Execution
	transitions []Transition
	done        bool

	ticker   Ticker
	spinner  Spinner
	theme    Theme
	selected int

	lastError string
}

// Option configures a Model.
type Option func(*Model)

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(m *Model) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithExitOnFinish quits the program once the execution is terminal.
func WithExitOnFinish() Option {
	return func(m *Model) { m.exitOnFinish = true }
}

// New creates a watch model for execID.
func New(ctx context.Context, src StatusSource, execID int, opts ...Option) Model {
	m := Model{
		ctx:      ctx,
		source:   src,
		execID:   execID,
		interval: DefaultInterval,
		now:      time.Now(),
		ticker:   NewTicker(),
		theme:    NewDefaultTheme(),
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

// Execution returns the last polled execution, or nil before the first poll.
func (m Model) Execution() *workflow.Execution { return m.exec }

// Transitions returns observed status changes, newest first.
func (m Model) Transitions() []Transition { return m.transitions }

// Done reports whether the execution reached a terminal status.
func (m Model) Done() bool { return m.done }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchExecution(m.ctx, m.source, m.execID),
		scheduleTick(),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.exec != nil && m.selected < len(m.exec.Nodes)-1 {
				m.selected++
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.now = time.Time(msg)
		m.ticker.Tick()
		m.spinner.Decay(m.now)
		return m, scheduleTick()

	case pollMsg:
		return m, fetchExecution(m.ctx, m.source, m.execID)

	case executionMsg:
		changes := diffExecution(m.exec, msg.exec, msg.at)
		if len(changes) > 0 {
			m.spinner.OnChange(msg.at)
			for _, c := range changes {
				m.transitions = append([]Transition{c}, m.transitions...)
			}
			if len(m.transitions) > maxTransitions {
				m.transitions = m.transitions[:maxTransitions]
			}
		}
		exec := msg.exec
		m.exec = &exec
		m.lastError = ""

		if exec.Finished() {
			m.done = true
			if m.exitOnFinish {
				return m, tea.Quit
			}
			return m, nil
		}
		return m, schedulePoll(m.interval)

	case errMsg:
		m.lastError = msg.Error()
		if m.ctx.Err() != nil {
			return m, tea.Quit
		}
		return m, schedulePoll(m.interval)
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return fmt.Sprintf("Watching execution %d...", m.execID)
	}

	parts := []string{
		renderHeader(m.exec, m.execID, m.ticker, m.spinner, m.theme, m.width, m.now),
		renderNodes(m.exec, m.selected, m.theme, m.width),
		renderTransitions(m.transitions, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}

	helpText := " [q] Quit • [↑/↓] Navigate Nodes"
	if m.done {
		helpText = fmt.Sprintf(" Finished: %s • [q] Quit", m.exec.Status)
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(helpText))

	return lipgloss.NewStyle().Margin(1, 2).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

// Run shows the watch TUI until the user quits (or the execution finishes
// when WithExitOnFinish is set) and returns the last polled execution.
func Run(ctx context.Context, src StatusSource, execID int, opts ...Option) (*workflow.Execution, error) {
	p := tea.NewProgram(New(ctx, src, execID, opts...), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("watch execution %d: %w", execID, err)
	}
	return final.(Model).Execution(), nil
}
