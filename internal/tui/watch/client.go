package watch

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/azkit/internal/workflow"
)

// StatusSource fetches execution status. *workflow.Client satisfies it.
type StatusSource interface {
	ExecutionStatus(ctx context.Context, execID int) (map[string]any, error)
}

// --- Message types ---

type executionMsg struct {
	exec workflow.Execution
	at   time.Time
}

type tickMsg time.Time

type pollMsg struct{}

type errMsg struct{ err error }

func (e errMsg) Error() string { return e.err.Error() }

// --- Commands ---

// fetchExecution polls the source once.
func fetchExecution(ctx context.Context, src StatusSource, execID int) tea.Cmd {
	return func() tea.Msg {
		raw, err := src.ExecutionStatus(ctx, execID)
		if err != nil {
			return errMsg{err}
		}
		exec, err := workflow.ParseExecution(raw)
		if err != nil {
			return errMsg{err}
		}
		return executionMsg{exec: exec, at: time.Now()}
	}
}

func schedulePoll(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg { return pollMsg{} })
}

func scheduleTick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}
