package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/azkit/internal/workflow"
)

const maxTransitions = 50

// Transition is one observed status change of a node or of the execution
// itself (Node is empty).
type Transition struct {
	At   time.Time
	Node string
	From string
	To   string
}

// diffExecution lists status changes between two polls in node order.
// The first poll (prev nil) reports every node.
func diffExecution(prev *workflow.Execution, next workflow.Execution, at time.Time) []Transition {
	var out []Transition
	before := map[string]string{}
	prevStatus := ""
	if prev != nil {
		prevStatus = prev.Status
		for _, n := range prev.Nodes {
			before[n.ID] = n.Status
		}
	}
	if next.Status != prevStatus {
		out = append(out, Transition{At: at, From: prevStatus, To: next.Status})
	}
	for _, n := range next.Nodes {
		if from := before[n.ID]; from != n.Status {
			out = append(out, Transition{At: at, Node: n.ID, From: from, To: n.Status})
		}
	}
	return out
}

func renderTransitions(log []Transition, theme Theme, width int) string {
	innerWidth := width - 4

	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("TRANSITIONS"),
			theme.Dim.Render("  Waiting for first poll..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, tr := range log {
		if i >= 10 {
			break
		}
		lines = append(lines, formatTransition(tr, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("TRANSITIONS"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatTransition(tr Transition, theme Theme) string {
	ts := theme.Dim.Render(tr.At.Format("15:04:05"))
	subject := tr.Node
	if subject == "" {
		subject = "(execution)"
	}
	from := tr.From
	if from == "" {
		from = "-"
	}
	return fmt.Sprintf("%s %-24s %s → %s", ts, subject, from, theme.StatusStyle(tr.To).Render(tr.To))
}
