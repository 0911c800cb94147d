package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/azkit/internal/workflow"
)

func renderNodes(exec *workflow.Execution, selected int, theme Theme, width int) string {
	innerWidth := width - 4

	if exec == nil || len(exec.Nodes) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("NODES"),
			theme.Dim.Render("  No nodes reported yet..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	lines := []string{theme.Title.Render("NODES")}
	for i, n := range exec.Nodes {
		lines = append(lines, renderNodeRow(i+1, n, i == selected, theme))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

func renderNodeRow(num int, n workflow.NodeStatus, isSelected bool, theme Theme) string {
	nameStyle := lipgloss.NewStyle()
	if isSelected {
		nameStyle = nameStyle.Bold(true).
			Foreground(lipgloss.Color("229")).
			Background(lipgloss.Color("57"))
	}

	var line strings.Builder
	fmt.Fprintf(&line, " %2d. %s  %s %s",
		num,
		nameStyle.Render(fmt.Sprintf("%-24s", n.ID)),
		statusIcon(n.Status, theme),
		theme.StatusStyle(n.Status).Render(n.Status),
	)
	if n.Type != "" {
		line.WriteString("  " + theme.Dim.Render(n.Type))
	}
	return line.String()
}

func statusIcon(status string, theme Theme) string {
	switch status {
	case "SUCCEEDED":
		return theme.StatusOK.Render("✅")
	case "FAILED":
		return theme.StatusFailed.Render("❌")
	case "KILLED", "CANCELLED":
		return theme.StatusDead.Render("⊘")
	case "RUNNING":
		return theme.StatusRunning.Render("▶")
	default:
		return " "
	}
}
