package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/azkit/internal/workflow"
)

func renderHeader(exec *workflow.Execution, execID int, ticker Ticker, spinner Spinner, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	titleText := fmt.Sprintf(" AZKIT WATCH %s  exec %d", theme.Highlight.Render(ticker.Current()), execID)
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := max(1, innerWidth-lipgloss.Width(titleText)-lipgloss.Width(clock)-4)
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statusLine := theme.Dim.Render(" connecting...")
	if exec != nil {
		counts := exec.Counts()
		statusLine = fmt.Sprintf(" %s/%s  %s  nodes: %d  running: %d  failed: %d",
			exec.Project, exec.Flow,
			theme.StatusStyle(exec.Status).Render(exec.Status),
			len(exec.Nodes), counts["RUNNING"], counts["FAILED"],
		)
		if exec.StartTime > 0 {
			end := now
			if exec.EndTime > 0 {
				end = time.UnixMilli(exec.EndTime)
			}
			statusLine += "  ⏱ " + formatDuration(end.Sub(time.UnixMilli(exec.StartTime)))
		}
	}

	lastChange := "never"
	if !spinner.LastChange().IsZero() {
		lastChange = fmt.Sprintf("%s ago", now.Sub(spinner.LastChange()).Round(time.Second))
	}
	activityLine := fmt.Sprintf(" Last change: %s %s", lastChange, spinner.Render(theme))

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statusLine, activityLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
