// Package picker lets the user choose which flow jobs to run.
package picker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrCancelled is returned when the user quits without confirming.
var ErrCancelled = errors.New("job selection cancelled")

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type item struct {
	job      string
	desc     string
	selected bool
}

func (i item) Title() string {
	check := "[ ]"
	if i.selected {
		check = "[x]"
	}
	return fmt.Sprintf("%s %s", check, i.job)
}
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.job }

type model struct {
	list     list.Model
	quitting bool
	done     bool
	jobs     []string
}

// newModel lists jobs with the preselected ones checked.
func newModel(flow string, jobs, preselected []string) model {
	checked := make(map[string]bool, len(preselected))
	for _, j := range preselected {
		checked[j] = true
	}

	items := make([]list.Item, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, item{job: j, desc: fmt.Sprintf("node of flow %s", flow), selected: checked[j]})
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = fmt.Sprintf("Jobs of %s (space to toggle, a for all, enter to run)", flow)
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return model{list: l}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit

		case " ":
			if i, ok := m.list.SelectedItem().(item); ok {
				i.selected = !i.selected
				cmd := m.list.SetItem(m.list.Index(), i)
				return m, cmd
			}
			return m, nil

		case "a":
			all := !m.allSelected()
			var cmds []tea.Cmd
			for idx, li := range m.list.Items() {
				if i, ok := li.(item); ok {
					i.selected = all
					cmds = append(cmds, m.list.SetItem(idx, i))
				}
			}
			return m, tea.Batch(cmds...)

		case "enter":
			m.done = true
			m.jobs = m.selected()
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m model) selected() []string {
	var jobs []string
	for _, li := range m.list.Items() {
		if i, ok := li.(item); ok && i.selected {
			jobs = append(jobs, i.job)
		}
	}
	return jobs
}

func (m model) allSelected() bool {
	for _, li := range m.list.Items() {
		if i, ok := li.(item); ok && !i.selected {
			return false
		}
	}
	return true
}

func (m model) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.done {
		if len(m.jobs) == 0 {
			return quitTextStyle.Render("No jobs selected; running the whole flow.")
		}
		return quitTextStyle.Render(fmt.Sprintf("Selected jobs: %s", strings.Join(m.jobs, ", ")))
	}
	return "\n" + m.list.View()
}

// Run shows the picker over jobs and returns the checked names in list order.
// An empty result means nothing was checked.
func Run(ctx context.Context, flow string, jobs, preselected []string, opts ...tea.ProgramOption) ([]string, error) {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(os.Stderr), tea.WithAltScreen()}, opts...)
	final, err := tea.NewProgram(newModel(flow, jobs, preselected), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			return nil, ErrCancelled
		}
		return nil, fmt.Errorf("job picker: %w", err)
	}
	m := final.(model)
	if !m.done {
		return nil, ErrCancelled
	}
	return m.jobs, nil
}
