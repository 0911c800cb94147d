// Package prompt asks for a password on the terminal. Provider satisfies
// session.CredentialProvider.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/azkit/internal/errdefs"
)

// ErrCancelled is returned when the user aborts the prompt.
var ErrCancelled = fmt.Errorf("%w: password prompt cancelled", errdefs.ErrAuthentication)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	hintStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
)

type model struct {
	label     string
	input     textinput.Model
	submitted bool
	cancelled bool
	warning   string
}

func newModel(user, url string) model {
	in := textinput.New()
	in.EchoMode = textinput.EchoPassword
	in.EchoCharacter = '•'
	in.Prompt = "> "
	in.Focus()
	return model{
		label: fmt.Sprintf("Password for %s@%s", user, url),
		input: in,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			if m.input.Value() == "" {
				m.warning = "password must not be empty"
				return m, nil
			}
			m.submitted = true
			return m, tea.Quit
		}
	}

	m.warning = ""
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.submitted || m.cancelled {
		return ""
	}
	out := labelStyle.Render(m.label) + "\n" + m.input.View() + "\n"
	if m.warning != "" {
		out += errStyle.Render(m.warning) + "\n"
	}
	return out + hintStyle.Render("enter to submit • esc to cancel") + "\n"
}

func (m model) password() (string, error) {
	if !m.submitted {
		return "", ErrCancelled
	}
	return m.input.Value(), nil
}

// Provider prompts interactively on each Credential call.
type Provider struct {
	opts []tea.ProgramOption
}

// NewProvider returns a Provider. The prompt renders on stderr unless opts
// override the output.
func NewProvider(opts ...tea.ProgramOption) *Provider {
	return &Provider{opts: opts}
}

// Credential asks for the password of user at url.
func (p *Provider) Credential(ctx context.Context, user, url string) (string, error) {
	opts := append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithOutput(os.Stderr)}, p.opts...)
	final, err := tea.NewProgram(newModel(user, url), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil {
			return "", ErrCancelled
		}
		return "", fmt.Errorf("password prompt: %w", err)
	}
	return final.(model).password()
}
