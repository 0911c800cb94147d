package prompt

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/azkit/internal/errdefs"
	"github.com/mattjoyce/azkit/internal/session"
)

var _ session.CredentialProvider = (*Provider)(nil)

func typeRunes(t *testing.T, m model, s string) model {
	t.Helper()
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)})
	return next.(model)
}

func TestPromptSubmitsTypedPassword(t *testing.T) {
	m := newModel("alice", "http://localhost:8081")
	assert.Contains(t, m.View(), "Password for alice@http://localhost:8081")

	m = typeRunes(t, m, "s3cret")
	assert.NotContains(t, m.View(), "s3cret", "password must not be echoed")

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)

	pw, err := m.password()
	require.NoError(t, err)
	assert.Equal(t, "s3cret", pw)
}

func TestPromptRejectsEmptyPassword(t *testing.T) {
	m := newModel("alice", "http://h")
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = next.(model)
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "password must not be empty")

	m = typeRunes(t, m, "x")
	assert.NotContains(t, m.View(), "password must not be empty")
}

func TestPromptCancel(t *testing.T) {
	m := newModel("alice", "http://h")
	m = typeRunes(t, m, "abc")
	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	m = next.(model)

	_, err := m.password()
	assert.ErrorIs(t, err, ErrCancelled)
	assert.ErrorIs(t, err, errdefs.ErrAuthentication)
	assert.Empty(t, m.View())
}
