package picker

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func press(m model, keys ...tea.KeyMsg) model {
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(model)
	}
	return m
}

var (
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	keyA  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}
	keyQ  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
)

func newTestModel(preselected ...string) model {
	m := newModel("daily", []string{"extract", "load", "report"}, preselected)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 30})
	return next.(model)
}

func TestPickerToggleAndConfirm(t *testing.T) {
	m := press(newTestModel(), space, down, down, space, enter)

	assert.True(t, m.done)
	assert.Equal(t, []string{"extract", "report"}, m.jobs)
	assert.Contains(t, m.View(), "Selected jobs: extract, report")
}

func TestPickerPreselection(t *testing.T) {
	m := newTestModel("load")
	assert.Equal(t, []string{"load"}, m.selected())

	m = press(m, down, space, enter)
	assert.Empty(t, m.jobs)
	assert.Contains(t, m.View(), "whole flow")
}

func TestPickerSelectAllToggles(t *testing.T) {
	m := press(newTestModel("load"), keyA)
	assert.Equal(t, []string{"extract", "load", "report"}, m.selected())

	m = press(m, keyA)
	assert.Empty(t, m.selected())
}

func TestPickerQuit(t *testing.T) {
	m := newTestModel()
	next, cmd := m.Update(keyQ)
	m = next.(model)
	require.NotNil(t, cmd)
	_, isQuit := cmd().(tea.QuitMsg)
	assert.True(t, isQuit)
	assert.True(t, m.quitting)
	assert.False(t, m.done)
	assert.Equal(t, "Cancelled.", stripMargin(m.View()))
}

func stripMargin(s string) string {
	out := []rune{}
	for _, r := range s {
		if r != ' ' && r != '\n' {
			out = append(out, r)
		}
	}
	return string(out)
}
