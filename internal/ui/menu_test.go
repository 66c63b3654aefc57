package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func press(t *testing.T, m MenuModel, key tea.KeyMsg) (MenuModel, tea.Cmd) {
	t.Helper()
	model, cmd := m.Update(key)
	return model.(MenuModel), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestMenuModel(t *testing.T) {
	m := NewMenuModel(true)

	if m.cursor != 0 {
		t.Errorf("expected cursor 0, got %d", m.cursor)
	}

	m, _ = press(t, m, runes("j"))
	if m.cursor != 1 {
		t.Errorf("expected cursor 1 after 'j', got %d", m.cursor)
	}

	m, _ = press(t, m, runes("k"))
	if m.cursor != 0 {
		t.Errorf("expected cursor 0 after 'k', got %d", m.cursor)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyUp})
	if m.cursor != len(Items)-1 {
		t.Errorf("expected up from the top to wrap to %d, got %d", len(Items)-1, m.cursor)
	}
	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyDown})
	if m.cursor != 0 {
		t.Errorf("expected down from the bottom to wrap to 0, got %d", m.cursor)
	}

	m, cmd := press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Selected() != "console" {
		t.Errorf("expected selection 'console', got %s", m.Selected())
	}
	if cmd == nil {
		t.Error("expected quit command after enter")
	}

	m, _ = press(t, m, runes("q"))
	if !m.quitting {
		t.Error("expected quitting true after 'q'")
	}
	if m.View() != "" {
		t.Error("expected an empty view after quitting")
	}
}

func TestMenuNumberShortcut(t *testing.T) {
	m, cmd := press(t, NewMenuModel(true), runes("5"))
	if m.Selected() != "team" {
		t.Errorf("expected '5' to select team, got %q", m.Selected())
	}
	if cmd == nil {
		t.Error("expected quit command after a shortcut")
	}

	m, cmd = press(t, NewMenuModel(true), runes("9"))
	if m.Selected() != "" || cmd != nil {
		t.Errorf("expected an out of range shortcut to be ignored, got %q", m.Selected())
	}
}

func TestMenuUninitialized(t *testing.T) {
	m := NewMenuModel(false)
	if got := m.items[m.cursor].Command; got != "init" {
		t.Errorf("expected the cursor on init, got %s", got)
	}
	if view := m.View(); !strings.Contains(view, "Run init to set up the project") {
		t.Errorf("expected an init hint\n%s", view)
	}

	m, _ = press(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.Selected() != "init" {
		t.Errorf("expected selection 'init', got %s", m.Selected())
	}
}

func TestMenuView(t *testing.T) {
	view := NewMenuModel(true).View()
	for _, item := range Items {
		if !strings.Contains(view, item.Command) || !strings.Contains(view, item.Summary) {
			t.Errorf("expected view to list %s with its summary\n%s", item.Command, view)
		}
	}
	if strings.Contains(view, "Run init") {
		t.Error("expected no init hint in an initialized project")
	}
}
