package app

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func press(m warningModel, key string) (warningModel, tea.Cmd) {
	var msg tea.KeyMsg
	switch key {
	case "enter":
		msg = tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		msg = tea.KeyMsg{Type: tea.KeyEsc}
	case "up":
		msg = tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		msg = tea.KeyMsg{Type: tea.KeyDown}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, cmd := m.Update(msg)
	return next.(warningModel), cmd
}

func TestWarningDefaultsToSafetyMode(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newWarningModel(clock.now)
	if warningChoices[m.cursor] != ChoiceSafetyMode {
		t.Fatalf("cursor on %v", warningChoices[m.cursor])
	}
	clock.t = clock.t.Add(MinWarningDisplay)
	m, cmd := press(m, "enter")
	if !m.done || m.chosen != ChoiceSafetyMode || cmd == nil {
		t.Fatalf("enter after the minimum time: done=%v chosen=%v", m.done, m.chosen)
	}
}

func TestWarningHoldsSelectionsUntilRead(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := newWarningModel(clock.now)

	clock.t = clock.t.Add(2 * time.Second)
	m, cmd := press(m, "1")
	if m.done || cmd != nil {
		t.Fatalf("continue accepted after 2s")
	}
	if !strings.Contains(m.View(), "unlock in 3s") {
		t.Fatalf("countdown missing:\n%s", m.View())
	}

	clock.t = clock.t.Add(3 * time.Second)
	m, _ = press(m, "enter")
	if !m.done || m.chosen != ChoiceContinue {
		t.Fatalf("choice after 5s: done=%v chosen=%v", m.done, m.chosen)
	}
}

func TestWarningExitIsImmediate(t *testing.T) {
	for _, key := range []string{"esc", "3", "q"} {
		t.Run(key, func(t *testing.T) {
			m := newWarningModel((&fakeClock{t: time.Unix(0, 0)}).now)
			m, cmd := press(m, key)
			if !m.done || m.chosen != ChoiceExit || cmd == nil {
				t.Fatalf("done=%v chosen=%v", m.done, m.chosen)
			}
		})
	}
}

func TestWarningCursorWraps(t *testing.T) {
	m := newWarningModel((&fakeClock{t: time.Unix(0, 0)}).now)
	m, _ = press(m, "down")
	if warningChoices[m.cursor] != ChoiceExit {
		t.Fatalf("down from safety mode: %v", warningChoices[m.cursor])
	}
	m, _ = press(m, "down")
	if warningChoices[m.cursor] != ChoiceContinue {
		t.Fatalf("wrap: %v", warningChoices[m.cursor])
	}
	m, _ = press(m, "up")
	if warningChoices[m.cursor] != ChoiceExit {
		t.Fatalf("wrap back: %v", warningChoices[m.cursor])
	}
}
