package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Choice is the user's answer on the photosensitivity warning screen.
type Choice int

const (
	ChoiceContinue Choice = iota
	ChoiceSafetyMode
	ChoiceExit
)

func (c Choice) String() string {
	switch c {
	case ChoiceContinue:
		return "Continue"
	case ChoiceSafetyMode:
		return "Safety Mode"
	default:
		return "Exit"
	}
}

// MinWarningDisplay is how long the warning stays up before a choice other
// than Exit is accepted.
const MinWarningDisplay = 5 * time.Second

var warningChoices = []Choice{ChoiceContinue, ChoiceSafetyMode, ChoiceExit}

const warningText = `This program produces flashing lights and rapidly changing colours driven
by audio. These can trigger seizures in people with photosensitive
epilepsy, even without a prior diagnosis.

Stop immediately and look away if you feel dizzy, notice altered vision,
twitching, disorientation or any involuntary movement.

Safety limits keep flashes under three per second and bound brightness
changes. Safety Mode starts at the strictest level.`

type tickMsg time.Time

// warningModel is the bubbletea model of the warning screen.
type warningModel struct {
	cursor  int
	shownAt time.Time
	now     func() time.Time
	chosen  Choice
	done    bool
}

func newWarningModel(now func() time.Time) warningModel {
	if now == nil {
		now = time.Now
	}
	return warningModel{cursor: int(ChoiceSafetyMode), shownAt: now(), now: now, chosen: ChoiceExit}
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m warningModel) Init() tea.Cmd { return tick() }

func (m warningModel) remaining() time.Duration {
	left := MinWarningDisplay - m.now().Sub(m.shownAt)
	if left < 0 {
		return 0
	}
	return left
}

func (m warningModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		return m, tick()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.chosen, m.done = ChoiceExit, true
			return m, tea.Quit
		case "up", "left", "shift+tab":
			m.cursor = (m.cursor + len(warningChoices) - 1) % len(warningChoices)
		case "down", "right", "tab":
			m.cursor = (m.cursor + 1) % len(warningChoices)
		case "1", "2", "3":
			m.cursor = int(msg.String()[0] - '1')
			return m.accept()
		case "enter":
			return m.accept()
		}
	}
	return m, nil
}

func (m warningModel) accept() (tea.Model, tea.Cmd) {
	choice := warningChoices[m.cursor]
	if choice != ChoiceExit && m.remaining() > 0 {
		return m, nil
	}
	m.chosen, m.done = choice, true
	return m, tea.Quit
}

func (m warningModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(warningTitleStyle.Render("⚠  PHOTOSENSITIVITY WARNING"))
	b.WriteString("\n\n")
	b.WriteString(warningText)
	b.WriteString("\n\n")
	for i, c := range warningChoices {
		label := fmt.Sprintf("%d. %s", i+1, c)
		if i == m.cursor {
			b.WriteString(selectedChoiceStyle.Render("> " + label))
		} else {
			b.WriteString(choiceStyle.Render("  " + label))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if left := m.remaining(); left > 0 {
		b.WriteString(hintStyle.Render(fmt.Sprintf("Please read the warning. Choices unlock in %ds (Esc exits now).", int(left.Seconds()+0.999))))
	} else {
		b.WriteString(hintStyle.Render("Arrows or 1-3 to choose, Enter to confirm, Esc to exit."))
	}
	return warningBoxStyle.Render(b.String()) + "\n"
}

// ShowWarning displays the warning screen and returns the user's choice.
func ShowWarning(ctx context.Context) (Choice, error) {
	p := tea.NewProgram(newWarningModel(nil), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return ChoiceExit, fmt.Errorf("warning screen: %w", err)
	}
	m, ok := final.(warningModel)
	if !ok || !m.done {
		return ChoiceExit, nil
	}
	return m.chosen, nil
}
