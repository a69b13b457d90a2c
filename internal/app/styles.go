package app

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	accentColor  = lipgloss.Color("#F5A623")
	dangerColor  = lipgloss.Color("#D0021B")
	mutedColor   = lipgloss.Color("#888888")
	textColor    = lipgloss.Color("#FFFFFF")
	focusBgColor = lipgloss.Color("#3A3A3A")
)

var (
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			MarginBottom(1)

	ErrorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(dangerColor)

	KeyStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	ValueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(textColor)

	warningBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(dangerColor).
			Padding(1, 3).
			Width(72)

	warningTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(dangerColor)

	choiceStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedChoiceStyle = choiceStyle.
				Bold(true).
				Foreground(textColor).
				Background(focusBgColor)

	hintStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)
)

// PrintVersion prints version information.
func PrintVersion(version string) {
	fmt.Println(TitleStyle.Render("lumen"))
	fmt.Printf("%s %s\n", KeyStyle.Render("Version:"), ValueStyle.Render(version))
	fmt.Println()
}

// PrintError prints an error message to stderr.
func PrintError(message string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ErrorStyle.Render("Error:"), message)
}
