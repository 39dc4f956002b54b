package tui

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// Color palette.
var (
	ColorNavy   = lipgloss.Color("#1B2A41")
	ColorWhite  = lipgloss.Color("#F5F5F5")
	ColorGray   = lipgloss.Color("#8A8F98")
	ColorGreen  = lipgloss.Color("#49E209")
	ColorTeal   = lipgloss.Color("#00CAC7")
	ColorRed    = lipgloss.Color("#FF5F5F")
	ColorYellow = lipgloss.Color("#F2C94C")
)

var (
	tabStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Foreground(ColorGray)

	activeTabStyle = tabStyle.
			Foreground(ColorWhite).
			Background(ColorNavy).
			Bold(true)

	mutedStyle   = lipgloss.NewStyle().Foreground(ColorGray)
	errorStyle   = lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(ColorGreen)
	warnStyle    = lipgloss.NewStyle().Foreground(ColorYellow)
	spinnerStyle = lipgloss.NewStyle().Foreground(ColorTeal)

	statusBarStyle = lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(ColorWhite)
)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(ColorGray).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(ColorWhite).
		Background(ColorNavy).
		Bold(false)
	return s
}

// renderBranding renders "setwatch" with a green to teal gradient.
func renderBranding() string {
	colors := []string{"#49E209", "#3BDF25", "#2DDC41", "#1FD85D", "#11D479", "#00D095", "#00CDAE", "#00CAC7"}
	var out string
	for i, r := range "setwatch" {
		out += lipgloss.NewStyle().
			Background(ColorNavy).
			Foreground(lipgloss.Color(colors[i])).
			Bold(true).
			Render(string(r))
	}
	return out
}
