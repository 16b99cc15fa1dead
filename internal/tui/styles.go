package tui

import "github.com/charmbracelet/lipgloss"

var (
	primaryColor   = lipgloss.Color("#5FAF5F")
	errorColor     = lipgloss.Color("#FF5F5F")
	warnColor      = lipgloss.Color("#FFAF00")
	dimColor       = lipgloss.Color("#666666")
	highlightColor = lipgloss.Color("#5FAFFF")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor)

	successStyle = lipgloss.NewStyle().
			Foreground(primaryColor)

	errorStyle = lipgloss.NewStyle().
			Foreground(errorColor)

	warnStyle = lipgloss.NewStyle().
			Foreground(warnColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)

	highlightStyle = lipgloss.NewStyle().
			Foreground(highlightColor)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(dimColor)
)

func formatState(state string) string {
	switch state {
	case "running":
		return successStyle.Render("● running")
	case "starting":
		return highlightStyle.Render("◐ starting")
	case "stopping":
		return warnStyle.Render("◑ stopping")
	case "stopped":
		return dimStyle.Render("○ stopped")
	case "crashed":
		return errorStyle.Render("✗ crashed")
	default:
		return state
	}
}
