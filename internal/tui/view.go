package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

// View renders the current screen.
func (m Model) View() string {
	if m.quitting {
		if m.err != nil {
			return errorStyle.Render(m.err.Error()) + "\n"
		}
		return ""
	}

	switch m.currentView {
	case viewConsole:
		return m.viewConsole()
	case viewHelp:
		return m.viewHelp()
	default:
		return m.viewServers()
	}
}

func (m Model) viewServers() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("minehold"))
	b.WriteString(dimStyle.Render(fmt.Sprintf("  %d servers", len(m.snapshots))))
	b.WriteString("\n\n")
	b.WriteString(m.serverTable.View())
	b.WriteString("\n")
	b.WriteString(m.statusBar("enter console · s start · x stop · r restart · K kill · ? help · q quit"))
	return b.String()
}

func (m Model) viewConsole() string {
	name := m.selected
	for _, s := range m.snapshots {
		if s.ID == m.selected {
			name = s.Name + "  " + formatState(string(s.State))
			break
		}
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("console: "))
	b.WriteString(name)
	b.WriteString("\n")
	b.WriteString(lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(dimColor).
		Render(m.console.View()))
	b.WriteString("\n")

	if m.input.Focused() {
		b.WriteString("> " + m.input.View())
	} else {
		b.WriteString(m.statusBar("c command · s start · x stop · r restart · K kill · esc back"))
	}
	return b.String()
}

func (m Model) viewHelp() string {
	help := `
  minehold dashboard

  servers view
    ↑/↓        select server
    enter      open console
    s          start selected server
    x          stop selected server (graceful)
    r          restart selected server
    K          kill selected server (forceful)

  console view
    c          type a console command, enter to send
    ↑/↓ pgup   scroll
    esc        back to server list

  ?            toggle this help
  q            quit
`
	return titleStyle.Render("help") + help
}

func (m Model) statusBar(keys string) string {
	s := statusBarStyle.Render(keys)
	if m.status != "" {
		s += "   " + highlightStyle.Render(m.status)
	}
	return s
}

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	return s
}
