package tui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run connects to a daemon's websocket endpoint and runs the dashboard
// full-screen until the user quits or the connection drops.
func Run(url string) error {
	client, err := Connect(url)
	if err != nil {
		return err
	}
	defer client.Close()

	model := NewModel(client)
	model.layout()

	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err = p.Run()
	return err
}
