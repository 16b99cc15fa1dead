package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/ws"
)

// Update handles all messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case disconnectedMsg:
		m.err = fmt.Errorf("connection to daemon lost")
		m.quitting = true
		return m, tea.Quit

	case frameMsg:
		m.applyFrame(ws.Frame(msg))
		return m, waitForFrame(m.client.Frames())

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) applyFrame(frame ws.Frame) {
	switch frame.Type {
	case "snapshot":
		m.snapshots = frame.Servers
		m.refreshTable()
	case "event":
		if frame.Event == nil {
			return
		}
		e := *frame.Event
		if e.Kind == event.KindLogLine {
			m.appendLog(e.ServerID, e.Message)
		} else if line := renderEvent(e); line != "" {
			m.appendLog(e.ServerID, line)
		}
		if m.currentView == viewConsole && e.ServerID == m.selected {
			m.refreshConsole()
		}
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// The console command prompt captures everything except escape.
	if m.currentView == viewConsole && m.input.Focused() {
		switch msg.String() {
		case "esc":
			m.input.Blur()
			m.input.Reset()
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.input.Blur()
			if text != "" {
				m.send(ws.Command{Type: "command", ServerID: m.selected, Command: text})
			}
			return m, nil
		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
	}

	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "?":
		if m.currentView == viewHelp {
			m.currentView = viewServers
		} else {
			m.currentView = viewHelp
		}
		return m, nil

	case "esc":
		m.currentView = viewServers
		return m, nil

	case "enter":
		if m.currentView == viewServers && m.selectedID() != "" {
			m.selected = m.selectedID()
			m.currentView = viewConsole
			m.refreshConsole()
		}
		return m, nil

	case "c":
		if m.currentView == viewConsole {
			m.input.Focus()
		}
		return m, nil

	case "s":
		m.sendControl("start")
		return m, nil
	case "x":
		m.sendControl("stop")
		return m, nil
	case "r":
		m.sendControl("restart")
		return m, nil
	case "K":
		m.sendControl("kill")
		return m, nil
	}

	if m.currentView == viewServers {
		var cmd tea.Cmd
		m.serverTable, cmd = m.serverTable.Update(msg)
		return m, cmd
	}
	if m.currentView == viewConsole {
		var cmd tea.Cmd
		m.console, cmd = m.console.Update(msg)
		return m, cmd
	}
	return m, nil
}

// sendControl issues a lifecycle command for the highlighted server.
func (m *Model) sendControl(typ string) {
	id := m.selected
	if m.currentView == viewServers {
		id = m.selectedID()
	}
	if id == "" {
		return
	}
	m.send(ws.Command{Type: typ, ServerID: id})
	m.status = fmt.Sprintf("sent %s", typ)
}

func (m *Model) send(cmd ws.Command) {
	if err := m.client.Send(cmd); err != nil {
		m.status = fmt.Sprintf("send failed: %v", err)
	}
}

// selectedID resolves the highlighted table row to a server id.
func (m *Model) selectedID() string {
	row := m.serverTable.SelectedRow()
	if row == nil {
		return ""
	}
	cursor := m.serverTable.Cursor()
	if cursor < 0 || cursor >= len(m.snapshots) {
		return ""
	}
	return m.snapshots[cursor].ID
}

func (m *Model) refreshTable() {
	rows := make([]table.Row, 0, len(m.snapshots))
	for _, s := range m.snapshots {
		rows = append(rows, table.Row{
			s.Name,
			s.Kind,
			string(s.State),
			fmt.Sprintf("%d", s.Players),
			fmt.Sprintf("%.0f%%", s.Usage.CPUPercent),
			formatMemory(s.Usage.MemoryRSS),
			fmt.Sprintf("%.0f", s.Usage.TPS),
			formatUptime(s.UptimeSeconds),
		})
	}
	m.serverTable.SetRows(rows)
}

func (m *Model) refreshConsole() {
	atBottom := m.console.AtBottom()
	m.console.SetContent(strings.Join(m.logs[m.selected], "\n"))
	if atBottom {
		m.console.GotoBottom()
	}
}

func (m *Model) layout() {
	cols := []table.Column{
		{Title: "NAME", Width: 20},
		{Title: "KIND", Width: 10},
		{Title: "STATE", Width: 10},
		{Title: "PLAYERS", Width: 8},
		{Title: "CPU", Width: 6},
		{Title: "MEM", Width: 8},
		{Title: "TPS", Width: 5},
		{Title: "UPTIME", Width: 10},
	}

	t := table.New(
		table.WithColumns(cols),
		table.WithRows(m.serverTable.Rows()),
		table.WithFocused(true),
		table.WithHeight(m.height-6),
	)
	t.SetStyles(tableStyles())
	m.serverTable = t

	m.console.Width = m.width - 2
	m.console.Height = m.height - 7
	m.refreshTable()
}
