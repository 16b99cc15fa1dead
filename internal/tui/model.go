// Package tui is an interactive terminal dashboard for a running daemon,
// fed entirely by the websocket event stream.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/server"
	"github.com/minehold/minehold/internal/ws"
)

// consoleScrollback caps per-server console history held by the dashboard.
const consoleScrollback = 500

type viewMode int

const (
	viewServers viewMode = iota
	viewConsole
	viewHelp
)

// Model is the Bubbletea model for the dashboard.
type Model struct {
	client *Client

	currentView viewMode
	serverTable table.Model
	console     viewport.Model
	input       textinput.Model

	snapshots []server.Snapshot
	logs      map[string][]string // serverID -> console lines
	selected  string              // selected server id

	width    int
	height   int
	status   string // transient status line
	err      error
	quitting bool
}

// NewModel creates the dashboard model over an open client.
func NewModel(client *Client) Model {
	ti := textinput.New()
	ti.Placeholder = "console command"
	ti.CharLimit = 256

	return Model{
		client:      client,
		currentView: viewServers,
		input:       ti,
		logs:        make(map[string][]string),
		width:       100,
		height:      30,
	}
}

// Init starts the frame pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		waitForFrame(m.client.Frames()),
		tea.EnterAltScreen,
	)
}

type frameMsg ws.Frame

type disconnectedMsg struct{}

func waitForFrame(frames <-chan ws.Frame) tea.Cmd {
	return func() tea.Msg {
		frame, ok := <-frames
		if !ok {
			return disconnectedMsg{}
		}
		return frameMsg(frame)
	}
}

// appendLog records one console-visible line for a server.
func (m *Model) appendLog(serverID, line string) {
	lines := append(m.logs[serverID], line)
	if len(lines) > consoleScrollback {
		lines = lines[len(lines)-consoleScrollback:]
	}
	m.logs[serverID] = lines
}

// renderEvent turns a non-log event into a console annotation.
func renderEvent(e event.Event) string {
	switch e.Kind {
	case event.KindStatusChanged:
		return fmt.Sprintf("-- server is now %s --", e.Status)
	case event.KindCrashed:
		return fmt.Sprintf("-- CRASHED: %s --", e.Message)
	default:
		return ""
	}
}

func formatUptime(seconds int64) string {
	if seconds <= 0 {
		return "-"
	}
	d := time.Duration(seconds) * time.Second
	switch {
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	case d >= time.Minute:
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
}

func formatMemory(rss uint64) string {
	switch {
	case rss >= 1<<30:
		return fmt.Sprintf("%.1fG", float64(rss)/(1<<30))
	case rss >= 1<<20:
		return fmt.Sprintf("%dM", rss/(1<<20))
	case rss > 0:
		return fmt.Sprintf("%dK", rss/(1<<10))
	default:
		return "-"
	}
}
