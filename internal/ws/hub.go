// Package ws streams the live event feed and status snapshots to websocket
// clients, and accepts console commands from them.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minehold/minehold/internal/event"
	"github.com/minehold/minehold/internal/server"
)

// snapshotInterval is how often a full status frame is pushed to every
// client, keeping dashboards converged without polling.
const snapshotInterval = 2 * time.Second

// Frame is the wire envelope. Exactly one payload field is set per type.
type Frame struct {
	Type    string            `json:"type"` // event | snapshot
	Event   *event.Event      `json:"event,omitempty"`
	Servers []server.Snapshot `json:"servers,omitempty"`
}

// Command is the inbound frame clients send to control a server.
type Command struct {
	Type     string `json:"type"` // command | start | stop | restart | kill
	ServerID string `json:"serverId"`
	Command  string `json:"command,omitempty"` // console text, type=command only
}

// Controller executes inbound commands on behalf of clients (the registry
// provides the implementations).
type Controller struct {
	SendCommand func(serverID, command string) error
	Start       func(serverID string) error
	Stop        func(serverID string) error
	Restart     func(serverID string) error
	Kill        func(serverID string) error
}

// Hub fans frames out to connected clients. A client whose send queue is
// full is disconnected rather than allowed to stall the hub; the event bus
// applies the same policy one layer up.
type Hub struct {
	logger    *slog.Logger
	snapshots func() []server.Snapshot
	control   Controller

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	clients    map[*client]bool

	mu         sync.RWMutex // protects history
	history    [][]byte
	maxHistory int
}

// NewHub creates a hub replaying up to maxHistory event frames to each new
// client.
func NewHub(maxHistory int, snapshots func() []server.Snapshot, control Controller, logger *slog.Logger) *Hub {
	if maxHistory < 0 {
		maxHistory = 0
	}
	return &Hub{
		logger:     logger.With("component", "ws"),
		snapshots:  snapshots,
		control:    control,
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, 1024),
		clients:    make(map[*client]bool),
		maxHistory: maxHistory,
	}
}

// Run pumps the subscription and snapshot ticker into connected clients
// until the context is cancelled.
func (h *Hub) Run(ctx context.Context, sub *event.Subscription) {
	ticker := time.NewTicker(snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			for _, msg := range h.historySnapshot() {
				select {
				case c.send <- msg:
				default:
				}
			}

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case e, ok := <-sub.C:
			if !ok {
				return
			}
			msg, err := json.Marshal(Frame{Type: "event", Event: &e})
			if err != nil {
				continue
			}
			h.remember(msg)
			h.send(msg)

		case <-ticker.C:
			if len(h.clients) == 0 {
				continue
			}
			msg, err := json.Marshal(Frame{Type: "snapshot", Servers: h.snapshots()})
			if err != nil {
				continue
			}
			h.send(msg)
		}
	}
}

// send delivers to every client, dropping those that cannot keep up.
func (h *Hub) send(msg []byte) {
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debug("Disconnecting slow websocket client", "remote", c.remote)
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) remember(msg []byte) {
	if h.maxHistory == 0 {
		return
	}
	h.mu.Lock()
	h.history = append(h.history, msg)
	if len(h.history) > h.maxHistory {
		h.history = h.history[1:]
	}
	h.mu.Unlock()
}

func (h *Hub) historySnapshot() [][]byte {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.history) == 0 {
		return nil
	}
	out := make([][]byte, len(h.history))
	copy(out, h.history)
	return out
}

var upgrader = websocket.Upgrader{
	// The daemon binds the loopback-facing metrics port; browsers are not
	// the threat model here.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the connection and attaches a client to the hub.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, 256),
		remote: r.RemoteAddr,
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}
