package tui

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minehold/minehold/internal/ws"
)

// Client is the dashboard's connection to a running daemon.
type Client struct {
	conn   *websocket.Conn
	frames chan ws.Frame
}

// Connect dials the daemon's websocket endpoint and starts the read loop.
func Connect(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	c := &Client{
		conn:   conn,
		frames: make(chan ws.Frame, 256),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) readLoop() {
	defer close(c.frames)
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var frame ws.Frame
		if err := json.Unmarshal(msg, &frame); err != nil {
			continue
		}
		c.frames <- frame
	}
}

// Frames returns the inbound frame stream. The channel closes when the
// connection drops.
func (c *Client) Frames() <-chan ws.Frame {
	return c.frames
}

// Send writes one command frame to the daemon.
func (c *Client) Send(cmd ws.Command) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(cmd)
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
