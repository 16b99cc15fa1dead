package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// client is one websocket connection. writePump is the only writer to the
// connection; readPump is the only reader.
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	remote string
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) dispatch(cmd Command) error {
	ctl := c.hub.control
	switch cmd.Type {
	case "command":
		if ctl.SendCommand == nil {
			return fmt.Errorf("console commands not enabled")
		}
		return ctl.SendCommand(cmd.ServerID, cmd.Command)
	case "start":
		if ctl.Start == nil {
			return fmt.Errorf("start not enabled")
		}
		return ctl.Start(cmd.ServerID)
	case "stop":
		if ctl.Stop == nil {
			return fmt.Errorf("stop not enabled")
		}
		return ctl.Stop(cmd.ServerID)
	case "restart":
		if ctl.Restart == nil {
			return fmt.Errorf("restart not enabled")
		}
		return ctl.Restart(cmd.ServerID)
	case "kill":
		if ctl.Kill == nil {
			return fmt.Errorf("kill not enabled")
		}
		return ctl.Kill(cmd.ServerID)
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			continue
		}
		if err := c.dispatch(cmd); err != nil {
			c.hub.logger.Warn("Websocket command rejected",
				"remote", c.remote,
				"type", cmd.Type,
				"server_id", cmd.ServerID,
				"error", err,
			)
		}
	}
}
