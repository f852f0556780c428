package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/yungbote/atelier-backend/internal/platform/logger"
	"github.com/yungbote/atelier-backend/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 50 * time.Second
	maxMessageSize = 1 << 20
)

// Client is one live connection to a space. UserID and Role are resolved
// once at upgrade time and are immutable for the connection's lifetime.
type Client struct {
	ID      uuid.UUID
	SpaceID uuid.UUID
	UserID  uuid.UUID
	Role    types.Role

	Outbound chan []byte

	hub  *Hub
	conn *websocket.Conn
	log  *logger.Logger
}

// CommandHandler receives each inbound frame from one client.
type CommandHandler func(client *Client, msg Message)

// ReadPump decodes inbound JSON frames and hands them to onCommand. It owns
// the connection's read side and unregisters the client on any read error.
func (c *Client) ReadPump(onCommand CommandHandler) {
	defer func() {
		c.hub.RemoveClient(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read failed", "error", err)
			}
			return
		}
		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.log.Warn("Dropping malformed frame", "error", err)
			continue
		}
		onCommand(c, msg)
	}
}

// WritePump drains Outbound onto the wire, one frame per message, and keeps
// the connection alive with pings. Closing Outbound terminates the pump with
// a close frame.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case raw, ok := <-c.Outbound:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
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
