package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Client is one live WebSocket connection bound to a user. Payloads queued on
// send are written in order, so per-connection delivery order matches
// emission order.
type Client struct {
	userID      uuid.UUID
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	registry    *Registry
	connectedAt time.Time
	closeOnce   sync.Once
}

func NewClient(userID uuid.UUID, conn *websocket.Conn, registry *Registry) *Client {
	return &Client{
		userID:      userID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		done:        make(chan struct{}),
		registry:    registry,
		connectedAt: time.Now(),
	}
}

func (c *Client) UserID() uuid.UUID {
	return c.userID
}

// Serve registers the client and runs both pumps until the connection drops.
func (c *Client) Serve() {
	c.registry.Register(c)
	go c.writePump()
	c.readPump()
}

// enqueue never blocks. A full buffer means the consumer cannot keep up and
// the caller drops the connection.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.registry.Unregister(c)
		close(c.done)
		c.conn.Close()
	})
}

// readPump discards inbound frames; the channel is server-push only. It
// exists to process control frames and detect the close.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
