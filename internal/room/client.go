package room

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024

	sendBuffer = 256
)

// Client is one room connection. Send is closed when the client leaves or
// is dropped for being too slow.
type Client struct {
	ID   string
	Send chan []byte

	conn    *websocket.Conn
	hub     *Hub
	limiter *rate.Limiter

	nameMu    sync.RWMutex
	display   string
	room      atomic.Pointer[Room]

	// sendMu orders offers against close so Send is never written after it
	// is closed.
	sendMu sync.Mutex
	closed bool
}

// NewClient creates a connection-less client. The websocket handler attaches
// a conn; tests read Send directly.
func NewClient(id, name string) *Client {
	return &Client{ID: id, Send: make(chan []byte, sendBuffer), display: name}
}

func (c *Client) name() string {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.display
}

func (c *Client) setName(name string) {
	c.nameMu.Lock()
	c.display = name
	c.nameMu.Unlock()
}

func (c *Client) offer(b []byte) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) isClosed() bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closed
}

func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// ReadPump decodes inbound envelopes until the connection fails, then leaves
// the room. Frames are handled in order on this goroutine; mentor replies run
// on hub-owned goroutines.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Leave(context.WithoutCancel(ctx), c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", "client_id", c.ID, "error", err)
			}
			return
		}

		if c.limiter != nil && !c.limiter.Allow() {
			c.hub.logger.Debug("inbound frame rate limited", "client_id", c.ID)
			continue
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.hub.logger.Debug("malformed frame", "client_id", c.ID, "error", err)
			continue
		}
		c.hub.Dispatch(ctx, c, env)
	}
}

// WritePump drains Send to the connection and keeps it alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// Send any queued messages as separate frames
			n := len(c.Send)
			for i := 0; i < n; i++ {
				extra, ok := <-c.Send
				if !ok {
					c.conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, extra); err != nil {
					return
				}
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
