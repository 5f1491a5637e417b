// Package signal maintains the control channel to the livestream signaling
// server and the URL contract used to address it.
package signal

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/whatyes/livesignal/internal/domain"
)

// Handler receives every parsed signaling message in receipt order. It is
// invoked from a single goroutine, never concurrently with itself.
type Handler func(msg domain.SignalingMessage)

const (
	parseErrText = "invalid signaling message"
	connErrText  = "signaling connection error"

	pingInterval  = 30 * time.Second
	pingWriteWait = 5 * time.Second
)

// Channel manages one WebSocket connection to a signaling endpoint. It owns
// the connection lifecycle state: whether the channel is open, the room
// assigned by the server, and the last channel-level error. LastError is not
// cleared by later successes; it resets only when a new connection attempt
// starts.
type Channel struct {
	handler Handler

	mu      sync.Mutex
	conn    *websocket.Conn
	closed  chan struct{}
	open    bool
	roomID  string
	lastErr string
}

// New creates a channel that forwards every parsed message to handler. The
// channel stays closed until SetURL supplies a non-empty target.
func New(handler Handler) *Channel {
	return &Channel{handler: handler}
}

// SetURL points the channel at a signaling endpoint. Any existing connection
// is closed first. An empty URL leaves the channel closed without a
// connection attempt; otherwise a new attempt begins and LastError is reset.
func (c *Channel) SetURL(url string) error {
	c.mu.Lock()
	c.teardownLocked()
	if url == "" {
		c.mu.Unlock()
		return nil
	}
	c.lastErr = ""
	c.mu.Unlock()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		c.mu.Lock()
		c.lastErr = connErrText
		c.mu.Unlock()
		return fmt.Errorf("dial signaling server: %w", err)
	}

	closed := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.closed = closed
	c.open = true
	c.mu.Unlock()

	go c.readLoop(conn, closed)
	go c.pingLoop(conn, closed)
	return nil
}

// Send serializes and transmits msg if the channel is open; otherwise the
// message is silently dropped. Delivery is best effort, at most once.
func (c *Channel) Send(msg domain.SignalingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open || c.conn == nil {
		return
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		c.lastErr = connErrText
		log.Printf("[signal] write error: %v", err)
	}
}

// Close terminates the transport and clears the assigned room. Closing an
// already-closed channel is a no-op.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownLocked()
}

// IsOpen reports whether the channel is currently established.
func (c *Channel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// RoomID returns the room assigned by the server, or empty before a joined
// message arrives.
func (c *Channel) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// LastError returns the most recent channel-level error text, or empty.
func (c *Channel) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Channel) teardownLocked() {
	if c.closed != nil {
		select {
		case <-c.closed:
		default:
			close(c.closed)
		}
		c.closed = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.open = false
	c.roomID = ""
}

func (c *Channel) readLoop(conn *websocket.Conn, closed chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// Transport-level close: the channel is no longer open but
			// lastErr is kept for the caller to inspect.
			c.mu.Lock()
			if c.conn == conn {
				c.open = false
			}
			c.mu.Unlock()
			select {
			case <-closed:
			default:
				log.Printf("[signal] read error: %v", err)
			}
			return
		}

		var msg domain.SignalingMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.mu.Lock()
			c.lastErr = parseErrText
			c.mu.Unlock()
			log.Printf("[signal] unmarshal error: %v", err)
			continue
		}

		c.mu.Lock()
		switch msg.Type {
		case domain.MsgJoined:
			if msg.RoomID != "" {
				c.roomID = msg.RoomID
			}
		case domain.MsgError:
			if d := msg.ErrorDetail(); d != "" {
				c.lastErr = d
			} else {
				c.lastErr = "server error"
			}
		}
		c.mu.Unlock()

		// Forwarded last, including joined and error messages, so the
		// negotiation layer can react to them.
		c.handler(msg)
	}
}

func (c *Channel) pingLoop(conn *websocket.Conn, closed chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case <-ticker.C:
			err := conn.WriteControl(
				websocket.PingMessage,
				nil,
				time.Now().Add(pingWriteWait),
			)
			if err != nil {
				select {
				case <-closed:
				default:
					log.Printf("[signal] ping error: %v", err)
				}
				return
			}
		}
	}
}
