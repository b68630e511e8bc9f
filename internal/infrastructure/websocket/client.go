package websocket

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"prbal/pkg/logger"
)

// Connection states. A connection is Connecting until its user is
// authenticated and authorized for the target thread, Open while serving
// frames, and Closed forever after.
const (
	StateConnecting int32 = iota
	StateOpen
	StateClosed
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 25 * time.Second
)

// Client is one WebSocket connection subscribed to one thread.
type Client struct {
	UserID   string
	ThreadID string

	conn      *websocket.Conn
	send      chan []byte
	sendMu    sync.RWMutex // guards send against close while enqueueing
	state     atomic.Int32
	closeOnce sync.Once

	idleTimeout time.Duration
}

func NewClient(userID, threadID string, conn *websocket.Conn, sendBuffer int, idleTimeout time.Duration) *Client {
	c := &Client{
		UserID:      userID,
		ThreadID:    threadID,
		conn:        conn,
		send:        make(chan []byte, sendBuffer),
		idleTimeout: idleTimeout,
	}
	c.state.Store(StateConnecting)
	return c
}

func (c *Client) State() int32 {
	return c.state.Load()
}

func (c *Client) open() {
	c.state.CompareAndSwap(StateConnecting, StateOpen)
}

// Close moves the connection to Closed and tears down the transport. Safe to
// call from any goroutine, any number of times. Persisted writes are never
// rolled back by a close; only in-flight delivery stops.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(StateClosed)
		c.sendMu.Lock()
		close(c.send)
		c.sendMu.Unlock()
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// enqueue appends an outbound frame without ever blocking the caller. A full
// queue means the peer is not draining; the connection is shed instead of
// stalling delivery to other participants.
func (c *Client) enqueue(frame []byte) bool {
	c.sendMu.RLock()
	if c.state.Load() != StateOpen {
		c.sendMu.RUnlock()
		return false
	}
	select {
	case c.send <- frame:
		c.sendMu.RUnlock()
		return true
	default:
		c.sendMu.RUnlock()
		logger.Warn("WebSocket: send queue full for user %s on thread %s, closing connection", c.UserID, c.ThreadID)
		c.Close()
		return false
	}
}

// ReadPump consumes inbound frames until the connection dies. Each frame is
// handed to the gateway; the read deadline doubles as the idle timeout and is
// refreshed by pongs.
func (c *Client) ReadPump(g *Gateway) {
	defer func() {
		g.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("WebSocket: read error for user %s on thread %s: %v", c.UserID, c.ThreadID, err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.idleTimeout))

		g.HandleFrame(c, raw)
	}
}

// WritePump drains the outbound queue onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Warn("WebSocket: write error for user %s on thread %s: %v", c.UserID, c.ThreadID, err)
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
