// Package realtime tracks live websocket connections and the in-memory room
// subscription index used for fan-out. Rooms have no storage of their own;
// they are purely a broadcast scope over connections.
package realtime

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// Transport is the minimal surface the engine needs from a websocket
// connection. gofiber/websocket's Conn satisfies it; tests substitute fakes.
type Transport interface {
	WriteJSON(v interface{}) error
	Close() error
}

// ErrConnClosed is returned by Send after the connection has shut down.
var ErrConnClosed = errors.New("realtime: connection closed")

const sendBuffer = 128

// Connection is one live transport session bound to exactly one authenticated
// identity. Outbound payloads go through a buffered channel drained by a
// single write pump, so fan-out never blocks on a slow client and writes to
// the underlying socket are serialized.
type Connection struct {
	ID       string
	UserID   int
	Username string

	transport Transport
	send      chan interface{}
	done      chan struct{}
	once      sync.Once
}

// NewConnection wraps a transport for the given identity and starts the
// write pump.
func NewConnection(userID int, username string, t Transport) *Connection {
	c := &Connection{
		ID:        uuid.New().String(),
		UserID:    userID,
		Username:  username,
		transport: t,
		send:      make(chan interface{}, sendBuffer),
		done:      make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send enqueues a payload for delivery. A full buffer means the client cannot
// keep up; the connection is closed to keep backpressure bounded and the read
// loop will observe the closure and unregister it.
func (c *Connection) Send(payload interface{}) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.Close()
		return errors.New("realtime: send buffer full")
	}
}

// Close shuts down the write pump and the underlying transport. Safe to call
// more than once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.transport.Close()
	})
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Connection) writePump() {
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			if err := c.transport.WriteJSON(payload); err != nil {
				c.Close()
				return
			}
		}
	}
}
