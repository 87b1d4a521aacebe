package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"rollcall/pkg/interfaces"
	"rollcall/pkg/types"
)

var _ interfaces.Conn = (*Connection)(nil)

const (
	// sendBuffer sizes the outbound queue; enough for classroom-scale bursts.
	sendBuffer   = 100
	writeTimeout = 5 * time.Second
)

// Connection wraps a WebSocket with a single writer goroutine so concurrent
// fan-out never races on the underlying socket. Identity and role are fixed
// at construction, after authentication; the wrapper holds no session state.
type Connection struct {
	conn      *websocket.Conn
	user      types.User
	writeCh   chan []byte
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection creates a connection wrapper for an authenticated user and
// starts its writer goroutine.
func NewConnection(conn *websocket.Conn, user types.User) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:    conn,
		user:    user,
		writeCh: make(chan []byte, sendBuffer),
		ctx:     ctx,
		cancel:  cancel,
	}
	go c.writeLoop()
	return c
}

// writeLoop is the only goroutine that touches conn for writes.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// Send marshals v and queues it for delivery. It never blocks longer than
// the write timeout; a full queue on a dead peer surfaces as ErrWriteTimeout.
func (c *Connection) Send(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close shuts the connection down exactly once.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// UserID returns the authenticated user's ID.
func (c *Connection) UserID() string { return c.user.ID }

// Role returns the authenticated role, teacher or student.
func (c *Connection) Role() string { return c.user.Role }

// User returns the authenticated identity bound to this connection.
func (c *Connection) User() types.User { return c.user }

// Done is closed when the connection shuts down.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }
