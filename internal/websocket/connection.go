package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codesign/pkg/types"
)

// Connection implements the interfaces.Connection interface.
// ARCHITECTURAL DISCOVERY: WebSocket writes must be serialized to prevent
// race conditions; all writers funnel through a single goroutine.
type Connection struct {
	conn      *websocket.Conn
	writeCh   chan []byte // buffered so slow readers do not stall event handlers
	userID    string
	name      string
	role      types.Role
	sessionID string
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewConnection wraps an upgraded WebSocket connection. Identity is fixed at
// construction time because the capability token is verified before upgrade.
func NewConnection(conn *websocket.Conn, identity *types.Identity, sessionID string) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		conn:      conn,
		writeCh:   make(chan []byte, 100),
		userID:    identity.UserID,
		name:      identity.Name,
		role:      identity.Role,
		sessionID: sessionID,
		ctx:       ctx,
		cancel:    cancel,
	}

	go c.writeLoop()

	return c
}

// ARCHITECTURAL DISCOVERY: Single writer goroutine pattern eliminates races
func (c *Connection) writeLoop() {
	defer func() {
		for len(c.writeCh) > 0 {
			<-c.writeCh // Drain remaining messages
		}
		close(c.writeCh)
	}()

	for {
		select {
		case data, ok := <-c.writeCh:
			if !ok {
				return
			}

			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
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

// WriteJSON marshals v and queues it on the single writer.
func (c *Connection) WriteJSON(v interface{}) error {
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
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close tears down the connection and its writer goroutine. Idempotent.
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

// CloseWithReason sends a close control frame carrying an application close
// code before tearing the connection down, so clients can distinguish
// supersession from ordinary disconnects.
func (c *Connection) CloseWithReason(code int, reason string) error {
	// Control frames bypass the writer goroutine; gorilla serializes them
	// internally against data frames.
	deadline := time.Now().Add(5 * time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	return c.Close()
}

func (c *Connection) GetUserID() string {
	return c.userID
}

func (c *Connection) GetDisplayName() string {
	return c.name
}

func (c *Connection) GetRole() types.Role {
	return c.role
}

func (c *Connection) GetSessionID() string {
	return c.sessionID
}
