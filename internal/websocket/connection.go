package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// State tracks the per-connection lifecycle:
// Connecting -> Admitted -> Active -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateAdmitted
	StateActive
	StateClosed
)

// Connection wraps a websocket connection with a single writer goroutine.
// Writes must be serialized; every outbound event goes through writeCh.
type Connection struct {
	id        string
	conn      *websocket.Conn
	writeCh   chan []byte
	closing   chan struct{} // signaled by Close; the write loop drains then exits
	drained   chan struct{} // closed once the write loop has flushed writeCh
	email     string // set after credential verification
	username  string // set after credential verification
	boardID   string // set after credential verification
	state     State
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	mu        sync.RWMutex
}

// NewConnection wraps a raw websocket connection and starts its write loop.
func NewConnection(conn *websocket.Conn) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		id:      uuid.New().String(),
		conn:    conn,
		writeCh: make(chan []byte, 100),
		closing: make(chan struct{}),
		drained: make(chan struct{}),
		state:   StateConnecting,
		ctx:     ctx,
		cancel:  cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop drains writeCh until Close signals shutdown, then flushes any
// messages still queued before exiting. The channel is never closed:
// WriteJSON may race a concurrent Close, and its sends are guarded by the
// connection context instead.
func (c *Connection) writeLoop() {
	defer func() {
		close(c.drained)
		_ = c.Close()
	}()

	for {
		select {
		case data := <-c.writeCh:
			if !c.writeFrame(data) {
				return
			}

		case <-c.closing:
			c.flushPending()
			return
		}
	}
}

// flushPending writes whatever was queued ahead of the shutdown signal.
// Terminal events, session-ended and handshake rejections among them, are
// queued right before Close and must still reach the peer.
func (c *Connection) flushPending() {
	for {
		select {
		case data := <-c.writeCh:
			if !c.writeFrame(data) {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writeFrame(data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return false
	}
	return c.conn.WriteMessage(websocket.TextMessage, data) == nil
}

// WriteJSON queues a JSON message for the single writer goroutine.
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

// Close shuts the connection down exactly once. The write loop flushes
// queued messages and a close frame goes out before the socket is torn
// down, so an event queued just ahead of Close still reaches the peer. A
// dropped transport and an explicit close converge here, so cleanup is
// identical for both.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.cancel()
		close(c.closing)
		select {
		case <-c.drained:
		case <-time.After(2 * time.Second):
		}
		if c.conn != nil {
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			err = c.conn.Close()
		}
	})
	return err
}

// SetCredentials records the verified identity and board scope, moving the
// connection to the Admitted state.
func (c *Connection) SetCredentials(email, username, boardID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.email = email
	c.username = username
	c.boardID = boardID
	if c.state == StateConnecting {
		c.state = StateAdmitted
	}
}

// Activate marks the connection Active after session admission.
func (c *Connection) Activate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAdmitted {
		c.state = StateActive
	}
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State returns the connection lifecycle state.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// ID returns the unique connection ID.
func (c *Connection) ID() string {
	return c.id
}

// Email returns the authenticated identity, empty before admission.
func (c *Connection) Email() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.email
}

// Username returns the display name from the verified credential.
func (c *Connection) Username() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username
}

// BoardID returns the board this connection is scoped to.
func (c *Connection) BoardID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.boardID
}

// IsAdmitted reports whether credentials have been set.
func (c *Connection) IsAdmitted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateAdmitted || c.state == StateActive
}
