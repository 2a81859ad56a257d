package gateway

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Transport is the minimal surface the gateway needs from an accepted
// websocket session. *websocket.Conn satisfies it; tests substitute mocks.
type Transport interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Identity is the verdict of the external authenticator for one handshake.
type Identity struct {
	UserID string
	Role   string
	Token  string
}

// Connection is one accepted transport session. It lives in the connection
// table from successful authentication until disconnect.
type Connection struct {
	ID          string
	identity    Identity
	remoteAddr  string
	userAgent   string
	connectedAt time.Time

	transport Transport

	mu           sync.Mutex
	lastActivity time.Time
	awaitingPong bool
	metadata     map[string]any

	closed int32
}

// NewConnection wraps an authenticated transport session.
func NewConnection(transport Transport, identity Identity, remoteAddr, userAgent string, now time.Time) *Connection {
	return &Connection{
		ID:           uuid.New().String(),
		identity:     identity,
		remoteAddr:   remoteAddr,
		userAgent:    userAgent,
		connectedAt:  now,
		transport:    transport,
		lastActivity: now,
		metadata:     make(map[string]any),
	}
}

func (c *Connection) UserID() string         { return c.identity.UserID }
func (c *Connection) Role() string           { return c.identity.Role }
func (c *Connection) RemoteAddr() string     { return c.remoteAddr }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }

// Touch records inbound activity on the connection.
func (c *Connection) Touch(now time.Time) {
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *Connection) LastActivity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

// MarkAwaitingPong flags the connection as pinged; the next liveness sweep
// evicts it if the flag is still set.
func (c *Connection) MarkAwaitingPong() {
	c.mu.Lock()
	c.awaitingPong = true
	c.mu.Unlock()
}

// ClearAwaitingPong records a pong from the peer.
func (c *Connection) ClearAwaitingPong() {
	c.mu.Lock()
	c.awaitingPong = false
	c.mu.Unlock()
}

func (c *Connection) AwaitingPong() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaitingPong
}

func (c *Connection) SetMetadata(key string, value any) {
	c.mu.Lock()
	c.metadata[key] = value
	c.mu.Unlock()
}

// IsClosed returns true once the connection has been torn down.
func (c *Connection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Send marshals and writes one frame to the peer. Writes are serialized per
// connection so concurrent broadcasts cannot interleave frames.
func (c *Connection) Send(msg *Message) error {
	if c.IsClosed() {
		return ErrConnectionClosed
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.WriteMessage(websocket.TextMessage, data)
}

// Close sends a close frame with the given status code and tears down the
// transport. Safe to call more than once; only the first call acts.
func (c *Connection) Close(code int, reason string) {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	payload := websocket.FormatCloseMessage(code, reason)
	if err := c.transport.WriteMessage(websocket.CloseMessage, payload); err != nil {
		slog.Debug("Failed to write close frame", "connectionID", c.ID, "error", err)
	}
	if err := c.transport.Close(); err != nil {
		slog.Debug("Failed to close transport", "connectionID", c.ID, "error", err)
	}
}

// ConnectionTable tracks every live connection by id.
type ConnectionTable struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

func NewConnectionTable() *ConnectionTable {
	return &ConnectionTable{conns: make(map[string]*Connection)}
}

func (t *ConnectionTable) Add(c *Connection) {
	t.mu.Lock()
	t.conns[c.ID] = c
	t.mu.Unlock()
}

// AddWithin inserts the connection unless the table already holds max
// entries. Check and insert happen under one lock so concurrent handshakes
// cannot overshoot the cap; a non-positive max means unbounded.
func (t *ConnectionTable) AddWithin(c *Connection, max int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if max > 0 && len(t.conns) >= max {
		return false
	}
	t.conns[c.ID] = c
	return true
}

// Remove deletes the connection and reports whether it was present, so the
// caller can guarantee single-removal semantics.
func (t *ConnectionTable) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.conns[id]; !ok {
		return false
	}
	delete(t.conns, id)
	return true
}

func (t *ConnectionTable) Get(id string) (*Connection, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.conns[id]
	return c, ok
}

func (t *ConnectionTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// All returns a snapshot of the live connections.
func (t *ConnectionTable) All() []*Connection {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Connection, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}
