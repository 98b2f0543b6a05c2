package ws

import (
	"sync"

	"github.com/gorilla/websocket"
)

// Role is the resolved capability of a connection.
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleClient    Role = "client"
	RoleAgent     Role = "agent"
)

// Identity is the resolved role of a connection, fixed at registration. An
// anonymous visitor is upgraded to a client identity exactly once, when its
// first chat is created.
type Identity struct {
	Role     Role
	AgentID  int64
	ClientID string
}

// Anonymous is the identity of a connection without a usable credential.
var Anonymous = Identity{Role: RoleAnonymous}

// AgentIdentity returns an agent identity.
func AgentIdentity(agentID int64) Identity {
	return Identity{Role: RoleAgent, AgentID: agentID}
}

// ClientIdentity returns a client identity.
func ClientIdentity(clientID string) Identity {
	return Identity{Role: RoleClient, ClientID: clientID}
}

// IsAgent reports whether the identity belongs to a support agent.
func (i Identity) IsAgent() bool { return i.Role == RoleAgent }

// IsClient reports whether the identity belongs to a chat client.
func (i Identity) IsClient() bool { return i.Role == RoleClient }

// Conn represents one live WebSocket connection.
type Conn struct {
	ws   *websocket.Conn
	send chan []byte

	mu       sync.Mutex
	identity Identity
	closed   bool
}

// NewConn creates a connection wrapper around an upgraded WebSocket.
func NewConn(ws *websocket.Conn, identity Identity) *Conn {
	return &Conn{
		ws:       ws,
		identity: identity,
		send:     make(chan []byte, 256),
	}
}

// Identity returns the connection's resolved identity.
func (c *Conn) Identity() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

// setIdentity rebinds the connection identity. Used only by the registry when
// an anonymous visitor opens its first chat.
func (c *Conn) setIdentity(identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity
}

// Send queues a frame for delivery. A full buffer closes the connection
// rather than blocking the dispatcher.
func (c *Conn) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the connection
		c.closeLocked()
	}
}

// Close closes the connection's send side.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Conn) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the connection is closed.
func (c *Conn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SendChan returns the outbound frame channel consumed by the write pump.
func (c *Conn) SendChan() <-chan []byte {
	return c.send
}

// WS returns the underlying WebSocket connection, nil for test connections.
func (c *Conn) WS() *websocket.Conn {
	return c.ws
}
