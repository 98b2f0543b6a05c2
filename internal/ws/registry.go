package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/derenko/q-chat/internal/presence"
)

// Registry tracks live connections, their identities and explicit room
// membership. Rooms are keyed by chat id; join and leave are explicit calls
// made by the dispatcher and the gateway, never implicit.
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Conn]struct{}
	rooms  map[string]map[*Conn]struct{}
	joined map[*Conn]map[string]struct{}

	tracker *presence.Tracker
	logger  *slog.Logger

	// onRoomEmpty is invoked after the last member leaves a room.
	onRoomEmpty func(chatID string)
}

// NewRegistry creates a Registry wired to the presence tracker.
func NewRegistry(tracker *presence.Tracker, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		conns:   make(map[*Conn]struct{}),
		rooms:   make(map[string]map[*Conn]struct{}),
		joined:  make(map[*Conn]map[string]struct{}),
		tracker: tracker,
		logger:  logger,
	}
}

// SetOnRoomEmpty sets the callback invoked when the last member leaves a room.
func (r *Registry) SetOnRoomEmpty(callback func(chatID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRoomEmpty = callback
}

// Register adds a connection. Idempotent per connection. Agent connections
// update the presence tracker's connectivity signal.
func (r *Registry) Register(c *Conn) {
	r.mu.Lock()
	if _, ok := r.conns[c]; ok {
		r.mu.Unlock()
		return
	}
	r.conns[c] = struct{}{}
	identity := c.Identity()
	r.mu.Unlock()

	if identity.IsAgent() {
		r.tracker.OnConnect(identity.AgentID)
	}
}

// Unregister removes a connection, releasing every room membership it holds.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	if _, ok := r.conns[c]; !ok {
		r.mu.Unlock()
		return
	}
	delete(r.conns, c)

	var emptied []string
	for chatID := range r.joined[c] {
		delete(r.rooms[chatID], c)
		if len(r.rooms[chatID]) == 0 {
			delete(r.rooms, chatID)
			emptied = append(emptied, chatID)
		}
	}
	delete(r.joined, c)

	identity := c.Identity()
	onRoomEmpty := r.onRoomEmpty
	r.mu.Unlock()

	if identity.IsAgent() {
		r.tracker.OnDisconnect(identity.AgentID)
	}

	c.Close()

	if onRoomEmpty != nil {
		for _, chatID := range emptied {
			onRoomEmpty(chatID)
		}
	}
}

// Rebind upgrades an anonymous connection to a client identity. A connection
// that already carries a non-anonymous identity is left untouched.
func (r *Registry) Rebind(c *Conn, identity Identity) {
	if c.Identity().Role != RoleAnonymous {
		return
	}
	c.setIdentity(identity)
}

// Join adds the connection to the chat's room.
func (r *Registry) Join(c *Conn, chatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c]; !ok {
		return
	}

	if r.rooms[chatID] == nil {
		r.rooms[chatID] = make(map[*Conn]struct{})
	}
	r.rooms[chatID][c] = struct{}{}

	if r.joined[c] == nil {
		r.joined[c] = make(map[string]struct{})
	}
	r.joined[c][chatID] = struct{}{}
}

// Leave removes the connection from the chat's room.
func (r *Registry) Leave(c *Conn, chatID string) {
	r.mu.Lock()
	delete(r.rooms[chatID], c)
	delete(r.joined[c], chatID)

	var emptied bool
	if room, ok := r.rooms[chatID]; ok && len(room) == 0 {
		delete(r.rooms, chatID)
		emptied = true
	}
	onRoomEmpty := r.onRoomEmpty
	r.mu.Unlock()

	if emptied && onRoomEmpty != nil {
		onRoomEmpty(chatID)
	}
}

// RoomSize returns the number of connections joined to the chat's room.
func (r *Registry) RoomSize(chatID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[chatID])
}

// ConnCount returns the number of registered connections.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// ListByCapability returns every registered connection whose identity matches
// the predicate.
func (r *Registry) ListByCapability(predicate func(Identity) bool) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Conn
	for c := range r.conns {
		if predicate(c.Identity()) {
			matched = append(matched, c)
		}
	}
	return matched
}

// EmitToRoom delivers an event to every connection currently joined to the
// chat's room. Delivery is best-effort and at-most-once per live member.
func (r *Registry) EmitToRoom(chatID string, event Event, payload interface{}) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		r.logger.Error("marshal room event", "event", event, "chat", chatID, "error", err)
		return
	}

	r.mu.RLock()
	members := make([]*Conn, 0, len(r.rooms[chatID]))
	for c := range r.rooms[chatID] {
		members = append(members, c)
	}
	r.mu.RUnlock()

	for _, c := range members {
		c.Send(data)
	}
}

// EmitToFiltered delivers an event to every registered connection whose
// identity matches the predicate, independent of room membership.
func (r *Registry) EmitToFiltered(event Event, payload interface{}, predicate func(Identity) bool) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		r.logger.Error("marshal filtered event", "event", event, "error", err)
		return
	}

	for _, c := range r.ListByCapability(predicate) {
		c.Send(data)
	}
}

// EmitTo delivers an event to a single connection. Used for acknowledgments
// and resume payloads.
func (r *Registry) EmitTo(c *Conn, event Event, payload interface{}) {
	data, err := marshalEvent(event, payload)
	if err != nil {
		r.logger.Error("marshal event", "event", event, "error", err)
		return
	}
	c.Send(data)
}

// Close closes every registered connection and clears all rooms.
func (r *Registry) Close() {
	r.mu.Lock()
	conns := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.conns = make(map[*Conn]struct{})
	r.rooms = make(map[string]map[*Conn]struct{})
	r.joined = make(map[*Conn]map[string]struct{})
	r.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

// IsAgentConn is the predicate for agent-wide broadcasts.
func IsAgentConn(identity Identity) bool {
	return identity.IsAgent()
}

func marshalEvent(event Event, payload interface{}) ([]byte, error) {
	return json.Marshal(OutboundEnvelope{Event: event, Data: payload})
}
