package ws

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/derenko/q-chat/internal/auth"
	"github.com/derenko/q-chat/internal/chat"
	"github.com/derenko/q-chat/internal/model"
	"github.com/derenko/q-chat/internal/presence"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}

// TokenDecoder verifies agent bearer credentials from the handshake.
type TokenDecoder interface {
	DecodeAccess(token string) (*auth.Claims, error)
}

// AgentResolver resolves agent profiles during the handshake and for
// presence payloads.
type AgentResolver interface {
	AgentDirectory
	GetByUserID(ctx context.Context, userID int64) (*model.Agent, error)
}

// ClientResolver resolves client identifiers supplied in the handshake.
type ClientResolver interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
}

// Gateway owns the realtime coordination engine: connection registry,
// presence tracker, chat directory and dispatcher. It is constructed
// explicitly and passed by reference into every handler.
type Gateway struct {
	registry   *Registry
	tracker    *presence.Tracker
	chats      *chat.Manager
	dispatcher *Dispatcher

	tokens  TokenDecoder
	agents  AgentResolver
	clients ClientResolver
	logger  *slog.Logger
}

// NewGateway wires the realtime engine together.
func NewGateway(chats *chat.Manager, tracker *presence.Tracker, tokens TokenDecoder, agents AgentResolver, clients ClientResolver, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}

	registry := NewRegistry(tracker, logger)
	registry.SetOnRoomEmpty(chats.Evict)

	return &Gateway{
		registry:   registry,
		tracker:    tracker,
		chats:      chats,
		dispatcher: NewDispatcher(chats, registry, tracker, agents, logger),
		tokens:     tokens,
		agents:     agents,
		clients:    clients,
		logger:     logger,
	}
}

// HandleConnection upgrades an HTTP request to a WebSocket connection,
// resolves the handshake credential to an identity and runs the read/write
// pumps until the peer goes away.
func (g *Gateway) HandleConnection(w http.ResponseWriter, r *http.Request) error {
	identity := g.resolveIdentity(r)

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	conn := NewConn(wsConn, identity)
	g.registry.Register(conn)

	g.resume(r.Context(), conn)

	go g.writePump(conn)
	go g.readPump(conn)

	return nil
}

// resolveIdentity decodes the handshake credential. An absent or undecodable
// credential yields an anonymous connection, never an error.
func (g *Gateway) resolveIdentity(r *http.Request) Identity {
	query := r.URL.Query()

	if token := query.Get("agentToken"); token != "" {
		claims, err := g.tokens.DecodeAccess(token)
		if err != nil {
			g.logger.Warn("cannot authorize agent connection", "error", err)
			return Anonymous
		}

		agent, err := g.agents.GetByUserID(r.Context(), claims.UserID)
		if err != nil {
			g.logger.Warn("agent not found for token", "user", claims.UserID, "error", err)
			return Anonymous
		}

		return AgentIdentity(agent.ID)
	}

	if clientID := query.Get("clientToken"); clientID != "" {
		client, err := g.clients.GetByID(r.Context(), clientID)
		if err != nil {
			if !errors.Is(err, model.ErrClientNotFound) {
				g.logger.Warn("client lookup failed", "client", clientID, "error", err)
			}
			return Anonymous
		}

		return ClientIdentity(client.ID)
	}

	return Anonymous
}

// resume re-attaches a reconnecting peer to its ongoing conversations. An
// agent rejoins the rooms of its ACTIVE chats and receives its current chat
// list; a client rejoins its ongoing chat and receives its state.
func (g *Gateway) resume(ctx context.Context, conn *Conn) {
	identity := conn.Identity()

	switch identity.Role {
	case RoleAgent:
		chats, err := g.chats.CurrentChatsForAgent(ctx, identity.AgentID)
		if err != nil {
			g.logger.Error("agent resume failed", "agent", identity.AgentID, "error", err)
			return
		}

		for _, c := range chats {
			if c.Status == model.ChatStatusActive {
				g.registry.Join(conn, c.ID)
			}
		}
		if chats == nil {
			chats = []*model.Chat{}
		}
		g.registry.EmitTo(conn, EventAgentSetChats, chats)

	case RoleClient:
		current, err := g.chats.OpenChatForClient(ctx, identity.ClientID)
		if err != nil {
			if !errors.Is(err, model.ErrChatNotFound) {
				g.logger.Error("client resume failed", "client", identity.ClientID, "error", err)
			}
			return
		}

		g.registry.Join(conn, current.ID)
		g.registry.EmitTo(conn, EventClientSetChat, current)
	}
}

// readPump pumps inbound frames from the WebSocket into the dispatcher.
func (g *Gateway) readPump(conn *Conn) {
	defer func() {
		g.registry.Unregister(conn)
		conn.WS().Close()
	}()

	conn.WS().SetReadLimit(maxMessageSize)
	conn.WS().SetReadDeadline(time.Now().Add(pongWait))
	conn.WS().SetPongHandler(func(string) error {
		conn.WS().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.WS().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		g.dispatcher.Dispatch(context.Background(), conn, raw)
	}
}

// writePump pumps outbound frames from the send channel to the WebSocket.
func (g *Gateway) writePump(conn *Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.WS().Close()
	}()

	for {
		select {
		case frame, ok := <-conn.SendChan():
			conn.WS().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The registry closed the connection
				conn.WS().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One event per WebSocket frame so the widget can JSON.parse
			// each frame directly
			if err := conn.WS().WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

			n := len(conn.SendChan())
			for i := 0; i < n; i++ {
				queued := <-conn.SendChan()
				conn.WS().SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WS().WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.WS().SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WS().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close shuts the gateway down, closing every live connection.
func (g *Gateway) Close() {
	g.registry.Close()
}
