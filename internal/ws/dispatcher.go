package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/derenko/q-chat/internal/chat"
	"github.com/derenko/q-chat/internal/model"
	"github.com/derenko/q-chat/internal/presence"
)

// AgentDirectory resolves agent profiles for presence payloads.
type AgentDirectory interface {
	ListByIDs(ctx context.Context, ids []int64) ([]*model.Agent, error)
}

// Dispatcher validates inbound commands, authorizes them by the sender's
// identity, applies them through the chat manager and fans out the resulting
// events. Errors are acknowledged to the originating connection only.
type Dispatcher struct {
	chats    *chat.Manager
	registry *Registry
	tracker  *presence.Tracker
	agents   AgentDirectory
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(chats *chat.Manager, registry *Registry, tracker *presence.Tracker, agents AgentDirectory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		chats:    chats,
		registry: registry,
		tracker:  tracker,
		agents:   agents,
		logger:   logger,
	}
}

// Dispatch routes one inbound frame from a connection. Unknown events and
// malformed payloads are rejected without mutating any state.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Conn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
		d.reject(c, model.ErrValidation, "malformed event frame")
		return
	}

	var err error
	switch env.Event {
	case EventClientJoinChat:
		err = d.clientJoinChat(ctx, c, env.Data)
	case EventClientSendMessage:
		err = d.sendMessage(ctx, c, env.Data, model.SentByClient)
	case EventAgentSendMessage:
		err = d.sendMessage(ctx, c, env.Data, model.SentByAgent)
	case EventClientSeenMessage:
		err = d.clientSeenMessage(ctx, c, env.Data)
	case EventAgentSeenMessage:
		err = d.agentSeenMessage(ctx, c, env.Data)
	case EventAgentJoinChat:
		err = d.agentJoinChat(ctx, c, env.Data)
	case EventAgentCloseChat:
		err = d.agentCloseChat(ctx, c, env.Data)
	case EventClientSendFeedback:
		err = d.clientSendFeedback(ctx, c, env.Data)
	case EventClientGetOnlineAgents:
		err = d.clientGetOnlineAgents(ctx, c)
	case EventAgentGetChats:
		err = d.agentGetChats(ctx, c)
	case EventClientStartTyping, EventClientStopTyping, EventAgentStartTyping, EventAgentStopTyping:
		err = d.relayTyping(c, env.Event, env.Data)
	default:
		d.reject(c, model.ErrValidation, "unknown event")
		return
	}

	if err != nil {
		d.reject(c, err, "")
	}
}

// clientJoinChat creates a new chat. Allowed for client and anonymous
// connections; a first-contact visitor has no credential yet and its
// connection is upgraded to the created client identity.
func (d *Dispatcher) clientJoinChat(ctx context.Context, c *Conn, data json.RawMessage) error {
	if c.Identity().IsAgent() {
		return model.ErrValidation
	}

	var payload ClientJoinChatPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.ErrValidation
	}
	if payload.ProjectID == "" || payload.Name == "" || payload.Email == "" {
		return model.ErrValidation
	}

	created, err := d.chats.Create(ctx, chat.CreateChatParams{
		ClientID:  payload.ClientID,
		ProjectID: payload.ProjectID,
		Name:      payload.Name,
		Email:     payload.Email,
		Phone:     payload.Phone,
	})
	if err != nil {
		return err
	}

	d.registry.Rebind(c, ClientIdentity(created.ClientID))
	d.registry.Join(c, created.ID)

	d.registry.EmitToFiltered(EventChatOpen, created, IsAgentConn)
	d.registry.EmitTo(c, EventChatOpen, created)

	return nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, c *Conn, data json.RawMessage, from model.SentBy) error {
	identity := c.Identity()
	if from == model.SentByClient && !identity.IsClient() {
		return model.ErrValidation
	}
	if from == model.SentByAgent && !identity.IsAgent() {
		return model.ErrValidation
	}

	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.ErrValidation
	}
	if payload.ChatID == "" || payload.Text == "" {
		return model.ErrValidation
	}

	_, msg, err := d.chats.AppendMessage(ctx, payload.ChatID, from, payload.Text)
	if err != nil {
		return err
	}

	d.registry.EmitToRoom(payload.ChatID, EventChatMessage, msg)
	return nil
}

func (d *Dispatcher) clientSeenMessage(ctx context.Context, c *Conn, data json.RawMessage) error {
	if !c.Identity().IsClient() {
		return model.ErrValidation
	}

	var payload ChatRefPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
		return model.ErrValidation
	}

	updated, err := d.chats.MarkSeen(ctx, payload.ChatID, model.SentByClient)
	if err != nil {
		return err
	}

	d.registry.EmitToRoom(payload.ChatID, EventAgentChatUpdated, updated)
	return nil
}

// agentSeenMessage marks client and bot messages seen. Applies only while the
// chat is ACTIVE; on other statuses it is a silent no-op, as in the original
// product.
func (d *Dispatcher) agentSeenMessage(ctx context.Context, c *Conn, data json.RawMessage) error {
	if !c.Identity().IsAgent() {
		return model.ErrValidation
	}

	var payload ChatRefPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
		return model.ErrValidation
	}

	current, err := d.chats.Get(ctx, payload.ChatID)
	if err != nil {
		return err
	}
	if current.Status != model.ChatStatusActive {
		return nil
	}

	updated, err := d.chats.MarkSeen(ctx, payload.ChatID, model.SentByAgent)
	if err != nil {
		return err
	}

	d.registry.EmitToRoom(payload.ChatID, EventAgentChatUpdated, updated)
	return nil
}

func (d *Dispatcher) agentJoinChat(ctx context.Context, c *Conn, data json.RawMessage) error {
	identity := c.Identity()
	if !identity.IsAgent() {
		return model.ErrValidation
	}

	var payload ChatRefPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
		return model.ErrValidation
	}

	updated, err := d.chats.AssignAgent(ctx, payload.ChatID, identity.AgentID)
	if err != nil {
		return err
	}

	d.registry.Join(c, payload.ChatID)

	d.registry.EmitToRoom(payload.ChatID, EventClientChatUpdated, updated)
	d.registry.EmitToRoom(payload.ChatID, EventAgentChatUpdated, updated)
	d.registry.EmitToFiltered(EventAgentTakeChat, updated, IsAgentConn)

	return nil
}

func (d *Dispatcher) agentCloseChat(ctx context.Context, c *Conn, data json.RawMessage) error {
	if !c.Identity().IsAgent() {
		return model.ErrValidation
	}

	var payload ChatRefPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
		return model.ErrValidation
	}

	closed, err := d.chats.Close(ctx, payload.ChatID)
	if err != nil {
		return err
	}

	d.registry.EmitToRoom(payload.ChatID, EventChatClosed, closed)
	return nil
}

func (d *Dispatcher) clientSendFeedback(ctx context.Context, c *Conn, data json.RawMessage) error {
	if !c.Identity().IsClient() {
		return model.ErrValidation
	}

	var payload SendFeedbackPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return model.ErrValidation
	}
	if payload.ChatID == "" || payload.ClientID == "" || !model.ValidRating(payload.Rating) {
		return model.ErrValidation
	}

	err := d.chats.SaveFeedback(ctx, &model.Feedback{
		ChatID:   payload.ChatID,
		ClientID: payload.ClientID,
		AgentID:  payload.AgentID,
		Rating:   payload.Rating,
	})
	if err != nil {
		return err
	}

	d.registry.EmitToRoom(payload.ChatID, EventAgentGetFeedback, payload.Rating)
	return nil
}

func (d *Dispatcher) clientGetOnlineAgents(ctx context.Context, c *Conn) error {
	ids := d.tracker.ListOnline()

	agents, err := d.agents.ListByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if agents == nil {
		agents = []*model.Agent{}
	}

	d.registry.EmitTo(c, EventClientSetOnlineAgents, agents)
	return nil
}

func (d *Dispatcher) agentGetChats(ctx context.Context, c *Conn) error {
	identity := c.Identity()
	if !identity.IsAgent() {
		return model.ErrValidation
	}

	chats, err := d.chats.CurrentChatsForAgent(ctx, identity.AgentID)
	if err != nil {
		return err
	}
	if chats == nil {
		chats = []*model.Chat{}
	}

	d.registry.EmitTo(c, EventAgentSetChats, chats)
	return nil
}

// relayTyping forwards typing notifications to the room without touching any
// state.
func (d *Dispatcher) relayTyping(c *Conn, event Event, data json.RawMessage) error {
	if c.Identity().Role == RoleAnonymous {
		return model.ErrValidation
	}

	var payload ChatRefPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatID == "" {
		return model.ErrValidation
	}

	d.registry.EmitToRoom(payload.ChatID, event, nil)
	return nil
}

// reject sends an error acknowledgment to the originating connection.
func (d *Dispatcher) reject(c *Conn, err error, message string) {
	code := errorCode(err)
	if message == "" {
		message = err.Error()
	}

	if code == codePersistenceFailure {
		d.logger.Error("command aborted", "error", err)
	}

	d.registry.EmitTo(c, EventError, ErrorPayload{Code: code, Message: message})
}

const (
	codeNotFound           = "NOT_FOUND"
	codeInvalidTransition  = "INVALID_TRANSITION"
	codeAlreadyAssigned    = "ALREADY_ASSIGNED"
	codeChatClosed         = "CHAT_CLOSED"
	codeValidationError    = "VALIDATION_ERROR"
	codePersistenceFailure = "PERSISTENCE_FAILURE"
)

// errorCode maps domain errors to acknowledgment codes. Anything outside the
// domain taxonomy is treated as a failed persistence call.
func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrChatNotFound),
		errors.Is(err, model.ErrAgentNotFound),
		errors.Is(err, model.ErrClientNotFound):
		return codeNotFound
	case errors.Is(err, model.ErrInvalidTransition):
		return codeInvalidTransition
	case errors.Is(err, model.ErrAlreadyAssigned):
		return codeAlreadyAssigned
	case errors.Is(err, model.ErrChatClosed):
		return codeChatClosed
	case errors.Is(err, model.ErrValidation):
		return codeValidationError
	default:
		return codePersistenceFailure
	}
}
