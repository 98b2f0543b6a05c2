// Package chat implements the conversation state machine and the in-memory
// directory of active chats.
//
// Every mutating operation on a chat is serialized by a per-chat lock and
// follows the same commit protocol: build a mutated copy, persist it through
// the storage repository, and only then swap the in-memory state. A failed
// persistence call therefore leaves no partial state behind.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/derenko/q-chat/internal/model"
)

// Bot-authored system messages, kept in the original product's locale.
const (
	greetingText = "Вітаємо в чаті!"
	closedText   = "Оператор завершив чат."
)

func agentJoinedText(name string) string {
	return fmt.Sprintf("Оператор %s в чаті", name)
}

// Repository is the storage gateway consumed by the manager. Every state
// transition is persisted synchronously through it.
type Repository interface {
	// CreateChat persists the chat, its client record and its initial
	// messages in one transaction.
	CreateChat(ctx context.Context, chat *model.Chat) error
	SaveChat(ctx context.Context, chat *model.Chat, newMessages ...*model.Message) error
	MarkMessagesSeen(ctx context.Context, chatID string, authors []model.SentBy) error
	GetChat(ctx context.Context, id string) (*model.Chat, error)
	OpenChatForClient(ctx context.Context, clientID string) (*model.Chat, error)
	ActiveChatsForAgent(ctx context.Context, agentID int64) ([]*model.Chat, error)
	OpenChats(ctx context.Context) ([]*model.Chat, error)
	CreateFeedback(ctx context.Context, fb *model.Feedback) error
}

// ClientStore resolves chat clients for directory enrichment. Client records
// are written through the chat repository as part of the chat transaction.
type ClientStore interface {
	GetByID(ctx context.Context, id string) (*model.Client, error)
}

// AgentStore resolves agent profiles for chat enrichment.
type AgentStore interface {
	GetByID(ctx context.Context, id int64) (*model.Agent, error)
}

// Manager owns the in-memory chat directory and applies all state transitions.
type Manager struct {
	repo    Repository
	clients ClientStore
	agents  AgentStore

	mu      sync.RWMutex
	entries map[string]*entry
}

// entry serializes mutations on a single chat. The lock scope is exactly one
// chat; unrelated chats are mutated concurrently.
type entry struct {
	mu   sync.Mutex
	chat *model.Chat
}

// NewManager creates a chat Manager.
func NewManager(repo Repository, clients ClientStore, agents AgentStore) *Manager {
	return &Manager{
		repo:    repo,
		clients: clients,
		agents:  agents,
		entries: make(map[string]*entry),
	}
}

// CreateChatParams are the inputs for opening a new chat.
type CreateChatParams struct {
	ClientID  string
	ProjectID string
	Name      string
	Email     string
	Phone     string
}

// Create opens a new chat in OPEN status with a bot greeting message. The
// visitor gets a client record; a provided client id is reused so a returning
// visitor keeps its history, otherwise a fresh one is generated. Client and
// chat are committed together, a failed create leaves neither behind.
func (m *Manager) Create(ctx context.Context, params CreateChatParams) (*model.Chat, error) {
	now := time.Now()

	client := &model.Client{
		ID:        params.ClientID,
		ProjectID: params.ProjectID,
		Name:      params.Name,
		Email:     params.Email,
		Phone:     params.Phone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if client.ID == "" {
		client.ID = uuid.New().String()
	}

	chatID := uuid.New().String()
	chat := &model.Chat{
		ID:        chatID,
		ProjectID: params.ProjectID,
		ClientID:  client.ID,
		Status:    model.ChatStatusOpen,
		Messages: []*model.Message{
			newBotMessage(chatID, greetingText, now),
		},
		Client:    client,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.repo.CreateChat(ctx, chat); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.entries[chat.ID] = &entry{chat: chat}
	m.mu.Unlock()

	return chat, nil
}

// AssignAgent moves an OPEN chat to ACTIVE with the given agent and appends a
// bot message naming the agent. First writer wins: a chat that is already
// ACTIVE fails with ErrAlreadyAssigned, a CLOSED chat with ErrInvalidTransition.
func (m *Manager) AssignAgent(ctx context.Context, chatID string, agentID int64) (*model.Chat, error) {
	agent, err := m.agents.GetByID(ctx, agentID)
	if err != nil {
		return nil, err
	}

	e, err := m.getEntry(ctx, chatID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.chat.Status {
	case model.ChatStatusActive:
		return nil, model.ErrAlreadyAssigned
	case model.ChatStatusClosed:
		return nil, model.ErrInvalidTransition
	}

	now := time.Now()
	next := e.chat.Clone()
	next.Status = model.ChatStatusActive
	next.AgentID = &agent.ID
	next.Agent = agent
	next.UpdatedAt = now

	msg := newBotMessage(next.ID, agentJoinedText(agent.Name), now)
	next.Messages = append(next.Messages, msg)

	if err := m.repo.SaveChat(ctx, next, msg); err != nil {
		return nil, err
	}

	e.chat = next
	return next, nil
}

// Close moves a chat to CLOSED and appends the closing bot message. Closing
// an already CLOSED chat is a no-op that returns the current state.
func (m *Manager) Close(ctx context.Context, chatID string) (*model.Chat, error) {
	e, err := m.getEntry(ctx, chatID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.chat.Status == model.ChatStatusClosed {
		return e.chat, nil
	}

	now := time.Now()
	next := e.chat.Clone()
	next.Status = model.ChatStatusClosed
	next.UpdatedAt = now

	msg := newBotMessage(next.ID, closedText, now)
	next.Messages = append(next.Messages, msg)

	if err := m.repo.SaveChat(ctx, next, msg); err != nil {
		return nil, err
	}

	e.chat = next
	return next, nil
}

// AppendMessage adds a message to an OPEN or ACTIVE chat and bumps its
// UpdatedAt. Appending to a CLOSED chat fails with ErrChatClosed.
func (m *Manager) AppendMessage(ctx context.Context, chatID string, from model.SentBy, text string) (*model.Chat, *model.Message, error) {
	e, err := m.getEntry(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.chat.Status == model.ChatStatusClosed {
		return nil, nil, model.ErrChatClosed
	}

	now := time.Now()
	next := e.chat.Clone()
	next.UpdatedAt = now

	msg := &model.Message{
		ID:        uuid.New().String(),
		ChatID:    next.ID,
		Text:      text,
		From:      from,
		Status:    model.MessageStatusSent,
		CreatedAt: now,
	}
	next.Messages = append(next.Messages, msg)

	if err := m.repo.SaveChat(ctx, next, msg); err != nil {
		return nil, nil, err
	}

	e.chat = next
	return next, msg, nil
}

// MarkSeen flips every message not authored by the viewer (bot messages
// included) to SEEN. The viewer's own messages are never touched. Idempotent.
func (m *Manager) MarkSeen(ctx context.Context, chatID string, viewer model.SentBy) (*model.Chat, error) {
	e, err := m.getEntry(ctx, chatID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	authors := make([]model.SentBy, 0, 2)
	for _, a := range []model.SentBy{model.SentByBot, model.SentByClient, model.SentByAgent} {
		if a != viewer {
			authors = append(authors, a)
		}
	}

	next := e.chat.Clone()
	for _, msg := range next.Messages {
		if msg.From != viewer {
			msg.Status = model.MessageStatusSeen
		}
	}

	if err := m.repo.MarkMessagesSeen(ctx, chatID, authors); err != nil {
		return nil, err
	}

	e.chat = next
	return next, nil
}

// SaveFeedback persists a one-time client rating for a chat.
func (m *Manager) SaveFeedback(ctx context.Context, fb *model.Feedback) error {
	if !model.ValidRating(fb.Rating) {
		return model.ErrValidation
	}

	if fb.ID == "" {
		fb.ID = uuid.New().String()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	return m.repo.CreateFeedback(ctx, fb)
}

// Get returns the current state of a chat.
func (m *Manager) Get(ctx context.Context, chatID string) (*model.Chat, error) {
	e, err := m.getEntry(ctx, chatID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.chat, nil
}

// OpenChatForClient returns the client's ongoing OPEN or ACTIVE chat, loading
// it into the directory for subsequent mutations.
func (m *Manager) OpenChatForClient(ctx context.Context, clientID string) (*model.Chat, error) {
	chat, err := m.repo.OpenChatForClient(ctx, clientID)
	if err != nil {
		return nil, err
	}

	return m.adopt(ctx, chat)
}

// CurrentChatsForAgent returns the agent's ACTIVE chats followed by every
// OPEN chat still waiting for an agent.
func (m *Manager) CurrentChatsForAgent(ctx context.Context, agentID int64) ([]*model.Chat, error) {
	active, err := m.repo.ActiveChatsForAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	open, err := m.repo.OpenChats(ctx)
	if err != nil {
		return nil, err
	}

	chats := make([]*model.Chat, 0, len(active)+len(open))
	for _, c := range append(active, open...) {
		adopted, err := m.adopt(ctx, c)
		if err != nil {
			return nil, err
		}
		chats = append(chats, adopted)
	}

	return chats, nil
}

// Evict drops a CLOSED chat from the in-memory directory. Chats are never
// deleted from storage.
func (m *Manager) Evict(chatID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[chatID]
	if !ok {
		return
	}

	e.mu.Lock()
	closed := e.chat.Status == model.ChatStatusClosed
	e.mu.Unlock()

	if closed {
		delete(m.entries, chatID)
	}
}

// getEntry returns the directory entry for a chat, loading it from storage on
// a miss. Unknown ids fail with model.ErrChatNotFound.
func (m *Manager) getEntry(ctx context.Context, chatID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[chatID]
	m.mu.RUnlock()
	if ok {
		return e, nil
	}

	chat, err := m.repo.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}

	if _, err := m.adopt(ctx, chat); err != nil {
		return nil, err
	}

	m.mu.RLock()
	e = m.entries[chatID]
	m.mu.RUnlock()
	return e, nil
}

// adopt enriches a freshly loaded chat with its client and agent profiles and
// inserts it into the directory, keeping an already-present entry authoritative.
func (m *Manager) adopt(ctx context.Context, chat *model.Chat) (*model.Chat, error) {
	m.mu.RLock()
	e, ok := m.entries[chat.ID]
	m.mu.RUnlock()
	if ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.chat, nil
	}

	if chat.Client == nil {
		client, err := m.clients.GetByID(ctx, chat.ClientID)
		if err != nil && !errors.Is(err, model.ErrClientNotFound) {
			return nil, err
		}
		chat.Client = client
	}
	if chat.Agent == nil && chat.AgentID != nil {
		agent, err := m.agents.GetByID(ctx, *chat.AgentID)
		if err != nil && !errors.Is(err, model.ErrAgentNotFound) {
			return nil, err
		}
		chat.Agent = agent
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.entries[chat.ID]; ok {
		existing.mu.Lock()
		defer existing.mu.Unlock()
		return existing.chat, nil
	}
	m.entries[chat.ID] = &entry{chat: chat}
	return chat, nil
}

func newBotMessage(chatID, text string, at time.Time) *model.Message {
	return &model.Message{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Text:      text,
		From:      model.SentByBot,
		Status:    model.MessageStatusSent,
		CreatedAt: at,
	}
}
