package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/derenko/q-chat/internal/chat"
	"github.com/derenko/q-chat/internal/db"
	"github.com/derenko/q-chat/internal/model"
	"github.com/derenko/q-chat/internal/presence"
	"github.com/derenko/q-chat/internal/repository"
)

// failingRepo wraps the real storage repository and fails writes on demand.
type failingRepo struct {
	chat.Repository
	failWrites bool
}

var errStorageDown = errors.New("storage down")

func (r *failingRepo) SaveChat(ctx context.Context, c *model.Chat, newMessages ...*model.Message) error {
	if r.failWrites {
		return errStorageDown
	}
	return r.Repository.SaveChat(ctx, c, newMessages...)
}

func (r *failingRepo) CreateChat(ctx context.Context, c *model.Chat) error {
	if r.failWrites {
		return errStorageDown
	}
	return r.Repository.CreateChat(ctx, c)
}

type dispatcherEnv struct {
	dispatcher *Dispatcher
	registry   *Registry
	tracker    *presence.Tracker
	manager    *chat.Manager
	repo       *failingRepo
	projectID  string
	agentID    int64
}

func setupDispatcher(t *testing.T) (*dispatcherEnv, func()) {
	t.Helper()

	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}

	ctx := context.Background()
	users := repository.NewUserRepository(database)
	projects := repository.NewProjectRepository(database)
	agents := repository.NewAgentRepository(database)
	clients := repository.NewClientRepository(database)

	now := time.Now()
	owner := &model.User{Email: "owner@example.com", Password: "x", Role: model.UserRoleProject, CreatedAt: now, UpdatedAt: now}
	if err := users.Create(ctx, owner); err != nil {
		database.Close()
		t.Fatalf("Failed to create owner: %v", err)
	}
	project := &model.Project{ID: uuid.New().String(), UserID: owner.ID, Name: "Acme", CreatedAt: now, UpdatedAt: now}
	if err := projects.Create(ctx, project); err != nil {
		database.Close()
		t.Fatalf("Failed to create project: %v", err)
	}
	operator := &model.User{Email: "agent@example.com", Password: "x", Role: model.UserRoleAgent, CreatedAt: now, UpdatedAt: now}
	if err := users.Create(ctx, operator); err != nil {
		database.Close()
		t.Fatalf("Failed to create agent user: %v", err)
	}
	agent := &model.Agent{UserID: operator.ID, ProjectID: project.ID, Name: "Bohdan", CreatedAt: now, UpdatedAt: now}
	if err := agents.Create(ctx, agent); err != nil {
		database.Close()
		t.Fatalf("Failed to create agent: %v", err)
	}

	repo := &failingRepo{Repository: repository.NewChatRepository(database)}
	manager := chat.NewManager(repo, clients, agents)

	tracker := presence.NewTracker()
	registry := NewRegistry(tracker, nil)
	registry.SetOnRoomEmpty(manager.Evict)
	dispatcher := NewDispatcher(manager, registry, tracker, agents, nil)

	env := &dispatcherEnv{
		dispatcher: dispatcher,
		registry:   registry,
		tracker:    tracker,
		manager:    manager,
		repo:       repo,
		projectID:  project.ID,
		agentID:    agent.ID,
	}

	return env, func() {
		registry.Close()
		database.Close()
	}
}

func frame(t *testing.T, event Event, payload interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	raw, err := json.Marshal(Envelope{Event: event, Data: data})
	if err != nil {
		t.Fatalf("failed to marshal envelope: %v", err)
	}
	return raw
}

// expectError reads one frame and asserts it is an error ack with the code.
func expectError(t *testing.T, c *Conn, code string) {
	t.Helper()
	event, data := decodeFrame(t, receiveWithTimeout(t, c, 100*time.Millisecond))
	if event != EventError {
		t.Fatalf("expected error event, got %s", event)
	}
	var payload ErrorPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if payload.Code != code {
		t.Errorf("expected code %s, got %s (%s)", code, payload.Code, payload.Message)
	}
}

// expectQuiet asserts no frame is queued on the connection.
func expectQuiet(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case data := <-c.SendChan():
		t.Errorf("expected no frame, got %s", data)
	default:
	}
}

// joinChat dispatches client_join_chat on the connection and returns the
// created chat from the chat_open acknowledgment.
func joinChat(t *testing.T, env *dispatcherEnv, c *Conn) *model.Chat {
	t.Helper()
	ctx := context.Background()

	env.dispatcher.Dispatch(ctx, c, frame(t, EventClientJoinChat, ClientJoinChatPayload{
		ProjectID: env.projectID,
		Name:      "Olya",
		Email:     "olya@example.com",
	}))

	event, data := decodeFrame(t, receiveWithTimeout(t, c, 100*time.Millisecond))
	if event != EventChatOpen {
		t.Fatalf("expected chat_open ack, got %s", event)
	}
	var created model.Chat
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("failed to decode chat: %v", err)
	}
	return &created
}

func TestDispatcherJoinChat(t *testing.T) {
	env, cleanup := setupDispatcher(t)
	defer cleanup()

	ctx := context.Background()

	visitor := newTestConn(Anonymous)
	agentConn := newTestConn(AgentIdentity(env.agentID))
	env.registry.Register(visitor)
	env.registry.Register(agentConn)

	created := joinChat(t, env, visitor)

	t.Run("visitor identity is upgraded", func(t *testing.T) {
		identity := visitor.Identity()
		if !identity.IsClient() || identity.ClientID != created.ClientID {
			t.Errorf("expected client identity for %s, got %+v", created.ClientID, identity)
		}
	})

	t.Run("visitor joins the chat room", func(t *testing.T) {
		if env.registry.RoomSize(created.ID) != 1 {
			t.Errorf("expected room size 1, got %d", env.registry.RoomSize(created.ID))
		}
	})

	t.Run("agents are notified", func(t *testing.T) {
		event, data := decodeFrame(t, receiveWithTimeout(t, agentConn, 100*time.Millisecond))
		if event != EventChatOpen {
			t.Fatalf("expected chat_open, got %s", event)
		}
		var notified model.Chat
		if err := json.Unmarshal(data, &notified); err != nil {
			t.Fatalf("failed to decode chat: %v", err)
		}
		if notified.ID != created.ID {
			t.Errorf("expected chat %s, got %s", created.ID, notified.ID)
		}
	})

	t.Run("agents cannot open client chats", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventClientJoinChat, ClientJoinChatPayload{
			ProjectID: env.projectID,
			Name:      "X",
			Email:     "x@example.com",
		}))
		expectError(t, agentConn, "VALIDATION_ERROR")
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		anon := newTestConn(Anonymous)
		env.registry.Register(anon)
		env.dispatcher.Dispatch(ctx, anon, frame(t, EventClientJoinChat, ClientJoinChatPayload{
			ProjectID: env.projectID,
		}))
		expectError(t, anon, "VALIDATION_ERROR")
	})
}

func TestDispatcherAgentTakeChat(t *testing.T) {
	env, cleanup := setupDispatcher(t)
	defer cleanup()

	ctx := context.Background()

	visitor := newTestConn(Anonymous)
	agentConn := newTestConn(AgentIdentity(env.agentID))
	idleAgent := newTestConn(AgentIdentity(env.agentID))
	env.registry.Register(visitor)
	env.registry.Register(agentConn)
	env.registry.Register(idleAgent)

	created := joinChat(t, env, visitor)
	drain(agentConn)
	drain(idleAgent)

	env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))

	t.Run("room receives both update events", func(t *testing.T) {
		seen := map[Event]bool{}
		for i := 0; i < 2; i++ {
			event, _ := decodeFrame(t, receiveWithTimeout(t, visitor, 100*time.Millisecond))
			seen[event] = true
		}
		if !seen[EventClientChatUpdated] || !seen[EventAgentChatUpdated] {
			t.Errorf("expected client_chat_updated and agent_chat_updated, got %v", seen)
		}
	})

	t.Run("other agents see the take", func(t *testing.T) {
		drain(agentConn) // room updates plus the take broadcast
		event, _ := decodeFrame(t, receiveWithTimeout(t, idleAgent, 100*time.Millisecond))
		if event != EventAgentTakeChat {
			t.Errorf("expected agent_take_chat, got %s", event)
		}
	})

	t.Run("second take is refused", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, idleAgent, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))
		expectError(t, idleAgent, "ALREADY_ASSIGNED")
	})

	t.Run("take on closed chat", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentCloseChat, ChatRefPayload{ChatID: created.ID}))
		drain(agentConn)
		drain(visitor)

		env.dispatcher.Dispatch(ctx, idleAgent, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))
		expectError(t, idleAgent, "INVALID_TRANSITION")
	})
}

func TestDispatcherMessages(t *testing.T) {
	env, cleanup := setupDispatcher(t)
	defer cleanup()

	ctx := context.Background()

	visitor := newTestConn(Anonymous)
	agentConn := newTestConn(AgentIdentity(env.agentID))
	env.registry.Register(visitor)
	env.registry.Register(agentConn)

	created := joinChat(t, env, visitor)
	drain(agentConn)

	env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))
	drain(visitor)
	drain(agentConn)

	t.Run("client message fans out to the room", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientSendMessage, SendMessagePayload{
			ChatID: created.ID,
			Text:   "hello",
		}))

		for _, member := range []*Conn{visitor, agentConn} {
			event, data := decodeFrame(t, receiveWithTimeout(t, member, 100*time.Millisecond))
			if event != EventChatMessage {
				t.Fatalf("expected chat_message, got %s", event)
			}
			var msg model.Message
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("failed to decode message: %v", err)
			}
			if msg.Text != "hello" || msg.From != model.SentByClient {
				t.Errorf("unexpected message %+v", msg)
			}
		}
	})

	t.Run("client cannot send as agent", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventAgentSendMessage, SendMessagePayload{
			ChatID: created.ID,
			Text:   "spoofed",
		}))
		expectError(t, visitor, "VALIDATION_ERROR")
		expectQuiet(t, agentConn)
	})

	t.Run("typing relays to the room without state", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientStartTyping, ChatRefPayload{ChatID: created.ID}))

		for _, member := range []*Conn{visitor, agentConn} {
			event, _ := decodeFrame(t, receiveWithTimeout(t, member, 100*time.Millisecond))
			if event != EventClientStartTyping {
				t.Errorf("expected client_start_typing, got %s", event)
			}
		}
	})

	t.Run("message to closed chat is refused", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentCloseChat, ChatRefPayload{ChatID: created.ID}))
		drain(visitor)
		drain(agentConn)

		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientSendMessage, SendMessagePayload{
			ChatID: created.ID,
			Text:   "anyone?",
		}))
		expectError(t, visitor, "CHAT_CLOSED")
		expectQuiet(t, agentConn)
	})
}

func TestDispatcherPersistenceFailure(t *testing.T) {
	env, cleanup := setupDispatcher(t)
	defer cleanup()

	ctx := context.Background()

	visitor := newTestConn(Anonymous)
	agentConn := newTestConn(AgentIdentity(env.agentID))
	env.registry.Register(visitor)
	env.registry.Register(agentConn)

	created := joinChat(t, env, visitor)
	drain(agentConn)

	env.repo.failWrites = true

	t.Run("failed append leaves no trace", func(t *testing.T) {
		before, err := env.manager.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Failed to get chat: %v", err)
		}

		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientSendMessage, SendMessagePayload{
			ChatID: created.ID,
			Text:   "lost",
		}))

		expectError(t, visitor, "PERSISTENCE_FAILURE")
		expectQuiet(t, agentConn)

		after, err := env.manager.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Failed to get chat: %v", err)
		}
		if len(after.Messages) != len(before.Messages) {
			t.Errorf("message count changed on failed persist: %d -> %d", len(before.Messages), len(after.Messages))
		}
	})

	t.Run("failed take leaves chat open", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))

		expectError(t, agentConn, "PERSISTENCE_FAILURE")
		expectQuiet(t, visitor)

		current, err := env.manager.Get(ctx, created.ID)
		if err != nil {
			t.Fatalf("Failed to get chat: %v", err)
		}
		if current.Status != model.ChatStatusOpen || current.AgentID != nil {
			t.Errorf("chat should stay OPEN and unassigned, got %s", current.Status)
		}
	})

	t.Run("writes succeed again after recovery", func(t *testing.T) {
		env.repo.failWrites = false

		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))
		drain(agentConn)

		event, _ := decodeFrame(t, receiveWithTimeout(t, visitor, 100*time.Millisecond))
		if event != EventClientChatUpdated && event != EventAgentChatUpdated {
			t.Errorf("expected chat update after recovery, got %s", event)
		}
	})
}

func TestDispatcherQueries(t *testing.T) {
	env, cleanup := setupDispatcher(t)
	defer cleanup()

	ctx := context.Background()

	visitor := newTestConn(Anonymous)
	agentConn := newTestConn(AgentIdentity(env.agentID))
	env.registry.Register(visitor)
	env.registry.Register(agentConn)

	created := joinChat(t, env, visitor)
	drain(agentConn)

	t.Run("agent worklist", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentGetChats, nil))

		event, data := decodeFrame(t, receiveWithTimeout(t, agentConn, 100*time.Millisecond))
		if event != EventAgentSetChats {
			t.Fatalf("expected agent_set_chats, got %s", event)
		}
		var chats []*model.Chat
		if err := json.Unmarshal(data, &chats); err != nil {
			t.Fatalf("failed to decode chats: %v", err)
		}
		if len(chats) != 1 || chats[0].ID != created.ID {
			t.Errorf("expected worklist with chat %s, got %d entries", created.ID, len(chats))
		}
	})

	t.Run("worklist is agent only", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventAgentGetChats, nil))
		expectError(t, visitor, "VALIDATION_ERROR")
	})

	t.Run("online agents require declared flag and connection", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientGetOnlineAgents, nil))
		event, data := decodeFrame(t, receiveWithTimeout(t, visitor, 100*time.Millisecond))
		if event != EventClientSetOnlineAgents {
			t.Fatalf("expected client_set_online_agents, got %s", event)
		}
		var agents []*model.Agent
		if err := json.Unmarshal(data, &agents); err != nil {
			t.Fatalf("failed to decode agents: %v", err)
		}
		if len(agents) != 0 {
			t.Errorf("agent has not declared availability, expected none, got %d", len(agents))
		}

		env.tracker.SetDeclaredOnline(env.agentID, true)
		env.tracker.OnConnect(env.agentID)

		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientGetOnlineAgents, nil))
		event, data = decodeFrame(t, receiveWithTimeout(t, visitor, 100*time.Millisecond))
		if event != EventClientSetOnlineAgents {
			t.Fatalf("expected client_set_online_agents, got %s", event)
		}
		if err := json.Unmarshal(data, &agents); err != nil {
			t.Fatalf("failed to decode agents: %v", err)
		}
		if len(agents) != 1 || agents[0].ID != env.agentID {
			t.Errorf("expected the online agent, got %d entries", len(agents))
		}
	})

	t.Run("unknown event is rejected", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, []byte(`{"event":"reboot_server"}`))
		expectError(t, visitor, "VALIDATION_ERROR")
	})

	t.Run("malformed frame is rejected", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, []byte(`not json`))
		expectError(t, visitor, "VALIDATION_ERROR")
	})

	t.Run("unknown chat reference", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: fmt.Sprintf("missing-%d", time.Now().UnixNano())}))
		expectError(t, agentConn, "NOT_FOUND")
	})
}

func TestDispatcherFeedback(t *testing.T) {
	env, cleanup := setupDispatcher(t)
	defer cleanup()

	ctx := context.Background()

	visitor := newTestConn(Anonymous)
	agentConn := newTestConn(AgentIdentity(env.agentID))
	env.registry.Register(visitor)
	env.registry.Register(agentConn)

	created := joinChat(t, env, visitor)
	drain(agentConn)

	env.dispatcher.Dispatch(ctx, agentConn, frame(t, EventAgentJoinChat, ChatRefPayload{ChatID: created.ID}))
	drain(visitor)
	drain(agentConn)

	t.Run("rating fans out to the room", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientSendFeedback, SendFeedbackPayload{
			ChatID:   created.ID,
			ClientID: created.ClientID,
			AgentID:  env.agentID,
			Rating:   5,
		}))

		event, data := decodeFrame(t, receiveWithTimeout(t, agentConn, 100*time.Millisecond))
		if event != EventAgentGetFeedback {
			t.Fatalf("expected agent_get_feedback, got %s", event)
		}
		var rating int
		if err := json.Unmarshal(data, &rating); err != nil {
			t.Fatalf("failed to decode rating: %v", err)
		}
		if rating != 5 {
			t.Errorf("expected rating 5, got %d", rating)
		}
		drain(visitor)
	})

	t.Run("out of range rating is rejected", func(t *testing.T) {
		env.dispatcher.Dispatch(ctx, visitor, frame(t, EventClientSendFeedback, SendFeedbackPayload{
			ChatID:   created.ID,
			ClientID: created.ClientID,
			AgentID:  env.agentID,
			Rating:   9,
		}))
		expectError(t, visitor, "VALIDATION_ERROR")
		expectQuiet(t, agentConn)
	})
}
