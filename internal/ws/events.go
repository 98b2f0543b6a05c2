package ws

import "encoding/json"

// Event is the wire name of a chat event.
type Event string

// Client -> Server events
const (
	EventClientJoinChat        Event = "client_join_chat"
	EventClientSendMessage     Event = "client_send_message"
	EventClientSeenMessage     Event = "client_seen_message"
	EventClientStartTyping     Event = "client_start_typing"
	EventClientStopTyping      Event = "client_stop_typing"
	EventClientSendFeedback    Event = "client_send_feedback"
	EventClientGetOnlineAgents Event = "client_get_online_agents"

	EventAgentGetChats    Event = "agent_get_chats"
	EventAgentJoinChat    Event = "agent_join_chat"
	EventAgentSendMessage Event = "agent_send_message"
	EventAgentSeenMessage Event = "agent_seen_message"
	EventAgentStartTyping Event = "agent_start_typing"
	EventAgentStopTyping  Event = "agent_stop_typing"
	EventAgentCloseChat   Event = "agent_close_chat"
)

// Server -> Client events
const (
	EventChatOpen    Event = "chat_open"
	EventChatMessage Event = "chat_message"
	EventChatClosed  Event = "chat_closed"

	EventAgentChatUpdated  Event = "agent_chat_updated"
	EventClientChatUpdated Event = "client_chat_updated"
	EventAgentTakeChat     Event = "agent_take_chat"
	EventAgentGetFeedback  Event = "agent_get_feedback"
	EventAgentSetChats     Event = "agent_set_chats"

	EventClientSetChat         Event = "client_set_chat"
	EventClientSetOnlineAgents Event = "client_set_online_agents"

	EventError Event = "error"
)

// Envelope is the wire frame wrapping every event.
type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundEnvelope is the frame used when marshaling outbound events.
type OutboundEnvelope struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ClientJoinChatPayload opens a new chat for a website visitor.
type ClientJoinChatPayload struct {
	ClientID  string `json:"clientId"`
	ProjectID string `json:"projectId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
}

// ChatRefPayload references an existing chat by id.
type ChatRefPayload struct {
	ChatID string `json:"chatId"`
}

// SendMessagePayload appends a message to a chat.
type SendMessagePayload struct {
	ChatID string `json:"chatId"`
	Text   string `json:"text"`
}

// SendFeedbackPayload records a client rating for a chat.
type SendFeedbackPayload struct {
	ChatID   string `json:"chatId"`
	ClientID string `json:"clientId"`
	AgentID  int64  `json:"agentId"`
	Rating   int    `json:"rating"`
}

// ErrorPayload is the rejection acknowledgment sent to the originating
// connection only; errors are never broadcast to a room.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
