// Package model defines the domain entities shared across the application.
package model

import "time"

// ChatStatus represents the lifecycle state of a chat.
// Transitions are monotonic: OPEN -> ACTIVE -> CLOSED.
type ChatStatus string

const (
	ChatStatusOpen   ChatStatus = "OPEN"
	ChatStatusActive ChatStatus = "ACTIVE"
	ChatStatusClosed ChatStatus = "CLOSED"
)

// SentBy identifies the author of a message.
type SentBy string

const (
	SentByBot    SentBy = "BOT"
	SentByClient SentBy = "CLIENT"
	SentByAgent  SentBy = "AGENT"
)

// MessageStatus represents the read state of a message.
type MessageStatus string

const (
	MessageStatusSent MessageStatus = "SENT"
	MessageStatusSeen MessageStatus = "SEEN"
)

// Chat represents one client-agent conversation.
// Exactly one client, at most one agent; AgentID is nil until the chat becomes ACTIVE.
type Chat struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"projectId"`
	ClientID  string     `json:"clientId"`
	AgentID   *int64     `json:"agentId"`
	Status    ChatStatus `json:"status"`
	Messages  []*Message `json:"messages"`
	Client    *Client    `json:"client,omitempty"`
	Agent     *Agent     `json:"agent,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy of the chat. Mutating operations work on a copy
// so that in-memory state only changes after the mutation is persisted.
func (c *Chat) Clone() *Chat {
	dup := *c
	dup.Messages = make([]*Message, len(c.Messages))
	for i, m := range c.Messages {
		msg := *m
		dup.Messages[i] = &msg
	}
	if c.AgentID != nil {
		id := *c.AgentID
		dup.AgentID = &id
	}
	return &dup
}

// LastMessage returns the most recently appended message, or nil for an empty chat.
func (c *Chat) LastMessage() *Message {
	if len(c.Messages) == 0 {
		return nil
	}
	return c.Messages[len(c.Messages)-1]
}

// Message represents a single chat message.
type Message struct {
	ID        string        `json:"id"`
	ChatID    string        `json:"chatId"`
	Text      string        `json:"text"`
	From      SentBy        `json:"from"`
	Status    MessageStatus `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Feedback is a one-time rating left by a client when a chat ends.
type Feedback struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	ClientID  string    `json:"clientId"`
	AgentID   int64     `json:"agentId"`
	Rating    int       `json:"rating"`
	CreatedAt time.Time `json:"createdAt"`
}

// ValidRating reports whether the rating is inside the accepted 1..5 range.
func ValidRating(rating int) bool {
	return rating >= 1 && rating <= 5
}
