package model

import "time"

// UserRole distinguishes project owner accounts from agent accounts.
type UserRole string

const (
	UserRoleProject UserRole = "PROJECT"
	UserRoleAgent   UserRole = "AGENT"
)

// User is an authenticated account (project owner or support agent).
type User struct {
	ID                 int64     `json:"id"`
	Email              string    `json:"email"`
	Password           string    `json:"-"`
	Role               UserRole  `json:"role"`
	HashedRefreshToken string    `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Project is a customer site that embeds the chat widget.
type Project struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	Name      string    `json:"name"`
	Website   string    `json:"website"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Agent is a support operator profile attached to a project.
// IsOnline is the declared availability flag; actual reachability is tracked
// separately by the presence tracker.
type Agent struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Avatar    string    `json:"avatar"`
	IsOnline  bool      `json:"isOnline"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Client is an anonymous website visitor that started a chat.
type Client struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Avatar    string    `json:"avatar,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Template is an agent's canned reply.
type Template struct {
	ID        string    `json:"id"`
	AgentID   int64     `json:"agentId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Handbook is a project FAQ article shown in the chat widget.
type Handbook struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"projectId"`
	Title     string    `json:"title"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
