// Package repository provides SQLite-backed data access for the chat domain.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/derenko/q-chat/internal/model"
)

// ChatRepository provides data access for chats, messages and feedback.
type ChatRepository struct {
	db *sql.DB
}

// NewChatRepository creates a new ChatRepository.
func NewChatRepository(db *sql.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

// CreateChat inserts a new chat together with its client record and initial
// messages in a single transaction. A client id seen before is updated in
// place, so a returning visitor can open a new chat with the same token.
func (r *ChatRepository) CreateChat(ctx context.Context, chat *model.Chat) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if chat.Client != nil {
		if err := upsertClient(ctx, tx, chat.Client); err != nil {
			return err
		}
	}

	query := `
		INSERT INTO chats (id, project_id, client_id, agent_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		chat.ID,
		chat.ProjectID,
		chat.ClientID,
		chat.AgentID,
		chat.Status,
		chat.CreatedAt,
		chat.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create chat: %w", err)
	}

	for _, msg := range chat.Messages {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chat: %w", err)
	}

	return nil
}

// SaveChat persists a chat state change together with any newly appended
// messages in a single transaction.
func (r *ChatRepository) SaveChat(ctx context.Context, chat *model.Chat, newMessages ...*model.Message) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE chats
		SET status = ?, agent_id = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := tx.ExecContext(ctx, query, chat.Status, chat.AgentID, chat.UpdatedAt, chat.ID)
	if err != nil {
		return fmt.Errorf("failed to update chat: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrChatNotFound
	}

	for _, msg := range newMessages {
		if err := insertMessage(ctx, tx, msg); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chat: %w", err)
	}

	return nil
}

func upsertClient(ctx context.Context, tx *sql.Tx, client *model.Client) error {
	query := `
		INSERT INTO clients (id, project_id, name, email, phone, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			phone = excluded.phone,
			updated_at = excluded.updated_at
	`

	var phone sql.NullString
	if client.Phone != "" {
		phone = sql.NullString{String: client.Phone, Valid: true}
	}

	_, err := tx.ExecContext(ctx, query,
		client.ID,
		client.ProjectID,
		client.Name,
		client.Email,
		phone,
		client.Avatar,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}

	return nil
}

func insertMessage(ctx context.Context, tx *sql.Tx, msg *model.Message) error {
	query := `
		INSERT INTO messages (id, chat_id, text, sent_by, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		msg.ID,
		msg.ChatID,
		msg.Text,
		msg.From,
		msg.Status,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

// MarkMessagesSeen flips the status of every message in the chat authored by
// one of the given senders to SEEN.
func (r *ChatRepository) MarkMessagesSeen(ctx context.Context, chatID string, authors []model.SentBy) error {
	if len(authors) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(authors))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`
		UPDATE messages
		SET status = ?
		WHERE chat_id = ? AND sent_by IN (%s)
	`, placeholders)

	args := make([]interface{}, 0, len(authors)+2)
	args = append(args, model.MessageStatusSeen, chatID)
	for _, a := range authors {
		args = append(args, a)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to mark messages seen: %w", err)
	}

	return nil
}

// GetChat retrieves a chat by its ID including its ordered message history.
func (r *ChatRepository) GetChat(ctx context.Context, id string) (*model.Chat, error) {
	query := `
		SELECT id, project_id, client_id, agent_id, status, created_at, updated_at
		FROM chats
		WHERE id = ?
	`

	chat, err := scanChat(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadMessages(ctx, chat); err != nil {
		return nil, err
	}

	return chat, nil
}

// OpenChatForClient returns the client's current OPEN or ACTIVE chat, if any.
// Returns model.ErrChatNotFound when the client has no ongoing chat.
func (r *ChatRepository) OpenChatForClient(ctx context.Context, clientID string) (*model.Chat, error) {
	query := `
		SELECT id, project_id, client_id, agent_id, status, created_at, updated_at
		FROM chats
		WHERE client_id = ? AND status IN (?, ?)
		ORDER BY created_at DESC
		LIMIT 1
	`

	chat, err := scanChat(r.db.QueryRowContext(ctx, query, clientID, model.ChatStatusOpen, model.ChatStatusActive))
	if err != nil {
		return nil, err
	}

	if err := r.loadMessages(ctx, chat); err != nil {
		return nil, err
	}

	return chat, nil
}

// ActiveChatsForAgent returns every ACTIVE chat assigned to the agent.
func (r *ChatRepository) ActiveChatsForAgent(ctx context.Context, agentID int64) ([]*model.Chat, error) {
	query := `
		SELECT id, project_id, client_id, agent_id, status, created_at, updated_at
		FROM chats
		WHERE agent_id = ? AND status = ?
		ORDER BY created_at ASC
	`

	return r.queryChats(ctx, query, agentID, model.ChatStatusActive)
}

// OpenChats returns every chat still waiting for an agent, newest first.
func (r *ChatRepository) OpenChats(ctx context.Context) ([]*model.Chat, error) {
	query := `
		SELECT id, project_id, client_id, agent_id, status, created_at, updated_at
		FROM chats
		WHERE status = ?
		ORDER BY created_at DESC
	`

	return r.queryChats(ctx, query, model.ChatStatusOpen)
}

// CreateFeedback stores a client's rating for a chat.
func (r *ChatRepository) CreateFeedback(ctx context.Context, fb *model.Feedback) error {
	query := `
		INSERT INTO feedback (id, chat_id, client_id, agent_id, rating, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		fb.ID,
		fb.ChatID,
		fb.ClientID,
		fb.AgentID,
		fb.Rating,
		fb.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}

	return nil
}

func (r *ChatRepository) queryChats(ctx context.Context, query string, args ...interface{}) ([]*model.Chat, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []*model.Chat
	for rows.Next() {
		chat, err := scanChat(rows)
		if err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}

	for _, chat := range chats {
		if err := r.loadMessages(ctx, chat); err != nil {
			return nil, err
		}
	}

	return chats, nil
}

func (r *ChatRepository) loadMessages(ctx context.Context, chat *model.Chat) error {
	query := `
		SELECT id, chat_id, text, sent_by, status, created_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, chat.ID)
	if err != nil {
		return fmt.Errorf("failed to load messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		msg := &model.Message{}
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Text, &msg.From, &msg.Status, &msg.CreatedAt); err != nil {
			return fmt.Errorf("failed to scan message: %w", err)
		}
		chat.Messages = append(chat.Messages, msg)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating messages: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanChat(row rowScanner) (*model.Chat, error) {
	chat := &model.Chat{}
	var agentID sql.NullInt64

	err := row.Scan(
		&chat.ID,
		&chat.ProjectID,
		&chat.ClientID,
		&agentID,
		&chat.Status,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrChatNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chat: %w", err)
	}

	if agentID.Valid {
		id := agentID.Int64
		chat.AgentID = &id
	}

	return chat, nil
}
