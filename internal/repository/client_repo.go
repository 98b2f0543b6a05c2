package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/derenko/q-chat/internal/model"
)

// ClientRepository provides data access for chat clients.
type ClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new ClientRepository.
func NewClientRepository(db *sql.DB) *ClientRepository {
	return &ClientRepository{db: db}
}

// Create inserts a new client.
func (r *ClientRepository) Create(ctx context.Context, client *model.Client) error {
	query := `
		INSERT INTO clients (id, project_id, name, email, phone, avatar, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	var phone sql.NullString
	if client.Phone != "" {
		phone = sql.NullString{String: client.Phone, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
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
		return fmt.Errorf("failed to create client: %w", err)
	}

	return nil
}

// GetByID retrieves a client by its ID.
func (r *ClientRepository) GetByID(ctx context.Context, id string) (*model.Client, error) {
	query := `
		SELECT id, project_id, name, email, phone, avatar, created_at, updated_at
		FROM clients
		WHERE id = ?
	`

	client := &model.Client{}
	var phone sql.NullString

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&client.ID,
		&client.ProjectID,
		&client.Name,
		&client.Email,
		&phone,
		&client.Avatar,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrClientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	if phone.Valid {
		client.Phone = phone.String
	}

	return client, nil
}
