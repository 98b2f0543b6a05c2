package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/derenko/q-chat/internal/model"
)

// UserRepository provides data access for authenticated accounts.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user and returns it with the generated ID.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (email, password, role, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		user.Email,
		user.Password,
		user.Role,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user id: %w", err)
	}
	user.ID = id

	return nil
}

// GetByID retrieves a user by its ID.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	query := `
		SELECT id, email, password, role, hashed_refresh_token, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by its email address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `
		SELECT id, email, password, role, hashed_refresh_token, created_at, updated_at
		FROM users
		WHERE email = ?
	`

	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// UpdateRefreshToken stores the bcrypt hash of the user's current refresh token.
// An empty hash clears the stored token (logout).
func (r *UserRepository) UpdateRefreshToken(ctx context.Context, userID int64, hashedToken string) error {
	query := `
		UPDATE users
		SET hashed_refresh_token = ?, updated_at = ?
		WHERE id = ?
	`

	var hash sql.NullString
	if hashedToken != "" {
		hash = sql.NullString{String: hashedToken, Valid: true}
	}

	result, err := r.db.ExecContext(ctx, query, hash, time.Now(), userID)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrUserNotFound
	}

	return nil
}

// Delete removes a user account.
func (r *UserRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrUserNotFound
	}

	return nil
}

func scanUser(row rowScanner) (*model.User, error) {
	user := &model.User{}
	var refreshToken sql.NullString

	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Password,
		&user.Role,
		&refreshToken,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if refreshToken.Valid {
		user.HashedRefreshToken = refreshToken.String
	}

	return user, nil
}
