package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/derenko/q-chat/internal/model"
)

// ProjectRepository provides data access for projects and their handbooks.
type ProjectRepository struct {
	db *sql.DB
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(db *sql.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project.
func (r *ProjectRepository) Create(ctx context.Context, project *model.Project) error {
	query := `
		INSERT INTO projects (id, user_id, name, website, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		project.ID,
		project.UserID,
		project.Name,
		project.Website,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}

	return nil
}

// GetByID retrieves a project by its ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*model.Project, error) {
	query := `
		SELECT id, user_id, name, website, created_at, updated_at
		FROM projects
		WHERE id = ?
	`

	return scanProject(r.db.QueryRowContext(ctx, query, id))
}

// GetByUserID retrieves the project owned by a user account.
func (r *ProjectRepository) GetByUserID(ctx context.Context, userID int64) (*model.Project, error) {
	query := `
		SELECT id, user_id, name, website, created_at, updated_at
		FROM projects
		WHERE user_id = ?
	`

	return scanProject(r.db.QueryRowContext(ctx, query, userID))
}

// Update updates the project's name and website.
func (r *ProjectRepository) Update(ctx context.Context, id, name, website string) error {
	query := `
		UPDATE projects
		SET name = ?, website = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.ExecContext(ctx, query, name, website, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrProjectNotFound
	}

	return nil
}

func scanProject(row rowScanner) (*model.Project, error) {
	project := &model.Project{}

	err := row.Scan(
		&project.ID,
		&project.UserID,
		&project.Name,
		&project.Website,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrProjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project: %w", err)
	}

	return project, nil
}

// CreateHandbook inserts a new handbook article.
func (r *ProjectRepository) CreateHandbook(ctx context.Context, hb *model.Handbook) error {
	query := `
		INSERT INTO handbooks (id, project_id, title, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		hb.ID,
		hb.ProjectID,
		hb.Title,
		hb.Text,
		hb.CreatedAt,
		hb.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create handbook: %w", err)
	}

	return nil
}

// ListHandbooks retrieves every handbook article of a project.
func (r *ProjectRepository) ListHandbooks(ctx context.Context, projectID string) ([]*model.Handbook, error) {
	query := `
		SELECT id, project_id, title, text, created_at, updated_at
		FROM handbooks
		WHERE project_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list handbooks: %w", err)
	}
	defer rows.Close()

	var handbooks []*model.Handbook
	for rows.Next() {
		hb := &model.Handbook{}
		if err := rows.Scan(&hb.ID, &hb.ProjectID, &hb.Title, &hb.Text, &hb.CreatedAt, &hb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan handbook: %w", err)
		}
		handbooks = append(handbooks, hb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating handbooks: %w", err)
	}

	return handbooks, nil
}

// UpdateHandbook updates a handbook article belonging to the project.
func (r *ProjectRepository) UpdateHandbook(ctx context.Context, projectID string, id, title, text string) error {
	query := `
		UPDATE handbooks
		SET title = ?, text = ?, updated_at = ?
		WHERE id = ? AND project_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, title, text, time.Now(), id, projectID)
	if err != nil {
		return fmt.Errorf("failed to update handbook: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrHandbookNotFound
	}

	return nil
}

// DeleteHandbook removes a handbook article belonging to the project.
func (r *ProjectRepository) DeleteHandbook(ctx context.Context, projectID string, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM handbooks WHERE id = ? AND project_id = ?`, id, projectID)
	if err != nil {
		return fmt.Errorf("failed to delete handbook: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrHandbookNotFound
	}

	return nil
}
