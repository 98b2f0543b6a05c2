package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/derenko/q-chat/internal/model"
)

// AgentRepository provides data access for agents and their reply templates.
type AgentRepository struct {
	db *sql.DB
}

// NewAgentRepository creates a new AgentRepository.
func NewAgentRepository(db *sql.DB) *AgentRepository {
	return &AgentRepository{db: db}
}

const agentColumns = "id, user_id, project_id, name, avatar, is_online, created_at, updated_at"

// Create inserts a new agent profile and returns it with the generated ID.
func (r *AgentRepository) Create(ctx context.Context, agent *model.Agent) error {
	query := `
		INSERT INTO agents (user_id, project_id, name, avatar, is_online, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := r.db.ExecContext(ctx, query,
		agent.UserID,
		agent.ProjectID,
		agent.Name,
		agent.Avatar,
		agent.IsOnline,
		agent.CreatedAt,
		agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create agent: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get agent id: %w", err)
	}
	agent.ID = id

	return nil
}

// GetByID retrieves an agent by its ID.
func (r *AgentRepository) GetByID(ctx context.Context, id int64) (*model.Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE id = ?`, agentColumns)
	return scanAgent(r.db.QueryRowContext(ctx, query, id))
}

// GetByUserID retrieves the agent profile attached to a user account.
func (r *AgentRepository) GetByUserID(ctx context.Context, userID int64) (*model.Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE user_id = ?`, agentColumns)
	return scanAgent(r.db.QueryRowContext(ctx, query, userID))
}

// ListByProject retrieves every agent attached to a project.
func (r *AgentRepository) ListByProject(ctx context.Context, projectID string) ([]*model.Agent, error) {
	query := fmt.Sprintf(`SELECT %s FROM agents WHERE project_id = ? ORDER BY created_at ASC`, agentColumns)
	return r.queryAgents(ctx, query, projectID)
}

// ListByIDs retrieves the agents with the given IDs.
func (r *AgentRepository) ListByIDs(ctx context.Context, ids []int64) ([]*model.Agent, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	query := fmt.Sprintf(`SELECT %s FROM agents WHERE id IN (%s)`, agentColumns, placeholders)

	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return r.queryAgents(ctx, query, args...)
}

// UpdateProfile updates the agent's display name and avatar.
func (r *AgentRepository) UpdateProfile(ctx context.Context, id int64, name, avatar string) error {
	query := `
		UPDATE agents
		SET name = ?, avatar = ?, updated_at = ?
		WHERE id = ?
	`

	return r.exec(ctx, query, name, avatar, time.Now(), id)
}

// SetOnlineStatus persists the agent's declared availability flag.
func (r *AgentRepository) SetOnlineStatus(ctx context.Context, id int64, online bool) error {
	query := `
		UPDATE agents
		SET is_online = ?, updated_at = ?
		WHERE id = ?
	`

	return r.exec(ctx, query, online, time.Now(), id)
}

// ListDeclaredOnline returns the IDs of agents whose persisted availability
// flag is set. Used to seed the presence tracker on startup.
func (r *AgentRepository) ListDeclaredOnline(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM agents WHERE is_online = 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to query agents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan agent: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}

// Delete removes an agent profile.
func (r *AgentRepository) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM agents WHERE id = ?`, id)
}

func (r *AgentRepository) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update agent: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrAgentNotFound
	}

	return nil
}

func (r *AgentRepository) queryAgents(ctx context.Context, query string, args ...interface{}) ([]*model.Agent, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list agents: %w", err)
	}
	defer rows.Close()

	var agents []*model.Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agents: %w", err)
	}

	return agents, nil
}

func scanAgent(row rowScanner) (*model.Agent, error) {
	agent := &model.Agent{}

	err := row.Scan(
		&agent.ID,
		&agent.UserID,
		&agent.ProjectID,
		&agent.Name,
		&agent.Avatar,
		&agent.IsOnline,
		&agent.CreatedAt,
		&agent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrAgentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agent: %w", err)
	}

	return agent, nil
}

// CreateTemplate inserts a new canned reply template.
func (r *AgentRepository) CreateTemplate(ctx context.Context, tmpl *model.Template) error {
	query := `
		INSERT INTO templates (id, agent_id, title, text, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		tmpl.ID,
		tmpl.AgentID,
		tmpl.Title,
		tmpl.Text,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

// ListTemplates retrieves every template owned by the agent.
func (r *AgentRepository) ListTemplates(ctx context.Context, agentID int64) ([]*model.Template, error) {
	query := `
		SELECT id, agent_id, title, text, created_at, updated_at
		FROM templates
		WHERE agent_id = ?
		ORDER BY created_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*model.Template
	for rows.Next() {
		tmpl := &model.Template{}
		if err := rows.Scan(&tmpl.ID, &tmpl.AgentID, &tmpl.Title, &tmpl.Text, &tmpl.CreatedAt, &tmpl.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		templates = append(templates, tmpl)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// UpdateTemplate updates a template owned by the agent.
func (r *AgentRepository) UpdateTemplate(ctx context.Context, agentID int64, id, title, text string) error {
	query := `
		UPDATE templates
		SET title = ?, text = ?, updated_at = ?
		WHERE id = ? AND agent_id = ?
	`

	result, err := r.db.ExecContext(ctx, query, title, text, time.Now(), id, agentID)
	if err != nil {
		return fmt.Errorf("failed to update template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrTemplateNotFound
	}

	return nil
}

// DeleteTemplate removes a template owned by the agent.
func (r *AgentRepository) DeleteTemplate(ctx context.Context, agentID int64, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ? AND agent_id = ?`, id, agentID)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return model.ErrTemplateNotFound
	}

	return nil
}
