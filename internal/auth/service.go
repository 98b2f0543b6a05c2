package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/derenko/q-chat/internal/model"
	"github.com/derenko/q-chat/internal/repository"
)

// Service implements account sign-up, sign-in, token refresh and logout.
type Service struct {
	users    *repository.UserRepository
	agents   *repository.AgentRepository
	projects *repository.ProjectRepository
	tokens   *TokenManager
}

// NewService creates an auth Service.
func NewService(users *repository.UserRepository, agents *repository.AgentRepository, projects *repository.ProjectRepository, tokens *TokenManager) *Service {
	return &Service{
		users:    users,
		agents:   agents,
		projects: projects,
		tokens:   tokens,
	}
}

// Tokens returns the underlying token manager.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// SignUpParams are the inputs for creating a project owner account.
type SignUpParams struct {
	Email    string
	Password string
	Name     string
	Website  string
}

// SignUp creates a PROJECT user with its project and issues a token pair.
func (s *Service) SignUp(ctx context.Context, params SignUpParams) (*TokenPair, error) {
	if _, err := s.users.GetByEmail(ctx, params.Email); err == nil {
		return nil, model.ErrEmailExists
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		Email:     params.Email,
		Password:  string(hashed),
		Role:      model.UserRoleProject,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	project := &model.Project{
		ID:        uuid.New().String(),
		UserID:    user.ID,
		Name:      params.Name,
		Website:   params.Website,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.projects.Create(ctx, project); err != nil {
		return nil, err
	}

	return s.issueAndStore(ctx, user)
}

// SignInResult is the outcome of a successful sign-in.
type SignInResult struct {
	TokenPair
	Role model.UserRole `json:"role"`
}

// SignIn verifies credentials and issues a token pair.
func (s *Service) SignIn(ctx context.Context, email, password string) (*SignInResult, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, model.ErrUserNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)) != nil {
		return nil, model.ErrInvalidCredentials
	}

	pair, err := s.issueAndStore(ctx, user)
	if err != nil {
		return nil, err
	}

	return &SignInResult{TokenPair: *pair, Role: user.Role}, nil
}

// Refresh rotates a token pair given a valid refresh token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.DecodeRefresh(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, model.ErrInvalidToken
	}

	if user.HashedRefreshToken == "" {
		return nil, model.ErrInvalidToken
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedRefreshToken), refreshTokenDigest(refreshToken)) != nil {
		return nil, model.ErrInvalidToken
	}

	return s.issueAndStore(ctx, user)
}

// Logout clears the user's stored refresh token.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	return s.users.UpdateRefreshToken(ctx, userID, "")
}

// Me describes the authenticated account for profile endpoints.
type Me struct {
	User    *model.User    `json:"user"`
	Agent   *model.Agent   `json:"agent,omitempty"`
	Project *model.Project `json:"project,omitempty"`
}

// GetMe resolves the account's agent or project attachment.
func (s *Service) GetMe(ctx context.Context, userID int64) (*Me, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	me := &Me{User: user}

	if user.Role == model.UserRoleAgent {
		agent, err := s.agents.GetByUserID(ctx, userID)
		if err != nil {
			return nil, err
		}
		me.Agent = agent

		project, err := s.projects.GetByID(ctx, agent.ProjectID)
		if err != nil {
			return nil, err
		}
		me.Project = project
		return me, nil
	}

	project, err := s.projects.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	me.Project = project

	return me, nil
}

// CreateAgentParams are the inputs for creating an agent account in a project.
type CreateAgentParams struct {
	ProjectID string
	Email     string
	Password  string
	Name      string
}

// CreateAgent creates an AGENT user account with its agent profile.
func (s *Service) CreateAgent(ctx context.Context, params CreateAgentParams) (*model.Agent, error) {
	if _, err := s.users.GetByEmail(ctx, params.Email); err == nil {
		return nil, model.ErrEmailExists
	} else if !errors.Is(err, model.ErrUserNotFound) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(params.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		Email:     params.Email,
		Password:  string(hashed),
		Role:      model.UserRoleAgent,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	agent := &model.Agent{
		UserID:    user.ID,
		ProjectID: params.ProjectID,
		Name:      params.Name,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.agents.Create(ctx, agent); err != nil {
		return nil, err
	}

	return agent, nil
}

// RemoveAgent deletes an agent profile and its user account.
func (s *Service) RemoveAgent(ctx context.Context, agentID int64) error {
	agent, err := s.agents.GetByID(ctx, agentID)
	if err != nil {
		return err
	}

	if err := s.agents.Delete(ctx, agent.ID); err != nil {
		return err
	}

	return s.users.Delete(ctx, agent.UserID)
}

func (s *Service) issueAndStore(ctx context.Context, user *model.User) (*TokenPair, error) {
	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword(refreshTokenDigest(pair.RefreshToken), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash refresh token: %w", err)
	}

	if err := s.users.UpdateRefreshToken(ctx, user.ID, string(hashed)); err != nil {
		return nil, err
	}

	return pair, nil
}
