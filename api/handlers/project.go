package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/derenko/q-chat/internal/auth"
	"github.com/derenko/q-chat/internal/model"
	"github.com/derenko/q-chat/internal/repository"
)

// ProjectHandler handles HTTP requests for project settings, agent accounts
// and handbooks.
type ProjectHandler struct {
	projects *repository.ProjectRepository
	agents   *repository.AgentRepository
	accounts *auth.Service
}

// NewProjectHandler creates a new ProjectHandler.
func NewProjectHandler(projects *repository.ProjectRepository, agents *repository.AgentRepository, accounts *auth.Service) *ProjectHandler {
	return &ProjectHandler{projects: projects, agents: agents, accounts: accounts}
}

// UpdateProjectRequest represents the request body for updating a project.
type UpdateProjectRequest struct {
	Name    string `json:"name" binding:"required"`
	Website string `json:"website"`
}

// CreateAgentRequest represents the request body for creating an agent
// account inside the project.
type CreateAgentRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

// HandbookRequest represents the request body for creating or updating a
// handbook article.
type HandbookRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// resolveProject loads the project owned by the authenticated account.
func (h *ProjectHandler) resolveProject(c *gin.Context) (*model.Project, bool) {
	claims, ok := requireRole(c, model.UserRoleProject)
	if !ok {
		return nil, false
	}

	project, err := h.projects.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		sendDomainError(c, err)
		return nil, false
	}

	return project, true
}

// GetProject handles GET /api/projects.
func (h *ProjectHandler) GetProject(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, project)
}

// UpdateProject handles PATCH /api/projects.
func (h *ProjectHandler) UpdateProject(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	var req UpdateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.projects.Update(c.Request.Context(), project.ID, req.Name, req.Website); err != nil {
		sendDomainError(c, err)
		return
	}

	updated, err := h.projects.GetByID(c.Request.Context(), project.ID)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// ListAgents handles GET /api/projects/agents.
func (h *ProjectHandler) ListAgents(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	agents, err := h.agents.ListByProject(c.Request.Context(), project.ID)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	if agents == nil {
		agents = []*model.Agent{}
	}

	c.JSON(http.StatusOK, agents)
}

// CreateAgent handles POST /api/projects/agents. It creates both the AGENT
// user account and its agent profile.
func (h *ProjectHandler) CreateAgent(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	var req CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	agent, err := h.accounts.CreateAgent(c.Request.Context(), auth.CreateAgentParams{
		ProjectID: project.ID,
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
	})
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, agent)
}

// DeleteAgent handles DELETE /api/projects/agents/:id. The agent must belong
// to the caller's project.
func (h *ProjectHandler) DeleteAgent(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	agentID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid agent id")
		return
	}

	agent, err := h.agents.GetByID(c.Request.Context(), agentID)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	if agent.ProjectID != project.ID {
		sendError(c, http.StatusNotFound, "NOT_FOUND", model.ErrAgentNotFound.Error())
		return
	}

	if err := h.accounts.RemoveAgent(c.Request.Context(), agent.ID); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListHandbooks handles GET /api/projects/handbooks.
func (h *ProjectHandler) ListHandbooks(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	handbooks, err := h.projects.ListHandbooks(c.Request.Context(), project.ID)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	if handbooks == nil {
		handbooks = []*model.Handbook{}
	}

	c.JSON(http.StatusOK, handbooks)
}

// CreateHandbook handles POST /api/projects/handbooks.
func (h *ProjectHandler) CreateHandbook(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	var req HandbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	now := time.Now()
	hb := &model.Handbook{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Title:     req.Title,
		Text:      req.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.projects.CreateHandbook(c.Request.Context(), hb); err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, hb)
}

// UpdateHandbook handles PATCH /api/projects/handbooks/:id.
func (h *ProjectHandler) UpdateHandbook(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	var req HandbookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.projects.UpdateHandbook(c.Request.Context(), project.ID, c.Param("id"), req.Title, req.Text); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteHandbook handles DELETE /api/projects/handbooks/:id.
func (h *ProjectHandler) DeleteHandbook(c *gin.Context) {
	project, ok := h.resolveProject(c)
	if !ok {
		return
	}

	if err := h.projects.DeleteHandbook(c.Request.Context(), project.ID, c.Param("id")); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the project handler routes on a Gin router group.
func (h *ProjectHandler) RegisterRoutes(rg *gin.RouterGroup, authRequired gin.HandlerFunc) {
	projects := rg.Group("/projects", authRequired)
	{
		projects.GET("", h.GetProject)
		projects.PATCH("", h.UpdateProject)
		projects.GET("/agents", h.ListAgents)
		projects.POST("/agents", h.CreateAgent)
		projects.DELETE("/agents/:id", h.DeleteAgent)
		projects.GET("/handbooks", h.ListHandbooks)
		projects.POST("/handbooks", h.CreateHandbook)
		projects.PATCH("/handbooks/:id", h.UpdateHandbook)
		projects.DELETE("/handbooks/:id", h.DeleteHandbook)
	}
}
