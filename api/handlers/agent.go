package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/derenko/q-chat/internal/model"
	"github.com/derenko/q-chat/internal/presence"
	"github.com/derenko/q-chat/internal/repository"
)

// AgentHandler handles HTTP requests for agent profiles and templates.
type AgentHandler struct {
	agents  *repository.AgentRepository
	tracker *presence.Tracker
}

// NewAgentHandler creates a new AgentHandler.
func NewAgentHandler(agents *repository.AgentRepository, tracker *presence.Tracker) *AgentHandler {
	return &AgentHandler{agents: agents, tracker: tracker}
}

// UpdateProfileRequest represents the request body for updating a profile.
type UpdateProfileRequest struct {
	Name   string `json:"name" binding:"required"`
	Avatar string `json:"avatar"`
}

// UpdateOnlineStatusRequest represents the declared availability toggle.
type UpdateOnlineStatusRequest struct {
	Status *bool `json:"status" binding:"required"`
}

// TemplateRequest represents the request body for creating or updating a template.
type TemplateRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text" binding:"required"`
}

// resolveAgent loads the agent profile of the authenticated account.
func (h *AgentHandler) resolveAgent(c *gin.Context) (*model.Agent, bool) {
	claims, ok := requireRole(c, model.UserRoleAgent)
	if !ok {
		return nil, false
	}

	agent, err := h.agents.GetByUserID(c.Request.Context(), claims.UserID)
	if err != nil {
		sendDomainError(c, err)
		return nil, false
	}

	return agent, true
}

// GetProfile handles GET /api/agents/profile.
func (h *AgentHandler) GetProfile(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, agent)
}

// UpdateProfile handles PATCH /api/agents/profile.
func (h *AgentHandler) UpdateProfile(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.agents.UpdateProfile(c.Request.Context(), agent.ID, req.Name, req.Avatar); err != nil {
		sendDomainError(c, err)
		return
	}

	updated, err := h.agents.GetByID(c.Request.Context(), agent.ID)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

// UpdateOnlineStatus handles PATCH /api/agents/online-status. The declared
// flag is persisted and mirrored into the presence tracker.
func (h *AgentHandler) UpdateOnlineStatus(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	var req UpdateOnlineStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Status == nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "status is required")
		return
	}

	if err := h.agents.SetOnlineStatus(c.Request.Context(), agent.ID, *req.Status); err != nil {
		sendDomainError(c, err)
		return
	}

	h.tracker.SetDeclaredOnline(agent.ID, *req.Status)

	c.JSON(http.StatusOK, gin.H{"isOnline": *req.Status})
}

// ListTemplates handles GET /api/agents/templates.
func (h *AgentHandler) ListTemplates(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	templates, err := h.agents.ListTemplates(c.Request.Context(), agent.ID)
	if err != nil {
		sendDomainError(c, err)
		return
	}
	if templates == nil {
		templates = []*model.Template{}
	}

	c.JSON(http.StatusOK, templates)
}

// CreateTemplate handles POST /api/agents/templates.
func (h *AgentHandler) CreateTemplate(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	now := time.Now()
	tmpl := &model.Template{
		ID:        uuid.New().String(),
		AgentID:   agent.ID,
		Title:     req.Title,
		Text:      req.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.agents.CreateTemplate(c.Request.Context(), tmpl); err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tmpl)
}

// UpdateTemplate handles PATCH /api/agents/templates/:id.
func (h *AgentHandler) UpdateTemplate(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	var req TemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	if err := h.agents.UpdateTemplate(c.Request.Context(), agent.ID, c.Param("id"), req.Title, req.Text); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteTemplate handles DELETE /api/agents/templates/:id.
func (h *AgentHandler) DeleteTemplate(c *gin.Context) {
	agent, ok := h.resolveAgent(c)
	if !ok {
		return
	}

	if err := h.agents.DeleteTemplate(c.Request.Context(), agent.ID, c.Param("id")); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers the agent handler routes on a Gin router group.
func (h *AgentHandler) RegisterRoutes(rg *gin.RouterGroup, authRequired gin.HandlerFunc) {
	agents := rg.Group("/agents", authRequired)
	{
		agents.GET("/profile", h.GetProfile)
		agents.PATCH("/profile", h.UpdateProfile)
		agents.PATCH("/online-status", h.UpdateOnlineStatus)
		agents.GET("/templates", h.ListTemplates)
		agents.POST("/templates", h.CreateTemplate)
		agents.PATCH("/templates/:id", h.UpdateTemplate)
		agents.DELETE("/templates/:id", h.DeleteTemplate)
	}
}
