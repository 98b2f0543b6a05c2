package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/derenko/q-chat/internal/auth"
)

// AuthHandler handles HTTP requests for account authentication.
type AuthHandler struct {
	auth *auth.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *auth.Service) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// SignUpRequest represents the request body for creating a project account.
type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Name     string `json:"name" binding:"required"`
	Website  string `json:"website"`
}

// SignInRequest represents the request body for signing in.
type SignInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// SignUp handles POST /api/auth/sign-up.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	pair, err := h.auth.SignUp(c.Request.Context(), auth.SignUpParams{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Website:  req.Website,
	})
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusCreated, pair)
}

// SignIn handles POST /api/auth/sign-in.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
		return
	}

	result, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// Refresh handles POST /api/auth/refresh. The refresh token is supplied as a
// bearer credential.
func (h *AuthHandler) Refresh(c *gin.Context) {
	header := c.GetHeader("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing refresh token")
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, pair)
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return
	}

	if err := h.auth.Logout(c.Request.Context(), claims.UserID); err != nil {
		sendDomainError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return
	}

	me, err := h.auth.GetMe(c.Request.Context(), claims.UserID)
	if err != nil {
		sendDomainError(c, err)
		return
	}

	c.JSON(http.StatusOK, me)
}

// RegisterRoutes registers the auth handler routes on a Gin router group.
func (h *AuthHandler) RegisterRoutes(rg *gin.RouterGroup, authRequired gin.HandlerFunc) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/sign-up", h.SignUp)
		authGroup.POST("/sign-in", h.SignIn)
		authGroup.POST("/refresh", h.Refresh)
		authGroup.POST("/logout", authRequired, h.Logout)
		authGroup.GET("/me", authRequired, h.Me)
	}
}
