// Package handlers provides HTTP API request handlers.
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/derenko/q-chat/internal/auth"
	"github.com/derenko/q-chat/internal/model"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendDomainError maps domain errors to HTTP responses.
func sendDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrUserNotFound),
		errors.Is(err, model.ErrAgentNotFound),
		errors.Is(err, model.ErrProjectNotFound),
		errors.Is(err, model.ErrTemplateNotFound),
		errors.Is(err, model.ErrHandbookNotFound):
		sendError(c, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, model.ErrEmailExists):
		sendError(c, http.StatusConflict, "EMAIL_EXISTS", err.Error())
	case errors.Is(err, model.ErrInvalidCredentials):
		sendError(c, http.StatusForbidden, "INVALID_CREDENTIALS", err.Error())
	case errors.Is(err, model.ErrInvalidToken):
		sendError(c, http.StatusForbidden, "INVALID_TOKEN", err.Error())
	case errors.Is(err, model.ErrValidation):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

const claimsKey = "authClaims"

// AuthMiddleware verifies the Bearer access token and stores its claims in
// the request context.
func AuthMiddleware(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			c.Abort()
			return
		}

		claims, err := tokens.DecodeAccess(token)
		if err != nil {
			sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token")
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// getClaims returns the verified token claims set by AuthMiddleware.
func getClaims(c *gin.Context) (*auth.Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*auth.Claims)
	return claims, ok
}

// requireRole returns the claims when the authenticated account has the given
// role, failing the request otherwise.
func requireRole(c *gin.Context, role model.UserRole) (*auth.Claims, bool) {
	claims, ok := getClaims(c)
	if !ok {
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing credentials")
		return nil, false
	}
	if claims.Role != role {
		sendError(c, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
		return nil, false
	}
	return claims, true
}
