package handlers

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/derenko/q-chat/internal/ws"
)

// WebSocketHandler upgrades HTTP requests to chat WebSocket connections.
type WebSocketHandler struct {
	gateway *ws.Gateway
	logger  *slog.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(gateway *ws.Gateway, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{gateway: gateway, logger: logger}
}

// Connect handles GET /ws. Identity is resolved from the agentToken or
// clientToken query parameters; connections without a valid token are
// accepted as anonymous.
func (h *WebSocketHandler) Connect(c *gin.Context) {
	if err := h.gateway.HandleConnection(c.Writer, c.Request); err != nil {
		// The upgrader has already written its own response on failure.
		h.logger.Warn("websocket upgrade failed", "error", err)
	}
}

// RegisterRoutes registers the WebSocket route on a Gin engine.
func (h *WebSocketHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/ws", h.Connect)
}
