package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/derenko/q-chat/api/handlers"
	"github.com/derenko/q-chat/internal/auth"
	"github.com/derenko/q-chat/internal/chat"
	"github.com/derenko/q-chat/internal/config"
	"github.com/derenko/q-chat/internal/db"
	"github.com/derenko/q-chat/internal/presence"
	"github.com/derenko/q-chat/internal/repository"
	"github.com/derenko/q-chat/internal/ws"
)

func main() {
	// Load .env for local development; environment wins in production.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		logger.Error("failed to create database directory", "error", err)
		os.Exit(1)
	}

	database, err := db.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.CloseDB()

	// Repositories
	userRepo := repository.NewUserRepository(database)
	projectRepo := repository.NewProjectRepository(database)
	agentRepo := repository.NewAgentRepository(database)
	clientRepo := repository.NewClientRepository(database)
	chatRepo := repository.NewChatRepository(database)

	// Auth
	tokens := auth.NewTokenManager(cfg.AccessTokenSecret, cfg.RefreshTokenSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	accounts := auth.NewService(userRepo, agentRepo, projectRepo, tokens)

	// Presence tracker seeded with persisted availability flags.
	tracker := presence.NewTracker()
	if ids, err := agentRepo.ListDeclaredOnline(context.Background()); err != nil {
		logger.Warn("failed to seed presence tracker", "error", err)
	} else {
		for _, id := range ids {
			tracker.SetDeclaredOnline(id, true)
		}
	}

	// Realtime engine
	chatManager := chat.NewManager(chatRepo, clientRepo, agentRepo)
	if cfg.AllowedOrigin != "" && cfg.AllowedOrigin != "*" {
		allowed := cfg.AllowedOrigin
		ws.SetCheckOrigin(func(r *http.Request) bool {
			return r.Header.Get("Origin") == allowed
		})
	}
	gateway := ws.NewGateway(chatManager, tracker, tokens, agentRepo, clientRepo, logger)
	defer gateway.Close()

	// Handlers
	authHandler := handlers.NewAuthHandler(accounts)
	agentHandler := handlers.NewAgentHandler(agentRepo, tracker)
	projectHandler := handlers.NewProjectHandler(projectRepo, agentRepo, accounts)
	wsHandler := handlers.NewWebSocketHandler(gateway, logger)

	r := gin.Default()
	r.Use(corsMiddleware(cfg.AllowedOrigin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	authRequired := handlers.AuthMiddleware(tokens)

	api := r.Group("/api")
	{
		authHandler.RegisterRoutes(api, authRequired)
		agentHandler.RegisterRoutes(api, authRequired)
		projectHandler.RegisterRoutes(api, authRequired)
	}

	wsHandler.RegisterRoutes(r)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		logger.Info("shutting down server")
		gateway.Close()
		db.CloseDB()
		os.Exit(0)
	}()

	logger.Info("starting server", "port", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// corsMiddleware returns a CORS middleware restricted to the allowed origin.
func corsMiddleware(origin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PATCH, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
