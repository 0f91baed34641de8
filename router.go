package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chatforge/chatforge/pkg/config"
	"github.com/chatforge/chatforge/pkg/db"
	"github.com/chatforge/chatforge/pkg/embedding"
	"github.com/chatforge/chatforge/pkg/event"
	"github.com/chatforge/chatforge/pkg/handler"
	"github.com/chatforge/chatforge/pkg/processor"
	"github.com/chatforge/chatforge/pkg/service"
	"github.com/chatforge/chatforge/pkg/utils"
	"github.com/chatforge/chatforge/pkg/vector"
	"github.com/gin-gonic/gin"
)

type Server struct {
	ginEngine *gin.Engine
	cfg       *config.AppConfig
	logger    *slog.Logger
}

// NewServer builds the HTTP server with all services constructed
// explicitly and wired through the routes.
func NewServer(ctx context.Context, cfg *config.AppConfig) (*Server, error) {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS: allow common localhost dev origins.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" {
			if strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1") {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-User-ID")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		cfg:       cfg,
		logger:    utils.GetLogger(),
	}

	if err := server.setupRoutes(ctx); err != nil {
		return nil, err
	}
	return server, nil
}

func (s *Server) setupRoutes(ctx context.Context) error {
	database, err := db.Open(s.cfg.DatabasePath())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	var provider embedding.Provider
	if p, err := embedding.NewFromConfig(ctx, s.cfg); err != nil {
		return fmt.Errorf("create embedding provider: %w", err)
	} else if p != nil {
		provider = p
	}
	if provider == nil {
		s.logger.Info("No embedding provider configured, semantic search disabled")
	}

	index, err := vector.NewPersistent(s.cfg.VectorDir())
	if err != nil {
		return fmt.Errorf("open vector index: %w", err)
	}

	proc := processor.New(s.cfg.ChunkSize(), s.cfg.ChunkOverlap())
	knowledgeService := service.NewKnowledgeService(database, s.cfg.UploadDir(), proc, provider, index)
	conversationService := service.NewConversationService(database, provider, index)

	hub := event.NewHub()

	api := s.ginEngine.Group("/api/v1")
	api.Use(handler.RequireUser())

	handler.NewConversationHandler(conversationService).RegisterRoutes(api)
	handler.NewKnowledgeHandler(knowledgeService).RegisterRoutes(api)
	event.NewChatHandler(hub, conversationService).RegisterRoutes(api)

	return nil
}

// Start binds the configured address and serves until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host(), s.cfg.Port())
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.logger.Info("Server listening", "addr", ln.Addr().String())

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
