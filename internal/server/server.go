// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// MaxRequestBodySize caps JSON request bodies (1MB).
	MaxRequestBodySize = 1 * 1024 * 1024

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// Version is reported by /api/stats.
	Version = "0.3.0"
)

// ============================================================================
// SERVER STATS
// ============================================================================

// ServerStats counts chat turns since start.
type ServerStats struct {
	ChatTurns    atomic.Int64
	FailedTurns  atomic.Int64
	ModelsPulled atomic.Int64
	StartTime    time.Time
}

// Snapshot is the JSON view of ServerStats.
type Snapshot struct {
	ChatTurns    int64     `json:"chat_turns"`
	FailedTurns  int64     `json:"failed_turns"`
	ModelsPulled int64     `json:"models_pulled"`
	StartTime    time.Time `json:"start_time"`
	Uptime       string    `json:"uptime"`
	Version      string    `json:"version"`
}

// GetStats returns a copy of the current counters.
func (s *ServerStats) GetStats() Snapshot {
	return Snapshot{
		ChatTurns:    s.ChatTurns.Load(),
		FailedTurns:  s.FailedTurns.Load(),
		ModelsPulled: s.ModelsPulled.Load(),
		StartTime:    s.StartTime,
		Uptime:       time.Since(s.StartTime).Round(time.Second).String(),
		Version:      Version,
	}
}

// ============================================================================
// SERVER
// ============================================================================

// Options wires a Server to its collaborators. Config, Store, Chat and
// Ollama are required.
type Options struct {
	Config config.ServerConfig
	Store  storage.Store
	Chat   *chat.Service
	Ollama *ollama.Client

	// Models defaults to a cache over Ollama with a 30s TTL.
	Models *ollama.ModelCache

	Logger zerolog.Logger
}

// Server is the local HTTP API used by the desktop shell.
type Server struct {
	cfg    config.ServerConfig
	store  storage.Store
	chat   *chat.Service
	ollama *ollama.Client
	models *ollama.ModelCache
	log    zerolog.Logger

	engine  *gin.Engine
	limiter *RateLimiter
	stats   *ServerStats
	server  *http.Server
}

// New builds the router and middleware chain.
func New(opts Options) (*Server, error) {
	if opts.Store == nil || opts.Chat == nil || opts.Ollama == nil {
		return nil, errors.New("server: store, chat service and ollama client are required")
	}
	models := opts.Models
	if models == nil {
		models = ollama.NewModelCache(opts.Ollama, 30*time.Second)
	}

	s := &Server{
		cfg:    opts.Config,
		store:  opts.Store,
		chat:   opts.Chat,
		ollama: opts.Ollama,
		models: models,
		log:    opts.Logger.With().Str("component", "server").Logger(),
		stats:  &ServerStats{StartTime: time.Now()},
	}
	if s.cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(s.cfg.RateLimit, s.cfg.RateBurst)
	}

	s.setupRoutes()
	return s, nil
}

// Handler returns the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Stats returns the server counters.
func (s *Server) Stats() Snapshot {
	return s.stats.GetStats()
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := gin.New()
	r.Use(
		RecoveryMiddleware(s.log),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.log),
		CORSMiddleware(DefaultCORSConfig(s.cfg.AllowedOrigins)),
	)
	if s.limiter != nil {
		r.Use(RateLimitMiddleware(s.limiter, s.log))
	}
	r.Use(BodyLimitMiddleware(MaxRequestBodySize))

	api := r.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/dependencies", s.handleDependencies)
	api.GET("/stats", s.handleStats)

	api.GET("/models", s.handleModels)
	api.GET("/models/check/*name", s.handleModelCheck)
	api.POST("/models/install", s.handleModelInstall)
	api.POST("/models/delete", s.handleModelDelete)

	api.POST("/chat", s.handleChat)

	api.GET("/conversations", s.handleListConversations)
	api.POST("/conversations/new", s.handleNewConversation)
	api.GET("/conversations/:id", s.handleGetConversation)
	api.DELETE("/conversations/:id", s.handleDeleteConversation)
	api.POST("/conversations/:id/truncate", s.handleTruncateConversation)
	api.GET("/conversations/:id/export", s.handleExportConversation)

	r.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "Not found")
	})

	s.engine = r
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve serves on ln. It returns nil after a graceful Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	// No WriteTimeout: chat and pull responses are long-lived streams.
	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.log.Info().Str("event", "SERVER_START").Str("addr", ln.Addr().String()).Str("version", Version).Send()
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones, including
// open streams, until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.server == nil {
		return nil
	}

	stats := s.stats.GetStats()
	s.log.Info().
		Str("event", "SERVER_SHUTDOWN").
		Int64("chat_turns", stats.ChatTurns).
		Int64("failed_turns", stats.FailedTurns).
		Send()
	return s.server.Shutdown(ctx)
}

// ============================================================================
// HELPERS
// ============================================================================

// writeError writes a {success:false, error} body.
func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}
