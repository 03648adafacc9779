// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

const (
	msgOllamaDown      = "Ollama service is not running. Please start Ollama and try again."
	msgModelRequired   = "Model name required"
	msgConvNotFound    = "Conversation not found"
	msgIndexRequired   = "message_index required"
	msgInvalidRequest  = "Invalid request body"
	msgMessageRequired = "Message is required"
)

// ============================================================================
// HEALTH
// ============================================================================

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":           "ok",
		"ollama_connected": s.ollama.CheckHealth(c.Request.Context()),
	})
}

// handleDependencies handles GET /api/dependencies.
func (s *Server) handleDependencies(c *gin.Context) {
	ctx := c.Request.Context()
	inst := ollama.DetectInstallation(ctx)
	running := s.ollama.CheckHealth(ctx)

	status := "not_installed"
	switch {
	case running:
		status = "running"
	case inst.Installed:
		status = "installed"
	}

	var version any
	if inst.Installed {
		version = inst.Version
	}

	// A reachable server counts as installed even when the CLI is not on
	// PATH, e.g. Ollama running in a container.
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"ollama": gin.H{
			"installed": inst.Installed || running,
			"version":   version,
			"running":   running,
			"status":    status,
		},
		"all_ok": running,
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.GetStats())
}

// ============================================================================
// MODELS
// ============================================================================

type modelRequest struct {
	Model string `json:"model"`
}

// bindModel reads {model} and writes the 400 itself when it is missing.
func bindModel(c *gin.Context) (string, bool) {
	var req modelRequest
	_ = c.ShouldBindJSON(&req)
	name := strings.TrimSpace(req.Model)
	if name == "" {
		writeError(c, http.StatusBadRequest, msgModelRequired)
		return "", false
	}
	return name, true
}

// handleModels handles GET /api/models[?refresh=true].
func (s *Server) handleModels(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		installed []ollama.ModelInfo
		err       error
	)
	if strings.EqualFold(c.Query("refresh"), "true") {
		installed, err = s.models.Refresh(ctx)
	} else {
		installed, err = s.models.Get(ctx)
	}
	if err != nil {
		// The catalog is still useful with nothing installed.
		s.log.Warn().Str("event", "MODEL_LIST_FAILED").Err(err).Send()
		installed = []ollama.ModelInfo{}
	}

	catalog := ollama.Catalog(installed)
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"models":          installed,
		"all_models":      catalog,
		"popular_models":  ollama.PopularModels,
		"total_installed": len(installed),
		"total_available": len(catalog),
	})
}

// handleModelCheck handles GET /api/models/check/*name. Names contain ':'
// and sometimes '/', so the wildcard keeps them whole.
func (s *Server) handleModelCheck(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if name == "" {
		writeError(c, http.StatusBadRequest, msgModelRequired)
		return
	}

	info, ok, err := s.models.Lookup(c.Request.Context(), name)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	var modelInfo any = gin.H{}
	if ok {
		modelInfo = info
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"installed":  ok,
		"model_info": modelInfo,
	})
}

// handleModelDelete handles POST /api/models/delete.
func (s *Server) handleModelDelete(c *gin.Context) {
	name, ok := bindModel(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	if !s.ollama.CheckHealth(ctx) {
		writeError(c, http.StatusServiceUnavailable, msgOllamaDown)
		return
	}

	s.models.Invalidate()
	if err := s.ollama.DeleteModel(ctx, name); err != nil {
		status := http.StatusInternalServerError
		if ollama.IsModelNotFound(err) {
			status = http.StatusNotFound
		}
		writeError(c, status, err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleModelInstall handles POST /api/models/install. Every outcome after
// validation, including Ollama being down, is reported inside the stream.
func (s *Server) handleModelInstall(c *gin.Context) {
	name, ok := bindModel(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	sse := startSSE(c)
	fail := func(msg string) {
		s.log.Warn().Str("event", "MODEL_PULL_FAILED").Str("model", name).Str("error", msg).Send()
		_ = sse.write(gin.H{"error": msg, "status": "error"})
	}

	if !s.ollama.CheckHealth(ctx) {
		fail(msgOllamaDown)
		return
	}

	stream, err := s.ollama.PullModel(ctx, name)
	if err != nil {
		fail(ollama.PullErrorMessage(name, err))
		return
	}
	defer stream.Close()

	s.log.Info().Str("event", "MODEL_PULL_START").Str("model", name).Send()
	for {
		prog, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fail(ollama.PullErrorMessage(name, err))
			return
		}
		if err := sse.write(prog); err != nil {
			return
		}
	}

	s.models.Invalidate()
	s.stats.ModelsPulled.Add(1)
	s.log.Info().Str("event", "MODEL_PULL_COMPLETE").Str("model", name).Send()
	_ = sse.write(gin.H{"status": "success", "model": name})
}

// ============================================================================
// CHAT
// ============================================================================

// handleChat handles POST /api/chat. Errors found before the turn starts
// get a JSON status; everything after is a stream event.
func (s *Server) handleChat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	var sse *sseWriter
	err := s.chat.Send(c.Request.Context(), req, func(ev chat.Event) error {
		if sse == nil {
			sse = startSSE(c)
		}
		if ev.Done {
			s.stats.ChatTurns.Add(1)
			if ev.Failed() {
				s.stats.FailedTurns.Add(1)
			}
		}
		return sse.write(ev)
	})
	if err == nil {
		return
	}
	if sse != nil {
		s.log.Debug().Str("event", "CHAT_CLIENT_GONE").Err(err).Send()
		return
	}

	switch chat.Kind(err) {
	case chat.KindValidation:
		writeError(c, http.StatusBadRequest, msgMessageRequired)
	case chat.KindNotFound:
		writeError(c, http.StatusNotFound, msgConvNotFound)
	default:
		s.log.Error().Str("event", "CHAT_START_FAILED").Err(err).Send()
		writeError(c, http.StatusInternalServerError, err.Error())
	}
}

// ============================================================================
// CONVERSATIONS
// ============================================================================

// handleListConversations handles GET /api/conversations.
func (s *Server) handleListConversations(c *gin.Context) {
	metas, err := s.store.List()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	if metas == nil {
		metas = []model.ConversationMeta{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversations": metas})
}

type newConversationRequest struct {
	Title string `json:"title"`
	Model string `json:"model"`
}

// handleNewConversation handles POST /api/conversations/new. The body is
// optional.
func (s *Server) handleNewConversation(c *gin.Context) {
	var req newConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	conv, err := s.chat.Create(req.Title, strings.TrimSpace(req.Model))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"conversation_id": conv.ID,
		"conversation":    conv,
	})
}

// handleGetConversation handles GET /api/conversations/:id.
func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.store.Get(c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "conversation": conv})
}

// handleDeleteConversation handles DELETE /api/conversations/:id. Deleting
// an unknown id succeeds with existed=false.
func (s *Server) handleDeleteConversation(c *gin.Context) {
	existed, err := s.store.Delete(c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "existed": existed})
}

// handleExportConversation handles GET /api/conversations/:id/export as a
// download. format is markdown (default), json or html; theme applies to html.
func (s *Server) handleExportConversation(c *gin.Context) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	conv, err := s.store.Get(c.Param("id"))
	if err != nil {
		s.writeStoreError(c, err)
		return
	}

	opts := export.DefaultOptions()
	if theme := c.Query("theme"); theme != "" {
		opts.Theme = theme
	}
	exp, err := export.New(format, opts)
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	data, err := exp.Export(conv)
	if errors.Is(err, export.ErrEmptyConversation) {
		writeError(c, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Str("event", "EXPORT_FAILED").Str("conversation_id", conv.ID).Err(err).Send()
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	filename := export.Filename(conv, exp.FileExtension(), time.Now())
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, exp.MimeType(), data)
}

type truncateRequest struct {
	MessageIndex *int `json:"message_index"`
}

// handleTruncateConversation handles POST /api/conversations/:id/truncate.
func (s *Server) handleTruncateConversation(c *gin.Context) {
	var req truncateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.MessageIndex == nil {
		writeError(c, http.StatusBadRequest, msgIndexRequired)
		return
	}

	if err := s.store.Truncate(c.Param("id"), *req.MessageIndex); err != nil {
		s.writeStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// writeStoreError maps store errors onto status codes.
func (s *Server) writeStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrIndexOutOfRange):
		writeError(c, http.StatusNotFound, err.Error())
	case storage.IsNotFound(err):
		writeError(c, http.StatusNotFound, msgConvNotFound)
	default:
		s.log.Error().Str("event", "STORE_ERROR").Err(err).Send()
		writeError(c, http.StatusInternalServerError, err.Error())
	}
}
