// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message represents a chat message in the wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the request body for /api/chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// modelNameRequest is the body for /api/pull and /api/delete.
type modelNameRequest struct {
	Name string `json:"name"`
}

// FromModel converts domain messages to the wire format.
func FromModel(msgs []model.Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// chatChunk is one line of an /api/chat response. Non-streaming responses
// are a single chunk with Done set.
type chatChunk struct {
	Model              string  `json:"model"`
	Message            Message `json:"message"`
	Done               bool    `json:"done"`
	DoneReason         string  `json:"done_reason,omitempty"`
	TotalDuration      int64   `json:"total_duration,omitempty"`
	LoadDuration       int64   `json:"load_duration,omitempty"`
	PromptEvalCount    int     `json:"prompt_eval_count,omitempty"`
	PromptEvalDuration int64   `json:"prompt_eval_duration,omitempty"`
	EvalCount          int     `json:"eval_count,omitempty"`
	EvalDuration       int64   `json:"eval_duration,omitempty"`
	Error              string  `json:"error,omitempty"`
}

// ModelInfo contains information about an installed model.
type ModelInfo struct {
	Name       string       `json:"name"`
	Model      string       `json:"model,omitempty"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails contains detailed information about a model.
type ModelDetails struct {
	Format            string   `json:"format,omitempty"`
	Family            string   `json:"family,omitempty"`
	Families          []string `json:"families,omitempty"`
	ParameterSize     string   `json:"parameter_size,omitempty"`
	QuantizationLevel string   `json:"quantization_level,omitempty"`
}

// FormatSize formats the model size in human-readable form.
func (m ModelInfo) FormatSize() string {
	if m.Size <= 0 {
		return "-"
	}
	return humanize.Bytes(uint64(m.Size))
}

// ListModelsResponse is the response from /api/tags endpoint.
type ListModelsResponse struct {
	Models []ModelInfo `json:"models"`
}

// PullProgress is one progress object from /api/pull.
type PullProgress struct {
	Status    string `json:"status,omitempty"`
	Digest    string `json:"digest,omitempty"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Percent returns download completion in [0, 100], or -1 when unknown.
func (p PullProgress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}
	return float64(p.Completed) * 100 / float64(p.Total)
}

// apiError is the error body Ollama returns on failures.
type apiError struct {
	Error string `json:"error"`
}

// =============================================================================
// STREAM STATISTICS
// =============================================================================

// StreamStats holds the figures Ollama reports on the final chunk.
type StreamStats struct {
	Model              string
	DoneReason         string
	TotalDuration      time.Duration
	LoadDuration       time.Duration
	PromptEvalDuration time.Duration
	EvalDuration       time.Duration
	PromptTokens       int
	CompletionTokens   int
}

// TokensPerSecond calculates the generation speed.
func (s StreamStats) TokensPerSecond() float64 {
	if s.EvalDuration <= 0 {
		return 0
	}
	return float64(s.CompletionTokens) / s.EvalDuration.Seconds()
}

func statsFromChunk(c chatChunk) StreamStats {
	return StreamStats{
		Model:              c.Model,
		DoneReason:         c.DoneReason,
		TotalDuration:      time.Duration(c.TotalDuration),
		LoadDuration:       time.Duration(c.LoadDuration),
		PromptEvalDuration: time.Duration(c.PromptEvalDuration),
		EvalDuration:       time.Duration(c.EvalDuration),
		PromptTokens:       c.PromptEvalCount,
		CompletionTokens:   c.EvalCount,
	}
}
