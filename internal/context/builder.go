// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"fmt"

	"github.com/jeranaias/rigchat/internal/model"
)

// SummaryPrefix introduces the injected summary system message.
const SummaryPrefix = "Previous conversation summary: "

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config holds the context window policy.
type Config struct {
	// MaxRecentMessages is how many trailing messages are sent in full.
	MaxRecentMessages int

	// SummaryThreshold is the message count above which a summary is
	// injected and regenerated. Must be >= MaxRecentMessages.
	SummaryThreshold int

	// ContextWindowSize is the advisory token budget of the model.
	ContextWindowSize int
}

// DefaultConfig returns the default window policy.
func DefaultConfig() Config {
	return Config{
		MaxRecentMessages: 30,
		SummaryThreshold:  40,
		ContextWindowSize: 4096,
	}
}

// Validate rejects policies where summarization could not cover the
// messages the recent window drops.
func (c Config) Validate() error {
	if c.MaxRecentMessages <= 0 {
		return fmt.Errorf("max recent messages must be positive, got %d", c.MaxRecentMessages)
	}
	if c.SummaryThreshold < c.MaxRecentMessages {
		return fmt.Errorf("summary threshold (%d) must be >= max recent messages (%d)",
			c.SummaryThreshold, c.MaxRecentMessages)
	}
	return nil
}

// SummarySource looks up a stored summary by conversation id.
type SummarySource interface {
	GetSummary(conversationID string) (string, bool)
}

// =============================================================================
// BUILDER
// =============================================================================

// Builder selects the messages sent to the model for a turn.
type Builder struct {
	cfg        Config
	summaries  SummarySource
	summarizer Summarizer
}

// NewBuilder validates cfg and returns a Builder reading summaries from src.
func NewBuilder(cfg Config, src SummarySource) (*Builder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ContextWindowSize <= 0 {
		cfg.ContextWindowSize = DefaultConfig().ContextWindowSize
	}
	return &Builder{
		cfg:        cfg,
		summaries:  src,
		summarizer: ExtractiveSummarizer{},
	}, nil
}

// WithSummarizer replaces the summarizer used by CreateSummary.
func (b *Builder) WithSummarizer(s Summarizer) *Builder {
	b.summarizer = s
	return b
}

// Config returns the active policy.
func (b *Builder) Config() Config {
	return b.cfg
}

// BuildContext returns the messages to send for conversationID: the last
// MaxRecentMessages messages, preceded by a summary system message when the
// history exceeds SummaryThreshold and a summary is stored.
//
// messages is never modified and the result never aliases it.
func (b *Builder) BuildContext(conversationID string, messages []model.Message) []model.Message {
	recent := messages
	if len(recent) > b.cfg.MaxRecentMessages {
		recent = recent[len(recent)-b.cfg.MaxRecentMessages:]
	}

	out := make([]model.Message, 0, len(recent)+1)
	if len(messages) > b.cfg.SummaryThreshold && b.summaries != nil {
		if summary, ok := b.summaries.GetSummary(conversationID); ok {
			out = append(out, model.NewSystemMessage(SummaryPrefix+summary))
		}
	}
	return append(out, recent...)
}

// ShouldSummarize reports whether the history is long enough to need a
// summary.
func (b *Builder) ShouldSummarize(messages []model.Message) bool {
	return len(messages) > b.cfg.SummaryThreshold
}

// CreateSummary summarizes the full history.
func (b *Builder) CreateSummary(messages []model.Message) string {
	return b.summarizer.Summarize(messages)
}

// =============================================================================
// STATS
// =============================================================================

// WindowStats describes a built context relative to the full history.
type WindowStats struct {
	TotalMessages   int
	WindowMessages  int
	DroppedMessages int
	HasSummary      bool
	EstimatedTokens int
	OverBudget      bool
}

// Stats reports how built compares to messages. Token figures are a rough
// estimate at ~4 characters per token and are never enforced.
func (b *Builder) Stats(messages, built []model.Message) WindowStats {
	st := WindowStats{
		TotalMessages:  len(messages),
		WindowMessages: len(built),
	}
	for _, m := range built {
		st.EstimatedTokens += m.EstimateTokens()
	}
	window := min(len(messages), b.cfg.MaxRecentMessages)
	st.HasSummary = len(built) > window
	st.DroppedMessages = len(messages) - window
	st.OverBudget = st.EstimatedTokens > b.cfg.ContextWindowSize
	return st
}
