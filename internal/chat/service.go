// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"

	convctx "github.com/jeranaias/rigchat/internal/context"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// REQUEST AND EVENTS
// =============================================================================

// Request is one user message for a new or existing conversation.
type Request struct {
	// ConversationID selects an existing conversation. Empty starts a new one.
	ConversationID string `json:"conversation_id,omitempty"`
	Message        string `json:"message"`
	// Model overrides the conversation's model for this turn.
	Model string `json:"model,omitempty"`
}

// Event is one item of a turn's output. Fragment events carry Content;
// the terminal event has Done set and either ConversationID or Error.
type Event struct {
	Content        string
	Done           bool
	ConversationID string
	Title          string
	Error          string
	Kind           ErrorKind
}

// Failed reports whether this is a terminal failure event.
func (e Event) Failed() bool {
	return e.Done && e.Error != ""
}

// MarshalJSON emits the wire shapes {content, done},
// {content, done, conversation_id, title} and {error, error_kind, done}.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Error != "" {
		return json.Marshal(struct {
			Error string    `json:"error"`
			Kind  ErrorKind `json:"error_kind"`
			Done  bool      `json:"done"`
		}{e.Error, e.Kind, true})
	}
	return json.Marshal(struct {
		Content        string `json:"content"`
		Done           bool   `json:"done"`
		ConversationID string `json:"conversation_id,omitempty"`
		Title          string `json:"title,omitempty"`
	}{e.Content, e.Done, e.ConversationID, e.Title})
}

// =============================================================================
// SERVICE
// =============================================================================

// Service orchestrates chat turns. It is safe for concurrent use; two turns
// on the same conversation race and the last save wins.
type Service struct {
	store        storage.Store
	builder      *convctx.Builder
	gateway      Gateway
	defaultModel string
	log          zerolog.Logger
}

// NewService creates a Service. defaultModel is used when neither the
// request nor the conversation names one.
func NewService(store storage.Store, builder *convctx.Builder, gateway Gateway, defaultModel string, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		builder:      builder,
		gateway:      gateway,
		defaultModel: defaultModel,
		log:          logger.With().Str("component", "chat").Logger(),
	}
}

// DefaultModel returns the model used when a request names none.
func (s *Service) DefaultModel() string {
	return s.defaultModel
}

// Create stores a new empty conversation. The title only lasts until the
// first user message, which renames the conversation.
func (s *Service) Create(title, modelName string) (*model.Conversation, error) {
	if modelName == "" {
		modelName = s.defaultModel
	}
	conv := model.NewConversation(modelName)
	if t := strings.TrimSpace(title); t != "" {
		conv.Title = t
	}
	if err := s.store.Save(conv); err != nil {
		return nil, err
	}
	s.log.Info().Str("event", "CONVERSATION_CREATED").Str("conversation_id", conv.ID).Send()
	return conv, nil
}

// turn is the state of one in-flight exchange.
type turn struct {
	conv  *model.Conversation
	model string
	log   zerolog.Logger
}

// Start validates req, appends and persists the user message, then streams
// the reply on the returned channel. Validation, lookup and the first save
// happen before Start returns; their errors mean no turn was started.
//
// The channel is unbuffered, so each fragment is handed over before the
// next one is read from the model. It is closed after the terminal event,
// or without one when ctx is cancelled.
func (s *Service) Start(ctx context.Context, req Request) (<-chan Event, error) {
	t, err := s.receive(req)
	if err != nil {
		return nil, err
	}

	events := make(chan Event)
	go s.run(ctx, t, events)
	return events, nil
}

// Send runs a turn and passes every event to fn. If fn returns an error the
// turn is cancelled and that error returned.
func (s *Service) Send(ctx context.Context, req Request, fn func(Event) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	events, err := s.Start(ctx, req)
	if err != nil {
		return err
	}
	for ev := range events {
		if err := fn(ev); err != nil {
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}

// receive performs the synchronous part of a turn.
func (s *Service) receive(req Request) (*turn, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, &ValidationError{Field: "message", Reason: "message is required"}
	}

	var conv *model.Conversation
	if req.ConversationID != "" {
		c, err := s.store.Get(req.ConversationID)
		if err != nil {
			return nil, err
		}
		conv = c
	} else {
		conv = model.NewConversation(firstNonEmpty(req.Model, s.defaultModel))
	}
	if conv.Model == "" {
		conv.Model = firstNonEmpty(req.Model, s.defaultModel)
	}

	conv.Append(model.RoleUser, message)
	if err := s.store.Save(conv); err != nil {
		return nil, fmt.Errorf("failed to save user message: %w", err)
	}

	t := &turn{
		conv:  conv,
		model: firstNonEmpty(req.Model, conv.Model, s.defaultModel),
		log:   s.log.With().Str("conversation_id", conv.ID).Logger(),
	}
	t.log.Debug().Str("event", "TURN_RECEIVED").Str("model", t.model).Int("messages", conv.Len()).Send()
	return t, nil
}

// run is the asynchronous part of a turn. It owns events.
func (s *Service) run(ctx context.Context, t *turn, events chan<- Event) {
	defer close(events)

	built := s.builder.BuildContext(t.conv.ID, t.conv.Messages)
	stats := s.builder.Stats(t.conv.Messages, built)
	t.log.Debug().Str("event", "TURN_CONTEXT_BUILT").
		Int("window", stats.WindowMessages).
		Int("dropped", stats.DroppedMessages).
		Bool("summary", stats.HasSummary).
		Int("est_tokens", stats.EstimatedTokens).
		Send()
	if stats.OverBudget {
		t.log.Warn().Str("event", "CONTEXT_OVER_BUDGET").
			Int("est_tokens", stats.EstimatedTokens).
			Int("window_size", s.builder.Config().ContextWindowSize).
			Send()
	}

	stream, err := s.gateway.ChatStream(ctx, t.model, built)
	if err != nil {
		s.fail(ctx, t, events, err)
		return
	}
	defer stream.Close()

	var reply strings.Builder
	for {
		frag, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.fail(ctx, t, events, err)
			return
		}
		reply.WriteString(frag)
		if !send(ctx, events, Event{Content: frag}) {
			t.log.Info().Str("event", "TURN_CANCELED").Int("received", reply.Len()).Send()
			return
		}
	}
	stream.Close()

	if ctx.Err() != nil {
		t.log.Info().Str("event", "TURN_CANCELED").Int("received", reply.Len()).Send()
		return
	}

	t.conv.Append(model.RoleAssistant, reply.String())
	if err := s.store.Save(t.conv); err != nil {
		s.fail(ctx, t, events, fmt.Errorf("failed to save assistant message: %w", err))
		return
	}
	t.log.Debug().Str("event", "TURN_PERSISTED").Int("messages", t.conv.Len()).Send()

	if s.builder.ShouldSummarize(t.conv.Messages) {
		summary := s.builder.CreateSummary(t.conv.Messages)
		if err := s.store.SaveSummary(t.conv.ID, summary); err != nil {
			t.log.Warn().Str("event", "SUMMARY_SAVE_FAILED").Err(err).Send()
		} else {
			t.log.Debug().Str("event", "TURN_SUMMARIZED").Int("summary_len", len(summary)).Send()
		}
	}

	send(ctx, events, Event{Done: true, ConversationID: t.conv.ID, Title: t.conv.Title})
	t.log.Info().Str("event", "TURN_COMPLETE").Str("model", t.model).Int("reply_bytes", reply.Len()).Send()
}

// fail emits the terminal failure event. A cancelled caller gets nothing.
func (s *Service) fail(ctx context.Context, t *turn, events chan<- Event, err error) {
	kind := Kind(err)
	if kind == KindCanceled || ctx.Err() != nil {
		t.log.Info().Str("event", "TURN_CANCELED").Send()
		return
	}
	t.log.Warn().Str("event", "TURN_FAILED").Str("kind", string(kind)).Err(err).Send()
	send(ctx, events, Event{Done: true, Error: err.Error(), Kind: kind})
}

// send delivers ev unless ctx ends first.
func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
