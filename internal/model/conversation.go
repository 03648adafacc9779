// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/rigchat/internal/util"
)

const (
	// PlaceholderTitle is used until the first user message arrives.
	PlaceholderTitle = "New Chat"

	// TitleMaxRunes is how much of the first user message becomes the title.
	TitleMaxRunes = 50
)

// ErrIndexOutOfRange is returned when a truncation index does not address an
// existing message.
var ErrIndexOutOfRange = errors.New("message index out of range")

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is an ordered list of messages with identity and timestamps.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationMeta is the listing view of a conversation.
type ConversationMeta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewConversation creates an empty conversation with a fresh random id.
func NewConversation(modelName string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        uuid.NewString(),
		Title:     PlaceholderTitle,
		Model:     modelName,
		Messages:  make([]Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DeriveTitle turns the first user message into a conversation title:
// NFC-normalized, cut to TitleMaxRunes runes, "..." appended when cut.
func DeriveTitle(firstMessage string) string {
	s := norm.NFC.String(strings.TrimSpace(firstMessage))
	return util.TruncateRunes(s, TitleMaxRunes, "...")
}

// =============================================================================
// MUTATION
// =============================================================================

// Append adds a message and refreshes UpdatedAt. The first user message of a
// conversation sets the title, replacing any title given at creation.
func (c *Conversation) Append(role Role, content string) Message {
	msg := NewMessage(role, content)
	c.Messages = append(c.Messages, msg)
	c.UpdatedAt = msg.Timestamp
	if role == RoleUser && len(c.Messages) == 1 {
		c.Title = DeriveTitle(content)
	}
	return msg
}

// TruncateAt keeps messages [0..keepIndex] and drops the rest.
func (c *Conversation) TruncateAt(keepIndex int) error {
	if keepIndex < 0 || keepIndex >= len(c.Messages) {
		return ErrIndexOutOfRange
	}
	c.Messages = c.Messages[: keepIndex+1 : keepIndex+1]
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// Len returns the number of messages.
func (c *Conversation) Len() int {
	return len(c.Messages)
}

// Last returns the most recent message, or false when there is none.
func (c *Conversation) Last() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// Meta returns the listing view of c.
func (c *Conversation) Meta() ConversationMeta {
	return ConversationMeta{
		ID:           c.ID,
		Title:        c.Title,
		Model:        c.Model,
		MessageCount: len(c.Messages),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// Clone returns a deep copy so callers can mutate without aliasing a cached
// instance.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// Validate checks the structural rules a loaded record must satisfy.
func (c *Conversation) Validate() error {
	if c.ID == "" {
		return errors.New("conversation has no id")
	}
	for i, m := range c.Messages {
		if !m.Role.Valid() {
			return &InvalidMessageError{Index: i, Role: m.Role}
		}
	}
	return nil
}

// InvalidMessageError reports a stored message with an unknown role.
type InvalidMessageError struct {
	Index int
	Role  Role
}

func (e *InvalidMessageError) Error() string {
	return fmt.Sprintf("message %d has invalid role %q", e.Index, e.Role)
}
