// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is the persistence contract for conversations and summaries.
type Store interface {
	// Get returns the conversation, or ErrConversationNotFound.
	Get(id string) (*model.Conversation, error)

	// Save creates or replaces the conversation keyed by conv.ID.
	Save(conv *model.Conversation) error

	// List returns listing metadata, most recently updated first.
	List() ([]model.ConversationMeta, error)

	// Delete removes the conversation and its summary. Deleting an unknown
	// id is not an error; existed reports whether anything was removed.
	Delete(id string) (existed bool, err error)

	// Truncate keeps messages [0..keepIndex] and drops the summary.
	Truncate(id string, keepIndex int) error

	// GetSummary returns the stored summary text, if any.
	GetSummary(id string) (string, bool)

	// SaveSummary replaces the summary for id.
	SaveSummary(id, summary string) error

	Close() error
}

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	DataDir string
	Logger  zerolog.Logger
}

// Open returns the Store for opts.Backend. An empty backend means file.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", BackendFile:
		return NewFileStore(opts.DataDir, opts.Logger)
	case BackendSQLite:
		return NewSQLiteStore(opts.DataDir, opts.Logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation doesn't exist.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &ConversationError{Message: "conversation not found"}

// ErrInvalidID is returned for ids that could escape the data directory.
var ErrInvalidID = &ConversationError{Message: "invalid conversation id"}

// ErrIndexOutOfRange is returned by Truncate when keepIndex does not address
// an existing message.
var ErrIndexOutOfRange = model.ErrIndexOutOfRange

// ConversationError represents a conversation-related error.
type ConversationError struct {
	Message string
}

// Error implements the error interface.
func (e *ConversationError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing conversation errors.
func (e *ConversationError) Is(target error) bool {
	t, ok := target.(*ConversationError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// StorageError wraps an I/O failure on a write or delete path.
type StorageError struct {
	Op  string
	ID  string
	Err error
}

func (e *StorageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err means the addressed conversation or
// message does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrConversationNotFound) ||
		errors.Is(err, ErrIndexOutOfRange) ||
		errors.Is(err, ErrInvalidID)
}

// =============================================================================
// HELPERS
// =============================================================================

// validID rejects ids that are empty or could address a path outside the
// store's directory.
func validID(id string) bool {
	if id == "" || len(id) > 128 || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\:`) && !strings.Contains(id, "..")
}

// keyedMutex serializes operations per conversation id.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(id string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refLock)
	}
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
