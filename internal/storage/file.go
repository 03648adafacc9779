// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

const (
	conversationsDir = "conversations"
	summariesDir     = "summaries"

	// listWorkers bounds concurrent file reads in List.
	listWorkers = 8
)

// summaryRecord is the on-disk summary document.
type summaryRecord struct {
	Summary        string `json:"summary"`
	ConversationID string `json:"conversation_id"`
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps each conversation and each summary in its own JSON file.
type FileStore struct {
	// BaseDir is the data directory holding conversations/ and summaries/.
	BaseDir string

	log   zerolog.Logger
	locks keyedMutex
}

// NewFileStore creates the directory layout under baseDir.
func NewFileStore(baseDir string, logger zerolog.Logger) (*FileStore, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("storage: data directory not set")
	}
	for _, sub := range []string{conversationsDir, summariesDir} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0755); err != nil {
			return nil, &StorageError{Op: "init", Err: err}
		}
	}
	return &FileStore{
		BaseDir: baseDir,
		log:     logger.With().Str("component", "filestore").Logger(),
	}, nil
}

func (s *FileStore) conversationPath(id string) string {
	return filepath.Join(s.BaseDir, conversationsDir, id+".json")
}

func (s *FileStore) summaryPath(id string) string {
	return filepath.Join(s.BaseDir, summariesDir, id+".json")
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// Get loads a conversation. Missing, unreadable and undecodable records are
// all reported as ErrConversationNotFound.
func (s *FileStore) Get(id string) (*model.Conversation, error) {
	if !validID(id) {
		return nil, ErrConversationNotFound
	}
	return s.load(s.conversationPath(id))
}

func (s *FileStore) load(path string) (*model.Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConversationNotFound
		}
		s.log.Warn().Str("event", "STORE_READ_FAILED").Str("conversation_id", idFromPath(path)).Str("path", path).Err(err).Msg("conversation record unreadable")
		return nil, ErrConversationNotFound
	}

	var conv model.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		s.log.Warn().Str("event", "STORE_SKIP_CORRUPT").Str("path", path).Err(err).Msg("conversation record unreadable")
		return nil, ErrConversationNotFound
	}
	if err := conv.Validate(); err != nil {
		s.log.Warn().Str("event", "STORE_SKIP_CORRUPT").Str("path", path).Err(err).Msg("conversation record invalid")
		return nil, ErrConversationNotFound
	}
	if conv.Messages == nil {
		conv.Messages = make([]model.Message, 0)
	}
	return &conv, nil
}

// Save writes the conversation atomically.
func (s *FileStore) Save(conv *model.Conversation) error {
	if conv == nil || !validID(conv.ID) {
		return ErrInvalidID
	}
	unlock := s.locks.Lock(conv.ID)
	defer unlock()
	return s.write(conv)
}

func (s *FileStore) write(conv *model.Conversation) error {
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode", ID: conv.ID, Err: err}
	}
	if err := util.AtomicWriteFile(s.conversationPath(conv.ID), data, 0644); err != nil {
		return &StorageError{Op: "write", ID: conv.ID, Err: err}
	}
	return nil
}

// List returns metadata for every readable conversation, most recently
// updated first. Files are decoded concurrently.
func (s *FileStore) List() ([]model.ConversationMeta, error) {
	entries, err := os.ReadDir(filepath.Join(s.BaseDir, conversationsDir))
	if err != nil {
		if os.IsNotExist(err) {
			return []model.ConversationMeta{}, nil
		}
		return nil, &StorageError{Op: "list", Err: err}
	}

	var paths []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		paths = append(paths, filepath.Join(s.BaseDir, conversationsDir, name))
	}

	type loaded struct {
		meta model.ConversationMeta
		ok   bool
	}
	mapper := iter.Mapper[string, loaded]{MaxGoroutines: listWorkers}
	results := mapper.Map(paths, func(path *string) loaded {
		conv, err := s.load(*path)
		if err != nil {
			return loaded{}
		}
		return loaded{meta: conv.Meta(), ok: true}
	})

	metas := make([]model.ConversationMeta, 0, len(results))
	for _, r := range results {
		if r.ok {
			metas = append(metas, r.meta)
		}
	}
	sortMetas(metas)
	return metas, nil
}

// Delete removes the conversation file and its summary.
func (s *FileStore) Delete(id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	existed, err := util.RemoveIfExists(s.conversationPath(id))
	if err != nil {
		return false, &StorageError{Op: "delete", ID: id, Err: err}
	}
	if _, err := util.RemoveIfExists(s.summaryPath(id)); err != nil {
		return existed, &StorageError{Op: "delete summary", ID: id, Err: err}
	}
	return existed, nil
}

// Truncate keeps messages [0..keepIndex], persists, and drops the summary.
func (s *FileStore) Truncate(id string, keepIndex int) error {
	if !validID(id) {
		return ErrConversationNotFound
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	conv, err := s.load(s.conversationPath(id))
	if err != nil {
		return err
	}
	if err := conv.TruncateAt(keepIndex); err != nil {
		return err
	}
	if err := s.write(conv); err != nil {
		return err
	}
	if _, err := util.RemoveIfExists(s.summaryPath(id)); err != nil {
		return &StorageError{Op: "delete summary", ID: id, Err: err}
	}
	return nil
}

// =============================================================================
// SUMMARIES
// =============================================================================

// GetSummary returns the stored summary. An empty or unreadable record is
// treated as absent.
func (s *FileStore) GetSummary(id string) (string, bool) {
	if !validID(id) {
		return "", false
	}
	data, err := os.ReadFile(s.summaryPath(id))
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn().Str("event", "SUMMARY_READ_FAILED").Str("conversation_id", id).Err(err).Send()
		}
		return "", false
	}
	var rec summaryRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.log.Warn().Str("event", "STORE_SKIP_CORRUPT").Str("conversation_id", id).Err(err).Msg("summary record unreadable")
		return "", false
	}
	if rec.Summary == "" {
		return "", false
	}
	return rec.Summary, true
}

// SaveSummary replaces the summary file for id.
func (s *FileStore) SaveSummary(id, summary string) error {
	if !validID(id) {
		return ErrInvalidID
	}
	data, err := json.MarshalIndent(summaryRecord{Summary: summary, ConversationID: id}, "", "  ")
	if err != nil {
		return &StorageError{Op: "encode summary", ID: id, Err: err}
	}
	if err := util.AtomicWriteFile(s.summaryPath(id), data, 0644); err != nil {
		return &StorageError{Op: "write summary", ID: id, Err: err}
	}
	return nil
}

// Close is a no-op for the file backend.
func (s *FileStore) Close() error {
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func idFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

// sortMetas orders by UpdatedAt descending, ties broken by id for a stable
// listing.
func sortMetas(metas []model.ConversationMeta) {
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].UpdatedAt.Equal(metas[j].UpdatedAt) {
			return metas[i].ID < metas[j].ID
		}
		return metas[i].UpdatedAt.After(metas[j].UpdatedAt)
	})
}
