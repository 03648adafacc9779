// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/rigchat/internal/model"
)

// DatabaseFile is the SQLite file name inside the data directory.
const DatabaseFile = "rigchat.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS conversations (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    model TEXT NOT NULL DEFAULT '',
    message_count INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL, -- Unix nanoseconds
    updated_at INTEGER NOT NULL, -- Unix nanoseconds
    body TEXT NOT NULL           -- conversation JSON document
);

CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);

CREATE TABLE IF NOT EXISTS summaries (
    conversation_id TEXT PRIMARY KEY,
    summary TEXT NOT NULL
);
`

// =============================================================================
// SQLITE STORE
// =============================================================================

// SQLiteStore keeps conversations as JSON documents in a single SQLite
// database, with listing columns broken out for ordering.
type SQLiteStore struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewSQLiteStore opens (or creates) <dataDir>/rigchat.db.
func NewSQLiteStore(dataDir string, logger zerolog.Logger) (*SQLiteStore, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("storage: data directory not set")
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, &StorageError{Op: "init", Err: err}
	}

	db, err := sql.Open("sqlite", filepath.Join(dataDir, DatabaseFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{
		db:  db,
		log: logger.With().Str("component", "sqlitestore").Logger(),
	}, nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// Get loads a conversation. A row that cannot be read or decoded is reported
// as ErrConversationNotFound.
func (s *SQLiteStore) Get(id string) (*model.Conversation, error) {
	return getConversation(s.db, s.log, id)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

func getConversation(q queryer, log zerolog.Logger, id string) (*model.Conversation, error) {
	var body string
	err := q.QueryRow("SELECT body FROM conversations WHERE id = ?", id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		log.Warn().Str("event", "STORE_READ_FAILED").Str("conversation_id", id).Err(err).Msg("conversation row unreadable")
		return nil, ErrConversationNotFound
	}

	conv, err := decodeBody(body)
	if err != nil {
		log.Warn().Str("event", "STORE_SKIP_CORRUPT").Str("conversation_id", id).Err(err).Msg("conversation row invalid")
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func decodeBody(body string) (*model.Conversation, error) {
	var conv model.Conversation
	if err := json.Unmarshal([]byte(body), &conv); err != nil {
		return nil, err
	}
	if err := conv.Validate(); err != nil {
		return nil, err
	}
	if conv.Messages == nil {
		conv.Messages = make([]model.Message, 0)
	}
	return &conv, nil
}

// Save upserts the conversation row.
func (s *SQLiteStore) Save(conv *model.Conversation) error {
	if conv == nil || !validID(conv.ID) {
		return ErrInvalidID
	}
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "write", ID: conv.ID, Err: err}
	}
	defer tx.Rollback()

	if err := putConversation(tx, conv); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", ID: conv.ID, Err: err}
	}
	return nil
}

func putConversation(tx *sql.Tx, conv *model.Conversation) error {
	body, err := json.Marshal(conv)
	if err != nil {
		return &StorageError{Op: "encode", ID: conv.ID, Err: err}
	}
	_, err = tx.Exec(`
		INSERT INTO conversations (id, title, model, message_count, created_at, updated_at, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			model = excluded.model,
			message_count = excluded.message_count,
			updated_at = excluded.updated_at,
			body = excluded.body`,
		conv.ID, conv.Title, conv.Model, len(conv.Messages),
		conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(), string(body))
	if err != nil {
		return &StorageError{Op: "write", ID: conv.ID, Err: err}
	}
	return nil
}

// List reads listing columns, most recently updated first. Rows whose body
// Get would reject are skipped.
func (s *SQLiteStore) List() ([]model.ConversationMeta, error) {
	rows, err := s.db.Query(`
		SELECT id, title, model, message_count, created_at, updated_at, body
		FROM conversations
		ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	metas := make([]model.ConversationMeta, 0)
	for rows.Next() {
		var (
			meta             model.ConversationMeta
			created, updated int64
			body             string
		)
		if err := rows.Scan(&meta.ID, &meta.Title, &meta.Model, &meta.MessageCount, &created, &updated, &body); err != nil {
			s.log.Warn().Str("event", "STORE_SKIP_CORRUPT").Err(err).Msg("conversation row unreadable")
			continue
		}
		if _, err := decodeBody(body); err != nil {
			s.log.Warn().Str("event", "STORE_SKIP_CORRUPT").Str("conversation_id", meta.ID).Err(err).Msg("conversation row invalid")
			continue
		}
		meta.CreatedAt = time.Unix(0, created).UTC()
		meta.UpdatedAt = time.Unix(0, updated).UTC()
		metas = append(metas, meta)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return metas, nil
}

// Delete removes the conversation row and its summary in one transaction.
func (s *SQLiteStore) Delete(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, &StorageError{Op: "delete", ID: id, Err: err}
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM conversations WHERE id = ?", id)
	if err != nil {
		return false, &StorageError{Op: "delete", ID: id, Err: err}
	}
	n, _ := res.RowsAffected()
	if _, err := tx.Exec("DELETE FROM summaries WHERE conversation_id = ?", id); err != nil {
		return false, &StorageError{Op: "delete summary", ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return false, &StorageError{Op: "commit", ID: id, Err: err}
	}
	return n > 0, nil
}

// Truncate keeps messages [0..keepIndex] and drops the summary atomically.
func (s *SQLiteStore) Truncate(id string, keepIndex int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return &StorageError{Op: "truncate", ID: id, Err: err}
	}
	defer tx.Rollback()

	conv, err := getConversation(tx, s.log, id)
	if err != nil {
		return err
	}
	if err := conv.TruncateAt(keepIndex); err != nil {
		return err
	}
	if err := putConversation(tx, conv); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM summaries WHERE conversation_id = ?", id); err != nil {
		return &StorageError{Op: "delete summary", ID: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", ID: id, Err: err}
	}
	return nil
}

// =============================================================================
// SUMMARIES
// =============================================================================

// GetSummary returns the stored summary, absent when empty or missing.
func (s *SQLiteStore) GetSummary(id string) (string, bool) {
	var summary string
	err := s.db.QueryRow("SELECT summary FROM summaries WHERE conversation_id = ?", id).Scan(&summary)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Warn().Str("event", "SUMMARY_READ_FAILED").Str("conversation_id", id).Err(err).Send()
		}
		return "", false
	}
	return summary, summary != ""
}

// SaveSummary replaces the summary row for id.
func (s *SQLiteStore) SaveSummary(id, summary string) error {
	_, err := s.db.Exec(`
		INSERT INTO summaries (conversation_id, summary) VALUES (?, ?)
		ON CONFLICT(conversation_id) DO UPDATE SET summary = excluded.summary`, id, summary)
	if err != nil {
		return &StorageError{Op: "write summary", ID: id, Err: err}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
