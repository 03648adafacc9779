// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

// backends runs fn against every Store implementation.
func backends(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()
	for _, backend := range []string{BackendFile, BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			store, err := Open(Options{Backend: backend, DataDir: t.TempDir(), Logger: zerolog.Nop()})
			if err != nil {
				t.Fatalf("Failed to create store: %v", err)
			}
			t.Cleanup(func() { store.Close() })
			fn(t, store)
		})
	}
}

func newConversation(n int) *model.Conversation {
	conv := model.NewConversation("test-model")
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		conv.Append(role, fmt.Sprintf("message %d", i))
	}
	return conv
}

// =============================================================================
// CONTRACT TESTS
// =============================================================================

func TestStore_SaveAndGet(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		conv := newConversation(3)
		require.NoError(t, store.Save(conv))

		loaded, err := store.Get(conv.ID)
		require.NoError(t, err)
		assert.Equal(t, conv.ID, loaded.ID)
		assert.Equal(t, conv.Title, loaded.Title)
		assert.Equal(t, "test-model", loaded.Model)
		require.Len(t, loaded.Messages, 3)
		assert.Equal(t, "message 2", loaded.Messages[2].Content)
		assert.Equal(t, model.RoleUser, loaded.Messages[2].Role)
		assert.True(t, conv.UpdatedAt.Equal(loaded.UpdatedAt))
	})
}

func TestStore_SaveIsIdempotent(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		conv := newConversation(2)
		require.NoError(t, store.Save(conv))
		require.NoError(t, store.Save(conv))

		metas, err := store.List()
		require.NoError(t, err)
		assert.Len(t, metas, 1)
	})
}

func TestStore_GetNotFound(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		_, err := store.Get("does-not-exist")
		if !errors.Is(err, ErrConversationNotFound) {
			t.Errorf("Get() error = %v, want ErrConversationNotFound", err)
		}
		assert.True(t, IsNotFound(err))
	})
}

func TestStore_ListOrder(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		base := time.Now().UTC()
		ids := make([]string, 3)
		for i := range ids {
			conv := newConversation(1)
			conv.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, store.Save(conv))
			ids[i] = conv.ID
		}

		metas, err := store.List()
		require.NoError(t, err)
		require.Len(t, metas, 3)
		assert.Equal(t, ids[2], metas[0].ID)
		assert.Equal(t, ids[1], metas[1].ID)
		assert.Equal(t, ids[0], metas[2].ID)
		assert.Equal(t, 1, metas[0].MessageCount)
	})
}

func TestStore_DeleteRemovesSummary(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		conv := newConversation(2)
		require.NoError(t, store.Save(conv))
		require.NoError(t, store.SaveSummary(conv.ID, "a summary"))

		existed, err := store.Delete(conv.ID)
		require.NoError(t, err)
		assert.True(t, existed)

		_, err = store.Get(conv.ID)
		assert.ErrorIs(t, err, ErrConversationNotFound)
		_, ok := store.GetSummary(conv.ID)
		assert.False(t, ok)

		existed, err = store.Delete(conv.ID)
		require.NoError(t, err, "deleting an absent conversation succeeds")
		assert.False(t, existed)
	})
}

func TestStore_Truncate(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		conv := newConversation(5)
		require.NoError(t, store.Save(conv))
		require.NoError(t, store.SaveSummary(conv.ID, "stale"))
		before := conv.UpdatedAt

		require.NoError(t, store.Truncate(conv.ID, 2))

		loaded, err := store.Get(conv.ID)
		require.NoError(t, err)
		require.Len(t, loaded.Messages, 3)
		assert.Equal(t, "message 2", loaded.Messages[2].Content)
		assert.False(t, loaded.UpdatedAt.Before(before))

		_, ok := store.GetSummary(conv.ID)
		assert.False(t, ok, "truncation discards the summary")
	})
}

func TestStore_TruncateOutOfRange(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		conv := newConversation(3)
		require.NoError(t, store.Save(conv))
		require.NoError(t, store.SaveSummary(conv.ID, "keep"))

		for _, k := range []int{-1, 3, 10} {
			err := store.Truncate(conv.ID, k)
			assert.ErrorIs(t, err, ErrIndexOutOfRange, "k=%d", k)
		}

		loaded, err := store.Get(conv.ID)
		require.NoError(t, err)
		assert.Len(t, loaded.Messages, 3, "failed truncation must not mutate")
		summary, ok := store.GetSummary(conv.ID)
		assert.True(t, ok)
		assert.Equal(t, "keep", summary)

		assert.ErrorIs(t, store.Truncate("missing", 0), ErrConversationNotFound)
	})
}

func TestStore_Summaries(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		_, ok := store.GetSummary("nope")
		assert.False(t, ok)

		require.NoError(t, store.SaveSummary("c1", "first"))
		require.NoError(t, store.SaveSummary("c1", "second"))
		got, ok := store.GetSummary("c1")
		assert.True(t, ok)
		assert.Equal(t, "second", got)

		require.NoError(t, store.SaveSummary("c2", ""))
		_, ok = store.GetSummary("c2")
		assert.False(t, ok, "empty summary is absent")
	})
}

func TestStore_ConcurrentSaves(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, store.Save(newConversation(2)))
			}()
		}
		wg.Wait()

		metas, err := store.List()
		require.NoError(t, err)
		assert.Len(t, metas, 10)
	})
}

// =============================================================================
// FILE STORE SPECIFICS
// =============================================================================

func TestFileStore_Layout(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)

	conv := newConversation(1)
	require.NoError(t, store.Save(conv))
	require.NoError(t, store.SaveSummary(conv.ID, "s"))

	assert.FileExists(t, filepath.Join(dir, "conversations", conv.ID+".json"))
	data, err := os.ReadFile(filepath.Join(dir, "summaries", conv.ID+".json"))
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"summary":"s","conversation_id":%q}`, conv.ID), string(data))
}

func TestFileStore_CorruptRecordSkipped(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)

	good := newConversation(1)
	require.NoError(t, store.Save(good))
	corrupt := filepath.Join(dir, "conversations", "broken.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0644))
	badRole := filepath.Join(dir, "conversations", "badrole.json")
	require.NoError(t, os.WriteFile(badRole, []byte(`{"id":"badrole","messages":[{"role":"tool","content":"x"}]}`), 0644))

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, good.ID, metas[0].ID)

	_, err = store.Get("broken")
	assert.ErrorIs(t, err, ErrConversationNotFound)
	_, err = store.Get("badrole")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestFileStore_UnreadableRecordNotFound(t *testing.T) {
	dir := t.TempDir()
	var logs bytes.Buffer
	store, err := NewFileStore(dir, zerolog.New(&logs))
	require.NoError(t, err)

	// A directory where the record should be makes ReadFile fail with
	// something other than ENOENT.
	require.NoError(t, os.Mkdir(filepath.Join(dir, "conversations", "abc.json"), 0755))

	_, err = store.Get("abc")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.False(t, IsStorageError(err))
	assert.Contains(t, logs.String(), "STORE_READ_FAILED")

	err = store.Truncate("abc", 0)
	assert.ErrorIs(t, err, ErrConversationNotFound)

	metas, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, metas)
}

func TestFileStore_RejectsPathIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	for _, id := range []string{"", "..", "../etc/passwd", `a\b`, "a/b"} {
		_, err := store.Get(id)
		assert.ErrorIs(t, err, ErrConversationNotFound, "id=%q", id)
	}

	conv := newConversation(1)
	conv.ID = "../escape"
	assert.ErrorIs(t, store.Save(conv), ErrInvalidID)
}

// =============================================================================
// SQLITE STORE SPECIFICS
// =============================================================================

func TestSQLiteStore_CorruptBodySkipped(t *testing.T) {
	var logs bytes.Buffer
	store, err := NewSQLiteStore(t.TempDir(), zerolog.New(&logs))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	good := newConversation(1)
	bad := newConversation(1)
	require.NoError(t, store.Save(good))
	require.NoError(t, store.Save(bad))
	_, err = store.db.Exec("UPDATE conversations SET body = ? WHERE id = ?", "{not json", bad.ID)
	require.NoError(t, err)

	metas, err := store.List()
	require.NoError(t, err)
	require.Len(t, metas, 1, "List and Get agree on corrupt rows")
	assert.Equal(t, good.ID, metas[0].ID)

	_, err = store.Get(bad.ID)
	assert.ErrorIs(t, err, ErrConversationNotFound)
	assert.Contains(t, logs.String(), "STORE_SKIP_CORRUPT")
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "postgres", DataDir: t.TempDir()})
	assert.Error(t, err)
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("a")
	unlock()
	assert.Empty(t, k.locks)
}
