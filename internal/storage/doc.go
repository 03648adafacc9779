// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage persists conversations and their rolling summaries.
//
// Two backends implement Store: FileStore keeps one JSON document per
// conversation and per summary, SQLiteStore keeps the same documents in a
// single database. Both are keyed solely by conversation id.
//
// # Key Types
//
//   - Store: the persistence contract used by the chat service and server
//   - FileStore: <data_dir>/conversations/<id>.json and summaries/<id>.json
//   - SQLiteStore: <data_dir>/rigchat.db via the pure Go sqlite driver
//
// # Usage
//
//	store, err := storage.Open(storage.Options{Backend: "file", DataDir: dir})
//	conv, err := store.Get(id)
//	metas, err := store.List()
//
// # Failure Semantics
//
// A record that cannot be read or decoded is reported as not found by Get
// and skipped by List, on both backends; every such case is logged. Write
// and delete failures surface as *StorageError.
package storage
