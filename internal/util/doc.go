// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util holds small helpers shared by the storage, model and CLI
// packages.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe replace of a file (temp + fsync + rename)
//   - RemoveIfExists: delete that reports whether the file was present
//   - Prefix, TruncateRunes, RuneLen: rune-aware string slicing
//   - PadWidth: column padding for terminal tables
//   - FreeDiskSpace: bytes available to the caller on a volume
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0644)
//	title := util.TruncateRunes(text, 50, "...")
package util
