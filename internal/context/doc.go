// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package context decides what conversation history is sent to the model on
// each turn and produces the rolling summary that stands in for dropped
// history.
//
// # Key Types
//
//   - Builder: recent-window selection plus summary injection
//   - Summarizer: produces summary text from a full message history
//   - ExtractiveSummarizer: deterministic summary built from message text
//   - WindowStats: advisory size figures for a built context
//
// # Usage
//
//	b, err := context.NewBuilder(context.DefaultConfig(), store)
//	msgs := b.BuildContext(conv.ID, conv.Messages)
//	if b.ShouldSummarize(conv.Messages) {
//	    store.SaveSummary(conv.ID, b.CreateSummary(conv.Messages))
//	}
//
// The package name shadows the standard library; import it under an alias
// such as convctx.
package context
