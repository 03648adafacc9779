// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// # Key Types
//
//   - Conversation: an ordered, append-only list of messages plus metadata
//   - Message: a single role/content/timestamp entry
//   - ConversationMeta: the listing view of a conversation
//   - Role: message role enumeration (system, user, assistant)
//
// # Usage
//
//	conv := model.NewConversation("llama3.2")
//	conv.Append(model.RoleUser, "Hello!")
//	fmt.Println(conv.Title) // "Hello!"
package model
