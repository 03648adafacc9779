// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat runs one chat turn end to end.
//
// A turn validates the request, persists the user message, builds the
// context window, streams the model's reply to the caller fragment by
// fragment, persists the assistant message and refreshes the summary when
// the history is long enough. Every turn ends with exactly one terminal
// event, either completion or failure, unless the caller cancelled.
//
// # Usage
//
//	svc := chat.NewService(store, builder, chat.NewOllamaGateway(client), "llama3.2:1b", logger)
//	events, err := svc.Start(ctx, chat.Request{Message: "Hello!"})
//	if err != nil {
//		return err // validation or not found, nothing was stored
//	}
//	for ev := range events {
//		fmt.Print(ev.Content)
//	}
package chat
