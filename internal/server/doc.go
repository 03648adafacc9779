// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server provides the local HTTP API used by the rigchat desktop shell.
//
// # Endpoints
//
//   - GET    /api/health                      - Liveness and Ollama reachability
//   - GET    /api/dependencies                - Ollama install and run status
//   - GET    /api/stats                       - Turn counters and uptime
//   - GET    /api/models                      - Installed models plus the catalog
//   - GET    /api/models/check/:name          - Whether one model is installed
//   - POST   /api/models/install              - Pull a model (SSE progress)
//   - POST   /api/models/delete               - Remove a model
//   - POST   /api/chat                        - Run a chat turn (SSE fragments)
//   - GET    /api/conversations               - List conversations
//   - POST   /api/conversations/new           - Create an empty conversation
//   - GET    /api/conversations/:id           - Fetch one conversation
//   - DELETE /api/conversations/:id           - Delete a conversation
//   - POST   /api/conversations/:id/truncate  - Keep messages [0..index]
//   - GET    /api/conversations/:id/export    - Download as markdown, json or html
//
// Streaming endpoints write "data: <json>\n\n" events. A chat stream ends
// with a done event carrying either conversation_id and title or error and
// error_kind.
//
// # Middleware
//
//   - Panic recovery
//   - Security headers (X-Content-Type-Options, X-Frame-Options, etc.)
//   - Request logging via zerolog
//   - CORS for the configured shell origins
//   - Per-IP token bucket rate limiting
//   - 1MB request body cap
//
// # Usage
//
//	srv, err := server.New(server.Options{
//		Config: cfg.Server,
//		Store:  store,
//		Chat:   svc,
//		Ollama: client,
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	go srv.Start()
//	defer srv.Shutdown(ctx)
package server
