// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, validation and reload on change.
//
// # Key Types
//
//   - Config: Main configuration structure with all settings
//   - OllamaConfig: Ollama address, default model and timeouts
//   - ContextConfig: recent window and summary threshold
//   - StorageConfig: backend and data directory
//   - ServerConfig: HTTP listen address, rate limit and CORS origins
//   - Watcher: reloads the file when it changes
//
// # Configuration Precedence
//
// Configuration is loaded from (in order of precedence):
//   - Environment variables (RIGCHAT_*, then OLLAMA_*, FLASK_* and friends)
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	timeout := cfg.Ollama.StreamReadTimeout.Std()
package config
