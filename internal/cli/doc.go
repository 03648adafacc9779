// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the rigchat command line.
//
// Every command runs against an Env, which carries the standard streams
// and builds the shared App (store, Ollama client, model cache, chat
// service) on first use. Run parses argv, dispatches, prints any error
// and returns the process exit code:
//
//	os.Exit(cli.Run(context.Background(), cli.DefaultEnv(), os.Args[1:]))
//
// # Commands
//
//   - serve: HTTP API for the desktop shell
//   - chat: interactive terminal chat (liner line editing, Ctrl+C cancels a reply)
//   - models: list, catalog, pull, rm and bench
//   - conversations: list, show, new, rm, truncate and export
//   - config: show, path, keys, get, set and init
//   - doctor: concurrent health checks
//   - version
//
// Listing commands accept --json and print a JSONResponse envelope. Errors
// map to exit codes through GetExitCode: 2 for usage, 3 for config, 5 when
// Ollama is unreachable, 7 for missing resources, 8 for timeouts.
package cli
