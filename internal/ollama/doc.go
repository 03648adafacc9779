// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// # Key Types
//
//   - Client: chat (streaming and not), model list/pull/delete, health
//   - ChatStream: pull-based iterator over response fragments
//   - PullStream: pull-based iterator over model download progress
//   - ModelCache: explicit, invalidatable cache of installed models
//   - ClientError: typed failure (transport, timeout, upstream, http)
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: url})
//	stream, err := client.ChatStream(ctx, "llama3.2:1b", msgs)
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for {
//	    frag, err := stream.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(frag)
//	}
//
// # Timeouts
//
// Streaming requests use a short connect timeout and an idle timeout that
// restarts on every read, so a long generation never times out while tokens
// keep arriving. Non-streaming requests use one overall timeout. Model pulls
// are bounded only by the caller's context.
package ollama
