// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// FragmentStream yields reply fragments until io.EOF or a terminal error.
// Close must be safe to call more than once.
type FragmentStream interface {
	Next() (string, error)
	Close() error
}

// Gateway starts a streamed completion for a built context.
type Gateway interface {
	ChatStream(ctx context.Context, modelName string, messages []model.Message) (FragmentStream, error)
}

// OllamaGateway serves Gateway from an Ollama client.
type OllamaGateway struct {
	client *ollama.Client
}

// NewOllamaGateway wraps client.
func NewOllamaGateway(client *ollama.Client) *OllamaGateway {
	return &OllamaGateway{client: client}
}

// ChatStream implements Gateway.
func (g *OllamaGateway) ChatStream(ctx context.Context, modelName string, messages []model.Message) (FragmentStream, error) {
	stream, err := g.client.ChatStream(ctx, modelName, ollama.FromModel(messages))
	if err != nil {
		return nil, err
	}
	return stream, nil
}
