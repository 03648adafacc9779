// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	convctx "github.com/jeranaias/rigchat/internal/context"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

// =============================================================================
// COMMAND ENVIRONMENT
// =============================================================================

// Env is what a command runs against. Tests swap the streams.
type Env struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// LoadConfig defaults to config.Load.
	LoadConfig func() (*config.Config, error)

	app *App
}

// DefaultEnv uses the process streams.
func DefaultEnv() *Env {
	return &Env{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Config loads the configuration without opening anything.
func (e *Env) Config() (*config.Config, error) {
	if e.app != nil {
		return e.app.Config, nil
	}
	load := e.LoadConfig
	if load == nil {
		load = config.Load
	}
	return load()
}

// App builds the runtime on first use.
func (e *Env) App() (*App, error) {
	if e.app != nil {
		return e.app, nil
	}
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	app, err := NewApp(cfg, e.Stderr)
	if err != nil {
		return nil, err
	}
	e.app = app
	return app, nil
}

// Close releases the runtime if one was built.
func (e *Env) Close() error {
	if e.app == nil {
		return nil
	}
	err := e.app.Close()
	e.app = nil
	return err
}

// =============================================================================
// APP
// =============================================================================

// App holds the wired components shared by all commands.
type App struct {
	Config *config.Config
	Log    zerolog.Logger
	Store  storage.Store
	Ollama *ollama.Client
	Models *ollama.ModelCache
	Chat   *chat.Service
}

// NewApp opens the store and wires the chat service from cfg. Logs go to
// logOut.
func NewApp(cfg *config.Config, logOut io.Writer) (*App, error) {
	log := logging.New(cfg.Log, logOut)

	store, err := storage.Open(storage.Options{
		Backend: cfg.Storage.Backend,
		DataDir: cfg.Storage.DataDir,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Storage.Backend, err)
	}

	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:           cfg.Ollama.BaseURL,
		ConnectTimeout:    cfg.Ollama.ConnectTimeout.Std(),
		StreamReadTimeout: cfg.Ollama.StreamReadTimeout.Std(),
		RequestTimeout:    cfg.Ollama.RequestTimeout.Std(),
		Logger:            log,
	})

	builder, err := convctx.NewBuilder(convctx.Config{
		MaxRecentMessages: cfg.Context.MaxRecentMessages,
		SummaryThreshold:  cfg.Context.SummaryThreshold,
		ContextWindowSize: cfg.Context.ContextWindowSize,
	}, store)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &App{
		Config: cfg,
		Log:    log,
		Store:  store,
		Ollama: client,
		Models: ollama.NewModelCache(client, cfg.Ollama.ModelCacheTTL.Std()),
		Chat:   chat.NewService(store, builder, chat.NewOllamaGateway(client), cfg.Ollama.DefaultModel, log),
	}, nil
}

// Close closes the store.
func (a *App) Close() error {
	if a.Store == nil {
		return nil
	}
	if err := a.Store.Close(); err != nil {
		return errors.Join(errors.New("failed to close store"), err)
	}
	return nil
}
