// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/server"
)

// runServe runs the HTTP API until SIGINT or SIGTERM, then drains
// in-flight requests for up to server.ShutdownTimeout.
func runServe(ctx context.Context, env *Env, args *ArgParser) error {
	app, err := env.App()
	if err != nil {
		return err
	}
	cfg := app.Config

	if host := args.Flag("host"); host != "" {
		cfg.Server.Host = host
	}
	port, ok, err := args.FlagInt("port")
	if err != nil {
		return err
	}
	if ok {
		if port < 1 || port > 65535 {
			return NewValidationError("port", args.Flag("port"), "must be between 1 and 65535")
		}
		cfg.Server.Port = port
	}

	srv, err := server.New(server.Options{
		Config: cfg.Server,
		Store:  app.Store,
		Chat:   app.Chat,
		Ollama: app.Ollama,
		Models: app.Models,
		Logger: app.Log,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchConfig(ctx, app)

	if !app.Ollama.CheckHealth(ctx) {
		app.Log.Warn().Str("event", "OLLAMA_UNREACHABLE").Str("url", cfg.Ollama.BaseURL).
			Msg("Ollama is not responding; chat requests will fail until it is started")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	fmt.Fprintf(env.Stderr, "rigchat API listening on http://%s\n", cfg.Server.Addr())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return <-errCh
}

// watchConfig applies log level changes from the config file while the
// server runs. Other settings need a restart.
func watchConfig(ctx context.Context, app *App) {
	path, err := config.ActivePath()
	if err != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	_, err = config.Watch(ctx, path, func(cfg *config.Config, err error) {
		if err != nil {
			app.Log.Warn().Str("event", "CONFIG_RELOAD_FAILED").Err(err).Send()
			return
		}
		if err := logging.SetLevel(cfg.Log.Level); err != nil {
			app.Log.Warn().Str("event", "CONFIG_RELOAD_FAILED").Err(err).Send()
			return
		}
		config.SetGlobal(cfg)
		app.Log.Info().Str("event", "CONFIG_RELOADED").Str("log_level", logging.Level()).Send()
	})
	if err != nil {
		app.Log.Warn().Str("event", "CONFIG_WATCH_FAILED").Err(err).Send()
	}
}
