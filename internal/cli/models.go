// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// models.go - Model management commands.
//
// Command: models [subcommand]
// Short:   List, pull and remove Ollama models
//
// Subcommands:
//   list (default)      Installed models
//   catalog             Library models with install state
//   pull <name>         Download a model, showing progress
//   rm <name>           Delete an installed model
//   bench [name...]     Benchmark models (see bench.go)
//
// Flags:
//   --json              Output in JSON format
//   --refresh           Bypass the model list cache (list)
//   --quick             Shorter benchmark suite (bench)

package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/util"
)

const modelsUsage = "rigchat models [list|catalog|pull NAME|rm NAME|bench NAME...] [--json]"

func runModels(ctx context.Context, env *Env, args *ArgParser) error {
	app, err := env.App()
	if err != nil {
		return err
	}
	jsonMode := args.BoolFlag("json")

	switch sub := args.Subcommand(); sub {
	case "", "list", "ls":
		return modelsList(ctx, env, app, jsonMode, args.BoolFlag("refresh"))
	case "catalog", "available":
		return modelsCatalog(ctx, env, app, jsonMode)
	case "pull", "install":
		name := args.Positional(1)
		if name == "" {
			return ErrMissingArgument("model name", "rigchat models pull NAME")
		}
		return modelsPull(ctx, env, app, name, jsonMode)
	case "rm", "remove", "delete":
		name := args.Positional(1)
		if name == "" {
			return ErrMissingArgument("model name", "rigchat models rm NAME")
		}
		return modelsRemove(ctx, env, app, name, jsonMode)
	case "bench", "benchmark":
		return modelsBench(ctx, env, app, args.PositionalFrom(1), args.BoolFlag("quick"), jsonMode)
	default:
		return ErrUnknownSubcommand("models", sub, modelsUsage)
	}
}

func modelsList(ctx context.Context, env *Env, app *App, jsonMode, refresh bool) error {
	get := app.Models.Get
	if refresh {
		get = app.Models.Refresh
	}
	models, err := get(ctx)
	if err != nil {
		return err
	}

	if jsonMode {
		if models == nil {
			models = []ollama.ModelInfo{}
		}
		return NewJSONResponse("models list", models).Print(env.Stdout)
	}

	if len(models) == 0 {
		fmt.Fprintln(env.Stdout, "No models installed.")
		fmt.Fprintln(env.Stdout, DimStyle.Render("Install one with: rigchat models pull "+app.Config.Ollama.DefaultModel))
		return nil
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Installed Models"))
	for _, m := range models {
		fmt.Fprintf(env.Stdout, "  %s %s %s %s\n",
			util.PadWidth(m.Name, 32),
			util.PadWidth(m.FormatSize(), 10),
			util.PadWidth(m.Details.ParameterSize, 8),
			DimStyle.Render(humanize.Time(m.ModifiedAt)))
	}
	return nil
}

func modelsCatalog(ctx context.Context, env *Env, app *App, jsonMode bool) error {
	// The catalog is still useful with Ollama down; everything shows as
	// not installed.
	installed, _ := app.Models.Get(ctx)
	entries := ollama.Catalog(installed)

	if jsonMode {
		return NewJSONResponse("models catalog", entries).Print(env.Stdout)
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Model Catalog"))
	for _, e := range entries {
		mark := "  "
		if e.Installed {
			mark = SuccessStyle.Render("* ")
		}
		fmt.Fprintf(env.Stdout, "%s%s %s %s\n", mark,
			util.PadWidth(e.Name, 28),
			util.PadWidth(e.Size, 8),
			DimStyle.Render(e.Category))
	}
	return nil
}

// modelsPull streams pull progress. A terminal gets a progress bar, other
// writers one redrawn line per layer, and JSON mode the final result only.
func modelsPull(ctx context.Context, env *Env, app *App, name string, jsonMode bool) error {
	if !app.Ollama.CheckHealth(ctx) {
		return NewCommandError("models", "pull", "Ollama is not running. Start it with: ollama serve", nil)
	}

	pullCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stream, err := app.Ollama.PullModel(pullCtx, name)
	if err != nil {
		return withMessage(ollama.PullErrorMessage(name, err), err)
	}
	defer stream.Close()

	start := time.Now()
	last := ""
	switch {
	case jsonMode:
		err = drainPull(stream, func(ollama.PullProgress) {})
	case useProgressBar(env.Stderr):
		err = pullWithProgressBar(pullCtx, env.Stderr, name, stream, cancel)
	default:
		err = drainPull(stream, func(p ollama.PullProgress) {
			line := formatPullProgress(p)
			if line == last {
				return
			}
			fmt.Fprintf(env.Stderr, "\r\033[K%s", line)
			last = line
		})
		if last != "" {
			fmt.Fprintln(env.Stderr)
		}
	}
	if err != nil {
		return withMessage(ollama.PullErrorMessage(name, err), err)
	}
	app.Models.Invalidate()

	if jsonMode {
		return NewJSONResponse("models pull", map[string]any{
			"model":   name,
			"status":  "success",
			"elapsed": time.Since(start).Round(time.Millisecond).String(),
		}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s pulled %s in %s\n", RenderStatus("ok"), name,
		time.Since(start).Round(time.Second))
	return nil
}

// formatPullProgress renders "pulling abc123: 45% (1.2 GB / 2.7 GB)".
func formatPullProgress(p ollama.PullProgress) string {
	status := p.Status
	if status == "" {
		status = "working"
	}
	pct := p.Percent()
	if pct < 0 {
		return status
	}
	return fmt.Sprintf("%s: %3.0f%% (%s / %s)", strings.TrimSpace(status), pct,
		humanize.Bytes(uint64(p.Completed)), humanize.Bytes(uint64(p.Total)))
}

func modelsRemove(ctx context.Context, env *Env, app *App, name string, jsonMode bool) error {
	app.Models.Invalidate()
	if err := app.Ollama.DeleteModel(ctx, name); err != nil {
		if ollama.IsModelNotFound(err) {
			return &NotFoundError{Resource: "model", Name: name}
		}
		return err
	}

	if jsonMode {
		return NewJSONResponse("models rm", map[string]any{"model": name, "deleted": true}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s removed %s\n", RenderStatus("ok"), name)
	return nil
}
