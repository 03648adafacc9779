// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// conversations.go - Saved conversation commands.
//
// Command: conversations [subcommand]
// Short:   Inspect and manage saved conversations
// Aliases: conversation, conv
//
// Subcommands:
//   list (default)           All conversations, newest first
//   show <id>                Full transcript
//   new [--title T]          Create an empty conversation
//   rm <id>                  Delete a conversation and its summary
//   truncate <id> <index>    Keep messages 0..index
//   export <id>              Write Markdown, JSON or HTML
//
// Flags:
//   --json                   Output in JSON format
//   -m, --model NAME         Model for "new"
//   -f, --format FORMAT      Export format: md (default), json, html
//   -o, --out DIR            Export directory (default: current)
//   --theme light|dark       HTML export theme
//   --stdout                 Print the export instead of writing a file
//   --raw                    Show transcripts without Markdown rendering

package cli

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

const conversationsUsage = "rigchat conversations [list|show ID|new|rm ID|truncate ID INDEX|export ID] [--json]"

// idColumn is how much of a conversation id the list shows.
const idColumn = 8

func runConversations(_ context.Context, env *Env, args *ArgParser) error {
	app, err := env.App()
	if err != nil {
		return err
	}
	jsonMode := args.BoolFlag("json")

	switch sub := args.Subcommand(); sub {
	case "", "list", "ls":
		return conversationsList(env, app, jsonMode)
	case "show", "get":
		id := args.Positional(1)
		if id == "" {
			return ErrMissingArgument("conversation id", "rigchat conversations show ID")
		}
		return conversationsShow(env, app, id, args.BoolFlag("raw"), jsonMode)
	case "new", "create":
		return conversationsNew(env, app, args.Flag("title", "t"), args.Flag("model", "m"), jsonMode)
	case "rm", "delete", "remove":
		id := args.Positional(1)
		if id == "" {
			return ErrMissingArgument("conversation id", "rigchat conversations rm ID")
		}
		return conversationsRemove(env, app, id, jsonMode)
	case "truncate":
		id := args.Positional(1)
		if id == "" || args.Positional(2) == "" {
			return ErrMissingArgument("conversation id and message index", "rigchat conversations truncate ID INDEX")
		}
		index, err := ParseIntWithValidation(args.Positional(2), "message index")
		if err != nil {
			return err
		}
		return conversationsTruncate(env, app, id, index, jsonMode)
	case "export":
		id := args.Positional(1)
		if id == "" {
			return ErrMissingArgument("conversation id", "rigchat conversations export ID [--format md|json|html]")
		}
		format, err := export.ParseFormat(args.Flag("format", "f"))
		if err != nil {
			return NewValidationError("format", args.Flag("format", "f"), err.Error())
		}
		return conversationsExport(env, app, id, format, exportTarget{
			dir:    args.Flag("out", "o"),
			theme:  args.Flag("theme"),
			stdout: args.BoolFlag("stdout"),
		}, jsonMode)
	default:
		return ErrUnknownSubcommand("conversations", sub, conversationsUsage)
	}
}

func conversationsList(env *Env, app *App, jsonMode bool) error {
	metas, err := app.Store.List()
	if err != nil {
		return err
	}

	if jsonMode {
		if metas == nil {
			metas = []model.ConversationMeta{}
		}
		return NewJSONResponse("conversations list", metas).Print(env.Stdout)
	}

	if len(metas) == 0 {
		fmt.Fprintln(env.Stdout, "No saved conversations.")
		return nil
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Conversations"))
	for _, m := range metas {
		fmt.Fprintf(env.Stdout, "  %s %s %s %s %s\n",
			DimStyle.Render(util.PadWidth(util.Prefix(m.ID, idColumn), idColumn)),
			util.PadWidth(m.Title, 40),
			util.PadWidth(fmt.Sprintf("%d msgs", m.MessageCount), 9),
			util.PadWidth(m.Model, 18),
			DimStyle.Render(humanize.Time(m.UpdatedAt)))
	}
	return nil
}

func conversationsShow(env *Env, app *App, id string, raw, jsonMode bool) error {
	conv, err := app.Store.Get(id)
	if err != nil {
		return err
	}

	if jsonMode {
		return NewJSONResponse("conversations show", conv).Print(env.Stdout)
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render(conv.Title))
	fmt.Fprintf(env.Stdout, "%s%s\n", RenderLabel("ID"), conv.ID)
	fmt.Fprintf(env.Stdout, "%s%s\n", RenderLabel("Model"), conv.Model)
	fmt.Fprintf(env.Stdout, "%s%s\n", RenderLabel("Updated"), humanize.Time(conv.UpdatedAt))
	if summary, ok := app.Store.GetSummary(conv.ID); ok {
		fmt.Fprintf(env.Stdout, "%s%s\n", RenderLabel("Summary"), util.TruncateRunes(summary, 200, "..."))
	}
	fmt.Fprintln(env.Stdout, RenderSeparator())
	printTranscript(env.Stdout, conv, newContentRenderer(env.Stdout, raw))
	return nil
}

func conversationsNew(env *Env, app *App, title, modelName string, jsonMode bool) error {
	conv, err := app.Chat.Create(title, modelName)
	if err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("conversations new", conv).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s created %s (%s)\n", RenderStatus("ok"), conv.ID, conv.Model)
	return nil
}

func conversationsRemove(env *Env, app *App, id string, jsonMode bool) error {
	existed, err := app.Store.Delete(id)
	if err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("conversations rm", map[string]any{"id": id, "existed": existed}).Print(env.Stdout)
	}
	if !existed {
		fmt.Fprintf(env.Stdout, "%s nothing stored under %s\n", RenderStatus("warn"), id)
		return nil
	}
	fmt.Fprintf(env.Stdout, "%s deleted %s\n", RenderStatus("ok"), id)
	return nil
}

func conversationsTruncate(env *Env, app *App, id string, index int, jsonMode bool) error {
	if err := app.Store.Truncate(id, index); err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("conversations truncate", map[string]any{"id": id, "kept": index + 1}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s kept messages 0..%d of %s\n", RenderStatus("ok"), index, id)
	return nil
}

type exportTarget struct {
	dir    string
	theme  string
	stdout bool
}

func conversationsExport(env *Env, app *App, id string, format export.Format, target exportTarget, jsonMode bool) error {
	conv, err := app.Store.Get(id)
	if err != nil {
		return err
	}

	opts := export.DefaultOptions()
	if target.theme != "" {
		opts.Theme = target.theme
	}
	exp, err := export.New(format, opts)
	if err != nil {
		return err
	}

	if target.stdout {
		data, err := exp.Export(conv)
		if err != nil {
			return NewCommandError("conversations", "export", err.Error(), err)
		}
		_, err = env.Stdout.Write(data)
		return err
	}

	dir := target.dir
	if dir == "" {
		dir = "."
	}
	path, err := export.ToFile(conv, exp, dir)
	if err != nil {
		return NewCommandError("conversations", "export", err.Error(), err)
	}
	if jsonMode {
		return NewJSONResponse("conversations export", map[string]any{
			"id":     conv.ID,
			"format": format,
			"path":   path,
		}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s exported %s to %s\n", RenderStatus("ok"), conv.ID, path)
	return nil
}
