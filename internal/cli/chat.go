// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// Command: chat
// Short:   Chat with a local model in the terminal
//
// Examples:
//   rigchat chat                        New conversation, default model
//   rigchat chat --model mistral:7b     Use a specific model
//   rigchat chat -c 3f2a9c...           Continue a saved conversation
//   echo "hi" | rigchat chat            One turn from stdin
//
// Flags:
//   -m, --model NAME           Model for this session's turns
//   -c, --conversation ID      Continue an existing conversation
//
// Interactive Commands:
//   /help               Show available commands
//   /new                Start a new conversation
//   /model [name]       Show or switch model
//   /history            Show the conversation so far
//   /quit               Exit
//   Ctrl+C              Cancel the reply being generated
//   Ctrl+D              Exit

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/chat"
	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// INPUT
// =============================================================================

// lineReader yields one line of user input per call and io.EOF at the end.
type lineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// linerReader is the interactive reader with history.
type linerReader struct {
	line        *liner.State
	historyFile string
}

func newLinerReader() *linerReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &linerReader{line: line}
	if dir, err := config.ConfigDir(); err == nil {
		r.historyFile = filepath.Join(dir, "chat_history")
		if f, err := os.Open(r.historyFile); err == nil {
			line.ReadHistory(f)
			f.Close()
		}
	}
	return r
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history with owner-only permissions and restores the terminal.
func (r *linerReader) Close() error {
	defer r.line.Close()
	if r.historyFile == "" || config.EnsureConfigDir() != nil {
		return nil
	}
	f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, err = r.line.WriteHistory(f)
	return err
}

// scanReader reads piped input without prompting.
type scanReader struct {
	sc *bufio.Scanner
}

func newScanReader(in io.Reader) *scanReader {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	return &scanReader{sc: sc}
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}
	if err := r.sc.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

func (r *scanReader) Close() error { return nil }

// =============================================================================
// SESSION
// =============================================================================

// chatSession is the state of one "rigchat chat" run.
type chatSession struct {
	app            *App
	out, errOut    io.Writer
	conversationID string
	model          string
	turns          int
}

func runChat(ctx context.Context, env *Env, args *ArgParser) error {
	app, err := env.App()
	if err != nil {
		return err
	}

	s := &chatSession{
		app:    app,
		out:    env.Stdout,
		errOut: env.Stderr,
		model:  args.Flag("model", "m"),
	}

	interactive := env.Stdin == os.Stdin && IsTTY()

	if id := args.Flag("conversation", "c"); id != "" {
		conv, err := app.Store.Get(id)
		if err != nil {
			return err
		}
		s.conversationID = conv.ID
		if interactive {
			fmt.Fprintf(s.out, "%s %s (%d messages)\n", DimStyle.Render("Continuing"), conv.Title, conv.Len())
		}
	}

	if !app.Ollama.CheckHealth(ctx) {
		return NewCommandError("chat", "start", "Ollama is not running. Start it with: ollama serve", nil)
	}

	var reader lineReader
	if interactive {
		reader = newLinerReader()
		s.printWelcome()
	} else {
		reader = newScanReader(env.Stdin)
	}
	defer reader.Close()

	for {
		input, err := reader.Prompt(PromptStyle.Render("you> "))
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if !s.handleSlashCommand(input) {
				break
			}
			continue
		}

		if err := s.send(ctx, input); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(s.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		}
	}

	if interactive {
		s.printExitSummary()
	}
	return nil
}

// send runs one turn, printing fragments as they arrive. The first message
// of a session creates the conversation so a cancelled first turn is still
// continued by the next one.
func (s *chatSession) send(ctx context.Context, input string) error {
	if s.conversationID == "" {
		conv, err := s.app.Chat.Create("", s.model)
		if err != nil {
			return err
		}
		s.conversationID = conv.ID
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Ctrl+C during a reply cancels the turn, not the program.
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	defer signal.Stop(sig)
	go func() {
		select {
		case <-sig:
			cancel()
		case <-turnCtx.Done():
		}
	}()

	fmt.Fprint(s.out, RenderRole(model.RoleAssistant)+" ")
	err := s.app.Chat.Send(turnCtx, chat.Request{
		ConversationID: s.conversationID,
		Message:        input,
		Model:          s.model,
	}, func(ev chat.Event) error {
		switch {
		case ev.Failed():
			fmt.Fprintln(s.out)
			fmt.Fprintf(s.errOut, "%s %s\n", ErrorStyle.Render("[Error]"), ev.Error)
		case ev.Done:
			fmt.Fprintln(s.out)
			s.turns++
		default:
			_, err := io.WriteString(s.out, ev.Content)
			return err
		}
		return nil
	})

	if turnCtx.Err() != nil && ctx.Err() == nil {
		fmt.Fprintln(s.out)
		fmt.Fprintln(s.errOut, WarningStyle.Render("[Cancelled]"))
		return nil
	}
	return err
}

// handleSlashCommand runs a /command and reports whether to keep going.
func (s *chatSession) handleSlashCommand(input string) bool {
	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case "/quit", "/exit", "/q":
		return false

	case "/help", "/h":
		fmt.Fprintln(s.out, "/new             start a new conversation")
		fmt.Fprintln(s.out, "/model [name]    show or switch model")
		fmt.Fprintln(s.out, "/history         show this conversation")
		fmt.Fprintln(s.out, "/quit            exit")

	case "/new":
		s.conversationID = ""
		fmt.Fprintln(s.out, DimStyle.Render("Started a new conversation."))

	case "/model":
		if len(fields) > 1 {
			s.model = fields[1]
		}
		fmt.Fprintf(s.out, "%s %s\n", RenderLabel("Model"), s.currentModel())

	case "/history":
		s.printHistory()

	default:
		fmt.Fprintf(s.errOut, "%s unknown command %s (try /help)\n", WarningStyle.Render("[?]"), fields[0])
	}
	return true
}

func (s *chatSession) currentModel() string {
	if s.model != "" {
		return s.model
	}
	if s.conversationID != "" {
		if conv, err := s.app.Store.Get(s.conversationID); err == nil && conv.Model != "" {
			return conv.Model
		}
	}
	return s.app.Chat.DefaultModel()
}

func (s *chatSession) printHistory() {
	if s.conversationID == "" {
		fmt.Fprintln(s.out, DimStyle.Render("No messages yet."))
		return
	}
	conv, err := s.app.Store.Get(s.conversationID)
	if err != nil {
		fmt.Fprintf(s.errOut, "%s %v\n", ErrorStyle.Render("[Error]"), err)
		return
	}
	printTranscript(s.out, conv, newContentRenderer(s.out, false))
}

func (s *chatSession) printWelcome() {
	fmt.Fprintln(s.out, TitleStyle.Render("rigchat"))
	fmt.Fprintf(s.out, "%s %s\n", RenderLabel("Model"), s.currentModel())
	fmt.Fprintln(s.out, DimStyle.Render("Type /help for commands, Ctrl+C to stop a reply, Ctrl+D to exit."))
	fmt.Fprintln(s.out)
}

func (s *chatSession) printExitSummary() {
	fmt.Fprintln(s.out)
	if s.conversationID == "" {
		return
	}
	fmt.Fprintf(s.out, "%s %d turn(s) saved to %s\n", DimStyle.Render("Goodbye."), s.turns, s.conversationID)
}

// printTranscript writes every message with a role label.
func printTranscript(w io.Writer, conv *model.Conversation, render contentRenderer) {
	for _, m := range conv.Messages {
		content := m.Content
		if m.Role == model.RoleAssistant {
			content = render(content)
		}
		fmt.Fprintf(w, "%s %s\n\n", RenderRole(m.Role), content)
	}
}
