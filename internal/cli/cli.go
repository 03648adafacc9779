// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.3.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdHelp Command = iota
	CmdServe
	CmdChat
	CmdModels
	CmdConversations
	CmdConfig
	CmdDoctor
	CmdVersion
	CmdUnknown
)

// commandNames maps names and aliases to commands.
var commandNames = map[string]Command{
	"help":          CmdHelp,
	"serve":         CmdServe,
	"server":        CmdServe,
	"chat":          CmdChat,
	"models":        CmdModels,
	"model":         CmdModels,
	"conversations": CmdConversations,
	"conversation":  CmdConversations,
	"conv":          CmdConversations,
	"config":        CmdConfig,
	"doctor":        CmdDoctor,
	"diag":          CmdDoctor,
	"version":       CmdVersion,
}

const usageText = `rigchat - local chat over Ollama

Usage:
  rigchat <command> [arguments]

Commands:
  serve                          Run the HTTP API for the desktop shell
  chat                           Interactive chat in the terminal
  models [list|catalog|pull|rm]  Manage installed models
  conversations [list|show|new|rm|truncate]
                                 Manage saved conversations
  config [show|path|get|set|init]
                                 Inspect or change configuration
  doctor                         Check Ollama, models and storage
  version                        Print version information
  help                           Show this help

Examples:
  rigchat serve --port 5001
  rigchat chat --model mistral:7b
  rigchat models pull llama3.2:1b
  rigchat conversations show 3f2a --json
  rigchat config set ollama.default_model phi3:mini

Most listing commands accept --json.

Version: %s
`

// Parse maps argv (without the program name) to a command and its
// arguments. No arguments means help.
func Parse(argv []string) (Command, *ArgParser) {
	if len(argv) == 0 {
		return CmdHelp, NewArgParser(nil)
	}
	name := strings.ToLower(argv[0])
	switch name {
	case "-h", "--help":
		return CmdHelp, NewArgParser(argv[1:])
	case "-v", "--version":
		return CmdVersion, NewArgParser(argv[1:])
	}
	cmd, ok := commandNames[name]
	if !ok {
		return CmdUnknown, NewArgParser(argv)
	}
	return cmd, NewArgParser(argv[1:])
}

// Run executes argv and returns the process exit code.
func Run(ctx context.Context, env *Env, argv []string) int {
	defer env.Close()

	cmd, args := Parse(argv)
	err := dispatch(ctx, env, cmd, args)
	if err != nil {
		DisplayError(env.Stderr, err, args.BoolFlag("json"))
	}
	return GetExitCode(err)
}

func dispatch(ctx context.Context, env *Env, cmd Command, args *ArgParser) error {
	switch cmd {
	case CmdServe:
		return runServe(ctx, env, args)
	case CmdChat:
		return runChat(ctx, env, args)
	case CmdModels:
		return runModels(ctx, env, args)
	case CmdConversations:
		return runConversations(ctx, env, args)
	case CmdConfig:
		return runConfig(env, args)
	case CmdDoctor:
		return runDoctor(ctx, env, args)
	case CmdVersion:
		return runVersion(env, args)
	case CmdUnknown:
		fmt.Fprintf(env.Stdout, usageText, Version)
		return &UsageError{Message: "unknown command: " + args.Positional(0)}
	default:
		fmt.Fprintf(env.Stdout, usageText, Version)
		return nil
	}
}

func runVersion(env *Env, args *ArgParser) error {
	if args.BoolFlag("json") {
		return NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "rigchat version %s\n", Version)
	fmt.Fprintf(env.Stdout, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(env.Stdout, "  Build date: %s\n", BuildDate)
	return nil
}
