// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display the effective configuration
//   path                Show the configuration file path
//   keys                List every settable key
//   get <key>           Print one value
//   set <key> <value>   Change one value in the config file
//   init [--force]      Write a config file with the defaults
//
// Examples:
//   rigchat config set ollama.default_model mistral:7b
//   rigchat config set server.port 5050
//   rigchat config set log.level debug
//   rigchat config get ollama.base_url --json
//
// "show" and "get" include environment overrides. "set" edits the file
// only, so an override from RIGCHAT_* still wins afterwards.

package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/jeranaias/rigchat/internal/config"
)

const configUsage = "rigchat config [show|path|keys|get KEY|set KEY VALUE|init]"

func runConfig(env *Env, args *ArgParser) error {
	jsonMode := args.BoolFlag("json")

	switch sub := args.Subcommand(); sub {
	case "", "show":
		return configShow(env, jsonMode)
	case "path":
		return configPath(env, jsonMode)
	case "keys":
		return configKeys(env, jsonMode)
	case "get":
		key := args.Positional(1)
		if key == "" {
			return ErrMissingArgument("key", "rigchat config get KEY")
		}
		return configGet(env, key, jsonMode)
	case "set":
		key, value := args.Positional(1), strings.Join(args.PositionalFrom(2), " ")
		if key == "" || value == "" {
			return ErrMissingArgument("key and value", "rigchat config set KEY VALUE")
		}
		return configSet(env, key, value, jsonMode)
	case "init":
		return configInit(env, args.BoolFlag("force"), jsonMode)
	default:
		return ErrUnknownSubcommand("config", sub, configUsage)
	}
}

func configShow(env *Env, jsonMode bool) error {
	cfg, err := env.Config()
	if err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("config show", cfg).Print(env.Stdout)
	}

	path, _ := config.ActivePath()
	fmt.Fprintln(env.Stdout, TitleStyle.Render("rigchat Configuration"))
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(env.Stdout, "%s%s\n", RenderLabel("File"), path)
	} else {
		fmt.Fprintf(env.Stdout, "%s%s\n", RenderLabel("File"), DimStyle.Render("(none, using defaults)"))
	}
	fmt.Fprintln(env.Stdout, RenderSeparator())
	fmt.Fprint(env.Stdout, cfg.String())
	return nil
}

func configPath(env *Env, jsonMode bool) error {
	path, err := config.ActivePath()
	if err != nil {
		return err
	}
	_, statErr := os.Stat(path)
	if jsonMode {
		return NewJSONResponse("config path", map[string]any{
			"path":   path,
			"exists": statErr == nil,
		}).Print(env.Stdout)
	}
	fmt.Fprintln(env.Stdout, path)
	return nil
}

func configKeys(env *Env, jsonMode bool) error {
	keys := config.GetAllKeys()
	if jsonMode {
		return NewJSONResponse("config keys", keys).Print(env.Stdout)
	}
	for _, k := range keys {
		fmt.Fprintln(env.Stdout, k)
	}
	return nil
}

func configGet(env *Env, key string, jsonMode bool) error {
	cfg, err := env.Config()
	if err != nil {
		return err
	}
	value, err := cfg.Get(key)
	if err != nil {
		return NewValidationError("key", key, err.Error())
	}
	if jsonMode {
		return NewJSONResponse("config get", map[string]any{"key": key, "value": value}).Print(env.Stdout)
	}
	fmt.Fprintln(env.Stdout, formatConfigValue(value))
	return nil
}

// configSet edits the file as written, without environment overrides, so
// they are not persisted by accident. Invalid results are not saved.
func configSet(env *Env, key, value string, jsonMode bool) error {
	cfg, err := loadConfigFile()
	if err != nil {
		return err
	}
	if err := cfg.Set(key, value); err != nil {
		return NewValidationError(key, value, err.Error())
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.SaveTOML(cfg, path); err != nil {
		return err
	}

	saved, _ := cfg.Get(key)
	if jsonMode {
		return NewJSONResponse("config set", map[string]any{"key": key, "value": saved, "path": path}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s %s = %s\n", RenderStatus("ok"), key, formatConfigValue(saved))
	return nil
}

func configInit(env *Env, force, jsonMode bool) error {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return NewCommandError("config", "init", path+" already exists (use --force to overwrite)", nil)
	}
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}
	if err := config.SaveTOML(config.Default(), path); err != nil {
		return err
	}
	if jsonMode {
		return NewJSONResponse("config init", map[string]any{"path": path}).Print(env.Stdout)
	}
	fmt.Fprintf(env.Stdout, "%s wrote %s\n", RenderStatus("ok"), path)
	return nil
}

// loadConfigFile reads the active config file over the defaults.
func loadConfigFile() (*config.Config, error) {
	cfg := config.Default()
	path, err := config.ActivePath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return cfg, nil
	}
	if strings.HasSuffix(path, ".json") {
		err = config.LoadJSON(cfg, path)
	} else {
		err = config.LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func formatConfigValue(v any) string {
	switch t := v.(type) {
	case []string:
		return strings.Join(t, ",")
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
