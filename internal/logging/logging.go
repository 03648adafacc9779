// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging builds the zerolog logger shared by every component.
//
// Components take a zerolog.Logger in their constructors, add a "component"
// field and log with an "event" field naming what happened:
//
//	log.Info().Str("event", "SERVER_START").Str("addr", addr).Send()
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/jeranaias/rigchat/internal/config"
)

// New returns a logger writing to w (stderr when nil). Format "console"
// produces human-readable lines, colored when w is a terminal; anything
// else produces JSON. The level is applied process-wide so SetLevel can
// change it later.
func New(cfg config.LogConfig, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	zerolog.TimeFieldFormat = time.RFC3339
	_ = SetLevel(cfg.Level)

	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: "15:04:05",
			NoColor:    !isTerminal(w),
		}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// SetLevel changes the process-wide minimum level. An empty level means
// info.
func SetLevel(level string) error {
	if level == "" {
		level = config.DefaultLogLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// Level returns the current process-wide level.
func Level() string {
	return zerolog.GlobalLevel().String()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
