// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"os"
	"sync"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	// fallbackWidth is used when the output is not a terminal.
	fallbackWidth = 80

	// minTableWidth is the narrowest width tables are laid out for.
	minTableWidth = 40
)

// fder is satisfied by *os.File.
type fder interface {
	Fd() uintptr
}

// isTerminal reports whether v is a file attached to a terminal. Buffers
// and pipes used by tests and redirection are not.
func isTerminal(v any) bool {
	f, ok := v.(fder)
	return ok && term.IsTerminal(int(f.Fd()))
}

// IsTTY reports whether stdin is a terminal.
func IsTTY() bool {
	return isTerminal(os.Stdin)
}

// terminalWidth returns the column count of v, never below minTableWidth.
func terminalWidth(v any) int {
	f, ok := v.(fder)
	if !ok {
		return fallbackWidth
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return fallbackWidth
	}
	return max(width, minTableWidth)
}

// colorsEnabled follows https://no-color.org/: NO_COLOR wins, then
// FORCE_COLOR, then whether stdout is a terminal.
var colorsEnabled = sync.OnceValue(func() bool {
	switch {
	case os.Getenv("NO_COLOR") != "":
		return false
	case os.Getenv("FORCE_COLOR") != "":
		return true
	default:
		return isTerminal(os.Stdout)
	}
})

// ColorsEnabled reports whether styled output should be used.
func ColorsEnabled() bool {
	return colorsEnabled()
}

// colorProfile is what lipgloss renders with.
func colorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
