// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
)

// maxRenderWidth keeps rendered Markdown readable on wide terminals.
const maxRenderWidth = 100

// contentRenderer turns message Markdown into display text.
type contentRenderer func(string) string

func plainContent(s string) string { return s }

// newContentRenderer returns a glamour renderer when w is a colored
// terminal, and plain passthrough otherwise so pipes get the raw Markdown.
func newContentRenderer(w io.Writer, raw bool) contentRenderer {
	if raw || !isTerminal(w) || !ColorsEnabled() {
		return plainContent
	}
	width := min(terminalWidth(w)-4, maxRenderWidth)
	tr, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plainContent
	}
	return func(s string) string {
		out, err := tr.Render(s)
		if err != nil {
			return s
		}
		return strings.Trim(out, "\n")
	}
}
