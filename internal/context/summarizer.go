// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"fmt"
	"strings"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/util"
)

// Summarizer produces summary text for a full message history.
type Summarizer interface {
	Summarize(messages []model.Message) string
}

// Extractive summary limits. Lengths are in runes.
const (
	summaryUserMessages      = 5
	summaryUserMinLen        = 10
	summaryUserFallbackLen   = 80
	summaryUserPartMax       = 100
	summaryAssistantMessages = 2
	summaryAssistantMinLen   = 20
	summaryAssistantPartMax  = 80
	summaryMinParts          = 3
	summaryMaxParts          = 5
	summaryCountAfter        = 10
	summarySeparator         = " | "
	summaryEmpty             = "Conversation summary"
)

// ExtractiveSummarizer builds a summary from the opening user questions,
// topped up with the first assistant replies when the user side is thin.
// It is pure and deterministic: equal inputs give equal output.
type ExtractiveSummarizer struct{}

// Summarize implements Summarizer.
func (ExtractiveSummarizer) Summarize(messages []model.Message) string {
	var parts []string

	users := 0
	for _, m := range messages {
		if m.Role != model.RoleUser {
			continue
		}
		if users == summaryUserMessages {
			break
		}
		users++

		content := strings.TrimSpace(m.Content)
		if util.RuneLen(content) <= summaryUserMinLen {
			continue
		}
		var part string
		if i := strings.IndexByte(content, '.'); i >= 0 {
			part = content[:i]
		} else {
			part = util.Prefix(content, summaryUserFallbackLen)
		}
		parts = append(parts, util.Prefix(part, summaryUserPartMax))
	}

	if len(parts) < summaryMinParts {
		assistants := 0
		for _, m := range messages {
			if m.Role != model.RoleAssistant {
				continue
			}
			if assistants == summaryAssistantMessages {
				break
			}
			assistants++

			content := strings.TrimSpace(m.Content)
			if util.RuneLen(content) <= summaryAssistantMinLen {
				continue
			}
			firstLine, _, _ := strings.Cut(content, "\n")
			parts = append(parts, util.Prefix(firstLine, summaryAssistantPartMax))
		}
	}

	summary := summaryEmpty
	if len(parts) > 0 {
		if len(parts) > summaryMaxParts {
			parts = parts[:summaryMaxParts]
		}
		summary = strings.Join(parts, summarySeparator)
	}

	if len(messages) > summaryCountAfter {
		summary += fmt.Sprintf(" (%d messages)", len(messages))
	}
	return summary
}
