// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package context

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

type summaryMap map[string]string

func (m summaryMap) GetSummary(id string) (string, bool) {
	s, ok := m[id]
	return s, ok
}

func history(n int) []model.Message {
	msgs := make([]model.Message, n)
	for i := range msgs {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		msgs[i] = model.NewMessage(role, fmt.Sprintf("m%d", i))
	}
	return msgs
}

func newBuilder(t *testing.T, src SummarySource) *Builder {
	t.Helper()
	b, err := NewBuilder(DefaultConfig(), src)
	require.NoError(t, err)
	return b
}

// =============================================================================
// CONFIG
// =============================================================================

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"defaults", DefaultConfig(), false},
		{"equal", Config{MaxRecentMessages: 10, SummaryThreshold: 10}, false},
		{"threshold below window", Config{MaxRecentMessages: 30, SummaryThreshold: 20}, true},
		{"zero window", Config{MaxRecentMessages: 0, SummaryThreshold: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	_, err := NewBuilder(Config{MaxRecentMessages: 30, SummaryThreshold: 20}, nil)
	assert.Error(t, err)
}

// =============================================================================
// BUILD CONTEXT
// =============================================================================

func TestBuildContext_ShortHistoryPassesThrough(t *testing.T) {
	b := newBuilder(t, summaryMap{"c": "ignored"})
	msgs := history(5)

	got := b.BuildContext("c", msgs)
	assert.Equal(t, msgs, got)
}

func TestBuildContext_WindowLength(t *testing.T) {
	b := newBuilder(t, summaryMap{})
	for _, n := range []int{0, 1, 29, 30, 31, 40, 41, 100} {
		msgs := history(n)
		got := b.BuildContext("c", msgs)
		want := min(n, 30)
		assert.Len(t, got, want, "n=%d", n)
		if n > 0 {
			assert.Equal(t, msgs[n-1], got[len(got)-1], "last message preserved n=%d", n)
		}
	}
}

func TestBuildContext_SummaryOnlyAboveThreshold(t *testing.T) {
	b := newBuilder(t, summaryMap{"c": "earlier talk"})

	// Exactly at threshold: no summary.
	got := b.BuildContext("c", history(40))
	assert.Len(t, got, 30)
	assert.NotEqual(t, model.RoleSystem, got[0].Role)

	got = b.BuildContext("c", history(41))
	require.Len(t, got, 31)
	assert.Equal(t, model.RoleSystem, got[0].Role)
	assert.Equal(t, "Previous conversation summary: earlier talk", got[0].Content)
	assert.Equal(t, "m11", got[1].Content)
	assert.Equal(t, "m40", got[30].Content)
}

func TestBuildContext_NoStoredSummary(t *testing.T) {
	b := newBuilder(t, summaryMap{})
	got := b.BuildContext("c", history(50))
	assert.Len(t, got, 30)
	assert.Equal(t, "m20", got[0].Content)
}

func TestBuildContext_DoesNotMutateOrAlias(t *testing.T) {
	b := newBuilder(t, summaryMap{})
	msgs := history(35)
	snapshot := append([]model.Message(nil), msgs...)

	got := b.BuildContext("c", msgs)
	got[0].Content = "changed"

	assert.Equal(t, snapshot, msgs)
}

func TestShouldSummarize(t *testing.T) {
	b := newBuilder(t, nil)
	assert.False(t, b.ShouldSummarize(history(40)))
	assert.True(t, b.ShouldSummarize(history(41)))
}

// =============================================================================
// SUMMARY
// =============================================================================

func msg(role model.Role, content string) model.Message {
	return model.Message{Role: role, Content: content}
}

func TestCreateSummary(t *testing.T) {
	long := strings.Repeat("x", 120)
	tests := []struct {
		name string
		msgs []model.Message
		want string
	}{
		{
			name: "empty",
			msgs: nil,
			want: "Conversation summary",
		},
		{
			name: "short user messages ignored",
			msgs: []model.Message{msg(model.RoleUser, "hi"), msg(model.RoleUser, "  exactly10c  ")},
			want: "Conversation summary",
		},
		{
			name: "first sentence",
			msgs: []model.Message{msg(model.RoleUser, "How do I bake bread. It keeps failing.")},
			want: "How do I bake bread",
		},
		{
			name: "no period uses first 80",
			msgs: []model.Message{msg(model.RoleUser, long)},
			want: strings.Repeat("x", 80),
		},
		{
			name: "sentence capped at 100",
			msgs: []model.Message{msg(model.RoleUser, long+".")},
			want: strings.Repeat("x", 100),
		},
		{
			name: "assistant fills in",
			msgs: []model.Message{
				msg(model.RoleUser, "Tell me about Go channels"),
				msg(model.RoleAssistant, "Channels are typed conduits\nsecond line"),
				msg(model.RoleAssistant, "short reply"),
			},
			want: "Tell me about Go channels | Channels are typed conduits",
		},
		{
			name: "assistant skipped with three user parts",
			msgs: []model.Message{
				msg(model.RoleUser, "first question here"),
				msg(model.RoleAssistant, "a long enough assistant answer"),
				msg(model.RoleUser, "second question here"),
				msg(model.RoleUser, "third question here"),
			},
			want: "first question here | second question here | third question here",
		},
		{
			name: "only first five user messages",
			msgs: []model.Message{
				msg(model.RoleUser, "question number 1"),
				msg(model.RoleUser, "question number 2"),
				msg(model.RoleUser, "question number 3"),
				msg(model.RoleUser, "question number 4"),
				msg(model.RoleUser, "question number 5"),
				msg(model.RoleUser, "question number 6"),
			},
			want: "question number 1 | question number 2 | question number 3 | question number 4 | question number 5",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractiveSummarizer{}.Summarize(tt.msgs))
		})
	}
}

func TestCreateSummary_MessageCountSuffix(t *testing.T) {
	msgs := []model.Message{msg(model.RoleUser, "What is the weather like today?")}
	for i := 0; i < 10; i++ {
		msgs = append(msgs, msg(model.RoleAssistant, "ok"))
	}
	b := newBuilder(t, nil)
	assert.Equal(t, "What is the weather like today? (11 messages)", b.CreateSummary(msgs))
	assert.Equal(t, "What is the weather like today?", b.CreateSummary(msgs[:10]))
}

func TestCreateSummary_Deterministic(t *testing.T) {
	b := newBuilder(t, nil)
	msgs := history(60)
	msgs[0].Content = "Please explain the history of Rome. In detail."
	first := b.CreateSummary(msgs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, b.CreateSummary(msgs))
	}
}

func TestCreateSummary_RuneCounting(t *testing.T) {
	content := strings.Repeat("é", 90)
	got := ExtractiveSummarizer{}.Summarize([]model.Message{msg(model.RoleUser, content)})
	assert.Equal(t, strings.Repeat("é", 80), got)
}

type fixedSummarizer string

func (f fixedSummarizer) Summarize([]model.Message) string { return string(f) }

func TestWithSummarizer(t *testing.T) {
	b := newBuilder(t, nil).WithSummarizer(fixedSummarizer("custom"))
	assert.Equal(t, "custom", b.CreateSummary(history(3)))
}

// =============================================================================
// STATS
// =============================================================================

func TestStats(t *testing.T) {
	b := newBuilder(t, summaryMap{"c": "s"})
	msgs := history(45)
	built := b.BuildContext("c", msgs)

	st := b.Stats(msgs, built)
	assert.Equal(t, 45, st.TotalMessages)
	assert.Equal(t, 31, st.WindowMessages)
	assert.Equal(t, 15, st.DroppedMessages)
	assert.True(t, st.HasSummary)
	assert.False(t, st.OverBudget)

	short := history(3)
	st = b.Stats(short, b.BuildContext("c", short))
	assert.False(t, st.HasSummary)
	assert.Zero(t, st.DroppedMessages)
}
