// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testOptions() *Options {
	opts := DefaultOptions()
	opts.Now = func() time.Time { return fixedNow }
	return opts
}

func testConversation() *model.Conversation {
	created := time.Date(2025, 2, 28, 9, 30, 0, 0, time.UTC)
	return &model.Conversation{
		ID:    "c1",
		Title: "Sorting in Go",
		Model: "llama3.2:3b",
		Messages: []model.Message{
			{Role: model.RoleUser, Content: "How do I sort a slice?", Timestamp: created},
			{Role: model.RoleAssistant, Content: "Use `slices.Sort`:\n\n```go\nslices.Sort(xs)\n```", Timestamp: created.Add(time.Minute)},
		},
		CreatedAt: created,
		UpdatedAt: created.Add(time.Minute),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMarkdown, false},
		{"md", FormatMarkdown, false},
		{"Markdown", FormatMarkdown, false},
		{".json", FormatJSON, false},
		{"htm", FormatHTML, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNew_Extensions(t *testing.T) {
	for format, ext := range map[Format]string{FormatMarkdown: ".md", FormatJSON: ".json", FormatHTML: ".html"} {
		exp, err := New(format, nil)
		require.NoError(t, err)
		assert.Equal(t, ext, exp.FileExtension())
		assert.NotEmpty(t, exp.MimeType())
	}
	_, err := New("pdf", nil)
	assert.Error(t, err)
}

func TestExport_EmptyConversation(t *testing.T) {
	conv := testConversation()
	conv.Messages = nil

	for _, format := range []Format{FormatMarkdown, FormatHTML} {
		exp, _ := New(format, testOptions())
		_, err := exp.Export(conv)
		assert.ErrorIs(t, err, ErrEmptyConversation, "format %s", format)
	}
}

// =============================================================================
// MARKDOWN
// =============================================================================

func TestMarkdownExport(t *testing.T) {
	exp, _ := New(FormatMarkdown, testOptions())
	out, err := exp.Export(testConversation())
	require.NoError(t, err)
	s := string(out)

	assert.True(t, strings.HasPrefix(s, "---\n"), "frontmatter first")
	assert.Contains(t, s, `model: "llama3.2:3b"`)
	assert.Contains(t, s, "messages: 2")
	assert.Contains(t, s, "exported: 2025-03-01T12:00:00Z")
	assert.Contains(t, s, "# Sorting in Go")
	assert.Contains(t, s, "### You")
	assert.Contains(t, s, "### Assistant")
	assert.Contains(t, s, "```go\nslices.Sort(xs)\n```")
}

func TestMarkdownExport_NoMetadata(t *testing.T) {
	opts := testOptions()
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false
	exp, _ := New(FormatMarkdown, opts)

	out, err := exp.Export(testConversation())
	require.NoError(t, err)
	assert.False(t, strings.HasPrefix(string(out), "---"))
	assert.NotContains(t, string(out), "<sub>")
}

func TestMarkdownExport_YAMLNewlineInjection(t *testing.T) {
	conv := testConversation()
	conv.Title = "Innocent\nadmin: true"

	exp, _ := New(FormatMarkdown, testOptions())
	out, err := exp.Export(conv)
	require.NoError(t, err)

	front := strings.SplitN(string(out), "---\n", 3)[1]
	for _, line := range strings.Split(front, "\n") {
		assert.False(t, strings.HasPrefix(line, "admin:"), "title injected a key: %q", line)
	}
	assert.Contains(t, front, `title: "Innocent\nadmin: true"`)
}

func TestEscapeYAML(t *testing.T) {
	assert.Equal(t, "plain", escapeYAML("plain"))
	assert.Equal(t, `"a: b"`, escapeYAML("a: b"))
	assert.Equal(t, `"say \"hi\""`, escapeYAML(`say "hi"`))
	assert.Equal(t, `" padded"`, escapeYAML(" padded"))
}

// =============================================================================
// JSON
// =============================================================================

func TestJSONExport_RoundTrip(t *testing.T) {
	conv := testConversation()
	exp, _ := New(FormatJSON, nil)
	out, err := exp.Export(conv)
	require.NoError(t, err)

	var back model.Conversation
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, conv.ID, back.ID)
	assert.Equal(t, conv.Title, back.Title)
	require.Len(t, back.Messages, 2)
	assert.Equal(t, model.RoleAssistant, back.Messages[1].Role)
}

// =============================================================================
// HTML
// =============================================================================

func TestHTMLExport(t *testing.T) {
	exp, _ := New(FormatHTML, testOptions())
	out, err := exp.Export(testConversation())
	require.NoError(t, err)
	s := string(out)

	assert.Contains(t, s, "<!DOCTYPE html>")
	assert.Contains(t, s, `<html lang="en" class="dark">`)
	assert.Contains(t, s, "<title>Sorting in Go</title>")
	assert.Contains(t, s, `class="message assistant"`)
	assert.Contains(t, s, "<code>slices.Sort</code>")
	assert.Contains(t, s, `<div class="code-lang">go</div>`)
	// chroma inline styles, no stylesheet classes
	assert.Contains(t, s, `style="`)
}

func TestHTMLExport_LightTheme(t *testing.T) {
	opts := testOptions()
	opts.Theme = "light"
	exp, _ := New(FormatHTML, opts)
	out, err := exp.Export(testConversation())
	require.NoError(t, err)
	assert.Contains(t, string(out), `class="light"`)
}

func TestHTMLExport_EscapesCodeLanguage(t *testing.T) {
	conv := testConversation()
	conv.Messages[1].Content = "```<script>alert(1)</script>\nx := 1\n```"

	exp, _ := New(FormatHTML, testOptions())
	out, err := exp.Export(conv)
	require.NoError(t, err)
	s := string(out)

	assert.NotContains(t, s, "<script>alert(1)</script>")
	assert.Contains(t, s, "&lt;script&gt;")
}

func TestHTMLExport_DropsRawHTML(t *testing.T) {
	conv := testConversation()
	conv.Title = "<img src=x onerror=alert(1)>"
	conv.Messages[0].Content = "hello <script>alert('xss')</script> world"

	exp, _ := New(FormatHTML, testOptions())
	out, err := exp.Export(conv)
	require.NoError(t, err)
	s := string(out)

	assert.NotContains(t, s, "<script>alert('xss')</script>")
	assert.NotContains(t, s, "<img src=x")
	assert.Contains(t, s, "&lt;img src=x onerror=alert(1)&gt;")
}

func TestHTMLExport_CodeContentEscaped(t *testing.T) {
	conv := testConversation()
	conv.Messages[1].Content = "```html\n<script>steal()</script>\n```"

	exp, _ := New(FormatHTML, testOptions())
	out, err := exp.Export(conv)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "<script>steal()</script>")
}

// =============================================================================
// FILES
// =============================================================================

func TestSanitizeFilename(t *testing.T) {
	tests := map[string]string{
		"":                   "conversation",
		"hello world":        "hello_world",
		`a/b\c:d*e?f"g<h>i|`: "a-b-c-d-e-f-g-h-i-",
		"tab\there":          "tab_here",
	}
	for in, want := range tests {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
	long := strings.Repeat("x", 80)
	assert.Len(t, sanitizeFilename(long), 50)
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	exp, _ := New(FormatMarkdown, testOptions())

	path, err := ToFile(testConversation(), exp, dir)
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))
	assert.True(t, strings.HasPrefix(filepath.Base(path), "conversation_Sorting_in_Go_"))
	assert.Equal(t, ".md", filepath.Ext(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Sorting in Go")
}
