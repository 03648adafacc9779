// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer"
	gmutil "github.com/yuin/goldmark/util"

	"github.com/jeranaias/rigchat/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter exports conversations to a single self-contained HTML page.
type HTMLExporter struct {
	options *Options
	md      goldmark.Markdown
}

// NewHTMLExporter builds the Markdown pipeline for the configured theme.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	styleName := "monokai"
	if opts.Theme == "light" {
		styleName = "github"
	}
	style := chromaStyles.Get(styleName)
	if style == nil {
		style = chromaStyles.Fallback
	}

	md := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(
			renderer.WithNodeRenderers(gmutil.Prioritized(&codeBlockRenderer{style: style}, 200)),
		),
	)
	return &HTMLExporter{options: opts, md: md}
}

type htmlMessage struct {
	Role      string
	Label     string
	Timestamp string
	Body      template.HTML
}

type htmlPage struct {
	Title    string
	Theme    string
	Metadata bool
	Model    string
	Created  string
	Updated  string
	Count    int
	Exported string
	Messages []htmlMessage
}

// Export converts a conversation to HTML format.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	page := htmlPage{
		Title:    conv.Title,
		Theme:    e.options.Theme,
		Metadata: e.options.IncludeMetadata,
		Model:    conv.Model,
		Created:  formatTimestamp(conv.CreatedAt),
		Updated:  formatTimestamp(conv.UpdatedAt),
		Count:    len(conv.Messages),
		Exported: e.options.now().Format(time.RFC3339),
	}
	if page.Theme != "light" {
		page.Theme = "dark"
	}

	for _, msg := range conv.Messages {
		body, err := e.renderMarkdown(msg.Content)
		if err != nil {
			return nil, fmt.Errorf("render message: %w", err)
		}
		hm := htmlMessage{
			Role:  string(msg.Role),
			Label: msg.Role.DisplayName(),
			Body:  body,
		}
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			hm.Timestamp = formatShortTimestamp(msg.Timestamp)
		}
		page.Messages = append(page.Messages, hm)
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, page); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// renderMarkdown converts message Markdown. Raw HTML in the source is
// omitted by goldmark's default renderer.
func (e *HTMLExporter) renderMarkdown(src string) (template.HTML, error) {
	var buf bytes.Buffer
	if err := e.md.Convert([]byte(src), &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (e *HTMLExporter) FileExtension() string { return ".html" }

func (e *HTMLExporter) MimeType() string { return "text/html; charset=utf-8" }

// =============================================================================
// CODE HIGHLIGHTING
// =============================================================================

// codeBlockRenderer replaces goldmark's fenced code output with chroma
// highlighting using inline styles.
type codeBlockRenderer struct {
	style *chroma.Style
}

func (r *codeBlockRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(ast.KindFencedCodeBlock, r.renderFencedCodeBlock)
}

func (r *codeBlockRenderer) renderFencedCodeBlock(w gmutil.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.FencedCodeBlock)
	lang := string(n.Language(source))

	var code strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		code.Write(seg.Value(source))
	}

	_, _ = w.WriteString(`<div class="code-block">`)
	if lang != "" {
		_, _ = w.WriteString(`<div class="code-lang">` + template.HTMLEscapeString(lang) + `</div>`)
	}
	if err := highlight(w, code.String(), lang, r.style); err != nil {
		// Plain escaped fallback.
		_, _ = w.WriteString("<pre><code>" + template.HTMLEscapeString(code.String()) + "</code></pre>")
	}
	_, _ = w.WriteString("</div>\n")
	return ast.WalkSkipChildren, nil
}

func highlight(w gmutil.BufWriter, code, lang string, style *chroma.Style) error {
	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return err
	}
	formatter := chromahtml.New(chromahtml.WithClasses(false), chromahtml.TabWidth(4))

	var buf bytes.Buffer
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return err
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// =============================================================================
// PAGE TEMPLATE
// =============================================================================

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en" class="{{.Theme}}">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<meta name="generator" content="rigchat">
<title>{{.Title}}</title>
<style>
:root { --bg: #1e1e2e; --fg: #cdd6f4; --muted: #7f849c; --surface: #313244; --user: #89b4fa; --assistant: #a6e3a1; --system: #f9e2af; }
html.light { --bg: #ffffff; --fg: #1e1e2e; --muted: #6c6f85; --surface: #eff1f5; --user: #1e66f5; --assistant: #40a02b; --system: #df8e1d; }
body { margin: 0 auto; max-width: 860px; padding: 2rem 1rem; background: var(--bg); color: var(--fg); font-family: system-ui, sans-serif; line-height: 1.55; }
header { border-bottom: 1px solid var(--surface); margin-bottom: 1.5rem; }
header dl { display: grid; grid-template-columns: max-content 1fr; gap: .2rem 1rem; color: var(--muted); font-size: .9rem; }
.message { margin: 1rem 0; padding: .75rem 1rem; border-radius: 8px; background: var(--surface); border-left: 4px solid var(--muted); }
.message.user { border-left-color: var(--user); }
.message.assistant { border-left-color: var(--assistant); }
.message.system { border-left-color: var(--system); }
.role { font-weight: 600; }
.time { color: var(--muted); font-size: .8rem; margin-left: .5rem; }
.code-block { margin: .75rem 0; }
.code-lang { color: var(--muted); font-size: .75rem; text-transform: uppercase; }
pre { padding: .75rem; border-radius: 6px; overflow-x: auto; }
code { font-family: ui-monospace, monospace; font-size: .9em; }
footer { margin-top: 2rem; color: var(--muted); font-size: .8rem; text-align: center; }
</style>
</head>
<body>
<header>
<h1>{{.Title}}</h1>
{{- if .Metadata}}
<dl>
<dt>Model</dt><dd>{{.Model}}</dd>
<dt>Created</dt><dd>{{.Created}}</dd>
<dt>Updated</dt><dd>{{.Updated}}</dd>
<dt>Messages</dt><dd>{{.Count}}</dd>
</dl>
{{- end}}
</header>
<main>
{{- range .Messages}}
<section class="message {{.Role}}">
<div><span class="role">{{.Label}}</span>{{if .Timestamp}}<span class="time">{{.Timestamp}}</span>{{end}}</div>
<div class="content">{{.Body}}</div>
</section>
{{- end}}
</main>
<footer>Exported by rigchat on {{.Exported}}</footer>
</body>
</html>
`))
