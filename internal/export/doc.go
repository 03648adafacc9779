// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders conversations as Markdown, JSON or standalone HTML.
//
// HTML output converts message Markdown with goldmark and highlights fenced
// code blocks with chroma, inline styles only, so the file has no external
// assets. Raw HTML inside messages is dropped, never passed through.
//
//	exp, err := export.New(export.FormatHTML, nil)
//	path, err := export.ToFile(conv, exp, ".")
package export
