// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import "github.com/mattn/go-runewidth"

// Prefix returns the first n runes of s. Counting is by rune so multi-byte
// characters are never split.
func Prefix(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// TruncateRunes cuts s to maxRunes runes and appends suffix when anything
// was removed. The suffix does not count toward maxRunes.
func TruncateRunes(s string, maxRunes int, suffix string) string {
	p := Prefix(s, maxRunes)
	if len(p) == len(s) {
		return s
	}
	return p + suffix
}

// RuneLen returns the number of runes in s.
func RuneLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

// PadWidth pads or truncates s to exactly width terminal columns.
func PadWidth(s string, width int) string {
	if runewidth.StringWidth(s) > width {
		s = runewidth.Truncate(s, width, "…")
	}
	return runewidth.FillRight(s, width)
}
