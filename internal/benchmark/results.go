// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// RESULT TYPES
// =============================================================================

// Status is the outcome of a case.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
)

// CaseResult is the measurement of one case.
type CaseResult struct {
	Name         string        `json:"name"`
	Kind         Kind          `json:"kind"`
	Status       Status        `json:"status"`
	Duration     time.Duration `json:"duration"`
	TTFT         time.Duration `json:"ttft"`
	TokenCount   int           `json:"token_count"`
	TokensPerSec float64       `json:"tokens_per_sec"`
	QualityScore float64       `json:"quality_score"`
	Response     string        `json:"response,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// Result is a full suite run against one model.
type Result struct {
	Model           string        `json:"model"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	Cases           []CaseResult  `json:"cases"`
	AvgTTFT         time.Duration `json:"avg_ttft"`
	AvgTokensPerSec float64       `json:"avg_tokens_per_sec"`
	AvgQualityScore float64       `json:"avg_quality_score"`
	Passed          int           `json:"passed"`
	Failed          int           `json:"failed"`
}

// Comparison holds results for several models.
type Comparison struct {
	Models    []string           `json:"models"`
	Results   map[string]*Result `json:"results"`
	StartTime time.Time          `json:"start_time"`
	EndTime   time.Time          `json:"end_time"`
	Duration  time.Duration      `json:"duration"`
}

// Ranked returns the results fastest first. Models with no passing case
// sort last.
func (c *Comparison) Ranked() []*Result {
	out := make([]*Result, 0, len(c.Results))
	for _, name := range c.Models {
		if r := c.Results[name]; r != nil {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AvgTokensPerSec > out[j].AvgTokensPerSec
	})
	return out
}

// computeAggregates averages the passing cases.
func (r *Result) computeAggregates() {
	var ttft time.Duration
	var tps, quality float64
	var ttftN, tpsN int

	for _, c := range r.Cases {
		if c.Status != StatusPassed {
			r.Failed++
			continue
		}
		r.Passed++
		if c.TTFT > 0 {
			ttft += c.TTFT
			ttftN++
		}
		if c.TokensPerSec > 0 {
			tps += c.TokensPerSec
			tpsN++
		}
		quality += c.QualityScore
	}

	if ttftN > 0 {
		r.AvgTTFT = ttft / time.Duration(ttftN)
	}
	if tpsN > 0 {
		r.AvgTokensPerSec = tps / float64(tpsN)
	}
	if r.Passed > 0 {
		r.AvgQualityScore = quality / float64(r.Passed)
	}
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// FormatTTFT formats time to first token for display.
func FormatTTFT(d time.Duration) string {
	if d == 0 {
		return "N/A"
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// FormatTokensPerSec formats tokens per second for display.
func FormatTokensPerSec(tps float64) string {
	if tps == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.1f t/s", tps)
}

// FormatQualityScore formats a 0-100 score.
func FormatQualityScore(score float64) string {
	if score == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.0f%%", score)
}
