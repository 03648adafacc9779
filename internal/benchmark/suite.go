// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import "strings"

// =============================================================================
// CASE DEFINITIONS
// =============================================================================

// Kind categorizes a case.
type Kind string

const (
	KindLatency     Kind = "latency"
	KindSpeed       Kind = "speed"
	KindCode        Kind = "code"
	KindInstruction Kind = "instruction"
)

// Scorer rates a response from 0 to 100.
type Scorer func(response string) float64

// Case is one prompt in a suite.
type Case struct {
	Name   string
	Kind   Kind
	Prompt string
	Score  Scorer
}

// StandardSuite returns the default cases.
func StandardSuite() []Case {
	return []Case{
		{
			Name:   "Latency",
			Kind:   KindLatency,
			Prompt: "Say 'Hello'",
			Score: func(r string) float64 {
				if strings.Contains(strings.ToLower(r), "hello") {
					return 100
				}
				return 50
			},
		},
		{
			Name:   "Speed",
			Kind:   KindSpeed,
			Prompt: "Write a haiku about programming.",
			Score: func(r string) float64 {
				switch lines := strings.Split(strings.TrimSpace(r), "\n"); {
				case len(lines) >= 3:
					return 100
				case len(r) > 10:
					return 70
				}
				return 30
			},
		},
		{
			Name:   "Code",
			Kind:   KindCode,
			Prompt: "Complete this function:\n\ndef fibonacci(n):\n    # Calculate the nth Fibonacci number",
			Score:  keywordScore("return", "fibonacci", "n - 1", "n-1"),
		},
		{
			Name:   "Instruction Following",
			Kind:   KindInstruction,
			Prompt: "List exactly 3 programming languages. Format: 1. Language",
			Score: func(r string) float64 {
				score := 0.0
				for _, marker := range []string{"1.", "2.", "3."} {
					if strings.Contains(r, marker) {
						score += 30
					}
				}
				if !strings.Contains(r, "4.") {
					score += 10
				}
				return score
			},
		},
	}
}

// QuickSuite is the latency case alone.
func QuickSuite() []Case {
	return StandardSuite()[:1]
}

// keywordScore gives equal credit for each keyword found.
func keywordScore(keywords ...string) Scorer {
	return func(r string) float64 {
		lower := strings.ToLower(r)
		hits := 0
		for _, k := range keywords {
			if strings.Contains(lower, k) {
				hits++
			}
		}
		if hits == 0 {
			return 0
		}
		return min(100, float64(hits)*100/float64(len(keywords)-1))
	}
}
