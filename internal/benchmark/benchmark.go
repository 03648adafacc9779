// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package benchmark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/model"
	"github.com/jeranaias/rigchat/internal/ollama"
)

// Streamer starts a streaming chat. *ollama.Client implements it.
type Streamer interface {
	ChatStream(ctx context.Context, model string, messages []ollama.Message) (*ollama.ChatStream, error)
}

// =============================================================================
// BENCHMARK RUNNER
// =============================================================================

// Runner executes suites against models. It is not safe for concurrent use.
type Runner struct {
	client Streamer
	log    zerolog.Logger

	// OnCase, when set, is called after each case finishes.
	OnCase func(modelName string, r CaseResult)
}

// NewRunner creates a new benchmark runner.
func NewRunner(client Streamer, log zerolog.Logger) *Runner {
	return &Runner{client: client, log: log}
}

// Run executes every case against modelName. Case failures are recorded in
// the result; the error is non-nil only when ctx ends.
func (r *Runner) Run(ctx context.Context, modelName string, suite []Case) (*Result, error) {
	result := &Result{
		Model:     modelName,
		StartTime: time.Now(),
		Cases:     make([]CaseResult, 0, len(suite)),
	}

	for _, c := range suite {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		cr := r.runCase(ctx, modelName, c)
		result.Cases = append(result.Cases, cr)
		if r.OnCase != nil {
			r.OnCase(modelName, cr)
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.computeAggregates()

	r.log.Info().Str("event", "BENCHMARK_COMPLETE").Str("model", modelName).
		Int("passed", result.Passed).Int("failed", result.Failed).
		Float64("avg_tokens_per_sec", result.AvgTokensPerSec).Send()
	return result, nil
}

// runCase streams one prompt and measures it.
func (r *Runner) runCase(ctx context.Context, modelName string, c Case) CaseResult {
	cr := CaseResult{Name: c.Name, Kind: c.Kind, Status: StatusFailed}
	if c.Prompt == "" {
		cr.Error = "empty prompt"
		return cr
	}

	start := time.Now()
	stream, err := r.client.ChatStream(ctx, modelName, []ollama.Message{
		{Role: string(model.RoleUser), Content: c.Prompt},
	})
	if err != nil {
		cr.Error = err.Error()
		return cr
	}
	defer stream.Close()

	var sb strings.Builder
	var firstToken time.Time
	for {
		frag, err := stream.Next()
		if frag != "" {
			if firstToken.IsZero() {
				firstToken = time.Now()
			}
			sb.WriteString(frag)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			cr.Error = err.Error()
			return cr
		}
	}

	cr.Duration = time.Since(start)
	if !firstToken.IsZero() {
		cr.TTFT = firstToken.Sub(start)
	}

	stats := stream.Stats()
	cr.TokenCount = stats.CompletionTokens
	cr.TokensPerSec = stats.TokensPerSecond()
	if cr.TokensPerSec == 0 && cr.TokenCount > 0 && cr.Duration > 0 {
		cr.TokensPerSec = float64(cr.TokenCount) / cr.Duration.Seconds()
	}

	cr.Response = sb.String()
	if c.Score != nil {
		cr.QualityScore = c.Score(cr.Response)
	}
	cr.Status = StatusPassed
	return cr
}

// RunComparison runs the suite on each model in turn. It fails only when
// every model failed every case.
func (r *Runner) RunComparison(ctx context.Context, modelNames []string, suite []Case) (*Comparison, error) {
	cmp := &Comparison{
		Models:    append([]string(nil), modelNames...),
		Results:   make(map[string]*Result, len(modelNames)),
		StartTime: time.Now(),
	}

	ok := 0
	for _, name := range modelNames {
		res, err := r.Run(ctx, name, suite)
		cmp.Results[name] = res
		if err != nil {
			return cmp, err
		}
		if res.Passed > 0 {
			ok++
		}
	}

	cmp.EndTime = time.Now()
	cmp.Duration = cmp.EndTime.Sub(cmp.StartTime)
	if ok == 0 {
		return cmp, fmt.Errorf("all %d model(s) failed to run", len(modelNames))
	}
	return cmp, nil
}
