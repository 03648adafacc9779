// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// bench.go - Model benchmark command.
//
// Command: models bench [name...]
// Short:   Measure latency, speed and answer quality
//
// Runs the standard suite against each model in turn (the default model
// when none is named) and ranks them by generation speed.
//
// Flags:
//   --quick             Latency case only
//   --json              Output in JSON format

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/jeranaias/rigchat/internal/benchmark"
	"github.com/jeranaias/rigchat/internal/util"
)

func modelsBench(ctx context.Context, env *Env, app *App, names []string, quick, jsonMode bool) error {
	if len(names) == 0 {
		names = []string{app.Config.Ollama.DefaultModel}
	}
	if !app.Ollama.CheckHealth(ctx) {
		return NewCommandError("models", "bench", "Ollama is not running. Start it with: ollama serve", nil)
	}

	suite := benchmark.StandardSuite()
	if quick {
		suite = benchmark.QuickSuite()
	}

	runner := benchmark.NewRunner(app.Ollama, app.Log)
	if !jsonMode {
		runner.OnCase = func(modelName string, r benchmark.CaseResult) {
			status := RenderStatus("ok")
			detail := fmt.Sprintf("%s  %s  quality %s",
				benchmark.FormatTTFT(r.TTFT),
				benchmark.FormatTokensPerSec(r.TokensPerSec),
				benchmark.FormatQualityScore(r.QualityScore))
			if r.Status == benchmark.StatusFailed {
				status = RenderStatus("fail")
				detail = r.Error
			}
			fmt.Fprintf(env.Stderr, "%s %s %s %s\n", status,
				util.PadWidth(modelName, 24), util.PadWidth(r.Name, 22), DimStyle.Render(detail))
		}
	}

	cmp, err := runner.RunComparison(ctx, names, suite)
	if err != nil && cmp == nil {
		return err
	}

	if jsonMode {
		resp := NewJSONResponse("models bench", cmp)
		if err != nil {
			msg := err.Error()
			resp.Success = false
			resp.Error = &msg
		}
		if perr := resp.Print(env.Stdout); perr != nil {
			return perr
		}
		return reported(err)
	}
	if err != nil {
		return NewCommandError("models", "bench", err.Error(), err)
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("Benchmark Results"))
	fmt.Fprintf(env.Stdout, "  %s %s %s %s %s\n",
		util.PadWidth("#", 3), util.PadWidth("Model", 24), util.PadWidth("TTFT", 10),
		util.PadWidth("Speed", 12), "Quality")
	for i, r := range cmp.Ranked() {
		fmt.Fprintf(env.Stdout, "  %s %s %s %s %s\n",
			util.PadWidth(fmt.Sprintf("%d", i+1), 3),
			util.PadWidth(r.Model, 24),
			util.PadWidth(benchmark.FormatTTFT(r.AvgTTFT), 10),
			util.PadWidth(benchmark.FormatTokensPerSec(r.AvgTokensPerSec), 12),
			benchmark.FormatQualityScore(r.AvgQualityScore))
	}
	fmt.Fprintln(env.Stdout, DimStyle.Render(fmt.Sprintf("Completed in %s", cmp.Duration.Round(100*time.Millisecond))))
	return nil
}
