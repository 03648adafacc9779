// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package benchmark measures local model speed and rough answer quality.
//
// A Runner sends each Case of a suite as a single-message chat, timing the
// first fragment (TTFT) and reading generation speed from the statistics
// Ollama reports on the final chunk. Cases run one at a time so models do
// not compete for the GPU.
//
//	r := benchmark.NewRunner(client, log)
//	res, err := r.Run(ctx, "llama3.2:1b", benchmark.StandardSuite())
//	fmt.Println(benchmark.FormatTokensPerSec(res.AvgTokensPerSec))
package benchmark
