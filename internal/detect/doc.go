// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package detect finds the GPU Ollama will run on and suggests a chat model
// that fits in its memory.
//
// Supported GPU Types:
//   - NVIDIA (via nvidia-smi)
//   - AMD (via rocm-smi, Linux only)
//   - Apple Silicon (via system_profiler and sysctl on macOS)
//
// Anything else is reported as CPU-only.
package detect
