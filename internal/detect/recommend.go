// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

// Recommendation is a chat model suggested for a memory budget.
type Recommendation struct {
	Model       string `json:"model"`
	Description string `json:"description"`
	MinVramGB   uint32 `json:"min_vram_gb"`
	Quality     string `json:"quality"` // "fast", "balanced", "best"
}

// tiers is ordered by MinVramGB, largest first.
var tiers = []Recommendation{
	{Model: "llama3.1:70b", Description: "Largest general model, needs a workstation GPU", MinVramGB: 48, Quality: "best"},
	{Model: "mixtral:8x7b", Description: "Mixture of experts, strong reasoning", MinVramGB: 32, Quality: "best"},
	{Model: "mistral-nemo:12b", Description: "Long context, strong all-rounder", MinVramGB: 12, Quality: "best"},
	{Model: "llama3.1:8b", Description: "Balanced quality and speed", MinVramGB: 8, Quality: "balanced"},
	{Model: "mistral:7b", Description: "Fast 7B that fits mid-range cards", MinVramGB: 6, Quality: "balanced"},
	{Model: "llama3.2:3b", Description: "Small and quick on limited VRAM", MinVramGB: 4, Quality: "fast"},
	{Model: "llama3.2:1b", Description: "Runs anywhere, including CPU only", MinVramGB: 0, Quality: "fast"},
}

// RecommendModel returns the best tier that fits info. CPU-only systems get
// the smallest model.
func RecommendModel(info *GpuInfo) Recommendation {
	if info == nil || info.Type == GpuTypeCPU {
		return tiers[len(tiers)-1]
	}
	budget := info.VramGB
	if info.Type == GpuTypeAppleSilicon {
		// Metal can use about three quarters of unified memory.
		budget = budget * 3 / 4
	}
	for _, t := range tiers {
		if budget >= t.MinVramGB {
			return t
		}
	}
	return tiers[len(tiers)-1]
}
