// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// CatalogEntry describes a library model offered for installation.
type CatalogEntry struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Category  string `json:"category"`
	Size      string `json:"size"`
	Verified  bool   `json:"verified"`
}

// Model categories.
const (
	CategoryText       = "text"
	CategoryImage      = "image"
	CategoryMultimodal = "multimodal"
)

// PopularModels is the quick-pick list shown before anything is installed.
var PopularModels = []string{
	"llama3.2:1b",
	"llama3.2:3b",
	"llama3.1:8b",
	"llama3:8b",
	"mistral:7b",
	"codellama:7b",
	"phi3:mini",
	"gemma:2b",
	"qwen2:0.5b",
	"tinyllama:1.1b",
}

// knownSizes holds approximate download sizes for common library models.
var knownSizes = map[string]string{
	"tinyllama:1.1b":      "0.6 GB",
	"qwen2:0.5b":          "0.4 GB",
	"llama3.2:1b":         "0.7 GB",
	"phi3:mini":           "0.7 GB",
	"gemma:2b":            "1.4 GB",
	"deepseek-coder:1.3b": "0.8 GB",
	"llama3.2:3b":         "2.0 GB",
	"qwen2:1.5b":          "1.0 GB",
	"orca-mini:3b":        "2.0 GB",
	"phi3:medium":         "2.3 GB",
	"mistral:7b":          "4.1 GB",
	"codellama:7b":        "3.8 GB",
	"llama3:8b":           "4.7 GB",
	"llama3.1:8b":         "4.7 GB",
	"gemma:7b":            "4.8 GB",
	"qwen2:7b":            "4.4 GB",
	"neural-chat:7b":      "4.1 GB",
	"deepseek-coder:6.7b": "3.9 GB",
	"solar:10.7b":         "6.2 GB",
	"mistral-nemo:12b":    "7.0 GB",
	"phi3:14b":            "8.2 GB",
	"codellama:13b":       "7.3 GB",
	"codellama:34b":       "19.0 GB",
	"llama3:70b":          "40.0 GB",
	"llama3.1:70b":        "40.0 GB",
	"qwen2:72b":           "42.0 GB",
	"mixtral:8x7b":        "26.0 GB",
	"x/z-image-turbo":     "6.0 GB",
	"x/z-image":           "6.0 GB",
	"llava":               "4.5 GB",
	"bakllava":            "4.5 GB",
	"moondream":           "1.6 GB",
	"llava-phi3":          "2.3 GB",
	"llava-llama3":        "4.7 GB",
}

// libraryModels lists installable models beyond the popular ones.
var libraryModels = []string{
	"llama3.1:70b", "llama3:70b", "llama2:7b", "llama2:13b",
	"mistral-nemo:12b", "mixtral:8x7b",
	"codellama:13b", "codellama:34b",
	"phi3:medium", "phi3:14b",
	"gemma:7b",
	"qwen2:1.5b", "qwen2:7b", "qwen2:72b",
	"neural-chat:7b", "orca-mini:3b",
	"deepseek-coder:1.3b", "deepseek-coder:6.7b", "deepseek-coder:33b",
	"solar:10.7b", "yi:6b", "yi:34b", "zephyr:7b", "openchat:7b",
	"starcoder:7b",
	"x/z-image-turbo", "x/z-image",
	"llava", "bakllava", "moondream", "llava-phi3", "llava-llama3",
}

var paramSizeRe = regexp.MustCompile(`(\d+(?:\.\d+)?)(b|m)`)

// EstimateSize returns the approximate download size of a library model,
// falling back to a figure derived from the parameter count in the tag.
func EstimateSize(name string) string {
	if s, ok := knownSizes[name]; ok {
		return s
	}
	m := paramSizeRe.FindStringSubmatch(strings.ToLower(name))
	if m == nil {
		return "Unknown"
	}
	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "Unknown"
	}

	var factor float64
	if m[2] == "m" {
		switch {
		case n < 2:
			factor = 0.4
		case n < 10:
			factor = 0.6
		default:
			factor = 0.7
		}
	} else {
		switch {
		case n <= 1:
			factor = 0.6
		case n <= 3:
			factor = 0.7
		case n <= 8:
			factor = 0.6
		case n <= 14:
			factor = 0.55
		case n <= 35:
			factor = 0.57
		case n <= 45:
			factor = 0.58
		default:
			factor = 0.6
		}
	}
	return fmt.Sprintf("%.1f GB", n*factor)
}

// Categorize classifies a model name as text, image or multimodal.
func Categorize(name string) string {
	lower := strings.ToLower(name)
	if strings.Contains(lower, "x/z-image") || strings.Contains(lower, "image-turbo") {
		return CategoryImage
	}
	if strings.Contains(lower, "flux") && strings.Contains(lower, "/") {
		return CategoryImage
	}
	for _, mm := range []string{"llava", "bakllava", "moondream", "cogvlm", "minicpm-v"} {
		if strings.Contains(lower, mm) {
			return CategoryMultimodal
		}
	}
	return CategoryText
}

// Catalog merges the library list with what is installed, sorted by name.
func Catalog(installed []ModelInfo) []CatalogEntry {
	have := make(map[string]bool, len(installed))
	for _, m := range installed {
		have[m.Name] = true
	}

	seen := make(map[string]bool)
	var names []string
	for _, list := range [][]string{PopularModels, libraryModels} {
		for _, n := range list {
			if !seen[n] {
				seen[n] = true
				names = append(names, n)
			}
		}
	}
	sort.Strings(names)

	out := make([]CatalogEntry, len(names))
	for i, n := range names {
		out[i] = CatalogEntry{
			Name:      n,
			Installed: have[n],
			Category:  Categorize(n),
			Size:      EstimateSize(n),
			Verified:  true,
		}
	}
	return out
}
