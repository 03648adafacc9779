// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner answers commands from a table keyed by the command name.
func fakeRunner(outputs map[string]string) Runner {
	return func(_ context.Context, name string, args ...string) ([]byte, error) {
		if out, ok := outputs[name]; ok {
			return []byte(out), nil
		}
		return nil, errors.New("exec: " + name + ": not found")
	}
}

func TestGpuTypeString(t *testing.T) {
	tests := map[GpuType]string{
		GpuTypeCPU:          "CPU",
		GpuTypeNvidia:       "NVIDIA",
		GpuTypeAmd:          "AMD",
		GpuTypeAppleSilicon: "Apple Silicon",
		GpuType(99):         "Unknown",
	}
	for typ, want := range tests {
		if got := typ.String(); got != want {
			t.Errorf("GpuType(%d).String() = %q, want %q", typ, got, want)
		}
	}
}

func TestParseNvidiaSmi(t *testing.T) {
	info := parseNvidiaSmi("NVIDIA GeForce RTX 4090, 24564, 550.54.14\n")
	require.NotNil(t, info)
	assert.Equal(t, "NVIDIA NVIDIA GeForce RTX 4090", info.Name)
	assert.Equal(t, uint32(24), info.VramGB)
	assert.Equal(t, "550.54.14", info.Driver)
	assert.Equal(t, GpuTypeNvidia, info.Type)

	assert.Nil(t, parseNvidiaSmi(""))
	assert.Nil(t, parseNvidiaSmi("garbage"))
	assert.Nil(t, parseNvidiaSmi("RTX, lots, 1.0"))
}

func TestParseRocmSmi(t *testing.T) {
	out := strings.Join([]string{
		"GPU[0]		: Card series: 		Radeon RX 7900 XTX",
		"GPU[0]		: VRAM Total Memory (B): 25753026560",
		"GPU[0]		: VRAM Total Used Memory (B): 1073741824",
	}, "\n")
	info := parseRocmSmi(out)
	assert.Equal(t, "AMD Radeon RX 7900 XTX", info.Name)
	assert.Equal(t, uint32(23), info.VramGB)
}

func TestDetect_Order(t *testing.T) {
	ctx := context.Background()

	d := &Detector{GOOS: "linux", Run: fakeRunner(map[string]string{
		"nvidia-smi": "RTX 3060, 12288, 535.0",
		"rocm-smi":   "Card series: RX 6800",
	})}
	assert.Equal(t, GpuTypeNvidia, d.Detect(ctx).Type, "NVIDIA wins")

	d = &Detector{GOOS: "linux", Run: fakeRunner(map[string]string{
		"rocm-smi": "Card series: RX 6800",
	})}
	assert.Equal(t, GpuTypeAmd, d.Detect(ctx).Type)

	d = &Detector{GOOS: "windows", Run: fakeRunner(map[string]string{
		"rocm-smi": "Card series: RX 6800",
	})}
	assert.Equal(t, GpuTypeCPU, d.Detect(ctx).Type, "rocm-smi is Linux only")
}

func TestDetect_AppleSilicon(t *testing.T) {
	d := &Detector{GOOS: "darwin", Run: fakeRunner(map[string]string{
		"system_profiler": "Graphics/Displays:\n    Apple M3 Max:\n      Chipset Model: Apple M3 Max",
		"sysctl":          "68719476736\n",
		"sw_vers":         "14.4\n",
	})}
	info := d.Detect(context.Background())
	assert.Equal(t, GpuTypeAppleSilicon, info.Type)
	assert.Equal(t, "Apple M3 Max", info.Name)
	assert.Equal(t, uint32(64), info.VramGB)
	assert.Equal(t, "macOS 14.4", info.Driver)
}

func TestDetect_CPUFallback(t *testing.T) {
	d := &Detector{GOOS: "linux", Run: fakeRunner(nil)}
	info := d.Detect(context.Background())
	assert.Equal(t, GpuTypeCPU, info.Type)
	assert.Contains(t, info.String(), "CPU only")
}

func TestRecommendModel(t *testing.T) {
	tests := []struct {
		name string
		info *GpuInfo
		want string
	}{
		{"nil", nil, "llama3.2:1b"},
		{"cpu", &GpuInfo{Type: GpuTypeCPU}, "llama3.2:1b"},
		{"2GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 2}, "llama3.2:1b"},
		{"4GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 4}, "llama3.2:3b"},
		{"8GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 8}, "llama3.1:8b"},
		{"24GB", &GpuInfo{Type: GpuTypeAmd, VramGB: 24}, "mistral-nemo:12b"},
		{"80GB", &GpuInfo{Type: GpuTypeNvidia, VramGB: 80}, "llama3.1:70b"},
		// 16GB unified leaves 12GB for Metal.
		{"apple 16GB", &GpuInfo{Type: GpuTypeAppleSilicon, VramGB: 16}, "mistral-nemo:12b"},
		{"apple 8GB", &GpuInfo{Type: GpuTypeAppleSilicon, VramGB: 8}, "mistral:7b"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RecommendModel(tt.info).Model)
		})
	}
}
