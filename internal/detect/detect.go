// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package detect

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// detectTimeout bounds the whole probe when ctx has no deadline.
const detectTimeout = 10 * time.Second

// =============================================================================
// GPU TYPE DEFINITIONS
// =============================================================================

// GpuType represents the type of GPU detected on the system.
type GpuType int

const (
	GpuTypeCPU GpuType = iota
	GpuTypeNvidia
	GpuTypeAmd
	GpuTypeAppleSilicon
)

// String returns the string representation of the GPU type.
func (t GpuType) String() string {
	switch t {
	case GpuTypeNvidia:
		return "NVIDIA"
	case GpuTypeAmd:
		return "AMD"
	case GpuTypeAppleSilicon:
		return "Apple Silicon"
	case GpuTypeCPU:
		return "CPU"
	default:
		return "Unknown"
	}
}

// GpuInfo describes the detected accelerator. VramGB is unified memory on
// Apple Silicon and zero for CPU-only systems.
type GpuInfo struct {
	Name   string  `json:"name"`
	VramGB uint32  `json:"vram_gb"`
	Driver string  `json:"driver,omitempty"`
	Type   GpuType `json:"type"`
}

// String returns a formatted string representation of the GPU info.
func (g *GpuInfo) String() string {
	if g.Type == GpuTypeCPU {
		return g.Name
	}
	s := fmt.Sprintf("%s (%dGB VRAM)", g.Name, g.VramGB)
	if g.Driver != "" {
		s += " [Driver: " + g.Driver + "]"
	}
	return s
}

// =============================================================================
// DETECTION
// =============================================================================

// Runner executes a command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Detector probes for GPUs. The zero value runs real commands on the
// current OS.
type Detector struct {
	Run  Runner
	GOOS string
}

// DetectGPU probes the current system.
func DetectGPU(ctx context.Context) *GpuInfo {
	return (&Detector{}).Detect(ctx)
}

// Detect checks NVIDIA, then AMD, then Apple Silicon and falls back to a
// CPU-only result. It never fails; missing tools just mean no GPU of that
// kind.
func (d *Detector) Detect(ctx context.Context) *GpuInfo {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, detectTimeout)
		defer cancel()
	}

	goos := d.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}

	if info := d.detectNvidia(ctx); info != nil {
		return info
	}
	if goos == "linux" {
		if info := d.detectAmd(ctx); info != nil {
			return info
		}
	}
	if goos == "darwin" {
		if info := d.detectAppleSilicon(ctx); info != nil {
			return info
		}
	}
	return &GpuInfo{Name: fmt.Sprintf("CPU only (%d cores)", runtime.NumCPU()), Type: GpuTypeCPU}
}

func (d *Detector) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if d.Run != nil {
		return d.Run(ctx, name, args...)
	}
	return execRunner(ctx, name, args...)
}

// =============================================================================
// NVIDIA
// =============================================================================

func (d *Detector) detectNvidia(ctx context.Context) *GpuInfo {
	out, err := d.run(ctx, "nvidia-smi",
		"--query-gpu=name,memory.total,driver_version",
		"--format=csv,noheader,nounits")
	if err != nil {
		return nil
	}
	return parseNvidiaSmi(string(out))
}

// parseNvidiaSmi reads the first line of nvidia-smi CSV output. Memory is
// reported in MiB.
func parseNvidiaSmi(out string) *GpuInfo {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(out), "\n", 2)[0])
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return nil
	}
	vramMB, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil
	}
	return &GpuInfo{
		Name:   "NVIDIA " + strings.TrimSpace(parts[0]),
		VramGB: uint32(vramMB/1024 + 0.5),
		Driver: strings.TrimSpace(parts[2]),
		Type:   GpuTypeNvidia,
	}
}

// =============================================================================
// AMD
// =============================================================================

var amdNumberRe = regexp.MustCompile(`(\d{3,})`)

func (d *Detector) detectAmd(ctx context.Context) *GpuInfo {
	out, err := d.run(ctx, "rocm-smi", "--showproductname", "--showmeminfo", "vram")
	if err != nil {
		return nil
	}
	return parseRocmSmi(string(out))
}

// parseRocmSmi reads the card series and total VRAM (bytes) from rocm-smi.
func parseRocmSmi(out string) *GpuInfo {
	info := &GpuInfo{Name: "AMD GPU", Type: GpuTypeAmd}
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.Contains(line, "Card series:") || strings.Contains(line, "Card Series:"):
			if _, v, ok := strings.Cut(line, "eries:"); ok && strings.TrimSpace(v) != "" {
				info.Name = "AMD " + strings.TrimSpace(v)
			}
		case strings.Contains(line, "Total Memory") && info.VramGB == 0:
			if m := amdNumberRe.FindStringSubmatch(line); m != nil {
				if n, err := strconv.ParseUint(m[1], 10, 64); err == nil {
					info.VramGB = uint32(n / (1 << 30))
				}
			}
		}
	}
	return info
}

// =============================================================================
// APPLE SILICON
// =============================================================================

// appleChips is ordered so longer names match first.
var appleChips = []string{
	"M4 Ultra", "M4 Max", "M4 Pro", "M4",
	"M3 Ultra", "M3 Max", "M3 Pro", "M3",
	"M2 Ultra", "M2 Max", "M2 Pro", "M2",
	"M1 Ultra", "M1 Max", "M1 Pro", "M1",
}

func (d *Detector) detectAppleSilicon(ctx context.Context) *GpuInfo {
	out, err := d.run(ctx, "system_profiler", "SPDisplaysDataType")
	if err != nil || !strings.Contains(string(out), "Apple") {
		return nil
	}

	info := &GpuInfo{Name: "Apple Silicon", Type: GpuTypeAppleSilicon}
	for _, chip := range appleChips {
		if strings.Contains(string(out), chip) {
			info.Name = "Apple " + chip
			break
		}
	}

	// Unified memory is shared with the GPU.
	if mem, err := d.run(ctx, "sysctl", "-n", "hw.memsize"); err == nil {
		if n, err := strconv.ParseUint(strings.TrimSpace(string(mem)), 10, 64); err == nil {
			info.VramGB = uint32(n / (1 << 30))
		}
	}
	if ver, err := d.run(ctx, "sw_vers", "-productVersion"); err == nil {
		info.Driver = "macOS " + strings.TrimSpace(string(ver))
	}
	return info
}
