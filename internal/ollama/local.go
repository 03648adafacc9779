// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"net"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Installation describes the local ollama binary.
type Installation struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
}

// binaryName is the executable looked up on PATH. Tests point it elsewhere.
var binaryName = "ollama"

const versionTimeout = 5 * time.Second

// DetectInstallation looks for the ollama CLI on PATH and asks it for its
// version. A binary that exists but fails to report a version still counts
// as installed, with Version "unknown".
func DetectInstallation(ctx context.Context) Installation {
	path, err := exec.LookPath(binaryName)
	if err != nil {
		return Installation{}
	}

	inst := Installation{Installed: true, Path: path, Version: "unknown"}

	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, path, "--version").Output()
	if err != nil {
		return inst
	}
	if v := parseVersion(string(out)); v != "" {
		inst.Version = v
	}
	return inst
}

// parseVersion takes the last field of "ollama version is 0.5.7".
func parseVersion(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(strings.ToLower(line), "version") {
			continue
		}
		if fields := strings.Fields(line); len(fields) > 0 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

// InstallHint returns the platform's install instruction.
func InstallHint() string {
	switch runtime.GOOS {
	case "windows":
		return "Download from https://ollama.com/download"
	case "darwin":
		return "Run: brew install ollama"
	default:
		return "Run: curl -fsSL https://ollama.com/install.sh | sh"
	}
}

// IsLocalURL reports whether baseURL points at this machine. Anything that
// does not parse is treated as remote.
func IsLocalURL(baseURL string) bool {
	u, err := url.Parse(baseURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return false
}
