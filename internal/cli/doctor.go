// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Doctor command implementation.
//
// Command: doctor
// Short:   Run health checks
// Aliases: diag
//
// Health Checks Performed:
//   1. Ollama Installed   - ollama binary on PATH
//   2. Ollama Running     - server answers at ollama.base_url (warns if remote)
//   3. Model Available    - ollama.default_model is pulled
//   4. Config Valid       - config file loads and validates
//   5. Data Dir Writable  - conversations can be written
//   6. Store Readable     - the storage backend opens and lists
//   7. Disk Space         - room left next to the data directory
//   8. GPU                - accelerator and a model that fits it
//
// Flags:
//   --json              Output in JSON format
//
// Exit Codes:
//   0   No check failed (warnings allowed)
//   1   One or more checks failed

package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/iter"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/detect"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
	"github.com/jeranaias/rigchat/internal/util"
)

// checkTimeout bounds each network check.
const checkTimeout = 5 * time.Second

// lowDiskSpace is the free space below which Disk Space warns.
const lowDiskSpace = 500 * humanize.MByte

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

// String returns the JSON name of the status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	default:
		return "fail"
	}
}

// HealthCheck is one check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`

	status CheckStatus
}

func newCheck(name string, status CheckStatus, msg, fix string) *HealthCheck {
	return &HealthCheck{Name: name, Status: status.String(), Message: msg, Fix: fix, status: status}
}

// Render returns the check as one or two display lines.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", RenderStatus(c.Status), c.Message)
	if c.status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("     -> "+c.Fix)
	}
	return result
}

// DoctorSummary counts results by status.
type DoctorSummary struct {
	Passed  int  `json:"passed"`
	Warned  int  `json:"warned"`
	Failed  int  `json:"failed"`
	Healthy bool `json:"healthy"`
}

// DoctorData is the payload of "doctor --json".
type DoctorData struct {
	Checks  []*HealthCheck `json:"checks"`
	Summary DoctorSummary  `json:"summary"`
}

// =============================================================================
// HANDLE DOCTOR
// =============================================================================

// doctor holds what the checks share. It does not use Env.App so a broken
// store or config is reported instead of aborting.
type doctor struct {
	cfg     *config.Config
	loadErr error
	client  *ollama.Client
	models  *ollama.ModelCache
}

func newDoctor(env *Env) *doctor {
	d := &doctor{}
	d.cfg, d.loadErr = env.Config()
	if d.loadErr != nil {
		d.cfg = config.Default()
		d.cfg.SetDefaults()
	}
	d.client = ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:        d.cfg.Ollama.BaseURL,
		ConnectTimeout: checkTimeout,
		RequestTimeout: checkTimeout,
		Logger:         zerolog.Nop(),
	})
	d.models = ollama.NewModelCache(d.client, time.Minute)
	return d
}

func runDoctor(ctx context.Context, env *Env, args *ArgParser) error {
	d := newDoctor(env)
	checks := d.runAll(ctx)

	var sum DoctorSummary
	for _, c := range checks {
		switch c.status {
		case CheckPass:
			sum.Passed++
		case CheckWarn:
			sum.Warned++
		default:
			sum.Failed++
		}
	}
	sum.Healthy = sum.Failed == 0

	var failErr error
	if sum.Failed > 0 {
		failErr = fmt.Errorf("%d health check(s) failed", sum.Failed)
	}

	if args.BoolFlag("json") {
		resp := NewJSONResponse("doctor", DoctorData{Checks: checks, Summary: sum})
		if failErr != nil {
			msg := failErr.Error()
			resp.Success = false
			resp.Error = &msg
		}
		if err := resp.Print(env.Stdout); err != nil {
			return err
		}
		return reported(failErr)
	}

	fmt.Fprintln(env.Stdout, TitleStyle.Render("rigchat Doctor"))
	for _, c := range checks {
		fmt.Fprintln(env.Stdout, c.Render())
	}
	fmt.Fprintln(env.Stdout, RenderSeparator(41))

	parts := []string{fmt.Sprintf("%d passed", sum.Passed)}
	if sum.Warned > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", sum.Warned)))
	}
	if sum.Failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", sum.Failed)))
	}
	fmt.Fprintln(env.Stdout, strings.Join(parts, ", "))
	return failErr
}

// runAll runs every check concurrently and returns them in display order.
func (d *doctor) runAll(ctx context.Context) []*HealthCheck {
	checks := []func(context.Context) *HealthCheck{
		d.checkOllamaInstalled,
		d.checkOllamaRunning,
		d.checkModelAvailable,
		d.checkConfigValid,
		d.checkDataDirWritable,
		d.checkStoreReadable,
		d.checkDiskSpace,
		d.checkGPU,
	}
	return iter.Map(checks, func(fn *func(context.Context) *HealthCheck) *HealthCheck {
		return (*fn)(ctx)
	})
}

// =============================================================================
// HEALTH CHECK FUNCTIONS
// =============================================================================

func (d *doctor) checkOllamaInstalled(ctx context.Context) *HealthCheck {
	const name = "Ollama Installed"
	inst := ollama.DetectInstallation(ctx)
	if !inst.Installed {
		// The server may run elsewhere, so this alone is not fatal.
		return newCheck(name, CheckWarn, "Ollama binary not found on PATH", ollama.InstallHint())
	}
	return newCheck(name, CheckPass, fmt.Sprintf("Ollama installed (%s)", inst.Version), "")
}

func (d *doctor) checkOllamaRunning(ctx context.Context) *HealthCheck {
	const name = "Ollama Running"
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if !d.client.CheckHealth(ctx) {
		return newCheck(name, CheckFail, "Ollama not responding at "+d.cfg.Ollama.BaseURL, "Run: ollama serve")
	}
	if !ollama.IsLocalURL(d.cfg.Ollama.BaseURL) {
		return newCheck(name, CheckWarn, "Ollama running at "+d.cfg.Ollama.BaseURL+", conversations leave this machine",
			"Run Ollama locally for private chats: rigchat config set ollama.base_url http://localhost:11434")
	}
	return newCheck(name, CheckPass, "Ollama running at "+d.cfg.Ollama.BaseURL, "")
}

func (d *doctor) checkModelAvailable(ctx context.Context) *HealthCheck {
	const name = "Model Available"
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	want := d.cfg.Ollama.DefaultModel
	info, found, err := d.models.Lookup(ctx, want)
	switch {
	case err != nil:
		return newCheck(name, CheckWarn, "Could not list models: "+err.Error(), "")
	case !found:
		return newCheck(name, CheckFail, fmt.Sprintf("Model %s not installed", want), "Run: rigchat models pull "+want)
	}
	return newCheck(name, CheckPass, fmt.Sprintf("Model %s available (%s)", info.Name, info.FormatSize()), "")
}

func (d *doctor) checkConfigValid(context.Context) *HealthCheck {
	const name = "Config Valid"
	if d.loadErr != nil {
		return newCheck(name, CheckFail, "Config invalid: "+d.loadErr.Error(), "Run: rigchat config init --force")
	}
	path, err := config.ActivePath()
	if err != nil {
		return newCheck(name, CheckWarn, "Could not determine config path", "")
	}
	if _, err := os.Stat(path); err != nil {
		return newCheck(name, CheckPass, "Config valid (using defaults)", "")
	}
	return newCheck(name, CheckPass, "Config valid ("+path+")", "")
}

func (d *doctor) checkDataDirWritable(context.Context) *HealthCheck {
	const name = "Data Dir Writable"
	dir := d.cfg.Storage.DataDir
	if err := os.MkdirAll(dir, 0700); err != nil {
		return newCheck(name, CheckFail, "Could not create data directory: "+err.Error(),
			"Create manually: mkdir -p "+dir)
	}
	f, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		return newCheck(name, CheckFail, "Data directory not writable: "+err.Error(),
			"Check permissions: chmod 700 "+dir)
	}
	f.Close()
	os.Remove(f.Name())
	return newCheck(name, CheckPass, "Data directory writable ("+filepath.Clean(dir)+")", "")
}

func (d *doctor) checkStoreReadable(context.Context) *HealthCheck {
	const name = "Store Readable"
	store, err := storage.Open(storage.Options{
		Backend: d.cfg.Storage.Backend,
		DataDir: d.cfg.Storage.DataDir,
		Logger:  zerolog.Nop(),
	})
	if err != nil {
		return newCheck(name, CheckFail, "Could not open "+d.cfg.Storage.Backend+" store: "+err.Error(), "")
	}
	defer store.Close()

	metas, err := store.List()
	if err != nil {
		return newCheck(name, CheckFail, "Could not list conversations: "+err.Error(), "")
	}
	return newCheck(name, CheckPass, fmt.Sprintf("%s store readable (%d conversations)", d.cfg.Storage.Backend, len(metas)), "")
}

func (d *doctor) checkDiskSpace(context.Context) *HealthCheck {
	const name = "Disk Space"
	dir := d.cfg.Storage.DataDir
	if _, err := os.Stat(dir); err != nil {
		dir = filepath.Dir(dir)
	}
	free, err := util.FreeDiskSpace(dir)
	if err != nil {
		return newCheck(name, CheckWarn, "Could not read free space: "+err.Error(), "")
	}
	if free < lowDiskSpace {
		return newCheck(name, CheckWarn, fmt.Sprintf("Only %s free near %s", humanize.Bytes(free), dir),
			"Free up space before pulling more models")
	}
	return newCheck(name, CheckPass, humanize.Bytes(free)+" free", "")
}

func (d *doctor) checkGPU(ctx context.Context) *HealthCheck {
	const name = "GPU"
	gpu := detect.DetectGPU(ctx)
	rec := detect.RecommendModel(gpu)
	if gpu.Type == detect.GpuTypeCPU {
		return newCheck(name, CheckWarn, "No GPU detected, replies will be slow ("+gpu.Name+")",
			"Use a small model: rigchat models pull "+rec.Model)
	}
	return newCheck(name, CheckPass, fmt.Sprintf("%s, suggested model %s", gpu, rec.Model), "")
}
