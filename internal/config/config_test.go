// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points the config directory at a temp dir and clears overrides.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(configHomeEnv, dir)
	for _, name := range []string{
		"RIGCHAT_OLLAMA_URL", "OLLAMA_BASE_URL", "RIGCHAT_MODEL", "OLLAMA_MODEL",
		"RIGCHAT_REQUEST_TIMEOUT", "OLLAMA_TIMEOUT",
		"RIGCHAT_STREAM_READ_TIMEOUT", "OLLAMA_STREAM_READ_TIMEOUT",
		"MAX_RECENT_MESSAGES", "SUMMARY_THRESHOLD", "CONTEXT_WINDOW_SIZE",
		"RIGCHAT_STORAGE", "RIGCHAT_DATA_DIR", "RIGCHAT_HOST", "FLASK_HOST",
		"RIGCHAT_PORT", "FLASK_PORT", "RIGCHAT_LOG_LEVEL", "RIGCHAT_LOG_FORMAT",
	} {
		t.Setenv(name, "")
	}
	return dir
}

// TestConfig_ConcurrentAccess tests that Global(), SetGlobal(), and ReloadGlobal()
// can be safely called concurrently without race conditions.
// Run with: go test -race -v ./internal/config/
func TestConfig_ConcurrentAccess(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			c := Default()
			c.Ollama.DefaultModel = "test-model"
			SetGlobal(c)
		}()
		go func() {
			defer wg.Done()
			if Global() == nil {
				t.Error("Global() returned nil")
			}
		}()
		go func() {
			defer wg.Done()
			_ = ReloadGlobal()
		}()
	}
	wg.Wait()
}

func TestConfig_GlobalInitialization(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	cfg := Global()
	require.NotNil(t, cfg)
	if cfg.Version == "" {
		t.Error("Config version should not be empty")
	}
	if cfg.Ollama.DefaultModel != DefaultModel {
		t.Errorf("default model = %q, want %q", cfg.Ollama.DefaultModel, DefaultModel)
	}
}

func TestConfig_SetGlobalOverwrites(t *testing.T) {
	isolate(t)
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	_ = Global()
	custom := Default()
	custom.Version = "custom-version"
	SetGlobal(custom)

	if got := Global().Version; got != "custom-version" {
		t.Errorf("Expected version 'custom-version', got '%s'", got)
	}
}

func TestConfig_Default(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "http://localhost:11434", cfg.Ollama.BaseURL)
	assert.Equal(t, "llama3.2:1b", cfg.Ollama.DefaultModel)
	assert.Equal(t, 30*time.Second, cfg.Ollama.ConnectTimeout.Std())
	assert.Equal(t, 120*time.Second, cfg.Ollama.StreamReadTimeout.Std())
	assert.Equal(t, 300*time.Second, cfg.Ollama.RequestTimeout.Std())
	assert.Equal(t, 30, cfg.Context.MaxRecentMessages)
	assert.Equal(t, 40, cfg.Context.SummaryThreshold)
	assert.Equal(t, 4096, cfg.Context.ContextWindowSize)
	assert.Equal(t, "127.0.0.1:5001", cfg.Addr())
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		field   string
		wantErr bool
	}{
		{"valid default config", func(*Config) {}, "", false},
		{"threshold equals window", func(c *Config) { c.Context.SummaryThreshold = 30 }, "", false},
		{"threshold below window", func(c *Config) { c.Context.SummaryThreshold = 29 }, "context.summary_threshold", true},
		{"zero window", func(c *Config) { c.Context.MaxRecentMessages = 0 }, "context.max_recent_messages", true},
		{"bad url scheme", func(c *Config) { c.Ollama.BaseURL = "ftp://x" }, "ollama.base_url", true},
		{"url without host", func(c *Config) { c.Ollama.BaseURL = "http://" }, "ollama.base_url", true},
		{"empty model", func(c *Config) { c.Ollama.DefaultModel = " " }, "ollama.default_model", true},
		{"zero stream timeout", func(c *Config) { c.Ollama.StreamReadTimeout = 0 }, "ollama.stream_read_timeout", true},
		{"unknown backend", func(c *Config) { c.Storage.Backend = "redis" }, "storage.backend", true},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port", true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level", true},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr {
				return
			}
			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, len(verrs))
			for i, e := range verrs {
				fields[i] = e.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestLoadFromPath_TOML(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[ollama]
default_model = "mistral:7b"
stream_read_timeout = "45s"

[context]
max_recent_messages = 10
summary_threshold = 12

[storage]
backend = "SQLite"
`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", cfg.Ollama.DefaultModel)
	assert.Equal(t, 45*time.Second, cfg.Ollama.StreamReadTimeout.Std())
	assert.Equal(t, 300*time.Second, cfg.Ollama.RequestTimeout.Std(), "unset keys keep defaults")
	assert.Equal(t, 10, cfg.Context.MaxRecentMessages)
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, dir, cfg.Storage.DataDir)
}

func TestLoadFromPath_JSON(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":{"port":6000},"ollama":{"request_timeout":"1m"}}`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, 6000, cfg.Server.Port)
	assert.Equal(t, time.Minute, cfg.Ollama.RequestTimeout.Std())
}

func TestLoadFromPath_Invalid(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[context]\nmax_recent_messages = 50\nsummary_threshold = 40\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context.summary_threshold")

	require.NoError(t, os.WriteFile(path, []byte("[ollama]\nconnect_timeout = \"soon\"\n"), 0600))
	_, err = LoadFromPath(path)
	assert.Error(t, err)
}

func TestLoad_PrefersTOML(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{"server":{"port":7000}}`), 0600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.Server.Port)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte("[server]\nport = 7001\n"), 0600))
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, 7001, cfg.Server.Port)
}

func TestApplyEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("OLLAMA_BASE_URL", "http://legacy:11434")
	t.Setenv("RIGCHAT_OLLAMA_URL", "http://gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "phi3:mini")
	t.Setenv("OLLAMA_TIMEOUT", "600")
	t.Setenv("OLLAMA_STREAM_READ_TIMEOUT", "90s")
	t.Setenv("MAX_RECENT_MESSAGES", "20")
	t.Setenv("SUMMARY_THRESHOLD", "25")
	t.Setenv("FLASK_HOST", "0.0.0.0")
	t.Setenv("FLASK_PORT", "8080")
	t.Setenv("CONTEXT_WINDOW_SIZE", "not-a-number")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "http://gpu-box:11434", cfg.Ollama.BaseURL, "RIGCHAT_ wins over legacy name")
	assert.Equal(t, "phi3:mini", cfg.Ollama.DefaultModel)
	assert.Equal(t, 600*time.Second, cfg.Ollama.RequestTimeout.Std())
	assert.Equal(t, 90*time.Second, cfg.Ollama.StreamReadTimeout.Std())
	assert.Equal(t, 20, cfg.Context.MaxRecentMessages)
	assert.Equal(t, 25, cfg.Context.SummaryThreshold)
	assert.Equal(t, 4096, cfg.Context.ContextWindowSize, "invalid value ignored")
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestConfig_GetSet(t *testing.T) {
	cfg := Default()

	val, err := cfg.Get("ollama.base_url")
	require.NoError(t, err)
	if val != "http://localhost:11434" {
		t.Errorf("Get('ollama.base_url') = %v, want default", val)
	}

	require.NoError(t, cfg.Set("server.port", "5050"))
	assert.Equal(t, 5050, cfg.Server.Port)

	require.NoError(t, cfg.Set("ollama.request_timeout", "2m"))
	assert.Equal(t, 2*time.Minute, cfg.Ollama.RequestTimeout.Std())

	require.NoError(t, cfg.Set("server.allowed_origins", "http://a, http://b"))
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.Server.AllowedOrigins)

	_, err = cfg.Get("invalid.key")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("server.port", "many"))

	for _, key := range GetAllKeys() {
		_, err := cfg.Get(key)
		assert.NoError(t, err, key)
	}
}

func TestConfig_Clone(t *testing.T) {
	original := Default()
	clone := original.Clone()
	clone.Server.AllowedOrigins[0] = "changed"
	clone.Version = "cloned"

	assert.NotEqual(t, "changed", original.Server.AllowedOrigins[0])
	assert.NotEqual(t, "cloned", original.Version)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Ollama.DefaultModel = "gemma:2b"
	cfg.Ollama.ModelCacheTTL = Duration(5 * time.Minute)
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	if perm := info.Mode().Perm(); perm != 0600 && perm != 0666 {
		t.Errorf("config mode = %o", perm)
	}

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "gemma:2b", loaded.Ollama.DefaultModel)
	assert.Equal(t, 5*time.Minute, loaded.Ollama.ModelCacheTTL.Std())
	assert.Contains(t, loaded.String(), `default_model = "gemma:2b"`)
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[log]\nlevel = \"info\"\n"), 0600))

	got := make(chan *Config, 4)
	w, err := WatchWithDebounce(t.Context(), path, 20*time.Millisecond, func(c *Config, err error) {
		if err == nil {
			got <- c
		}
	})
	require.NoError(t, err)
	defer w.Close()

	cfg := Default()
	cfg.Log.Level = "debug"
	require.NoError(t, SaveTOML(cfg, path))

	select {
	case c := <-got:
		assert.Equal(t, "debug", c.Log.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload after config change")
	}
}
