// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for rigchat.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.rigchat/config.toml
//   - ~/.rigchat/config.json
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete rigchat configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Ollama connection and model settings
	Ollama OllamaConfig `toml:"ollama" json:"ollama"`

	// Context window policy
	Context ContextConfig `toml:"context" json:"context"`

	// Conversation storage
	Storage StorageConfig `toml:"storage" json:"storage"`

	// HTTP API server
	Server ServerConfig `toml:"server" json:"server"`

	// Logging
	Log LogConfig `toml:"log" json:"log"`
}

// OllamaConfig contains settings for the Ollama server.
type OllamaConfig struct {
	BaseURL           string   `toml:"base_url" json:"base_url"`
	DefaultModel      string   `toml:"default_model" json:"default_model"`
	ConnectTimeout    Duration `toml:"connect_timeout" json:"connect_timeout"`
	StreamReadTimeout Duration `toml:"stream_read_timeout" json:"stream_read_timeout"`
	RequestTimeout    Duration `toml:"request_timeout" json:"request_timeout"`
	// ModelCacheTTL of zero keeps the installed-model list until a pull or
	// delete invalidates it.
	ModelCacheTTL Duration `toml:"model_cache_ttl" json:"model_cache_ttl"`
}

// ContextConfig is the context window policy.
type ContextConfig struct {
	MaxRecentMessages int `toml:"max_recent_messages" json:"max_recent_messages"`
	SummaryThreshold  int `toml:"summary_threshold" json:"summary_threshold"`
	ContextWindowSize int `toml:"context_window_size" json:"context_window_size"`
}

// StorageConfig selects where conversations live.
type StorageConfig struct {
	// Backend is "file" or "sqlite".
	Backend string `toml:"backend" json:"backend"`
	// DataDir defaults to the config directory.
	DataDir string `toml:"data_dir" json:"data_dir"`
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`

	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// Duration is a time.Duration written as a string such as "30s" in config
// files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultModel       = "llama3.2:1b"
	DefaultHost        = "127.0.0.1"
	DefaultPort        = 5001
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "console"
	DefaultBackend     = "file"
	currentVersion     = "1"
	configDirName      = ".rigchat"
	configHomeEnv      = "RIGCHAT_HOME"
	defaultRateLimit   = 20
	defaultRateBurst   = 40
	defaultWindowSize  = 4096
	defaultRecent      = 30
	defaultSummaryFrom = 40
)

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version: currentVersion,
		Ollama: OllamaConfig{
			BaseURL:           DefaultOllamaURL,
			DefaultModel:      DefaultModel,
			ConnectTimeout:    Duration(30 * time.Second),
			StreamReadTimeout: Duration(120 * time.Second),
			RequestTimeout:    Duration(300 * time.Second),
		},
		Context: ContextConfig{
			MaxRecentMessages: defaultRecent,
			SummaryThreshold:  defaultSummaryFrom,
			ContextWindowSize: defaultWindowSize,
		},
		Storage: StorageConfig{
			Backend: DefaultBackend,
		},
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			RateLimit: defaultRateLimit,
			RateBurst: defaultRateBurst,
			AllowedOrigins: []string{
				"http://localhost:5001",
				"http://127.0.0.1:5001",
				"app://.",
			},
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the rigchat configuration directory path. RIGCHAT_HOME
// replaces ~/.rigchat when set.
func ConfigDir() (string, error) {
	if dir := os.Getenv(configHomeEnv); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, configDirName), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ActivePath returns the config file Load would read, or the TOML path when
// neither file exists.
func ActivePath() (string, error) {
	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(tomlPath); err == nil {
		return tomlPath, nil
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(jsonPath); err == nil {
		return jsonPath, nil
	}
	return tomlPath, nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ActivePath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file on top of cfg.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		fmt.Fprintf(os.Stderr, "Warning: unknown config keys in %s: %s\n", path, strings.Join(keys, ", "))
	}
	return nil
}

// LoadJSON loads configuration from a JSON file on top of cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full validation.
// Keys absent from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish applies env overrides, defaults and validation.
func (c *Config) finish() error {
	c.ApplyEnvOverrides()
	c.SetDefaults()
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML atomically writes the configuration to a TOML file with 0600
// permissions.
func SaveTOML(cfg *Config, path string) error {
	data, err := cfg.TOML()
	if err != nil {
		return err
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// TOML encodes the configuration.
func (c *Config) TOML() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// ==========================================================================
	// Ollama
	// ==========================================================================

	if u, err := url.Parse(c.Ollama.BaseURL); err != nil {
		add("ollama.base_url", "invalid URL: %v", err)
	} else if u.Scheme != "http" && u.Scheme != "https" {
		add("ollama.base_url", "must be an http or https URL, got %q", c.Ollama.BaseURL)
	} else if u.Host == "" {
		add("ollama.base_url", "missing host in %q", c.Ollama.BaseURL)
	}
	if strings.TrimSpace(c.Ollama.DefaultModel) == "" {
		add("ollama.default_model", "cannot be empty")
	}
	for field, d := range map[string]Duration{
		"ollama.connect_timeout":     c.Ollama.ConnectTimeout,
		"ollama.stream_read_timeout": c.Ollama.StreamReadTimeout,
		"ollama.request_timeout":     c.Ollama.RequestTimeout,
	} {
		if d <= 0 {
			add(field, "must be positive, got %s", d)
		}
	}
	if c.Ollama.ModelCacheTTL < 0 {
		add("ollama.model_cache_ttl", "cannot be negative")
	}

	// ==========================================================================
	// Context
	// ==========================================================================

	if c.Context.MaxRecentMessages <= 0 {
		add("context.max_recent_messages", "must be positive, got %d", c.Context.MaxRecentMessages)
	}
	if c.Context.SummaryThreshold < c.Context.MaxRecentMessages {
		add("context.summary_threshold", "must be >= max_recent_messages (%d), got %d",
			c.Context.MaxRecentMessages, c.Context.SummaryThreshold)
	}
	if c.Context.ContextWindowSize <= 0 {
		add("context.context_window_size", "must be positive, got %d", c.Context.ContextWindowSize)
	}

	// ==========================================================================
	// Storage
	// ==========================================================================

	switch strings.ToLower(c.Storage.Backend) {
	case "file", "sqlite":
	default:
		add("storage.backend", "invalid backend '%s', must be one of: file, sqlite", c.Storage.Backend)
	}

	// ==========================================================================
	// Server
	// ==========================================================================

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		add("server.rate_limit", "cannot be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		add("server.rate_burst", "must be at least 1 when rate_limit is set")
	}

	// ==========================================================================
	// Log
	// ==========================================================================

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		add("log.level", "invalid level '%s'", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		add("log.format", "invalid format '%s', must be one of: console, json", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills zero values with defaults. The data directory defaults
// to the config directory.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	if c.Ollama.BaseURL == "" {
		c.Ollama.BaseURL = defaults.Ollama.BaseURL
	}
	c.Ollama.BaseURL = strings.TrimRight(c.Ollama.BaseURL, "/")
	if c.Ollama.DefaultModel == "" {
		c.Ollama.DefaultModel = defaults.Ollama.DefaultModel
	}
	if c.Ollama.ConnectTimeout == 0 {
		c.Ollama.ConnectTimeout = defaults.Ollama.ConnectTimeout
	}
	if c.Ollama.StreamReadTimeout == 0 {
		c.Ollama.StreamReadTimeout = defaults.Ollama.StreamReadTimeout
	}
	if c.Ollama.RequestTimeout == 0 {
		c.Ollama.RequestTimeout = defaults.Ollama.RequestTimeout
	}

	if c.Context.MaxRecentMessages == 0 {
		c.Context.MaxRecentMessages = defaults.Context.MaxRecentMessages
	}
	if c.Context.SummaryThreshold == 0 {
		c.Context.SummaryThreshold = defaults.Context.SummaryThreshold
	}
	if c.Context.ContextWindowSize == 0 {
		c.Context.ContextWindowSize = defaults.Context.ContextWindowSize
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	c.Storage.Backend = strings.ToLower(c.Storage.Backend)
	if c.Storage.DataDir == "" {
		if dir, err := ConfigDir(); err == nil {
			c.Storage.DataDir = dir
		}
	}

	if c.Server.Host == "" {
		c.Server.Host = defaults.Server.Host
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst == 0 {
		c.Server.RateBurst = defaults.Server.RateBurst
	}
	if c.Server.AllowedOrigins == nil {
		c.Server.AllowedOrigins = defaults.Server.AllowedOrigins
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// Addr returns the server listen address.
func (c *Config) Addr() string {
	return c.Server.Addr()
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// RIGCHAT_* variables win over the legacy names listed beside them.
//
// Supported environment variables:
//   - RIGCHAT_OLLAMA_URL, OLLAMA_BASE_URL: ollama.base_url
//   - RIGCHAT_MODEL, OLLAMA_MODEL: ollama.default_model
//   - RIGCHAT_REQUEST_TIMEOUT, OLLAMA_TIMEOUT: ollama.request_timeout
//   - RIGCHAT_STREAM_READ_TIMEOUT, OLLAMA_STREAM_READ_TIMEOUT: ollama.stream_read_timeout
//   - MAX_RECENT_MESSAGES: context.max_recent_messages
//   - SUMMARY_THRESHOLD: context.summary_threshold
//   - CONTEXT_WINDOW_SIZE: context.context_window_size
//   - RIGCHAT_STORAGE: storage.backend
//   - RIGCHAT_DATA_DIR: storage.data_dir
//   - RIGCHAT_HOST, FLASK_HOST: server.host
//   - RIGCHAT_PORT, FLASK_PORT: server.port
//   - RIGCHAT_LOG_LEVEL, RIGCHAT_LOG_FORMAT: log.level, log.format
//
// Timeouts accept a Go duration ("90s") or a plain number of seconds.
func (c *Config) ApplyEnvOverrides() {
	if v := env("RIGCHAT_OLLAMA_URL", "OLLAMA_BASE_URL"); v != "" {
		c.Ollama.BaseURL = v
	}
	if v := env("RIGCHAT_MODEL", "OLLAMA_MODEL"); v != "" {
		c.Ollama.DefaultModel = v
	}
	envDuration(&c.Ollama.RequestTimeout, "RIGCHAT_REQUEST_TIMEOUT", "OLLAMA_TIMEOUT")
	envDuration(&c.Ollama.StreamReadTimeout, "RIGCHAT_STREAM_READ_TIMEOUT", "OLLAMA_STREAM_READ_TIMEOUT")

	envInt(&c.Context.MaxRecentMessages, "MAX_RECENT_MESSAGES")
	envInt(&c.Context.SummaryThreshold, "SUMMARY_THRESHOLD")
	envInt(&c.Context.ContextWindowSize, "CONTEXT_WINDOW_SIZE")

	if v := env("RIGCHAT_STORAGE"); v != "" {
		c.Storage.Backend = v
	}
	if v := env("RIGCHAT_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}

	if v := env("RIGCHAT_HOST", "FLASK_HOST"); v != "" {
		c.Server.Host = v
	}
	envInt(&c.Server.Port, "RIGCHAT_PORT", "FLASK_PORT")

	if v := env("RIGCHAT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("RIGCHAT_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// env returns the first non-empty variable among names.
func env(names ...string) string {
	for _, name := range names {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v
		}
	}
	return ""
}

func envInt(dst *int, names ...string) {
	v := env(names...)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: not an integer\n", names[0], v)
		return
	}
	*dst = n
}

func envDuration(dst *Duration, names ...string) {
	v := env(names...)
	if v == "" {
		return
	}
	d, err := parseDuration(v)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: ignoring %s=%q: %v\n", names[0], v, err)
		return
	}
	*dst = d
}

// parseDuration accepts "90s" style durations and bare seconds.
func parseDuration(s string) (Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	return Duration(d), nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "ollama.base_url").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "server.port").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

var durationType = reflect.TypeOf(Duration(0))

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		if field.Type() == durationType {
			d, err := parseDuration(strVal)
			if err != nil {
				return err
			}
			field.Set(reflect.ValueOf(d))
			return nil
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"ollama.base_url",
		"ollama.default_model",
		"ollama.connect_timeout",
		"ollama.stream_read_timeout",
		"ollama.request_timeout",
		"ollama.model_cache_ttl",
		"context.max_recent_messages",
		"context.summary_threshold",
		"context.context_window_size",
		"storage.backend",
		"storage.data_dir",
		"server.host",
		"server.port",
		"server.rate_limit",
		"server.rate_burst",
		"server.allowed_origins",
		"log.level",
		"log.format",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns the TOML rendering of the config.
func (c *Config) String() string {
	data, err := c.TOML()
	if err != nil {
		return err.Error()
	}
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.SetDefaults()
		}
		globalConfigMu.Lock()
		if globalConfig == nil {
			globalConfig = cfg
		}
		globalConfigMu.Unlock()
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	SetGlobal(cfg)
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
// This should only be used in tests to reset state between test runs.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
