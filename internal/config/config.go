// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for grokcli.
//
// Configuration is read from ~/.grokcli/config.toml with sensible defaults
// and environment variable overrides. The API key is never written to the
// config file; it comes from the GROK_API_KEY environment variable only.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/grokcli/internal/model"
	"github.com/morganforge/grokcli/internal/util"
)

// ConfigFileName is the name of the config file inside the config directory.
const ConfigFileName = "config.toml"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete grokcli configuration.
type Config struct {
	// DefaultModel is the model selected at startup
	DefaultModel string `toml:"default_model" json:"default_model"`

	// API configuration
	API APIConfig `toml:"api" json:"api"`

	// History configuration
	History HistoryConfig `toml:"history" json:"history"`

	// Tools configuration
	Tools ToolsConfig `toml:"tools" json:"tools"`

	// Admin elevation configuration
	Admin AdminConfig `toml:"admin" json:"admin"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// APIKey is the xAI API key, sourced from GROK_API_KEY.
	// Never serialized to disk.
	APIKey string `toml:"-" json:"-"`
}

// APIConfig contains transport settings for the xAI API.
type APIConfig struct {
	// BaseURL is the API base URL
	BaseURL string `toml:"base_url" json:"base_url"`
	// TimeoutSecs is the per-request timeout in seconds
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries is the retry attempt count for transient failures
	MaxRetries int `toml:"max_retries" json:"max_retries"`
	// RequestsPerMinute caps the client-side request rate (0 = unlimited)
	RequestsPerMinute int `toml:"requests_per_minute" json:"requests_per_minute"`
}

// HistoryConfig controls session persistence.
type HistoryConfig struct {
	// SaveSession enables saving the session snapshot on exit
	SaveSession bool `toml:"save_session" json:"save_session"`
	// KeepMessages is how many trailing conversation messages to persist
	KeepMessages int `toml:"keep_messages" json:"keep_messages"`
}

// ToolsConfig controls system command execution.
type ToolsConfig struct {
	// ExecTimeoutSecs is the subprocess timeout in seconds
	ExecTimeoutSecs int `toml:"exec_timeout_secs" json:"exec_timeout_secs"`
	// MaxOutputBytes caps captured subprocess output
	MaxOutputBytes int `toml:"max_output_bytes" json:"max_output_bytes"`
}

// AdminConfig controls the admin elevation window.
type AdminConfig struct {
	// TOTPSecret is the base32 TOTP secret used by /request admin.
	// Empty means elevation is unavailable.
	TOTPSecret string `toml:"totp_secret" json:"totp_secret"`
	// ElevationMinutes is how long an elevation lasts
	ElevationMinutes int `toml:"elevation_minutes" json:"elevation_minutes"`
}

// UIConfig contains presentation settings.
type UIConfig struct {
	// Markdown enables markdown rendering of responses on a TTY
	Markdown bool `toml:"markdown" json:"markdown"`
	// Quiet suppresses per-exchange stats lines
	Quiet bool `toml:"quiet" json:"quiet"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultModel: model.DefaultModel,
		API: APIConfig{
			BaseURL:           "https://api.x.ai/v1",
			TimeoutSecs:       60,
			MaxRetries:        3,
			RequestsPerMinute: 60,
		},
		History: HistoryConfig{
			SaveSession:  true,
			KeepMessages: 10,
		},
		Tools: ToolsConfig{
			ExecTimeoutSecs: 30,
			MaxOutputBytes:  100000,
		},
		Admin: AdminConfig{
			ElevationMinutes: 15,
		},
		UI: UIConfig{
			Markdown: true,
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the grokcli config directory (~/.grokcli).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".grokcli"), nil
}

// EnsureConfigDir creates the config directory if it does not exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the configuration from disk, applies environment overrides,
// and validates the result. A missing config file is not an error; defaults
// are used.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the configuration from a specific path.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config parse failed: %w", err)
		}
	case os.IsNotExist(err):
		// Defaults apply.
	default:
		return nil, fmt.Errorf("config read failed: %w", err)
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv("GROK_API_KEY")); key != "" {
		c.APIKey = key
	}
	if base := strings.TrimSpace(os.Getenv("GROK_BASE_URL")); base != "" {
		c.API.BaseURL = base
	}
	if m := strings.TrimSpace(os.Getenv("GROK_MODEL")); m != "" {
		c.DefaultModel = m
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if !model.IsKnown(c.DefaultModel) {
		return fmt.Errorf("config error: default_model %q is not a known model", c.DefaultModel)
	}
	if c.API.BaseURL == "" {
		return fmt.Errorf("config error: api.base_url must not be empty")
	}
	if c.API.TimeoutSecs <= 0 {
		return fmt.Errorf("config error: api.timeout_secs must be positive, got %d", c.API.TimeoutSecs)
	}
	if c.API.MaxRetries < 0 {
		return fmt.Errorf("config error: api.max_retries must not be negative, got %d", c.API.MaxRetries)
	}
	if c.History.KeepMessages < 0 {
		return fmt.Errorf("config error: history.keep_messages must not be negative, got %d", c.History.KeepMessages)
	}
	if c.Tools.ExecTimeoutSecs <= 0 {
		return fmt.Errorf("config error: tools.exec_timeout_secs must be positive, got %d", c.Tools.ExecTimeoutSecs)
	}
	if c.Admin.ElevationMinutes <= 0 {
		return fmt.Errorf("config error: admin.elevation_minutes must be positive, got %d", c.Admin.ElevationMinutes)
	}
	return nil
}

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.TimeoutSecs) * time.Second
}

// ExecTimeout returns the subprocess timeout as a duration.
func (c *Config) ExecTimeout() time.Duration {
	return time.Duration(c.Tools.ExecTimeoutSecs) * time.Second
}

// ElevationWindow returns the admin elevation duration.
func (c *Config) ElevationWindow() time.Duration {
	return time.Duration(c.Admin.ElevationMinutes) * time.Minute
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default path with owner-only
// permissions. The API key is excluded by its toml:"-" tag.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to a specific path.
func (c *Config) SaveTo(path string) error {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("config encode failed: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("config write failed: %w", err)
	}
	return nil
}

// =============================================================================
// KEYED GET/SET (used by /config)
// =============================================================================

// Keys lists every key addressable via Get and Set, in display order.
func Keys() []string {
	return []string{
		"default_model",
		"api.base_url",
		"api.timeout_secs",
		"api.max_retries",
		"api.requests_per_minute",
		"history.save_session",
		"history.keep_messages",
		"tools.exec_timeout_secs",
		"tools.max_output_bytes",
		"admin.totp_secret",
		"admin.elevation_minutes",
		"ui.markdown",
		"ui.quiet",
	}
}

// Get returns the string form of a dotted config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "default_model":
		return c.DefaultModel, nil
	case "api.base_url":
		return c.API.BaseURL, nil
	case "api.timeout_secs":
		return strconv.Itoa(c.API.TimeoutSecs), nil
	case "api.max_retries":
		return strconv.Itoa(c.API.MaxRetries), nil
	case "api.requests_per_minute":
		return strconv.Itoa(c.API.RequestsPerMinute), nil
	case "history.save_session":
		return strconv.FormatBool(c.History.SaveSession), nil
	case "history.keep_messages":
		return strconv.Itoa(c.History.KeepMessages), nil
	case "tools.exec_timeout_secs":
		return strconv.Itoa(c.Tools.ExecTimeoutSecs), nil
	case "tools.max_output_bytes":
		return strconv.Itoa(c.Tools.MaxOutputBytes), nil
	case "admin.totp_secret":
		if c.Admin.TOTPSecret == "" {
			return "", nil
		}
		return "[set]", nil // never echo the secret back
	case "admin.elevation_minutes":
		return strconv.Itoa(c.Admin.ElevationMinutes), nil
	case "ui.markdown":
		return strconv.FormatBool(c.UI.Markdown), nil
	case "ui.quiet":
		return strconv.FormatBool(c.UI.Quiet), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Set updates a dotted config key from its string form, validating the
// resulting configuration before accepting the change.
func (c *Config) Set(key, value string) error {
	updated := *c

	switch key {
	case "default_model":
		updated.DefaultModel = value
	case "api.base_url":
		updated.API.BaseURL = value
	case "api.timeout_secs":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		updated.API.TimeoutSecs = n
	case "api.max_retries":
		n, err := parseNonNegativeInt(key, value)
		if err != nil {
			return err
		}
		updated.API.MaxRetries = n
	case "api.requests_per_minute":
		n, err := parseNonNegativeInt(key, value)
		if err != nil {
			return err
		}
		updated.API.RequestsPerMinute = n
	case "history.save_session":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		updated.History.SaveSession = b
	case "history.keep_messages":
		n, err := parseNonNegativeInt(key, value)
		if err != nil {
			return err
		}
		updated.History.KeepMessages = n
	case "tools.exec_timeout_secs":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		updated.Tools.ExecTimeoutSecs = n
	case "tools.max_output_bytes":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		updated.Tools.MaxOutputBytes = n
	case "admin.totp_secret":
		updated.Admin.TOTPSecret = value
	case "admin.elevation_minutes":
		n, err := parsePositiveInt(key, value)
		if err != nil {
			return err
		}
		updated.Admin.ElevationMinutes = n
	case "ui.markdown":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		updated.UI.Markdown = b
	case "ui.quiet":
		b, err := parseBool(key, value)
		if err != nil {
			return err
		}
		updated.UI.Quiet = b
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}

	if err := updated.Validate(); err != nil {
		return err
	}
	*c = updated
	return nil
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("config key %s expects true/false, got %q", key, value)
	}
	return b, nil
}

func parsePositiveInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("config key %s expects a positive integer, got %q", key, value)
	}
	return n, nil
}

func parseNonNegativeInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config key %s expects a non-negative integer, got %q", key, value)
	}
	return n, nil
}

// =============================================================================
// GLOBAL ACCESS
// =============================================================================

var (
	globalMu  sync.RWMutex
	globalCfg *Config
)

// Global returns the process-wide configuration, loading it on first use.
// Load errors fall back to defaults; startup validation happens in main.
func Global() *Config {
	globalMu.RLock()
	if globalCfg != nil {
		defer globalMu.RUnlock()
		return globalCfg
	}
	globalMu.RUnlock()

	cfg, err := Load()
	if err != nil {
		cfg = Default()
		cfg.applyEnv()
	}
	SetGlobal(cfg)
	return cfg
}

// SetGlobal replaces the process-wide configuration.
// Used by the watcher after a successful reload.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	globalCfg = cfg
	globalMu.Unlock()
}
