// Package config handles Tony console configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/tony-assistant/console/internal/models"
)

// DefaultOperatorID is the operator identity used when neither config nor the
// auth token provide one.
const DefaultOperatorID = "operator1"

// Config is the root configuration structure for the console.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Backend API settings
	API APIConfig `yaml:"api" mapstructure:"api"`

	// Session (polling, notifications, bulk send) settings
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Journal settings
	Journal JournalConfig `yaml:"journal" mapstructure:"journal"`

	// Metrics settings
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`

	// TUI settings
	TUI TUIConfig `yaml:"tui" mapstructure:"tui"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where the console stores its data (default: ~/.local/share/tony).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config and preference files are stored (default: ~/.config/tony).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// APIConfig contains backend connection settings.
type APIConfig struct {
	// BaseURL is the Tony backend root, e.g. http://localhost:8000.
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`

	// Timeout bounds every request.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// Token is an optional bearer token. A token saved with `tony login`
	// is used when this is empty.
	Token string `yaml:"token" mapstructure:"token"`

	// OperatorID identifies this operator on outgoing writes.
	OperatorID string `yaml:"operator_id" mapstructure:"operator_id"`
}

// SessionConfig contains session behaviour settings.
type SessionConfig struct {
	// PollInterval is the conversation refresh cadence.
	PollInterval time.Duration `yaml:"poll_interval" mapstructure:"poll_interval"`

	// NotificationLimit caps the in-memory notification list.
	NotificationLimit int `yaml:"notification_limit" mapstructure:"notification_limit"`

	// BulkConcurrency bounds concurrent sends during a broadcast.
	BulkConcurrency int `yaml:"bulk_concurrency" mapstructure:"bulk_concurrency"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// JournalConfig controls the local activity journal.
type JournalConfig struct {
	// Enabled turns journaling on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`

	// Path is the SQLite file path (default: DataDir/journal.db).
	Path string `yaml:"path" mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables it.
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// TUIConfig contains TUI settings.
type TUIConfig struct {
	// Theme is the color theme (default, high-contrast).
	Theme string `yaml:"theme" mapstructure:"theme"`

	// ShowTimestamps shows message timestamps in the transcript.
	ShowTimestamps bool `yaml:"show_timestamps" mapstructure:"show_timestamps"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "tony"),
			ConfigDir: filepath.Join(homeDir, ".config", "tony"),
		},
		API: APIConfig{
			BaseURL:    "http://localhost:8000",
			Timeout:    15 * time.Second,
			OperatorID: DefaultOperatorID,
		},
		Session: SessionConfig{
			PollInterval:      5 * time.Second,
			NotificationLimit: 200,
			BulkConcurrency:   4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Journal: JournalConfig{
			Enabled: true,
		},
		TUI: TUIConfig{
			Theme:          "default",
			ShowTimestamps: true,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs models.FieldErrors

	if c.API.BaseURL == "" {
		errs.Rejectf("api.base_url", "is required")
	} else if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs.Rejectf("api.base_url", "must be an absolute URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		errs.Rejectf("api.timeout", "must be positive")
	}
	if c.Session.PollInterval < 100*time.Millisecond {
		errs.Rejectf("session.poll_interval", "must be at least 100ms")
	}
	if c.Session.NotificationLimit < 1 {
		errs.Rejectf("session.notification_limit", "must be at least 1")
	}
	if c.Session.BulkConcurrency < 1 {
		errs.Rejectf("session.bulk_concurrency", "must be at least 1")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		errs.Rejectf("logging.format", "must be one of console, json")
	}

	return errs.Err()
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Global.DataDir, c.Global.ConfigDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// JournalPath returns the full journal database path.
func (c *Config) JournalPath() string {
	if c.Journal.Path != "" {
		return c.Journal.Path
	}
	return filepath.Join(c.Global.DataDir, "journal.db")
}

// PrefsPath returns the persisted preferences file path.
func (c *Config) PrefsPath() string {
	return filepath.Join(c.Global.ConfigDir, "console-state.json")
}
