package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. TONY_API_BASE_URL.
const EnvPrefix = "TONY"

// Loader resolves a Config from defaults, a YAML file, a .env file and
// TONY_* environment variables, in increasing precedence. CLI flags are
// applied by the caller on top.
type Loader struct {
	v          *viper.Viper
	configFile string
	dotenvFile string
}

// NewLoader creates a loader that searches the standard config paths and
// reads ./.env when present.
func NewLoader() *Loader {
	return &Loader{v: viper.New(), dotenvFile: ".env"}
}

// SetConfigFile loads path instead of searching. A missing explicit file is
// an error.
func (l *Loader) SetConfigFile(path string) {
	l.configFile = path
}

// SetDotenvFile sets the .env file consulted before env overrides. Empty disables it.
func (l *Loader) SetDotenvFile(path string) {
	l.dotenvFile = path
}

// ConfigFileUsed returns the config file that was read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

// Load builds and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if l.dotenvFile != "" {
		if _, err := os.Stat(l.dotenvFile); err == nil {
			// godotenv.Load keeps variables that are already set.
			if err := godotenv.Load(l.dotenvFile); err != nil {
				return nil, fmt.Errorf("failed to load %s: %w", l.dotenvFile, err)
			}
		}
	}

	cfg := DefaultConfig()
	v := l.v
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, dir := range searchPaths() {
		v.AddConfigPath(dir)
	}
	for _, s := range settings(cfg) {
		v.SetDefault(s.key, s.value)
		_ = v.BindEnv(s.key, EnvVar(s.key))
	}

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if l.configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.API.BaseURL), "/")
	for _, p := range []*string{&cfg.Global.DataDir, &cfg.Global.ConfigDir, &cfg.Journal.Path, &cfg.Logging.File} {
		*p = expandTilde(*p)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// EnvVar returns the environment variable that overrides key.
func EnvVar(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

type setting struct {
	key   string
	value any
}

// settings lists every config key with its default. Binding each key
// explicitly lets env overrides reach nested structs during Unmarshal.
func settings(cfg *Config) []setting {
	return []setting{
		{"global.data_dir", cfg.Global.DataDir},
		{"global.config_dir", cfg.Global.ConfigDir},
		{"api.base_url", cfg.API.BaseURL},
		{"api.timeout", cfg.API.Timeout},
		{"api.token", cfg.API.Token},
		{"api.operator_id", cfg.API.OperatorID},
		{"session.poll_interval", cfg.Session.PollInterval},
		{"session.notification_limit", cfg.Session.NotificationLimit},
		{"session.bulk_concurrency", cfg.Session.BulkConcurrency},
		{"logging.level", cfg.Logging.Level},
		{"logging.format", cfg.Logging.Format},
		{"logging.file", cfg.Logging.File},
		{"logging.enable_caller", cfg.Logging.EnableCaller},
		{"journal.enabled", cfg.Journal.Enabled},
		{"journal.path", cfg.Journal.Path},
		{"metrics.addr", cfg.Metrics.Addr},
		{"tui.theme", cfg.TUI.Theme},
		{"tui.show_timestamps", cfg.TUI.ShowTimestamps},
	}
}

func searchPaths() []string {
	var dirs []string
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		dirs = append(dirs, filepath.Join(xdg, "tony"))
	}
	if home, _ := os.UserHomeDir(); home != "" {
		dirs = append(dirs, filepath.Join(home, ".config", "tony"))
	}
	return append(dirs, ".")
}

// expandTilde expands a leading ~ to the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
