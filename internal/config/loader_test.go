package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	for _, s := range settings(DefaultConfig()) {
		t.Setenv(EnvVar(s.key), "")
		os.Unsetenv(EnvVar(s.key))
	}
	return home
}

func TestLoadDefaults(t *testing.T) {
	isolateEnv(t)

	loader := NewLoader()
	loader.SetDotenvFile("")
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "http://localhost:8000", cfg.API.BaseURL)
	require.Equal(t, DefaultOperatorID, cfg.API.OperatorID)
	require.Equal(t, 5*time.Second, cfg.Session.PollInterval)
	require.Equal(t, 15*time.Second, cfg.API.Timeout)
	require.Equal(t, "default", cfg.TUI.Theme)
	require.True(t, cfg.Journal.Enabled)
}

func TestLoadConfigFileThenEnvOverride(t *testing.T) {
	home := isolateEnv(t)

	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  base_url: http://tony.internal:9000/
  operator_id: maria
session:
  poll_interval: 2s
logging:
  level: debug
`), 0o600))

	t.Setenv("TONY_API_OPERATOR_ID", "lucia")

	loader := NewLoader()
	loader.SetDotenvFile("")
	loader.SetConfigFile(path)
	cfg, err := loader.Load()
	require.NoError(t, err)

	require.Equal(t, "http://tony.internal:9000", cfg.API.BaseURL)
	require.Equal(t, "lucia", cfg.API.OperatorID)
	require.Equal(t, 2*time.Second, cfg.Session.PollInterval)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, path, loader.ConfigFileUsed())
}

func TestLoadDotenv(t *testing.T) {
	home := isolateEnv(t)

	dotenv := filepath.Join(home, ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("TONY_API_TOKEN=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TONY_API_TOKEN") })

	loader := NewLoader()
	loader.SetDotenvFile(dotenv)
	cfg, err := loader.Load()
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.API.Token)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	isolateEnv(t)

	loader := NewLoader()
	loader.SetDotenvFile("")
	loader.SetConfigFile(filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := loader.Load()
	require.Error(t, err)
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.API.BaseURL = "not a url"
	cfg.Session.PollInterval = time.Millisecond
	cfg.Logging.Format = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "api.base_url")
	require.Contains(t, err.Error(), "session.poll_interval")
	require.Contains(t, err.Error(), "logging.format")
}

func TestEnvVar(t *testing.T) {
	require.Equal(t, "TONY_SESSION_POLL_INTERVAL", EnvVar("session.poll_interval"))
}

func TestExpandTilde(t *testing.T) {
	home := isolateEnv(t)
	require.Equal(t, filepath.Join(home, "logs", "tony.log"), expandTilde("~/logs/tony.log"))
	require.Equal(t, "/var/log/tony.log", expandTilde("/var/log/tony.log"))
}
