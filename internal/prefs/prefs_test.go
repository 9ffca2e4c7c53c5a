package prefs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tony-assistant/console/internal/models"
)

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tony", "console-state.json")

	m := New(path)
	require.NoError(t, m.Load())
	require.Empty(t, m.Token())

	require.NoError(t, m.SetToken("  tok-123 "))
	require.NoError(t, m.SetTheme("high-contrast"))
	require.NoError(t, m.SetLastConversation("c9"))
	require.NoError(t, m.SetFilters(models.ConversationFilters{Status: models.StatusPending, Tags: []string{"vip"}}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	snap := reloaded.Snapshot()
	require.Equal(t, "tok-123", snap.Token)
	require.Equal(t, "high-contrast", snap.Theme)
	require.Equal(t, "c9", snap.LastConversationID)
	require.Equal(t, models.StatusPending, snap.Filters.Status)
	require.Equal(t, []string{"vip"}, snap.Filters.Tags)
	require.Equal(t, CurrentVersion, snap.Version)
	require.False(t, snap.UpdatedAt.IsZero())
}

func TestClearToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	m := New(path)
	require.NoError(t, m.SetToken("tok"))
	require.NoError(t, m.SetLastConversation("c1"))
	require.NoError(t, m.ClearToken())

	reloaded := New(path)
	require.NoError(t, reloaded.Load())
	require.Empty(t, reloaded.Token())
	require.Empty(t, reloaded.Snapshot().LastConversationID)
}

func TestSetThemeRejectsUnknown(t *testing.T) {
	m := New("")
	require.ErrorIs(t, m.SetTheme("neon"), ErrUnknownTheme)
	require.NoError(t, m.SetTheme("auto"))
	require.Equal(t, "auto", m.Theme())
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	require.Error(t, New(path).Load())
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	m := New(path)
	require.NoError(t, m.Load())
	require.Equal(t, CurrentVersion, m.Snapshot().Version)
}
