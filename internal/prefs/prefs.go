// Package prefs persists the console's small client-side state: the auth
// token, the theme and the last filters used.
package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/goccy/go-json"

	"github.com/tony-assistant/console/internal/models"
)

// CurrentVersion is the on-disk schema version.
const CurrentVersion = 1

// Themes accepted by SetTheme. "auto" follows the terminal background.
var Themes = []string{"default", "high-contrast", "auto"}

// ErrUnknownTheme is returned by SetTheme for names outside Themes.
var ErrUnknownTheme = errors.New("unknown theme")

// State is the persisted payload.
type State struct {
	Version            int                        `json:"version"`
	Token              string                     `json:"token,omitempty"`
	Theme              string                     `json:"theme,omitempty"`
	LastConversationID string                     `json:"last_conversation_id,omitempty"`
	Filters            models.ConversationFilters `json:"filters,omitempty"`
	UpdatedAt          time.Time                  `json:"updated_at,omitempty"`
}

// Manager loads and saves State under an advisory file lock.
type Manager struct {
	path     string
	lockPath string

	mu    sync.Mutex
	state State
}

// New creates a Manager for path. An empty path keeps state in memory only.
func New(path string) *Manager {
	path = strings.TrimSpace(path)
	lock := ""
	if path != "" {
		lock = path + ".lock"
	}
	return &Manager{
		path:     path,
		lockPath: lock,
		state:    State{Version: CurrentVersion},
	}
}

// Path returns the backing file path.
func (m *Manager) Path() string { return m.path }

// Load reads state from disk. A missing file is not an error.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.path == "" {
		return nil
	}

	var out State
	err := withFileLock(m.lockPath, func() error {
		payload, err := os.ReadFile(m.path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				out = State{Version: CurrentVersion}
				return nil
			}
			return err
		}
		if len(payload) == 0 {
			out = State{Version: CurrentVersion}
			return nil
		}
		return json.Unmarshal(payload, &out)
	})
	if err != nil {
		return fmt.Errorf("load preferences %s: %w", m.path, err)
	}
	if out.Version <= 0 {
		out.Version = CurrentVersion
	}
	m.state = out
	return nil
}

// Snapshot returns a copy of the current state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.state
	out.Filters.Tags = append([]string(nil), m.state.Filters.Tags...)
	return out
}

// Token returns the saved auth token.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Token
}

// SetToken stores the auth token and saves.
func (m *Manager) SetToken(token string) error {
	return m.update(func(s *State) { s.Token = strings.TrimSpace(token) })
}

// ClearToken removes the auth token and the last selection, then saves.
func (m *Manager) ClearToken() error {
	return m.update(func(s *State) {
		s.Token = ""
		s.LastConversationID = ""
	})
}

// Theme returns the saved theme, or "" when unset.
func (m *Manager) Theme() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Theme
}

// SetTheme validates and stores the theme.
func (m *Manager) SetTheme(theme string) error {
	theme = strings.TrimSpace(theme)
	known := false
	for _, t := range Themes {
		if t == theme {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("%w: %q (want %s)", ErrUnknownTheme, theme, strings.Join(Themes, ", "))
	}
	return m.update(func(s *State) { s.Theme = theme })
}

// SetLastConversation remembers the selected conversation.
func (m *Manager) SetLastConversation(id string) error {
	return m.update(func(s *State) { s.LastConversationID = id })
}

// SetFilters remembers the list filters.
func (m *Manager) SetFilters(f models.ConversationFilters) error {
	f.Tags = append([]string(nil), f.Tags...)
	return m.update(func(s *State) { s.Filters = f })
}

func (m *Manager) update(fn func(*State)) error {
	m.mu.Lock()
	fn(&m.state)
	m.state.Version = CurrentVersion
	m.state.UpdatedAt = time.Now().UTC()
	snapshot := m.state
	m.mu.Unlock()

	if m.path == "" {
		return nil
	}
	return withFileLock(m.lockPath, func() error {
		return writeAtomicJSON(m.path, snapshot)
	})
}

func withFileLock(lockPath string, fn func() error) error {
	if strings.TrimSpace(lockPath) == "" {
		return fn()
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return fmt.Errorf("lock %s: %w", lockPath, err)
	}
	defer func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
	}()
	return fn()
}

// writeAtomicJSON writes via a temp file and rename. The file holds a
// token, so it is owner-only.
func writeAtomicJSON(path string, state State) error {
	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
