// Package tui is the interactive operator console built on bubbletea.
package tui

import (
	"context"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/prefs"
	"github.com/tony-assistant/console/internal/session"
)

const statusTTL = 4 * time.Second

// Config configures the console UI.
type Config struct {
	Theme          string
	ShowTimestamps bool
	// Prefs, when set, restores and saves filters and the last conversation.
	Prefs *prefs.Manager
	Now   func() time.Time
}

type focusArea int

const (
	focusList focusArea = iota
	focusCompose
	focusSearch
	focusEditPending
	focusEditMessage
	focusBulk
)

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayHelp
	overlayNotifications
	overlayQuickResponses
)

// Model is the root bubbletea model.
type Model struct {
	sess   *session.Session
	prefs  *prefs.Manager
	theme  Theme
	now    func() time.Time
	logger zerolog.Logger

	ctx         context.Context
	events      <-chan session.Event
	unsubscribe func()

	width  int
	height int

	showTimestamps bool
	focus          focusArea
	overlay        overlayKind

	cursor      int
	filters     models.ConversationFilters
	search      string
	input       string
	editTarget  string
	noteCursor  int
	quickCursor int
	tagIndex    int

	status      string
	statusLevel models.NotificationType
	statusUntil time.Time
}

// New creates the model. The session must already be open.
func New(ctx context.Context, sess *session.Session, cfg Config) (*Model, error) {
	theme, err := ResolveTheme(strings.TrimSpace(cfg.Theme))
	if err != nil {
		return nil, err
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if ctx == nil {
		ctx = context.Background()
	}

	events, unsubscribe := sess.Subscribe()
	m := &Model{
		sess:           sess,
		prefs:          cfg.Prefs,
		theme:          theme,
		now:            now,
		logger:         logging.Component("tui"),
		ctx:            ctx,
		events:         events,
		unsubscribe:    unsubscribe,
		showTimestamps: cfg.ShowTimestamps,
		tagIndex:       -1,
	}
	if m.prefs != nil {
		state := m.prefs.Snapshot()
		if state.Filters.Validate() == nil {
			m.filters = state.Filters
		}
	}
	return m, nil
}

// Run opens the console full screen until the operator quits or ctx ends.
func Run(ctx context.Context, sess *session.Session, cfg Config) error {
	model, err := New(ctx, sess, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = program.Run()
	return err
}

// Close ends the session subscription.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{waitForEvent(m.events)}
	if m.prefs != nil {
		if id := m.prefs.Snapshot().LastConversationID; id != "" {
			if _, ok := m.sess.Conversation(id); ok {
				m.moveCursorTo(id)
				cmds = append(cmds, m.selectCmd(id))
			}
		}
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil
	case sessionEventMsg:
		if typed.closed {
			return m, tea.Quit
		}
		m.handleEvent(typed.event)
		return m, waitForEvent(m.events)
	case actionDoneMsg:
		m.handleActionDone(typed)
		return m, nil
	case broadcastDoneMsg:
		m.handleBroadcastDone(typed)
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleEvent(e session.Event) {
	switch e.Kind {
	case session.EventConnection:
		if e.Connected {
			m.setStatus("Reconnected", models.NotificationSuccess)
		} else {
			m.setStatus("Backend unreachable, retrying", models.NotificationError)
		}
	case session.EventNotification:
		if e.Notification != nil {
			m.setStatus(e.Notification.Title+": "+e.Notification.Message, models.NotificationInfo)
		}
	}
	m.clampCursor()
}

func (m *Model) setStatus(text string, level models.NotificationType) {
	m.status = strings.TrimSpace(text)
	m.statusLevel = level
	m.statusUntil = m.now().Add(statusTTL)
}

// visible returns the conversations the list shows.
func (m *Model) visible() []models.Conversation {
	return m.sess.Filtered(m.filters, m.search)
}

func (m *Model) current() (models.Conversation, bool) {
	list := m.visible()
	if len(list) == 0 {
		return models.Conversation{}, false
	}
	return list[clampInt(m.cursor, 0, len(list)-1)], true
}

func (m *Model) clampCursor() {
	m.cursor = clampInt(m.cursor, 0, maxInt(len(m.visible())-1, 0))
}

func (m *Model) moveCursorTo(id string) {
	for i, conv := range m.visible() {
		if conv.ID == id {
			m.cursor = i
			return
		}
	}
}

func (m *Model) saveFilters() {
	if m.prefs == nil {
		return
	}
	if err := m.prefs.SetFilters(m.filters); err != nil {
		m.logger.Warn().Err(err).Msg("failed to save filters")
	}
}

func (m *Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "loading…"
	}

	header := m.renderHeader()
	footer := m.renderFooter()
	bodyHeight := maxInt(m.height-lipgloss.Height(header)-lipgloss.Height(footer), 0)

	var body string
	switch m.overlay {
	case overlayHelp:
		body = m.renderHelp(m.width, bodyHeight)
	case overlayNotifications:
		body = m.renderNotifications(m.width, bodyHeight)
	case overlayQuickResponses:
		body = m.renderQuickResponses(m.width, bodyHeight)
	default:
		listWidth := clampInt(m.width/3, 24, 48)
		if m.width < 60 {
			listWidth = m.width
		}
		list := m.renderList(listWidth, bodyHeight)
		if listWidth >= m.width {
			body = list
		} else {
			chat := m.renderChat(m.width-listWidth, bodyHeight)
			body = lipgloss.JoinHorizontal(lipgloss.Top, list, chat)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}
