package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tony-assistant/console/internal/filter"
	"github.com/tony-assistant/console/internal/models"
)

var (
	statusCycle = []models.ConversationStatus{"", models.StatusPending, models.StatusInProgress, models.StatusClosed}
	dateCycle   = []models.DateRange{
		models.DateRangeAny, models.DateRangeToday, models.DateRangeYesterday,
		models.DateRangeLastWeek, models.DateRangeLastMonth,
	}
	modeCycle = []models.ConversationMode{models.ModeAuto, models.ModeManual, models.ModeHybrid}
)

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	if msg.Type == tea.KeyCtrlC {
		return tea.Quit
	}
	if m.focus != focusList {
		return m.handleInputKey(msg)
	}
	switch m.overlay {
	case overlayHelp:
		if key := msg.String(); key == "?" || key == "esc" || key == "q" {
			m.overlay = overlayNone
		}
		return nil
	case overlayNotifications:
		return m.handleNotificationKey(msg)
	case overlayQuickResponses:
		return m.handleQuickResponseKey(msg)
	}
	return m.handleListKey(msg)
}

func (m *Model) handleListKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		return tea.Quit
	case "?":
		m.overlay = overlayHelp
	case "j", "down":
		m.cursor++
		m.clampCursor()
	case "k", "up":
		m.cursor--
		m.clampCursor()
	case "g", "home":
		m.cursor = 0
	case "G", "end":
		m.cursor = len(m.visible()) - 1
		m.clampCursor()
	case "enter":
		if conv, ok := m.current(); ok {
			return m.selectCmd(conv.ID)
		}
	case "i", "tab":
		if m.sess.SelectedID() == "" {
			m.setStatus("Select a conversation first (enter)", models.NotificationWarning)
			return nil
		}
		m.focus = focusCompose
	case "E":
		return m.beginEditMessage()
	case "m":
		if conv, ok := m.current(); ok {
			return m.modeCmd(conv.ID, nextMode(conv.Mode))
		}
	case "a":
		if conv, ok := m.pendingTarget(); ok {
			return m.approveCmd(conv.ID)
		}
	case "r":
		if conv, ok := m.pendingTarget(); ok {
			return m.rejectCmd(conv.ID)
		}
	case "e":
		if conv, ok := m.pendingTarget(); ok {
			m.editTarget = conv.ID
			m.input = conv.PendingResponse.Content
			m.focus = focusEditPending
		}
	case "/":
		m.focus = focusSearch
	case "f":
		m.filters.Status = nextInCycle(statusCycle, m.filters.Status)
		m.afterFilterChange()
	case "d":
		m.filters.DateRange = nextInCycle(dateCycle, m.filters.DateRange)
		m.afterFilterChange()
	case "t":
		m.cycleTag()
	case "o":
		if m.filters.Operator == "" {
			m.filters.Operator = m.sess.OperatorID()
		} else {
			m.filters.Operator = ""
		}
		m.afterFilterChange()
	case "x":
		m.filters = models.ConversationFilters{}
		m.search = ""
		m.tagIndex = -1
		m.afterFilterChange()
	case "n":
		m.overlay = overlayNotifications
		m.noteCursor = 0
	case "c":
		if m.sess.SelectedID() == "" {
			m.setStatus("Select a conversation first (enter)", models.NotificationWarning)
			return nil
		}
		m.overlay = overlayQuickResponses
		m.quickCursor = 0
	case "b":
		if len(m.visible()) == 0 {
			m.setStatus("No conversations match the current filters", models.NotificationWarning)
			return nil
		}
		m.input = ""
		m.focus = focusBulk
	case "T":
		m.showTimestamps = !m.showTimestamps
	case "ctrl+r":
		return m.refreshCmd()
	}
	return nil
}

// pendingTarget returns the cursor conversation when it has an actionable
// pending response.
func (m *Model) pendingTarget() (models.Conversation, bool) {
	conv, ok := m.current()
	if !ok {
		return models.Conversation{}, false
	}
	if !conv.HasPendingResponse() {
		m.setStatus("No pending response in this conversation", models.NotificationWarning)
		return models.Conversation{}, false
	}
	if m.sess.IsPendingLoading(conv.ID) {
		m.setStatus("Pending response action in progress", models.NotificationWarning)
		return models.Conversation{}, false
	}
	return conv, true
}

// beginEditMessage edits the newest console-authored message of the
// selected conversation.
func (m *Model) beginEditMessage() tea.Cmd {
	conv, ok := m.sess.Selected()
	if !ok {
		m.setStatus("Select a conversation first (enter)", models.NotificationWarning)
		return nil
	}
	for i := len(conv.Messages) - 1; i >= 0; i-- {
		msg := conv.Messages[i]
		if msg.Sender == models.SenderUser {
			continue
		}
		m.editTarget = msg.ID
		m.input = msg.Content
		m.focus = focusEditMessage
		return nil
	}
	m.setStatus("Nothing to edit in this conversation", models.NotificationWarning)
	return nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.Type {
	case tea.KeyEsc:
		if m.focus == focusSearch {
			m.search = ""
			m.clampCursor()
		}
		m.leaveInput()
		return nil
	case tea.KeyBackspace, tea.KeyCtrlH:
		if m.focus == focusSearch {
			m.search = dropLastRune(m.search)
			m.clampCursor()
		} else {
			m.input = dropLastRune(m.input)
		}
		return nil
	case tea.KeyCtrlU:
		if m.focus == focusSearch {
			m.search = ""
		} else {
			m.input = ""
		}
		return nil
	case tea.KeySpace:
		m.insert(" ")
		return nil
	case tea.KeyRunes:
		m.insert(string(msg.Runes))
		return nil
	case tea.KeyEnter:
		return m.submitInput()
	}
	return nil
}

func (m *Model) insert(s string) {
	if m.focus == focusSearch {
		m.search += s
		m.cursor = 0
		return
	}
	m.input += s
}

func (m *Model) submitInput() tea.Cmd {
	if m.focus == focusSearch {
		m.focus = focusList
		return nil
	}

	content := strings.TrimSpace(m.input)
	if content == "" {
		return nil
	}
	focus, target := m.focus, m.editTarget
	m.leaveInput()

	switch focus {
	case focusCompose:
		return m.sendCmd(content)
	case focusEditPending:
		return m.editAndApproveCmd(target, content)
	case focusEditMessage:
		return m.editMessageCmd(target, content)
	case focusBulk:
		list := m.visible()
		ids := make([]string, 0, len(list))
		for _, conv := range list {
			ids = append(ids, conv.ID)
		}
		return m.broadcastCmd(ids, content)
	}
	return nil
}

func (m *Model) leaveInput() {
	if m.focus != focusSearch {
		m.input = ""
	}
	m.editTarget = ""
	m.focus = focusList
}

func (m *Model) handleNotificationKey(msg tea.KeyMsg) tea.Cmd {
	notes := m.sess.Notifications()
	switch msg.String() {
	case "esc", "n", "q":
		m.overlay = overlayNone
	case "j", "down":
		m.noteCursor = clampInt(m.noteCursor+1, 0, maxInt(len(notes)-1, 0))
	case "k", "up":
		m.noteCursor = clampInt(m.noteCursor-1, 0, maxInt(len(notes)-1, 0))
	case "A":
		m.sess.MarkAllNotificationsRead()
	case "C":
		m.sess.ClearNotifications()
		m.noteCursor = 0
	case "d", "delete":
		if len(notes) > 0 {
			m.sess.DeleteNotification(notes[clampInt(m.noteCursor, 0, len(notes)-1)].ID)
			m.noteCursor = clampInt(m.noteCursor, 0, maxInt(len(notes)-2, 0))
		}
	case "enter":
		if len(notes) == 0 {
			return nil
		}
		note := notes[clampInt(m.noteCursor, 0, len(notes)-1)]
		m.sess.MarkNotificationRead(note.ID)
		m.overlay = overlayNone
		if note.ConversationID == "" {
			return nil
		}
		if _, ok := m.sess.Conversation(note.ConversationID); !ok {
			return nil
		}
		m.moveCursorTo(note.ConversationID)
		return m.selectCmd(note.ConversationID)
	}
	return nil
}

func (m *Model) handleQuickResponseKey(msg tea.KeyMsg) tea.Cmd {
	quick := m.sess.QuickResponses()
	switch msg.String() {
	case "esc", "c", "q":
		m.overlay = overlayNone
	case "j", "down":
		m.quickCursor = clampInt(m.quickCursor+1, 0, maxInt(len(quick)-1, 0))
	case "k", "up":
		m.quickCursor = clampInt(m.quickCursor-1, 0, maxInt(len(quick)-1, 0))
	case "enter":
		m.overlay = overlayNone
		if len(quick) == 0 {
			return nil
		}
		m.input = quick[clampInt(m.quickCursor, 0, len(quick)-1)].Text
		m.focus = focusCompose
	}
	return nil
}

func (m *Model) cycleTag() {
	tags := filter.Tags(m.sess.Conversations())
	if len(tags) == 0 {
		return
	}
	m.tagIndex++
	if m.tagIndex >= len(tags) {
		m.tagIndex = -1
		m.filters.Tags = nil
	} else {
		m.filters.Tags = []string{tags[m.tagIndex]}
	}
	m.afterFilterChange()
}

func (m *Model) afterFilterChange() {
	m.cursor = 0
	m.saveFilters()
}

func nextMode(mode models.ConversationMode) models.ConversationMode {
	return nextInCycle(modeCycle, mode)
}

func nextInCycle[T comparable](cycle []T, current T) T {
	for i, v := range cycle {
		if v == current {
			return cycle[(i+1)%len(cycle)]
		}
	}
	return cycle[0]
}
