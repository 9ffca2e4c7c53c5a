package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tony-assistant/console/internal/models"
)

func (m *Model) renderHeader() string {
	title := m.theme.accent().Render("Tony Console")

	badge := m.theme.fg(m.theme.State.Online).Render("● connected")
	if !m.sess.Connected() {
		badge = m.theme.fg(m.theme.State.Offline).Render("○ offline")
	}

	parts := []string{title, badge, m.theme.muted().Render("operator " + m.sess.OperatorID())}
	if n := m.sess.UnreadNotifications(); n > 0 {
		parts = append(parts, m.theme.fg(m.theme.State.Warning).Render(fmt.Sprintf("🔔 %d", n)))
	}
	if summary := m.filterSummary(); summary != "" {
		parts = append(parts, m.theme.muted().Render(summary))
	}
	return truncate(strings.Join(parts, "  "), m.width)
}

func (m *Model) filterSummary() string {
	var parts []string
	if m.filters.Status != "" {
		parts = append(parts, "status="+string(m.filters.Status))
	}
	if m.filters.DateRange != models.DateRangeAny {
		parts = append(parts, "date="+string(m.filters.DateRange))
	}
	if len(m.filters.Tags) > 0 {
		parts = append(parts, "tag="+strings.Join(m.filters.Tags, ","))
	}
	if m.filters.Operator != "" {
		parts = append(parts, "operator="+m.filters.Operator)
	}
	if m.search != "" {
		parts = append(parts, fmt.Sprintf("search=%q", m.search))
	}
	return strings.Join(parts, " ")
}

func (m *Model) renderFooter() string {
	var line string
	switch m.focus {
	case focusSearch:
		line = "search: " + m.search + "▏  enter keep · esc clear"
	case focusCompose:
		line = m.composerPrompt() + m.input + "▏  enter send · esc cancel"
	case focusEditPending:
		line = "edit pending: " + m.input + "▏  enter approve · esc cancel"
	case focusEditMessage:
		line = "edit message: " + m.input + "▏  enter save · esc cancel"
	case focusBulk:
		line = fmt.Sprintf("broadcast to %d: %s▏  enter send · esc cancel", len(m.visible()), m.input)
	default:
		line = m.theme.muted().Render("enter open · i reply · m mode · a/r/e pending · / search · f d t o filters · n alerts · b bulk · ? help · q quit")
	}

	if m.status != "" && (m.statusUntil.IsZero() || m.now().Before(m.statusUntil)) {
		color := m.theme.Base.Foreground
		switch m.statusLevel {
		case models.NotificationError:
			color = m.theme.State.Error
		case models.NotificationWarning:
			color = m.theme.State.Warning
		case models.NotificationSuccess:
			color = m.theme.State.Online
		}
		status := m.theme.fg(color).Render(truncate(m.status, m.width))
		return lipgloss.JoinVertical(lipgloss.Left, status, truncate(line, m.width))
	}
	return truncate(line, m.width)
}

func (m *Model) composerPrompt() string {
	conv, ok := m.sess.Selected()
	if !ok {
		return "> "
	}
	return fmt.Sprintf("reply as %s > ", models.SenderModeFor(conv.Mode))
}

func (m *Model) renderList(width, height int) string {
	inner := maxInt(width-4, 1)
	rows := maxInt(height-2, 0)
	list := m.visible()

	var lines []string
	if len(list) == 0 {
		lines = append(lines, m.theme.muted().Render("No conversations"))
	}

	// Each conversation takes two lines.
	perPage := maxInt(rows/2, 1)
	start := 0
	if m.cursor >= perPage {
		start = m.cursor - perPage + 1
	}
	selected := m.sess.SelectedID()
	now := m.now()

	for i := start; i < len(list) && i < start+perPage; i++ {
		conv := list[i]
		marker := "  "
		if conv.ID == selected {
			marker = "▸ "
		}

		name := conv.User.Name
		badges := m.modeBadge(conv.Mode)
		if conv.HasPendingResponse() {
			badges += " " + m.theme.fg(m.theme.State.Warning).Render("!")
		}
		if conv.UnreadCount > 0 {
			badges += " " + m.theme.fg(m.theme.State.Pending).Render(fmt.Sprintf("(%d)", conv.UnreadCount))
		}
		ago := relativeTime(conv.LastActivity, now)
		top := truncate(marker+name, maxInt(inner-lipgloss.Width(badges)-len(ago)-2, 4)) + " " + badges
		top += strings.Repeat(" ", maxInt(inner-lipgloss.Width(top)-len(ago), 1)) + m.theme.muted().Render(ago)

		preview := ""
		if msg, ok := conv.LastMessage(); ok {
			preview = singleLine(msg.Content)
		}
		bottom := "  " + m.statusStyle(conv.Status).Render(truncate(preview, inner-2))

		if i == m.cursor {
			bg := lipgloss.NewStyle().Background(lipgloss.Color(m.theme.Selected)).Width(inner)
			top, bottom = bg.Render(top), bg.Render(bottom)
		}
		lines = append(lines, top, bottom)
	}

	return m.theme.panel(width, height, m.overlay == overlayNone && m.focus == focusList).
		Render(strings.Join(lines, "\n"))
}

func (m *Model) modeBadge(mode models.ConversationMode) string {
	color := m.theme.Base.Muted
	switch mode {
	case models.ModeManual:
		color = m.theme.Sender.Operator
	case models.ModeHybrid:
		color = m.theme.Sender.Bot
	}
	return m.theme.fg(color).Render("[" + string(mode) + "]")
}

func (m *Model) statusStyle(status models.ConversationStatus) lipgloss.Style {
	switch status {
	case models.StatusPending:
		return m.theme.fg(m.theme.Base.Foreground)
	case models.StatusInProgress:
		return m.theme.fg(m.theme.State.InProgress)
	default:
		return m.theme.muted()
	}
}

func (m *Model) senderStyle(sender models.Sender) lipgloss.Style {
	switch sender {
	case models.SenderUser:
		return m.theme.fg(m.theme.Sender.User).Bold(true)
	case models.SenderBot:
		return m.theme.fg(m.theme.Sender.Bot).Bold(true)
	default:
		return m.theme.fg(m.theme.Sender.Operator).Bold(true)
	}
}

func (m *Model) renderChat(width, height int) string {
	inner := maxInt(width-4, 1)
	rows := maxInt(height-2, 0)

	conv, ok := m.sess.Selected()
	if !ok {
		hint := m.theme.muted().Render("Select a conversation with enter")
		return m.theme.panel(width, height, false).Render(hint)
	}

	head := []string{
		m.theme.accent().Render(truncate(conv.User.Name, inner)),
		truncate(fmt.Sprintf("%s · %s · %s", conv.User.ID, conv.Status, conv.Mode), inner),
	}
	if len(conv.Tags) > 0 || conv.AssignedOperator != "" {
		meta := "tags: " + strings.Join(conv.Tags, ", ")
		if conv.AssignedOperator != "" {
			meta += " · operator: " + conv.AssignedOperator
		}
		head = append(head, m.theme.muted().Render(truncate(meta, inner)))
	}
	head = append(head, m.theme.muted().Render(strings.Repeat("─", inner)))

	pending := m.renderPending(conv, inner)

	var transcript []string
	for _, msg := range conv.Messages {
		label := string(msg.Sender)
		if m.showTimestamps && !msg.Timestamp.IsZero() {
			label = msg.Timestamp.In(m.now().Location()).Format("15:04") + " " + label
		}
		if msg.Edited {
			label += " (edited)"
		}
		transcript = append(transcript, m.senderStyle(msg.Sender).Render(label))
		for _, line := range wrapLines(msg.Content, inner-2) {
			transcript = append(transcript, "  "+line)
		}
	}

	// Keep the newest messages in view.
	room := maxInt(rows-len(head)-len(pending), 0)
	if len(transcript) > room {
		transcript = transcript[len(transcript)-room:]
	}

	lines := append(head, transcript...)
	lines = append(lines, pending...)
	return m.theme.panel(width, height, false).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderPending(conv models.Conversation, width int) []string {
	if !conv.HasPendingResponse() {
		return nil
	}
	title := "Pending response · a approve · r reject · e edit"
	if m.sess.IsPendingLoading(conv.ID) {
		title = "Pending response · working…"
	}
	color := m.theme.State.Warning
	if conv.PendingResponse.IsError {
		color = m.theme.State.Error
	}
	lines := []string{m.theme.fg(color).Bold(true).Render(truncate(title, width))}
	for _, line := range wrapLines(conv.PendingResponse.Content, width-2) {
		lines = append(lines, m.theme.fg(color).Render("  "+line))
	}
	return lines
}

func (m *Model) renderNotifications(width, height int) string {
	notes := m.sess.Notifications()
	inner := maxInt(width-4, 1)
	lines := []string{m.theme.accent().Render(fmt.Sprintf("Notifications (%d unread)", m.sess.UnreadNotifications()))}
	if len(notes) == 0 {
		lines = append(lines, m.theme.muted().Render("Nothing new"))
	}
	now := m.now()
	for i, n := range notes {
		if len(lines) >= height-3 {
			break
		}
		marker := "  "
		if i == m.noteCursor {
			marker = "▸ "
		}
		dot := "  "
		if !n.Read {
			dot = m.theme.fg(m.theme.State.Pending).Render("● ")
		}
		text := n.Title + ": " + singleLine(n.Message)
		lines = append(lines, marker+dot+truncate(text, inner-10)+" "+m.theme.muted().Render(relativeTime(n.Timestamp, now)))
	}
	lines = append(lines, "", m.theme.muted().Render("enter open · d delete · A mark all read · C clear · esc close"))
	return m.theme.panel(width, height, true).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderQuickResponses(width, height int) string {
	quick := m.sess.QuickResponses()
	inner := maxInt(width-4, 1)
	lines := []string{m.theme.accent().Render("Quick responses")}
	if len(quick) == 0 {
		lines = append(lines, m.theme.muted().Render("None configured"))
	}
	for i, q := range quick {
		if len(lines) >= height-3 {
			break
		}
		marker := "  "
		if i == m.quickCursor {
			marker = "▸ "
		}
		category := m.theme.muted().Render("[" + q.Category + "] ")
		lines = append(lines, marker+category+truncate(q.Text, inner-lipgloss.Width(category)-2))
	}
	lines = append(lines, "", m.theme.muted().Render("enter insert · esc close"))
	return m.theme.panel(width, height, true).Render(strings.Join(lines, "\n"))
}

var helpLines = []string{
	"j/k, ↑/↓     move",
	"enter        open conversation (marks it read)",
	"i, tab       reply to the open conversation",
	"E            edit the newest bot/operator message",
	"c            insert a quick response",
	"m            cycle mode auto → manual → hybrid",
	"a / r / e    approve, reject or edit the pending response",
	"/            search names, tags and messages",
	"f / d / t    cycle status, date range, tag filters",
	"o            only my conversations",
	"x            clear filters and search",
	"b            broadcast to every listed conversation",
	"n            notifications",
	"T            toggle timestamps",
	"ctrl+r       refresh now",
	"q            quit",
}

func (m *Model) renderHelp(width, height int) string {
	lines := append([]string{m.theme.accent().Render("Keys")}, helpLines...)
	return m.theme.panel(width, height, true).Render(strings.Join(lines, "\n"))
}
