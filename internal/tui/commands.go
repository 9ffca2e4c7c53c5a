package tui

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/session"
)

type sessionEventMsg struct {
	event  session.Event
	closed bool
}

type actionDoneMsg struct {
	action         string
	conversationID string
	err            error
}

type broadcastDoneMsg struct {
	results []session.BroadcastResult
	err     error
}

func waitForEvent(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-events
		return sessionEventMsg{event: e, closed: !ok}
	}
}

func (m *Model) action(name, conversationID string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return actionDoneMsg{action: name, conversationID: conversationID, err: fn(ctx)}
	}
}

func (m *Model) selectCmd(id string) tea.Cmd {
	if m.prefs != nil {
		if err := m.prefs.SetLastConversation(id); err != nil {
			m.logger.Warn().Err(err).Msg("failed to save last conversation")
		}
	}
	return m.action("select", id, func(ctx context.Context) error {
		return m.sess.Select(ctx, id)
	})
}

func (m *Model) sendCmd(content string) tea.Cmd {
	id := m.sess.SelectedID()
	return m.action("send", id, func(ctx context.Context) error {
		_, err := m.sess.SendMessage(ctx, content)
		return err
	})
}

func (m *Model) editMessageCmd(messageID, content string) tea.Cmd {
	return m.action("edit", "", func(ctx context.Context) error {
		return m.sess.EditMessage(ctx, messageID, content)
	})
}

func (m *Model) modeCmd(id string, mode models.ConversationMode) tea.Cmd {
	return m.action("mode "+string(mode), id, func(ctx context.Context) error {
		return m.sess.ChangeMode(ctx, id, mode)
	})
}

func (m *Model) approveCmd(id string) tea.Cmd {
	return m.action("approve", id, func(ctx context.Context) error {
		_, err := m.sess.Approve(ctx, id)
		return err
	})
}

func (m *Model) rejectCmd(id string) tea.Cmd {
	return m.action("reject", id, func(ctx context.Context) error {
		return m.sess.Reject(ctx, id)
	})
}

func (m *Model) editAndApproveCmd(id, content string) tea.Cmd {
	return m.action("edit and approve", id, func(ctx context.Context) error {
		_, err := m.sess.EditAndApprove(ctx, id, content)
		return err
	})
}

func (m *Model) refreshCmd() tea.Cmd {
	return m.action("refresh", "", func(ctx context.Context) error {
		return m.sess.Poll(ctx)
	})
}

func (m *Model) broadcastCmd(ids []string, content string) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		results, err := m.sess.Broadcast(ctx, ids, content)
		return broadcastDoneMsg{results: results, err: err}
	}
}

func (m *Model) handleActionDone(msg actionDoneMsg) {
	switch {
	case msg.err == nil:
		switch msg.action {
		case "select", "refresh":
		default:
			m.setStatus(capitalize(msg.action)+" done", models.NotificationSuccess)
		}
	case errors.Is(msg.err, session.ErrKeptLocally):
		m.setStatus(capitalize(msg.action)+" kept locally: backend did not confirm", models.NotificationWarning)
	case errors.Is(msg.err, session.ErrClosed):
	default:
		m.setStatus(fmt.Sprintf("%s failed: %v", capitalize(msg.action), msg.err), models.NotificationError)
	}
	m.clampCursor()
}

func (m *Model) handleBroadcastDone(msg broadcastDoneMsg) {
	if msg.err != nil {
		m.setStatus("Broadcast failed: "+msg.err.Error(), models.NotificationError)
		return
	}
	var failed, local int
	for _, r := range msg.results {
		switch {
		case r.KeptLocally():
			local++
		case r.Err != nil:
			failed++
		}
	}
	level := models.NotificationSuccess
	if failed > 0 || local > 0 {
		level = models.NotificationWarning
	}
	m.setStatus(fmt.Sprintf("Broadcast to %d conversations: %d kept locally, %d failed", len(msg.results), local, failed), level)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	if r[0] >= 'a' && r[0] <= 'z' {
		r[0] -= 'a' - 'A'
	}
	return string(r)
}
