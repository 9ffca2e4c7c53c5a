// Package notify keeps the operator's client-side notification list.
package notify

import (
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tony-assistant/console/internal/models"
)

// DefaultLimit caps the in-memory list when NewCenter gets a non-positive limit.
const DefaultLimit = 200

// previewRunes is how much of a message body a notification shows.
const previewRunes = 50

// Center stores notifications newest first.
type Center struct {
	mu    sync.RWMutex
	items []models.Notification
	limit int
}

// NewCenter creates a Center holding at most limit notifications.
func NewCenter(limit int) *Center {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Center{limit: limit}
}

// Add prepends n. It reports false when a notification with the same id is
// already present.
func (c *Center) Add(n models.Notification) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, existing := range c.items {
		if existing.ID == n.ID {
			return false
		}
	}
	c.items = append([]models.Notification{n}, c.items...)
	if len(c.items) > c.limit {
		c.items = c.items[:c.limit]
	}
	return true
}

// Notifications returns a copy of the list, newest first.
func (c *Center) Notifications() []models.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Notification(nil), c.items...)
}

// UnreadCount returns the number of unread notifications.
func (c *Center) UnreadCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, item := range c.items {
		if !item.Read {
			n++
		}
	}
	return n
}

// MarkRead marks one notification read.
func (c *Center) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead marks every notification read and returns how many changed.
func (c *Center) MarkAllRead() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	changed := 0
	for i := range c.items {
		if !c.items[i].Read {
			c.items[i].Read = true
			changed++
		}
	}
	return changed
}

// Dismiss removes a notification.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear removes everything.
func (c *Center) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// NewMessage builds the notification raised for an incoming user message.
// The id is derived from the conversation and message, so Add drops a
// second notification for the same message.
func NewMessage(conv models.Conversation, msg models.Message, now time.Time) models.Notification {
	return models.Notification{
		ID:             fmt.Sprintf("msg-%s-%s", conv.ID, msg.ID),
		Title:          "New message from " + conv.User.Name,
		Message:        Preview(msg.Content),
		Type:           models.NotificationInfo,
		Timestamp:      now,
		ConversationID: conv.ID,
	}
}

// Preview truncates s to the notification preview length.
func Preview(s string) string {
	if utf8.RuneCountInString(s) <= previewRunes {
		return s
	}
	r := []rune(s)
	return string(r[:previewRunes]) + "..."
}
