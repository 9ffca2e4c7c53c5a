// Package store holds the in-memory conversation collection the console renders.
package store

import (
	"sync"
	"time"

	"github.com/tony-assistant/console/internal/models"
)

// Store is the client-side conversation collection. Every accessor returns
// deep copies, and every mutation happens under a single lock so readers
// never observe a half-applied change.
type Store struct {
	mu      sync.RWMutex
	convs   []models.Conversation
	index   map[string]int
	version uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{index: make(map[string]int)}
}

// Replace swaps the whole collection for a fresh backend snapshot and
// returns the collection it replaced. Conversations repeated by id keep
// their first occurrence, and messages repeating a client message id are
// dropped.
func (s *Store) Replace(convs []models.Conversation) []models.Conversation {
	next := make([]models.Conversation, 0, len(convs))
	index := make(map[string]int, len(convs))
	for _, conv := range convs {
		if _, dup := index[conv.ID]; dup {
			continue
		}
		conv = cloneConversation(conv)
		conv.Messages = dedupeMessages(conv.Messages)
		index[conv.ID] = len(next)
		next = append(next, conv)
	}

	s.mu.Lock()
	prev := s.convs
	s.convs = next
	s.index = index
	s.version++
	s.mu.Unlock()
	return prev
}

// Reset empties the store.
func (s *Store) Reset() {
	s.Replace(nil)
}

// Len returns the number of conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.convs)
}

// Version increments on every successful mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot returns a deep copy of all conversations in store order.
func (s *Store) Snapshot() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, len(s.convs))
	for i := range s.convs {
		out[i] = cloneConversation(s.convs[i])
	}
	return out
}

// Get returns a deep copy of one conversation.
func (s *Store) Get(id string) (models.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Conversation{}, false
	}
	return cloneConversation(s.convs[i]), true
}

// Update applies fn to the stored conversation. It returns false when the
// id is unknown.
func (s *Store) Update(id string, fn func(*models.Conversation)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[id]
	if !ok {
		return false
	}
	fn(&s.convs[i])
	if s.convs[i].UnreadCount < 0 {
		s.convs[i].UnreadCount = 0
	}
	s.version++
	return true
}

// AppendMessage adds msg to the end of the transcript and advances
// LastActivity to at.
func (s *Store) AppendMessage(id string, msg models.Message, at time.Time) bool {
	return s.Update(id, func(c *models.Conversation) {
		c.Messages = append(c.Messages, msg)
		c.LastActivity = at
	})
}

// EditMessage rewrites every message with messageID, in any conversation,
// and marks it edited. It returns the number of messages changed.
func (s *Store) EditMessage(messageID, content string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for ci := range s.convs {
		msgs := s.convs[ci].Messages
		for mi := range msgs {
			if msgs[mi].ID != messageID {
				continue
			}
			msgs[mi].Content = content
			msgs[mi].Edited = true
			changed++
		}
	}
	if changed > 0 {
		s.version++
	}
	return changed
}

// SetMode changes a conversation's mode. Leaving hybrid drops any pending
// response, which only exists in hybrid mode.
func (s *Store) SetMode(id string, mode models.ConversationMode) bool {
	return s.Update(id, func(c *models.Conversation) {
		c.Mode = mode
		if mode != models.ModeHybrid {
			c.PendingResponse = nil
		}
	})
}

// SetStatus changes a conversation's status.
func (s *Store) SetStatus(id string, status models.ConversationStatus) bool {
	return s.Update(id, func(c *models.Conversation) {
		c.Status = status
	})
}

// SetUnread sets the unread counter, clamped at zero.
func (s *Store) SetUnread(id string, n int) bool {
	return s.Update(id, func(c *models.Conversation) {
		c.UnreadCount = n
	})
}

// ClearPending removes the pending response.
func (s *Store) ClearPending(id string) bool {
	return s.Update(id, func(c *models.Conversation) {
		c.PendingResponse = nil
	})
}

func dedupeMessages(msgs []models.Message) []models.Message {
	seen := make(map[string]struct{})
	out := msgs[:0]
	for _, m := range msgs {
		if m.ClientMessageID != "" {
			if _, dup := seen[m.ClientMessageID]; dup {
				continue
			}
			seen[m.ClientMessageID] = struct{}{}
		}
		out = append(out, m)
	}
	return out
}

func cloneConversation(c models.Conversation) models.Conversation {
	out := c
	if c.User.LastSeen != nil {
		ts := *c.User.LastSeen
		out.User.LastSeen = &ts
	}
	if c.Messages != nil {
		out.Messages = append([]models.Message(nil), c.Messages...)
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	if c.PendingResponse != nil {
		pr := *c.PendingResponse
		out.PendingResponse = &pr
	}
	return out
}
