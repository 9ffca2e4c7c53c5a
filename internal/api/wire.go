package api

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tony-assistant/console/internal/models"
)

// envelope is the shape every backend response shares.
type envelope struct {
	Success       bool               `json:"success"`
	Error         string             `json:"error,omitempty"`
	Detail        string             `json:"detail,omitempty"`
	Message       json.RawMessage    `json:"message,omitempty"`
	Conversation  *wireConversation  `json:"conversation,omitempty"`
	Conversations []wireConversation `json:"conversations,omitempty"`
	QuickReplies  []wireQuickReply   `json:"quick_responses,omitempty"`
}

// errorText picks the most specific failure message the backend supplied.
func (e envelope) errorText() string {
	if e.Error != "" {
		return e.Error
	}
	if e.Detail != "" {
		return e.Detail
	}
	var s string
	if len(e.Message) > 0 && json.Unmarshal(e.Message, &s) == nil {
		return s
	}
	return ""
}

// unixSeconds decodes a Unix timestamp sent as an integer, a float or a
// numeric string. Null or absent values stay zero.
type unixSeconds float64

func (u *unixSeconds) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*u = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*u = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("timestamp %q is not unix seconds: %w", s, err)
		}
		*u = unixSeconds(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*u = unixSeconds(f)
	return nil
}

// time converts to time.Time; zero falls back to now.
func (u unixSeconds) time(now time.Time) time.Time {
	if u == 0 {
		return now
	}
	sec, frac := math.Modf(float64(u))
	return time.Unix(int64(sec), int64(frac*1e9))
}

type wireUser struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Avatar   string      `json:"avatar,omitempty"`
	LastSeen unixSeconds `json:"lastSeen,omitempty"`
}

type wireMessage struct {
	ID              string      `json:"id"`
	Content         string      `json:"content"`
	Timestamp       unixSeconds `json:"timestamp"`
	Sender          string      `json:"sender"`
	Edited          bool        `json:"edited,omitempty"`
	Status          string      `json:"status,omitempty"`
	ClientMessageID string      `json:"client_message_id,omitempty"`
}

type wirePending struct {
	ID        string      `json:"id"`
	Content   string      `json:"content"`
	Timestamp unixSeconds `json:"timestamp"`
	IsError   bool        `json:"is_error,omitempty"`
}

type wireConversation struct {
	ID               string        `json:"id"`
	User             wireUser      `json:"user"`
	Messages         []wireMessage `json:"messages"`
	Status           string        `json:"status"`
	Mode             string        `json:"mode"`
	LastActivity     unixSeconds   `json:"lastActivity"`
	UnreadCount      int           `json:"unreadCount"`
	Tags             []string      `json:"tags"`
	AssignedOperator string        `json:"assignedOperator,omitempty"`
	PendingResponse  *wirePending  `json:"pending_response,omitempty"`
}

// wireQuickReply accepts either a bare string or a {id,text,category} object.
type wireQuickReply struct {
	models.QuickResponse
	bare bool
}

func (q *wireQuickReply) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		q.bare = true
		return json.Unmarshal(data, &q.Text)
	}
	return json.Unmarshal(data, &q.QuickResponse)
}

func (m wireMessage) toModel(now time.Time) models.Message {
	return models.Message{
		ID:              m.ID,
		Content:         m.Content,
		Timestamp:       m.Timestamp.time(now),
		Sender:          models.Sender(m.Sender),
		Edited:          m.Edited,
		Status:          models.MessageStatus(m.Status),
		ClientMessageID: m.ClientMessageID,
	}
}

func (c wireConversation) toModel(now time.Time) models.Conversation {
	conv := models.Conversation{
		ID: c.ID,
		User: models.User{
			ID:     c.User.ID,
			Name:   c.User.Name,
			Avatar: c.User.Avatar,
		},
		Messages:         make([]models.Message, 0, len(c.Messages)),
		Status:           models.ConversationStatus(c.Status),
		Mode:             models.ConversationMode(c.Mode),
		LastActivity:     c.LastActivity.time(now),
		UnreadCount:      c.UnreadCount,
		Tags:             append([]string{}, c.Tags...),
		AssignedOperator: c.AssignedOperator,
	}
	if conv.UnreadCount < 0 {
		conv.UnreadCount = 0
	}
	if c.User.LastSeen != 0 {
		ts := c.User.LastSeen.time(now)
		conv.User.LastSeen = &ts
	}
	for _, m := range c.Messages {
		conv.Messages = append(conv.Messages, m.toModel(now))
	}
	if c.PendingResponse != nil {
		conv.PendingResponse = &models.PendingResponse{
			ID:        c.PendingResponse.ID,
			Content:   c.PendingResponse.Content,
			Timestamp: c.PendingResponse.Timestamp.time(now),
			IsError:   c.PendingResponse.IsError,
		}
	}
	return conv
}

func quickRepliesToModel(in []wireQuickReply) []models.QuickResponse {
	out := make([]models.QuickResponse, 0, len(in))
	for i, q := range in {
		qr := q.QuickResponse
		if q.bare || qr.ID == "" {
			qr.ID = strconv.Itoa(i + 1)
		}
		if qr.Category == "" {
			qr.Category = "general"
		}
		out = append(out, qr)
	}
	return out
}

// Request bodies.

type sendMessageBody struct {
	ConversationID  string `json:"conversation_id"`
	Content         string `json:"content"`
	SenderMode      string `json:"sender_mode"`
	OperatorID      string `json:"operator_id"`
	ClientMessageID string `json:"client_message_id,omitempty"`
}

type contentBody struct {
	Content string `json:"content"`
}

type modeBody struct {
	Mode       string `json:"mode"`
	OperatorID string `json:"operator_id,omitempty"`
}
