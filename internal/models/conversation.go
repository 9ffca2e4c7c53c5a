// Package models defines the core domain types for the Tony console.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	StatusPending    ConversationStatus = "pending"
	StatusInProgress ConversationStatus = "in_progress"
	StatusClosed     ConversationStatus = "closed"
)

// ConversationMode selects who answers the end user.
type ConversationMode string

const (
	// ModeAuto lets the bot reply on its own.
	ModeAuto ConversationMode = "auto"
	// ModeManual routes every reply through an operator.
	ModeManual ConversationMode = "manual"
	// ModeHybrid has the bot draft a pending response an operator approves.
	ModeHybrid ConversationMode = "hybrid"
)

// SenderMode is the identity outgoing console messages are sent as.
type SenderMode string

const (
	SenderModeBot      SenderMode = "bot"
	SenderModeOperator SenderMode = "operator"
)

var (
	ErrInvalidMode   = errors.New("invalid conversation mode")
	ErrInvalidStatus = errors.New("invalid conversation status")
)

// ParseMode validates a mode string.
func ParseMode(s string) (ConversationMode, error) {
	switch m := ConversationMode(s); m {
	case ModeAuto, ModeManual, ModeHybrid:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q (want auto, manual or hybrid)", ErrInvalidMode, s)
}

// ParseStatus validates a status string.
func ParseStatus(s string) (ConversationStatus, error) {
	switch st := ConversationStatus(s); st {
	case StatusPending, StatusInProgress, StatusClosed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q (want pending, in_progress or closed)", ErrInvalidStatus, s)
}

// SenderModeFor derives the sender mode from a conversation mode.
func SenderModeFor(mode ConversationMode) SenderMode {
	if mode == ModeAuto {
		return SenderModeBot
	}
	return SenderModeOperator
}

// User is the end user on the other side of a conversation.
type User struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar,omitempty"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

// PendingResponse is a bot-drafted reply awaiting operator review.
type PendingResponse struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsError   bool      `json:"is_error,omitempty"`
}

// Conversation is one end-user thread.
type Conversation struct {
	ID               string             `json:"id"`
	User             User               `json:"user"`
	Messages         []Message          `json:"messages"`
	Status           ConversationStatus `json:"status"`
	Mode             ConversationMode   `json:"mode"`
	LastActivity     time.Time          `json:"last_activity"`
	UnreadCount      int                `json:"unread_count"`
	Tags             []string           `json:"tags"`
	AssignedOperator string             `json:"assigned_operator,omitempty"`
	PendingResponse  *PendingResponse   `json:"pending_response,omitempty"`
}

// HasPendingResponse reports whether an approval is actionable.
func (c *Conversation) HasPendingResponse() bool {
	return c != nil && c.Mode == ModeHybrid && c.PendingResponse != nil
}

// LastMessage returns the newest message, if any.
func (c *Conversation) LastMessage() (Message, bool) {
	if c == nil || len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}
