// Package workflow drives the hybrid-mode pending response approval flow.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/store"
)

var (
	// ErrConversationNotFound is returned for ids the store does not hold.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrNoPendingResponse is returned when the conversation is not in
	// hybrid mode or has nothing awaiting approval.
	ErrNoPendingResponse = errors.New("no pending response to act on")
	// ErrInFlight is returned while another approval action for the same
	// conversation has not finished.
	ErrInFlight = errors.New("pending response action already in progress")
	// ErrEmptyContent is returned when edit-and-approve has no text.
	ErrEmptyContent = errors.New("content is required")
)

// Action names a pending response transition.
type Action string

const (
	ActionApprove        Action = "approve"
	ActionReject         Action = "reject"
	ActionEditAndApprove Action = "edit_and_approve"
)

// Backend is the subset of the API client the workflow calls.
type Backend interface {
	ApprovePending(ctx context.Context, conversationID string) (models.Message, error)
	RejectPending(ctx context.Context, conversationID string) error
	EditAndApprovePending(ctx context.Context, conversationID, content string) (models.Message, error)
}

// Workflow applies approve, reject and edit-and-approve against the backend
// and mirrors successful results into the store. Failures leave the store
// untouched.
type Workflow struct {
	backend Backend
	store   *store.Store
	logger  zerolog.Logger

	mu      sync.Mutex
	loading map[string]Action
}

// New creates a Workflow.
func New(backend Backend, st *store.Store) *Workflow {
	return &Workflow{
		backend: backend,
		store:   st,
		logger:  logging.Component("workflow"),
		loading: make(map[string]Action),
	}
}

// IsLoading reports whether an action for the conversation is in flight.
func (w *Workflow) IsLoading(conversationID string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.loading[conversationID]
	return ok
}

// Loading returns the in-flight action for the conversation, if any.
func (w *Workflow) Loading(conversationID string) (Action, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.loading[conversationID]
	return a, ok
}

// Approve sends the drafted response unchanged.
func (w *Workflow) Approve(ctx context.Context, conversationID string) (models.Message, error) {
	if err := w.begin(conversationID, ActionApprove); err != nil {
		return models.Message{}, err
	}
	defer w.end(conversationID)

	msg, err := w.backend.ApprovePending(ctx, conversationID)
	if err != nil {
		w.fail(conversationID, ActionApprove, err)
		return models.Message{}, fmt.Errorf("approve pending response: %w", err)
	}
	w.accept(conversationID, msg)
	return msg, nil
}

// Reject discards the drafted response. No message is sent.
func (w *Workflow) Reject(ctx context.Context, conversationID string) error {
	if err := w.begin(conversationID, ActionReject); err != nil {
		return err
	}
	defer w.end(conversationID)

	if err := w.backend.RejectPending(ctx, conversationID); err != nil {
		w.fail(conversationID, ActionReject, err)
		return fmt.Errorf("reject pending response: %w", err)
	}
	w.store.ClearPending(conversationID)
	w.logger.Info().Str("conversation_id", conversationID).Msg("pending response rejected")
	return nil
}

// EditAndApprove sends content in place of the drafted response.
func (w *Workflow) EditAndApprove(ctx context.Context, conversationID, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyContent
	}
	if err := w.begin(conversationID, ActionEditAndApprove); err != nil {
		return models.Message{}, err
	}
	defer w.end(conversationID)

	msg, err := w.backend.EditAndApprovePending(ctx, conversationID, content)
	if err != nil {
		w.fail(conversationID, ActionEditAndApprove, err)
		return models.Message{}, fmt.Errorf("edit and approve pending response: %w", err)
	}
	w.accept(conversationID, msg)
	return msg, nil
}

func (w *Workflow) begin(conversationID string, action Action) error {
	conv, ok := w.store.Get(conversationID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if !conv.HasPendingResponse() {
		return ErrNoPendingResponse
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.loading[conversationID]; busy {
		return ErrInFlight
	}
	w.loading[conversationID] = action
	return nil
}

func (w *Workflow) end(conversationID string) {
	w.mu.Lock()
	delete(w.loading, conversationID)
	w.mu.Unlock()
}

func (w *Workflow) accept(conversationID string, msg models.Message) {
	w.store.Update(conversationID, func(c *models.Conversation) {
		c.Messages = append(c.Messages, msg)
		c.PendingResponse = nil
	})
	w.logger.Info().
		Str("conversation_id", conversationID).
		Str("message_id", msg.ID).
		Msg("pending response sent")
}

func (w *Workflow) fail(conversationID string, action Action, err error) {
	w.logger.Error().
		Err(err).
		Str("conversation_id", conversationID).
		Str("action", string(action)).
		Msg("pending response action failed")
}
