// Package session owns the operator's view of the backend: the conversation
// store, the poller that refreshes it, the notification center and every
// operator action.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tony-assistant/console/internal/api"
	"github.com/tony-assistant/console/internal/filter"
	"github.com/tony-assistant/console/internal/journal"
	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/metrics"
	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/notify"
	"github.com/tony-assistant/console/internal/store"
	"github.com/tony-assistant/console/internal/workflow"
)

var (
	// ErrNotConnected is returned by actions that need a reachable backend.
	ErrNotConnected = errors.New("not connected to backend")
	// ErrNoSelection is returned by SendMessage when no conversation is selected.
	ErrNoSelection = errors.New("no conversation selected")
	// ErrConversationNotFound is returned for ids the store does not hold.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session closed")
	// ErrEmptyMessage is returned for blank message content.
	ErrEmptyMessage = errors.New("message content is empty")
	// ErrKeptLocally wraps a backend failure whose change was still applied
	// to the local store.
	ErrKeptLocally = errors.New("backend failed, change kept locally")
)

// Defaults for Options.
const (
	DefaultBulkConcurrency = 4
	subscriberBuffer       = 64
)

// Backend is the set of API operations the session issues.
type Backend interface {
	workflow.Backend
	Health(ctx context.Context) (api.HealthStatus, error)
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	ListQuickResponses(ctx context.Context) ([]models.QuickResponse, error)
	SendMessage(ctx context.Context, req api.SendMessageRequest) (models.Message, error)
	EditMessage(ctx context.Context, messageID, content string) (models.Message, error)
	ChangeMode(ctx context.Context, conversationID string, mode models.ConversationMode, operatorID string) error
	MarkRead(ctx context.Context, conversationID string) error
}

// Recorder persists operator actions.
type Recorder interface {
	Record(ctx context.Context, e journal.Entry) error
	Confirm(ctx context.Context, clientMessageIDs []string) (int64, error)
}

// Options configures a Session.
type Options struct {
	OperatorID        string
	PollInterval      time.Duration
	NotificationLimit int
	BulkConcurrency   int

	// Journal, when set, receives a record of every operator action.
	Journal Recorder

	Now   func() time.Time
	NewID func() string
}

// EventKind classifies a session event.
type EventKind string

const (
	EventConversations EventKind = "conversations"
	EventNotification  EventKind = "notification"
	EventConnection    EventKind = "connection"
	EventSelection     EventKind = "selection"
)

// Event is published to subscribers whenever session state changes.
type Event struct {
	Kind           EventKind
	ConversationID string
	Connected      bool
	Notification   *models.Notification
}

// BroadcastResult is the outcome of one conversation in a Broadcast.
type BroadcastResult struct {
	ConversationID string
	Message        models.Message
	Err            error
}

// KeptLocally reports whether the send fell back to a local copy.
func (r BroadcastResult) KeptLocally() bool {
	return errors.Is(r.Err, ErrKeptLocally)
}

// Session is the operator's live connection to the backend.
type Session struct {
	backend  Backend
	store    *store.Store
	workflow *workflow.Workflow
	notes    *notify.Center
	poller   *Poller
	journal  Recorder
	logger   zerolog.Logger

	operatorID      string
	bulkConcurrency int
	now             func() time.Time
	newID           func() string

	ctx    context.Context
	cancel context.CancelFunc

	// refreshMu orders Load and Poll so snapshots apply in fetch order.
	refreshMu sync.Mutex

	mu          sync.Mutex
	connected   bool
	closed      bool
	selectedID  string
	quick       []models.QuickResponse
	fallbacks   map[string]struct{}
	subscribers map[int]chan Event
	nextSub     int
}

// New creates a Session. Nothing is fetched until Load or Open.
func New(backend Backend, opts Options) *Session {
	if opts.OperatorID == "" {
		opts.OperatorID = "operator1"
	}
	if opts.BulkConcurrency <= 0 {
		opts.BulkConcurrency = DefaultBulkConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}

	st := store.New()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		backend:         backend,
		store:           st,
		workflow:        workflow.New(backend, st),
		notes:           notify.NewCenter(opts.NotificationLimit),
		journal:         opts.Journal,
		logger:          logging.Component("session"),
		operatorID:      opts.OperatorID,
		bulkConcurrency: opts.BulkConcurrency,
		now:             opts.Now,
		newID:           opts.NewID,
		ctx:             ctx,
		cancel:          cancel,
		fallbacks:       make(map[string]struct{}),
		subscribers:     make(map[int]chan Event),
	}
	s.poller = NewPoller(opts.PollInterval, func(ctx context.Context) {
		_ = s.Poll(ctx)
	})
	return s
}

// Open loads the initial data and starts polling. Polling starts even when
// the initial load fails so the session reconnects on its own.
func (s *Session) Open(ctx context.Context) error {
	loadErr := s.Load(ctx)
	if err := s.Start(); err != nil {
		return err
	}
	return loadErr
}

// Start begins background polling.
func (s *Session) Start() error {
	if s.isClosed() {
		return ErrClosed
	}
	return s.poller.Start(s.ctx)
}

// Close stops polling and cancels every in-flight request. It is safe to
// call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := s.subscribers
	s.subscribers = nil
	s.mu.Unlock()

	s.cancel()
	if s.poller.IsRunning() {
		_ = s.poller.Stop()
	}
	for _, ch := range subs {
		close(ch)
	}
	s.logger.Debug().Msg("session closed")
	return nil
}

// Load checks backend health and fetches conversations and quick responses.
// Any failure leaves the store empty and the session disconnected.
func (s *Session) Load(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rctx, done := s.request(ctx)
	defer done()

	if _, err := s.backend.Health(rctx); err != nil {
		return s.loadFailed(fmt.Errorf("health check: %w", err))
	}

	var (
		convs []models.Conversation
		quick []models.QuickResponse
	)
	g, gctx := errgroup.WithContext(rctx)
	g.Go(func() error {
		var err error
		convs, err = s.backend.ListConversations(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		quick, err = s.backend.ListQuickResponses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return s.loadFailed(fmt.Errorf("load initial data: %w", err))
	}
	if s.isClosed() {
		return ErrClosed
	}

	s.store.Replace(convs)
	s.mu.Lock()
	s.quick = quick
	s.mu.Unlock()
	metrics.ConversationsLoaded.Set(float64(s.store.Len()))
	s.setConnected(true)
	s.publish(Event{Kind: EventConversations})

	s.logger.Info().
		Int("conversations", len(convs)).
		Int("quick_responses", len(quick)).
		Msg("initial data loaded")
	return nil
}

func (s *Session) loadFailed(err error) error {
	if s.isClosed() {
		return ErrClosed
	}
	s.store.Reset()
	s.setConnected(false)
	s.publish(Event{Kind: EventConversations})
	s.logger.Error().Err(err).Msg("initial load failed")
	return err
}

// Poll refreshes the conversation list once. New user messages in
// conversations other than the selected one raise notifications. The store
// is replaced wholesale by the fetched list. On failure the store is left
// as is and the session is marked disconnected.
func (s *Session) Poll(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	rctx, done := s.request(ctx)
	defer done()

	convs, err := s.backend.ListConversations(rctx)
	if s.isClosed() {
		return ErrClosed
	}
	if err != nil {
		metrics.PollsTotal.WithLabelValues("error").Inc()
		s.setConnected(false)
		s.logger.Warn().Err(err).Msg("poll failed")
		return fmt.Errorf("poll conversations: %w", err)
	}
	metrics.PollsTotal.WithLabelValues("ok").Inc()

	selected := s.SelectedID()
	prev := s.store.Replace(convs)
	next := s.store.Snapshot()
	metrics.ConversationsLoaded.Set(float64(len(next)))

	s.setConnected(true)
	s.publish(Event{Kind: EventConversations})

	for _, n := range s.newMessageNotifications(prev, next, selected) {
		if s.notes.Add(n) {
			metrics.NotificationsTotal.Inc()
			s.publish(Event{Kind: EventNotification, ConversationID: n.ConversationID, Notification: &n})
		}
	}
	s.confirmFallbacks(next)
	return nil
}

func (s *Session) newMessageNotifications(prev, next []models.Conversation, selected string) []models.Notification {
	counts := make(map[string]int, len(prev))
	for _, c := range prev {
		counts[c.ID] = len(c.Messages)
	}

	now := s.now()
	var out []models.Notification
	for _, conv := range next {
		if conv.ID == selected {
			continue
		}
		before, seen := counts[conv.ID]
		if !seen || len(conv.Messages) <= before {
			continue
		}
		for _, msg := range conv.Messages[before:] {
			if msg.Sender == models.SenderUser {
				out = append(out, notify.NewMessage(conv, msg, now))
			}
		}
	}
	return out
}

// confirmFallbacks marks journaled fallback sends as confirmed once the
// backend lists a message carrying their client message id.
func (s *Session) confirmFallbacks(convs []models.Conversation) {
	s.mu.Lock()
	if len(s.fallbacks) == 0 {
		s.mu.Unlock()
		return
	}
	var confirmed []string
	for _, c := range convs {
		for _, m := range c.Messages {
			if _, ok := s.fallbacks[m.ClientMessageID]; ok && m.ClientMessageID != "" {
				confirmed = append(confirmed, m.ClientMessageID)
				delete(s.fallbacks, m.ClientMessageID)
			}
		}
	}
	s.mu.Unlock()

	if len(confirmed) == 0 || s.journal == nil {
		return
	}
	if _, err := s.journal.Confirm(s.ctx, confirmed); err != nil {
		s.logger.Warn().Err(err).Msg("failed to confirm journaled messages")
	}
}

// Connected reports whether the last backend interaction succeeded.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// OperatorID returns the identity attached to operator actions.
func (s *Session) OperatorID() string {
	return s.operatorID
}

// Version changes whenever the conversation store changes.
func (s *Session) Version() uint64 {
	return s.store.Version()
}

// Conversations returns a copy of every conversation.
func (s *Session) Conversations() []models.Conversation {
	return s.store.Snapshot()
}

// Conversation returns one conversation by id.
func (s *Session) Conversation(id string) (models.Conversation, bool) {
	return s.store.Get(id)
}

// Filtered returns the conversations matching filters and search.
func (s *Session) Filtered(filters models.ConversationFilters, search string) []models.Conversation {
	return filter.Apply(s.store.Snapshot(), filters, search, s.now())
}

// QuickResponses returns the canned replies fetched at load time.
func (s *Session) QuickResponses() []models.QuickResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.QuickResponse(nil), s.quick...)
}

// SelectedID returns the selected conversation id, or "".
func (s *Session) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// Selected returns the selected conversation.
func (s *Session) Selected() (models.Conversation, bool) {
	id := s.SelectedID()
	if id == "" {
		return models.Conversation{}, false
	}
	return s.store.Get(id)
}

// Select makes id the active conversation. An empty id clears the
// selection. When connected the conversation is marked read on the backend
// and its unread counter zeroed once that succeeds.
func (s *Session) Select(ctx context.Context, id string) error {
	if s.isClosed() {
		return ErrClosed
	}
	if id != "" {
		if _, ok := s.store.Get(id); !ok {
			return fmt.Errorf("%w: %s", ErrConversationNotFound, id)
		}
	}

	s.mu.Lock()
	s.selectedID = id
	s.mu.Unlock()
	s.publish(Event{Kind: EventSelection, ConversationID: id})

	if id == "" || !s.Connected() {
		return nil
	}
	return s.markRead(ctx, id)
}

func (s *Session) markRead(ctx context.Context, id string) error {
	rctx, done := s.request(ctx)
	defer done()

	err := s.backend.MarkRead(rctx, id)
	if s.isClosed() {
		return ErrClosed
	}
	if err != nil {
		logger := logging.WithConversation(s.logger, id)
		logger.Warn().Err(err).Msg("mark read failed")
		return fmt.Errorf("mark read: %w", err)
	}
	s.store.SetUnread(id, 0)
	s.publish(Event{Kind: EventConversations, ConversationID: id})
	return nil
}

// SendMessage sends content to the selected conversation. It is a no-op
// without a selection or a connection.
func (s *Session) SendMessage(ctx context.Context, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	id := s.SelectedID()
	if id == "" {
		return models.Message{}, ErrNoSelection
	}
	if !s.Connected() {
		return models.Message{}, ErrNotConnected
	}
	return s.deliver(ctx, id, content)
}

// SendTo sends content to a conversation without changing the selection.
func (s *Session) SendTo(ctx context.Context, conversationID, content string) (models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return models.Message{}, ErrEmptyMessage
	}
	if !s.Connected() {
		return models.Message{}, ErrNotConnected
	}
	return s.deliver(ctx, conversationID, content)
}

// deliver sends one message. When the backend fails, a local copy carrying
// the same client message id is appended and ErrKeptLocally is returned
// alongside it.
func (s *Session) deliver(ctx context.Context, conversationID, content string) (models.Message, error) {
	if s.isClosed() {
		return models.Message{}, ErrClosed
	}
	conv, ok := s.store.Get(conversationID)
	if !ok {
		return models.Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	mode := models.SenderModeFor(conv.Mode)
	key := s.newID()
	logger := logging.WithConversation(s.logger, conversationID)

	rctx, done := s.request(ctx)
	msg, sendErr := s.backend.SendMessage(rctx, api.SendMessageRequest{
		ConversationID:  conversationID,
		Content:         content,
		SenderMode:      mode,
		OperatorID:      s.operatorID,
		ClientMessageID: key,
	})
	done()
	if s.isClosed() {
		return models.Message{}, ErrClosed
	}

	now := s.now()
	kind := journal.KindSend
	if sendErr != nil {
		kind = journal.KindSendFallback
		msg = models.Message{
			ID:              s.newID(),
			Content:         content,
			Timestamp:       now,
			Sender:          models.Sender(mode),
			Status:          models.MessageSent,
			ClientMessageID: key,
		}
		metrics.FallbackWritesTotal.WithLabelValues("send").Inc()
		logger.Error().Err(sendErr).Str("client_message_id", key).Msg("send failed, message kept locally")

		s.mu.Lock()
		s.fallbacks[key] = struct{}{}
		s.mu.Unlock()
	}
	if msg.ClientMessageID == "" {
		msg.ClientMessageID = key
	}

	if !s.store.AppendMessage(conversationID, msg, now) {
		s.mu.Lock()
		delete(s.fallbacks, key)
		s.mu.Unlock()
		if sendErr == nil {
			s.record(conversationID, kind, content, key)
		}
		logger.Warn().Str("client_message_id", key).Msg("conversation removed while sending")
		return models.Message{}, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if mode == models.SenderModeOperator {
		s.store.SetStatus(conversationID, models.StatusInProgress)
	}
	s.publish(Event{Kind: EventConversations, ConversationID: conversationID})
	s.record(conversationID, kind, content, key)

	if sendErr != nil {
		return msg, fmt.Errorf("%w: %w", ErrKeptLocally, sendErr)
	}
	logger.Debug().Str("message_id", msg.ID).Msg("message sent")
	return msg, nil
}

// EditMessage rewrites a message's content. When the backend fails the
// edit is still applied locally and ErrKeptLocally is returned.
func (s *Session) EditMessage(ctx context.Context, messageID, content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}
	if s.isClosed() {
		return ErrClosed
	}
	if !s.Connected() {
		return ErrNotConnected
	}

	rctx, done := s.request(ctx)
	msg, editErr := s.backend.EditMessage(rctx, messageID, content)
	done()
	if s.isClosed() {
		return ErrClosed
	}

	kind := journal.KindEdit
	if editErr != nil {
		kind = journal.KindEditFallback
		metrics.FallbackWritesTotal.WithLabelValues("edit").Inc()
		s.logger.Error().Err(editErr).Str("message_id", messageID).Msg("edit failed, change kept locally")
	} else if msg.Content != "" {
		content = msg.Content
	}

	s.store.EditMessage(messageID, content)
	s.publish(Event{Kind: EventConversations})
	s.record("", kind, fmt.Sprintf("message %s: %s", messageID, content), "")

	if editErr != nil {
		return fmt.Errorf("%w: %w", ErrKeptLocally, editErr)
	}
	return nil
}

// ChangeMode switches a conversation's mode. The local change always
// stands; when connected it is synced to the backend, and switching to
// manual also marks the conversation read.
func (s *Session) ChangeMode(ctx context.Context, conversationID string, mode models.ConversationMode) error {
	if s.isClosed() {
		return ErrClosed
	}
	if _, err := models.ParseMode(string(mode)); err != nil {
		return err
	}
	if !s.store.SetMode(conversationID, mode) {
		return fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	s.publish(Event{Kind: EventConversations, ConversationID: conversationID})
	s.record(conversationID, journal.KindMode, string(mode), "")

	if !s.Connected() {
		return nil
	}

	rctx, done := s.request(ctx)
	err := s.backend.ChangeMode(rctx, conversationID, mode, s.operatorID)
	done()
	if s.isClosed() {
		return ErrClosed
	}
	if err != nil {
		logger := logging.WithConversation(s.logger, conversationID)
		logger.Error().Err(err).
			Str("mode", string(mode)).
			Msg("mode sync failed, keeping local mode")
		s.record(conversationID, journal.KindModeSyncFailed, string(mode), "")
		return fmt.Errorf("%w: %w", ErrKeptLocally, err)
	}

	if mode == models.ModeManual {
		return s.markRead(ctx, conversationID)
	}
	return nil
}

// Approve sends the pending response of a hybrid conversation.
func (s *Session) Approve(ctx context.Context, conversationID string) (models.Message, error) {
	if err := s.pendingAllowed(); err != nil {
		return models.Message{}, err
	}
	rctx, done := s.request(ctx)
	defer done()

	msg, err := s.workflow.Approve(rctx, conversationID)
	if err != nil {
		return models.Message{}, s.pendingError(err)
	}
	s.publish(Event{Kind: EventConversations, ConversationID: conversationID})
	s.record(conversationID, journal.KindApprove, msg.Content, "")
	return msg, nil
}

// Reject discards the pending response of a hybrid conversation.
func (s *Session) Reject(ctx context.Context, conversationID string) error {
	if err := s.pendingAllowed(); err != nil {
		return err
	}
	rctx, done := s.request(ctx)
	defer done()

	if err := s.workflow.Reject(rctx, conversationID); err != nil {
		return s.pendingError(err)
	}
	s.publish(Event{Kind: EventConversations, ConversationID: conversationID})
	s.record(conversationID, journal.KindReject, "", "")
	return nil
}

// EditAndApprove sends content in place of the pending response.
func (s *Session) EditAndApprove(ctx context.Context, conversationID, content string) (models.Message, error) {
	if err := s.pendingAllowed(); err != nil {
		return models.Message{}, err
	}
	rctx, done := s.request(ctx)
	defer done()

	msg, err := s.workflow.EditAndApprove(rctx, conversationID, content)
	if err != nil {
		return models.Message{}, s.pendingError(err)
	}
	s.publish(Event{Kind: EventConversations, ConversationID: conversationID})
	s.record(conversationID, journal.KindEditApprove, msg.Content, "")
	return msg, nil
}

// IsPendingLoading reports whether a pending response action is in flight
// for the conversation.
func (s *Session) IsPendingLoading(conversationID string) bool {
	return s.workflow.IsLoading(conversationID)
}

func (s *Session) pendingAllowed() error {
	if s.isClosed() {
		return ErrClosed
	}
	if !s.Connected() {
		return ErrNotConnected
	}
	return nil
}

func (s *Session) pendingError(err error) error {
	if s.isClosed() {
		return ErrClosed
	}
	if errors.Is(err, workflow.ErrConversationNotFound) {
		return fmt.Errorf("%w: %w", ErrConversationNotFound, err)
	}
	return err
}

// Broadcast sends the same content to every listed conversation with
// bounded concurrency. Results keep the order of ids. Each send follows
// the SendTo fallback policy.
func (s *Session) Broadcast(ctx context.Context, ids []string, content string) ([]BroadcastResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	if s.isClosed() {
		return nil, ErrClosed
	}
	if !s.Connected() {
		return nil, ErrNotConnected
	}

	results := make([]BroadcastResult, len(ids))
	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			msg, err := s.deliver(ctx, id, content)
			results[i] = BroadcastResult{ConversationID: id, Message: msg, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	s.record("", journal.KindBroadcast, fmt.Sprintf("%d conversations, %d failed", len(ids), failed), "")
	s.logger.Info().Int("conversations", len(ids)).Int("failed", failed).Msg("broadcast finished")
	return results, nil
}

// Notifications returns the notification list, newest first.
func (s *Session) Notifications() []models.Notification {
	return s.notes.Notifications()
}

// UnreadNotifications counts unread notifications.
func (s *Session) UnreadNotifications() int {
	return s.notes.UnreadCount()
}

// MarkNotificationRead marks one notification read.
func (s *Session) MarkNotificationRead(id string) bool {
	return s.notes.MarkRead(id)
}

// MarkAllNotificationsRead marks every notification read.
func (s *Session) MarkAllNotificationsRead() int {
	return s.notes.MarkAllRead()
}

// DeleteNotification removes one notification.
func (s *Session) DeleteNotification(id string) bool {
	return s.notes.Dismiss(id)
}

// ClearNotifications removes every notification.
func (s *Session) ClearNotifications() {
	s.notes.Clear()
}

// Subscribe returns a feed of session events and a function that ends the
// subscription. Slow subscribers miss events rather than block the session.
// The channel is closed when the session closes.
func (s *Session) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if sub, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(sub)
			}
		})
	}
}

func (s *Session) publish(e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}

func (s *Session) setConnected(v bool) {
	s.mu.Lock()
	changed := s.connected != v
	s.connected = v
	s.mu.Unlock()

	metrics.SetConnected(v)
	if !changed {
		return
	}
	s.logger.Info().Bool("connected", v).Msg("connection state changed")
	s.publish(Event{Kind: EventConnection, Connected: v})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// request derives a context that ends when either ctx or the session ends.
func (s *Session) request(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	rctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return rctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) record(conversationID string, kind journal.Kind, detail, clientMessageID string) {
	if s.journal == nil {
		return
	}
	err := s.journal.Record(s.ctx, journal.Entry{
		At:              s.now(),
		Operator:        s.operatorID,
		ConversationID:  conversationID,
		Kind:            kind,
		Detail:          detail,
		ClientMessageID: clientMessageID,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("kind", string(kind)).Msg("failed to journal action")
	}
}
