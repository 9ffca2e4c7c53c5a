package session

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tony-assistant/console/internal/api"
	"github.com/tony-assistant/console/internal/devserver"
	"github.com/tony-assistant/console/internal/journal"
	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/workflow"
)

var clock = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func now() time.Time { return clock }

type fakeRecorder struct {
	mu        sync.Mutex
	entries   []journal.Entry
	confirmed []string
}

func (r *fakeRecorder) Record(_ context.Context, e journal.Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return nil
}

func (r *fakeRecorder) Confirm(_ context.Context, ids []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, ids...)
	return int64(len(ids)), nil
}

func (r *fakeRecorder) kinds() []journal.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]journal.Kind, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Kind)
	}
	return out
}

func newTestSession(t *testing.T, opts Options) (*Session, *devserver.Server) {
	t.Helper()
	return newWrappedSession(t, opts, func(b Backend) Backend { return b })
}

// newWrappedSession lets a test intercept backend calls made by the session.
func newWrappedSession(t *testing.T, opts Options, wrap func(Backend) Backend) (*Session, *devserver.Server) {
	t.Helper()
	srv := devserver.New(devserver.Options{Seed: true, Now: now})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	client, err := api.New(api.Options{BaseURL: ts.URL, Timeout: 2 * time.Second, Now: now})
	require.NoError(t, err)

	if opts.Now == nil {
		opts.Now = now
	}
	s := New(wrap(client), opts)
	t.Cleanup(func() { _ = s.Close() })
	return s, srv
}

func loadedSession(t *testing.T, opts Options) (*Session, *devserver.Server) {
	t.Helper()
	s, srv := newTestSession(t, opts)
	require.NoError(t, s.Load(context.Background()))
	return s, srv
}

func TestLoadPopulatesStore(t *testing.T) {
	s, _ := loadedSession(t, Options{})

	require.True(t, s.Connected())
	require.Len(t, s.Conversations(), 4)
	require.Len(t, s.QuickResponses(), 4)

	conv, ok := s.Conversation("conv-1")
	require.True(t, ok)
	require.Equal(t, "María García", conv.User.Name)
	require.True(t, conv.HasPendingResponse())
}

func TestLoadHealthFailureLeavesStoreEmpty(t *testing.T) {
	s, srv := newTestSession(t, Options{})
	srv.SetUnavailable(true)

	err := s.Load(context.Background())
	require.Error(t, err)
	require.False(t, s.Connected())
	require.Empty(t, s.Conversations())
	require.Empty(t, s.QuickResponses())
}

func TestSendWhileDisconnectedIsNoop(t *testing.T) {
	s, srv := loadedSession(t, Options{})
	require.NoError(t, s.Select(context.Background(), "conv-2"))

	srv.SetUnavailable(true)
	require.Error(t, s.Poll(context.Background()))
	require.False(t, s.Connected())

	before, _ := s.Conversation("conv-2")
	_, err := s.SendMessage(context.Background(), "hola")
	require.ErrorIs(t, err, ErrNotConnected)

	after, _ := s.Conversation("conv-2")
	require.Equal(t, before, after)
}

func TestSendRequiresSelection(t *testing.T) {
	s, _ := loadedSession(t, Options{})
	_, err := s.SendMessage(context.Background(), "hola")
	require.ErrorIs(t, err, ErrNoSelection)

	_, err = s.SendMessage(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSendAppendsAndMarksInProgress(t *testing.T) {
	rec := &fakeRecorder{}
	s, srv := loadedSession(t, Options{OperatorID: "op-7", Journal: rec})
	require.NoError(t, s.Select(context.Background(), "conv-1"))

	msg, err := s.SendMessage(context.Background(), "Con gusto te ayudo")
	require.NoError(t, err)
	require.Equal(t, models.SenderOperator, msg.Sender)
	require.NotEmpty(t, msg.ClientMessageID)

	conv, _ := s.Conversation("conv-1")
	require.Equal(t, models.StatusInProgress, conv.Status)
	require.Equal(t, clock, conv.LastActivity)
	require.Equal(t, msg.ID, lastMessageID(t, conv))

	remote, ok := srv.Conversation("conv-1")
	require.True(t, ok)
	require.Equal(t, "op-7", remote.AssignedOperator)
	require.Equal(t, msg.ClientMessageID, remote.Messages[len(remote.Messages)-1].ClientMessageID)
	require.Equal(t, []journal.Kind{journal.KindSend}, rec.kinds())
}

func TestSendInAutoModeUsesBotSender(t *testing.T) {
	s, _ := loadedSession(t, Options{})

	msg, err := s.SendTo(context.Background(), "conv-3", "Horario de atención: 9 a 18")
	require.NoError(t, err)
	require.Equal(t, models.SenderBot, msg.Sender)

	conv, _ := s.Conversation("conv-3")
	require.Equal(t, models.StatusPending, conv.Status)
}

func TestSendFallbackKeepsClientKeyAndIsConfirmedLater(t *testing.T) {
	rec := &fakeRecorder{}
	s, srv := loadedSession(t, Options{Journal: rec})

	srv.SetUnavailable(true)
	msg, err := s.SendTo(context.Background(), "conv-2", "Ya salió tu pedido")
	require.ErrorIs(t, err, ErrKeptLocally)
	require.ErrorIs(t, err, api.ErrRequestFailed)
	require.Equal(t, models.MessageSent, msg.Status)
	require.NotEmpty(t, msg.ClientMessageID)

	conv, _ := s.Conversation("conv-2")
	require.Equal(t, msg.ID, lastMessageID(t, conv))
	require.Equal(t, []journal.Kind{journal.KindSendFallback}, rec.kinds())

	// The backend accepted the message after all.
	remote, _ := srv.Conversation("conv-2")
	echoed := msg
	echoed.ID = "msg-server"
	remote.Messages = append(remote.Messages, echoed, echoed)
	srv.AddConversation(remote)
	srv.SetUnavailable(false)

	require.NoError(t, s.Poll(context.Background()))
	require.True(t, s.Connected())
	require.Equal(t, []string{msg.ClientMessageID}, rec.confirmed)

	conv, _ = s.Conversation("conv-2")
	count := 0
	for _, m := range conv.Messages {
		if m.ClientMessageID == msg.ClientMessageID {
			count++
			require.Equal(t, "msg-server", m.ID)
		}
	}
	require.Equal(t, 1, count)
}

func TestEditMessage(t *testing.T) {
	s, srv := loadedSession(t, Options{})

	require.NoError(t, s.EditMessage(context.Background(), "msg-3", "Lo reviso, Carlos."))
	conv, _ := s.Conversation("conv-2")
	require.Equal(t, "Lo reviso, Carlos.", conv.Messages[1].Content)
	require.True(t, conv.Messages[1].Edited)

	srv.SetUnavailable(true)
	err := s.EditMessage(context.Background(), "msg-3", "Ya lo revisé")
	require.ErrorIs(t, err, ErrKeptLocally)
	conv, _ = s.Conversation("conv-2")
	require.Equal(t, "Ya lo revisé", conv.Messages[1].Content)
	require.True(t, conv.Messages[1].Edited)
}

func TestPollNotifiesOnlyForUnselectedConversations(t *testing.T) {
	s, srv := loadedSession(t, Options{})
	require.NoError(t, s.Select(context.Background(), "conv-2"))

	_, err := srv.Inbound("conv-2", "¿Alguna novedad?")
	require.NoError(t, err)
	_, err = srv.Inbound("conv-3", "Necesito ayuda con mi factura, no encuentro el número de pedido en ningún lado")
	require.NoError(t, err)

	events, cancel := s.Subscribe()
	defer cancel()

	require.NoError(t, s.Poll(context.Background()))

	notes := s.Notifications()
	require.Len(t, notes, 1)
	require.Equal(t, "New message from Lucía Fernández", notes[0].Title)
	require.Equal(t, "conv-3", notes[0].ConversationID)
	require.Equal(t, "Necesito ayuda con mi factura, no encuentro el núm...", notes[0].Message)
	require.Equal(t, 1, s.UnreadNotifications())

	var sawNotification bool
	for len(events) > 0 {
		if e := <-events; e.Kind == EventNotification {
			sawNotification = true
			require.Equal(t, "conv-3", e.ConversationID)
		}
	}
	require.True(t, sawNotification)

	require.True(t, s.MarkNotificationRead(notes[0].ID))
	require.Zero(t, s.UnreadNotifications())
	require.True(t, s.DeleteNotification(notes[0].ID))
	require.Empty(t, s.Notifications())
}

func TestPollReplacesStoreWholesale(t *testing.T) {
	s, srv := loadedSession(t, Options{})

	srv.SetUnavailable(true)
	err := s.ChangeMode(context.Background(), "conv-3", models.ModeManual)
	require.ErrorIs(t, err, ErrKeptLocally)
	conv, _ := s.Conversation("conv-3")
	require.Equal(t, models.ModeManual, conv.Mode)

	require.Error(t, s.Poll(context.Background()))
	require.False(t, s.Connected())
	conv, _ = s.Conversation("conv-3")
	require.Equal(t, models.ModeManual, conv.Mode, "failed poll must not touch the store")

	srv.SetUnavailable(false)
	srv.AddConversation(models.Conversation{
		ID:     "conv-5",
		User:   models.User{ID: "u5", Name: "Ana"},
		Status: models.StatusPending,
		Mode:   models.ModeAuto,
	})
	require.NoError(t, s.Poll(context.Background()))
	require.True(t, s.Connected())
	require.Len(t, s.Conversations(), 5)

	conv, _ = s.Conversation("conv-3")
	require.Equal(t, models.ModeAuto, conv.Mode)
}

func TestManualModeZeroesUnread(t *testing.T) {
	rec := &fakeRecorder{}
	s, srv := loadedSession(t, Options{Journal: rec})

	conv, _ := s.Conversation("conv-1")
	require.Equal(t, 1, conv.UnreadCount)

	require.NoError(t, s.ChangeMode(context.Background(), "conv-1", models.ModeManual))

	conv, _ = s.Conversation("conv-1")
	require.Equal(t, models.ModeManual, conv.Mode)
	require.Zero(t, conv.UnreadCount)
	require.Nil(t, conv.PendingResponse)

	remote, _ := srv.Conversation("conv-1")
	require.Equal(t, models.ModeManual, remote.Mode)
	require.Zero(t, remote.UnreadCount)
	require.Equal(t, []journal.Kind{journal.KindMode}, rec.kinds())
}

func TestChangeModeWhileDisconnectedStaysLocal(t *testing.T) {
	s, srv := loadedSession(t, Options{})
	srv.SetUnavailable(true)
	require.Error(t, s.Poll(context.Background()))

	require.NoError(t, s.ChangeMode(context.Background(), "conv-1", models.ModeManual))
	conv, _ := s.Conversation("conv-1")
	require.Equal(t, models.ModeManual, conv.Mode)
	require.Equal(t, 1, conv.UnreadCount)

	require.ErrorIs(t, s.ChangeMode(context.Background(), "missing", models.ModeAuto), ErrConversationNotFound)
	require.ErrorIs(t, s.ChangeMode(context.Background(), "conv-1", "robot"), models.ErrInvalidMode)
}

func TestApproveInHybridMode(t *testing.T) {
	s, srv := loadedSession(t, Options{})
	conv, _ := s.Conversation("conv-1")
	draft := conv.PendingResponse.Content

	msg, err := s.Approve(context.Background(), "conv-1")
	require.NoError(t, err)
	require.Equal(t, draft, msg.Content)
	require.False(t, s.IsPendingLoading("conv-1"))

	conv, _ = s.Conversation("conv-1")
	require.Nil(t, conv.PendingResponse)
	require.Equal(t, msg.ID, lastMessageID(t, conv))

	remote, _ := srv.Conversation("conv-1")
	require.Nil(t, remote.PendingResponse)

	_, err = s.Approve(context.Background(), "conv-1")
	require.ErrorIs(t, err, workflow.ErrNoPendingResponse)
}

func TestRejectAndEditAndApprove(t *testing.T) {
	s, srv := loadedSession(t, Options{})

	count := len(mustConversation(t, s, "conv-1").Messages)
	require.NoError(t, s.Reject(context.Background(), "conv-1"))
	conv := mustConversation(t, s, "conv-1")
	require.Nil(t, conv.PendingResponse)
	require.Len(t, conv.Messages, count)

	_, err := srv.Inbound("conv-1", "¿Y el plan mensual?")
	require.NoError(t, err)
	require.NoError(t, s.Poll(context.Background()))
	require.True(t, hasPending(t, s, "conv-1"))

	msg, err := s.EditAndApprove(context.Background(), "conv-1", "El plan mensual cuesta 120 soles.")
	require.NoError(t, err)
	require.Equal(t, "El plan mensual cuesta 120 soles.", msg.Content)
	require.Nil(t, mustConversation(t, s, "conv-1").PendingResponse)

	_, err = s.EditAndApprove(context.Background(), "missing", "x")
	require.ErrorIs(t, err, ErrConversationNotFound)
}

func TestPendingFailureLeavesStore(t *testing.T) {
	s, srv := loadedSession(t, Options{})
	srv.SetUnavailable(true)

	_, err := s.Approve(context.Background(), "conv-1")
	require.Error(t, err)
	require.True(t, hasPending(t, s, "conv-1"))
}

func TestPendingRequiresConnection(t *testing.T) {
	s, srv := loadedSession(t, Options{})
	srv.SetUnavailable(true)
	require.Error(t, s.Poll(context.Background()))

	_, err := s.Approve(context.Background(), "conv-1")
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, s.Reject(context.Background(), "conv-1"), ErrNotConnected)
}

func TestSelectMarksRead(t *testing.T) {
	s, srv := loadedSession(t, Options{})

	require.NoError(t, s.Select(context.Background(), "conv-1"))
	require.Equal(t, "conv-1", s.SelectedID())
	require.Zero(t, mustConversation(t, s, "conv-1").UnreadCount)
	remote, _ := srv.Conversation("conv-1")
	require.Zero(t, remote.UnreadCount)

	require.ErrorIs(t, s.Select(context.Background(), "nope"), ErrConversationNotFound)
	require.Equal(t, "conv-1", s.SelectedID())

	require.NoError(t, s.Select(context.Background(), ""))
	_, ok := s.Selected()
	require.False(t, ok)
}

func TestBroadcast(t *testing.T) {
	rec := &fakeRecorder{}
	s, _ := loadedSession(t, Options{BulkConcurrency: 2, Journal: rec})

	results, err := s.Broadcast(context.Background(), []string{"conv-2", "missing", "conv-3"}, "Aviso: mantenimiento a las 22h")
	require.NoError(t, err)
	require.Len(t, results, 3)

	require.Equal(t, "conv-2", results[0].ConversationID)
	require.NoError(t, results[0].Err)
	require.Equal(t, models.SenderOperator, results[0].Message.Sender)

	require.ErrorIs(t, results[1].Err, ErrConversationNotFound)
	require.False(t, results[1].KeptLocally())

	require.NoError(t, results[2].Err)
	require.Equal(t, models.SenderBot, results[2].Message.Sender)

	require.Contains(t, rec.kinds(), journal.KindBroadcast)

	_, err = s.Broadcast(context.Background(), []string{"conv-2"}, " ")
	require.ErrorIs(t, err, ErrEmptyMessage)
}

func TestFilteredUsesSessionClock(t *testing.T) {
	s, _ := loadedSession(t, Options{})

	got := s.Filtered(models.ConversationFilters{DateRange: models.DateRangeToday}, "")
	ids := make([]string, 0, len(got))
	for _, c := range got {
		ids = append(ids, c.ID)
	}
	require.Equal(t, []string{"conv-1", "conv-2"}, ids)

	got = s.Filtered(models.ConversationFilters{}, "VIP")
	require.Len(t, got, 1)
	require.Equal(t, "conv-1", got[0].ID)
}

func TestOpenPollsInBackground(t *testing.T) {
	s, srv := newTestSession(t, Options{PollInterval: 10 * time.Millisecond})
	require.NoError(t, s.Open(context.Background()))

	_, err := srv.Inbound("conv-4", "Hola de nuevo")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return s.UnreadNotifications() == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestOpenReconnectsAfterFailedLoad(t *testing.T) {
	s, srv := newTestSession(t, Options{PollInterval: 10 * time.Millisecond})
	srv.SetUnavailable(true)
	require.Error(t, s.Open(context.Background()))
	require.False(t, s.Connected())

	srv.SetUnavailable(false)
	require.Eventually(t, s.Connected, 2*time.Second, 5*time.Millisecond)
	require.Len(t, s.Conversations(), 4)
}

func TestCloseCancelsAndIsIdempotent(t *testing.T) {
	s, _ := loadedSession(t, Options{})
	events, _ := s.Subscribe()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, open := <-events
	require.False(t, open)

	_, err := s.SendTo(context.Background(), "conv-2", "hola")
	require.True(t, errors.Is(err, ErrClosed) || errors.Is(err, ErrNotConnected))
	require.ErrorIs(t, s.Start(), ErrClosed)
	require.ErrorIs(t, s.Select(context.Background(), "conv-2"), ErrClosed)

	late, cancel := s.Subscribe()
	cancel()
	_, open = <-late
	require.False(t, open)
}

func mustConversation(t *testing.T, s *Session, id string) models.Conversation {
	t.Helper()
	conv, ok := s.Conversation(id)
	require.True(t, ok)
	return conv
}

func lastMessageID(t *testing.T, conv models.Conversation) string {
	t.Helper()
	msg, ok := conv.LastMessage()
	require.True(t, ok)
	return msg.ID
}

func hasPending(t *testing.T, s *Session, id string) bool {
	t.Helper()
	conv := mustConversation(t, s, id)
	return conv.HasPendingResponse()
}

type hookedSendBackend struct {
	Backend
	beforeSend func()
}

func (b *hookedSendBackend) SendMessage(ctx context.Context, req api.SendMessageRequest) (models.Message, error) {
	b.beforeSend()
	return models.Message{}, errors.New("connection reset")
}

func TestSendToConversationRemovedMidflight(t *testing.T) {
	rec := &fakeRecorder{}
	hooked := &hookedSendBackend{}
	s, _ := newWrappedSession(t, Options{Journal: rec}, func(b Backend) Backend {
		hooked.Backend = b
		return hooked
	})
	require.NoError(t, s.Load(context.Background()))
	hooked.beforeSend = func() { s.store.Replace(nil) }

	_, err := s.SendTo(context.Background(), "conv-2", "hola")
	require.ErrorIs(t, err, ErrConversationNotFound)
	require.NotErrorIs(t, err, ErrKeptLocally)

	s.mu.Lock()
	pending := len(s.fallbacks)
	s.mu.Unlock()
	require.Zero(t, pending)
	require.Empty(t, rec.kinds())
}

// gatedListBackend holds the first armed ListConversations call after it
// has fetched, until release is closed.
type gatedListBackend struct {
	Backend
	armed   atomic.Bool
	fetches atomic.Int32
	entered chan struct{}
	release chan struct{}
}

func (b *gatedListBackend) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	convs, err := b.Backend.ListConversations(ctx)
	if b.armed.Load() && b.fetches.Add(1) == 1 {
		close(b.entered)
		<-b.release
	}
	return convs, err
}

func TestConcurrentPollsApplyInFetchOrder(t *testing.T) {
	gated := &gatedListBackend{entered: make(chan struct{}), release: make(chan struct{})}
	s, srv := newWrappedSession(t, Options{}, func(b Backend) Backend {
		gated.Backend = b
		return gated
	})
	require.NoError(t, s.Load(context.Background()))
	gated.armed.Store(true)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = s.Poll(context.Background())
	}()
	<-gated.entered

	_, err := srv.Inbound("conv-2", "¿siguen ahí?")
	require.NoError(t, err)
	go func() {
		defer wg.Done()
		_ = s.Poll(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), gated.fetches.Load())
	close(gated.release)
	wg.Wait()

	require.Equal(t, int32(2), gated.fetches.Load())
	conv, ok := s.Conversation("conv-2")
	require.True(t, ok)
	last, ok := conv.LastMessage()
	require.True(t, ok)
	require.Equal(t, "¿siguen ahí?", last.Content)
	require.Len(t, s.Notifications(), 1)
}
