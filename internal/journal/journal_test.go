package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndRecent(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	require.NoError(t, j.Record(ctx, Entry{At: base, Operator: "operator1", ConversationID: "c1", Kind: KindSend, Detail: "hola"}))
	require.NoError(t, j.Record(ctx, Entry{At: base.Add(time.Minute), Operator: "operator1", ConversationID: "c1", Kind: KindMode, Detail: "manual"}))

	entries, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, KindMode, entries[0].Kind)
	require.Equal(t, "manual", entries[0].Detail)
	require.NotEmpty(t, entries[0].ID)
	require.True(t, entries[1].At.Equal(base))
}

func TestConfirmFallbackSends(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	require.NoError(t, j.Record(ctx, Entry{ConversationID: "c1", Kind: KindSendFallback, ClientMessageID: "k1"}))
	require.NoError(t, j.Record(ctx, Entry{ConversationID: "c1", Kind: KindSendFallback, ClientMessageID: "k2"}))
	require.NoError(t, j.Record(ctx, Entry{ConversationID: "c2", Kind: KindSend, ClientMessageID: "k3"}))

	pending, err := j.Unconfirmed(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	n, err := j.Confirm(ctx, []string{"k1", "unknown"})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	pending, err = j.Unconfirmed(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "k2", pending[0].ClientMessageID)

	n, err = j.Confirm(ctx, nil)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNilJournal(t *testing.T) {
	var j *Journal
	require.NoError(t, j.Close())
	require.Error(t, j.Record(context.Background(), Entry{}))
}
