// Package journal records operator actions in a local SQLite database.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindSend           Kind = "send"
	KindSendFallback   Kind = "send_fallback"
	KindEdit           Kind = "edit"
	KindEditFallback   Kind = "edit_fallback"
	KindMode           Kind = "mode"
	KindModeSyncFailed Kind = "mode_sync_failed"
	KindApprove        Kind = "approve"
	KindReject         Kind = "reject"
	KindEditApprove    Kind = "edit_approve"
	KindBroadcast      Kind = "broadcast"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded action.
type Entry struct {
	ID              string    `json:"id"`
	At              time.Time `json:"at"`
	Operator        string    `json:"operator"`
	ConversationID  string    `json:"conversation_id"`
	Kind            Kind      `json:"kind"`
	Detail          string    `json:"detail,omitempty"`
	ClientMessageID string    `json:"client_message_id,omitempty"`
	Confirmed       bool      `json:"confirmed"`
}

// Journal is a SQLite-backed action log.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

func (j *Journal) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS journal_entries (
			id TEXT PRIMARY KEY,
			at TEXT NOT NULL,
			operator TEXT NOT NULL,
			conversation_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			client_message_id TEXT NOT NULL DEFAULT '',
			confirmed INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS journal_entries_at_idx ON journal_entries(at)`,
		`CREATE INDEX IF NOT EXISTS journal_entries_client_idx ON journal_entries(client_message_id)`,
	}
	for _, stmt := range statements {
		if _, err := j.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize journal schema: %w", err)
		}
	}
	return nil
}

// Record stores e, assigning an id and timestamp when missing.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j == nil || j.db == nil {
		return errors.New("journal unavailable")
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, at, operator, conversation_id, kind, detail, client_message_id, confirmed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.At.UTC().Format(timeLayout), e.Operator, e.ConversationID, string(e.Kind), e.Detail, e.ClientMessageID, boolToInt(e.Confirmed))
	if err != nil {
		return fmt.Errorf("failed to record journal entry: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	return j.query(ctx, `
		SELECT id, at, operator, conversation_id, kind, detail, client_message_id, confirmed
		FROM journal_entries ORDER BY at DESC LIMIT ?
	`, limit)
}

// Unconfirmed returns locally kept sends the backend has not echoed yet,
// oldest first.
func (j *Journal) Unconfirmed(ctx context.Context) ([]Entry, error) {
	return j.query(ctx, `
		SELECT id, at, operator, conversation_id, kind, detail, client_message_id, confirmed
		FROM journal_entries
		WHERE kind = ? AND confirmed = 0 AND client_message_id != ''
		ORDER BY at ASC
	`, string(KindSendFallback))
}

// Confirm marks entries carrying any of the client message ids as confirmed.
func (j *Journal) Confirm(ctx context.Context, clientMessageIDs []string) (int64, error) {
	if len(clientMessageIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(clientMessageIDs)), ",")
	args := make([]any, 0, len(clientMessageIDs))
	for _, id := range clientMessageIDs {
		args = append(args, id)
	}
	res, err := j.db.ExecContext(ctx, `
		UPDATE journal_entries SET confirmed = 1
		WHERE confirmed = 0 AND client_message_id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to confirm journal entries: %w", err)
	}
	return res.RowsAffected()
}

func (j *Journal) query(ctx context.Context, q string, args ...any) ([]Entry, error) {
	if j == nil || j.db == nil {
		return nil, errors.New("journal unavailable")
	}
	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			at        string
			kind      string
			confirmed int
		)
		if err := rows.Scan(&e.ID, &at, &e.Operator, &e.ConversationID, &kind, &e.Detail, &e.ClientMessageID, &confirmed); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Kind = Kind(kind)
		e.Confirmed = confirmed != 0
		if parsed, err := time.Parse(timeLayout, at); err == nil {
			e.At = parsed
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
