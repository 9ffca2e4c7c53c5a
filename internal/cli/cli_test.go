package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/tony-assistant/console/internal/devserver"
	"github.com/tony-assistant/console/internal/export"
	"github.com/tony-assistant/console/internal/journal"
	"github.com/tony-assistant/console/internal/models"
	"github.com/tony-assistant/console/internal/session"
)

type testEnv struct {
	dir    string
	config string
	srv    *devserver.Server
	url    string
}

func newTestEnv(t *testing.T, opts devserver.Options) *testEnv {
	t.Helper()
	opts.Seed = true
	srv := devserver.New(opts)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`global:
  data_dir: %s
  config_dir: %s
api:
  base_url: %s
session:
  poll_interval: 100ms
logging:
  level: error
`, filepath.Join(dir, "data"), filepath.Join(dir, "config"), hs.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o644))

	return &testEnv{dir: dir, config: cfgPath, srv: srv, url: hs.URL}
}

func (e *testEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	_, stdout, stderr, err := e.runApp(t, args...)
	return stdout, stderr, err
}

func (e *testEnv) runApp(t *testing.T, args ...string) (*app, string, string, error) {
	t.Helper()
	root, a := newRootCmd("test")
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--config", e.config}, args...))
	err := a.execute(context.Background(), root)
	return a, stdout.String(), stderr.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected ExitError, got %v", err)
	return exitErr.Code
}

func TestConversationsTable(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "conversations")
	require.NoError(t, err)
	require.Contains(t, out, "LAST ACTIVITY")
	for _, id := range []string{"conv-1", "conv-2", "conv-3", "conv-4"} {
		require.Contains(t, out, id)
	}
	require.Contains(t, out, "Carlos Rodríguez")
}

func TestConversationsJSONWithFilters(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "--json", "conversations", "--status", "pending")
	require.NoError(t, err)

	var convs []models.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &convs))
	ids := make([]string, 0, len(convs))
	for _, c := range convs {
		require.Equal(t, models.StatusPending, c.Status)
		ids = append(ids, c.ID)
	}
	require.ElementsMatch(t, []string{"conv-1", "conv-3"}, ids)

	out, _, err = env.run(t, "--json", "conversations", "--mine")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &convs))
	require.Len(t, convs, 1)
	require.Equal(t, "conv-2", convs[0].ID)

	out, _, err = env.run(t, "--json", "conversations", "--search", "LUCÍA")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &convs))
	require.Len(t, convs, 1)
	require.Equal(t, "conv-3", convs[0].ID)
}

func TestConversationsRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	_, _, err := env.run(t, "conversations", "--status", "archived")
	require.Equal(t, ExitCodeUsage, exitCode(t, err))

	_, _, err = env.run(t, "conversations", "--date-range", "forever")
	require.Equal(t, ExitCodeUsage, exitCode(t, err))
	require.ErrorIs(t, err, models.ErrInvalidDateRange)
}

func TestShowTranscript(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "show", "conv-2")
	require.NoError(t, err)
	require.Contains(t, out, "Carlos Rodríguez")
	require.Contains(t, out, "assigned operator1")
	require.Contains(t, out, "Mi pedido no ha llegado")
	require.Contains(t, out, "Lo reviso ahora mismo, Carlos.")

	_, _, err = env.run(t, "show", "conv-404")
	require.Equal(t, ExitCodeFailure, exitCode(t, err))
}

func TestSendEditAndJournal(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "--json", "send", "conv-2", "Ya", "salió", "tu", "pedido")
	require.NoError(t, err)
	var msg models.Message
	require.NoError(t, json.Unmarshal([]byte(out), &msg))
	require.Equal(t, "Ya salió tu pedido", msg.Content)
	require.Equal(t, models.SenderOperator, msg.Sender)
	require.NotEmpty(t, msg.ClientMessageID)

	conv, ok := env.srv.Conversation("conv-2")
	require.True(t, ok)
	last, ok := conv.LastMessage()
	require.True(t, ok)
	require.Equal(t, msg.ID, last.ID)

	out, _, err = env.run(t, "edit", msg.ID, "Ya salió tu pedido hoy")
	require.NoError(t, err)
	require.Contains(t, out, "Edited "+msg.ID)
	conv, _ = env.srv.Conversation("conv-2")
	last, _ = conv.LastMessage()
	require.Equal(t, "Ya salió tu pedido hoy", last.Content)
	require.True(t, last.Edited)

	out, _, err = env.run(t, "--json", "journal")
	require.NoError(t, err)
	var entries []journal.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 2)
	kinds := []journal.Kind{entries[0].Kind, entries[1].Kind}
	require.ElementsMatch(t, []journal.Kind{journal.KindSend, journal.KindEdit}, kinds)
}

func TestSendToUnknownConversationFails(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	_, _, err := env.run(t, "send", "conv-404", "hola")
	require.Equal(t, ExitCodeFailure, exitCode(t, err))
	require.ErrorIs(t, err, session.ErrConversationNotFound)
}

func TestModeAndPending(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "mode", "conv-3", "manual")
	require.NoError(t, err)
	require.Contains(t, out, "conv-3 is now manual")
	conv, _ := env.srv.Conversation("conv-3")
	require.Equal(t, models.ModeManual, conv.Mode)

	_, _, err = env.run(t, "mode", "conv-3", "turbo")
	require.Equal(t, ExitCodeUsage, exitCode(t, err))

	out, _, err = env.run(t, "pending", "edit", "conv-1", "Claro,", "te", "ayudo")
	require.NoError(t, err)
	require.Contains(t, out, "Sent edited response for conv-1")
	conv, _ = env.srv.Conversation("conv-1")
	require.Nil(t, conv.PendingResponse)
	last, _ := conv.LastMessage()
	require.Equal(t, "Claro, te ayudo", last.Content)

	_, err = env.srv.Inbound("conv-1", "¿Y el envío?")
	require.NoError(t, err)
	out, _, err = env.run(t, "pending", "reject", "conv-1")
	require.NoError(t, err)
	require.Contains(t, out, "Rejected pending response for conv-1")
	conv, _ = env.srv.Conversation("conv-1")
	require.Nil(t, conv.PendingResponse)
}

func TestQuickResponsesAndHealth(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "quick-responses")
	require.NoError(t, err)
	require.Contains(t, out, "qr-2")
	require.Contains(t, out, "Déjame revisarlo y te respondo en unos minutos.")

	out, _, err = env.run(t, "--json", "health")
	require.NoError(t, err)
	var report healthReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.True(t, report.Healthy)
	require.Equal(t, env.url, report.BaseURL)

	env.srv.SetUnavailable(true)
	out, _, err = env.run(t, "health")
	require.Equal(t, ExitCodeFailure, exitCode(t, err))
	require.Contains(t, out, "unreachable")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	require.True(t, exitErr.Printed)
}

func TestBackendDownFailsReadCommands(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})
	env.srv.SetUnavailable(true)

	_, _, err := env.run(t, "conversations")
	require.Equal(t, ExitCodeFailure, exitCode(t, err))
	require.Contains(t, err.Error(), "backend unreachable")
}

func TestBulkSend(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	out, _, err := env.run(t, "bulk", "--status", "pending", "--dry-run", "Estamos", "revisando")
	require.NoError(t, err)
	require.Contains(t, out, "Would send to 2 conversations")

	out, _, err = env.run(t, "--json", "bulk", "--status", "pending", "Estamos", "revisando")
	require.NoError(t, err)
	var results []bulkResult
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	require.Len(t, results, 2)
	for _, r := range results {
		require.Empty(t, r.Error)
		require.False(t, r.KeptLocally)
		conv, ok := env.srv.Conversation(r.ConversationID)
		require.True(t, ok)
		last, _ := conv.LastMessage()
		require.Equal(t, "Estamos revisando", last.Content)
	}

	_, _, err = env.run(t, "bulk", "--tag", "nonexistent", "hola")
	require.Equal(t, ExitCodeFailure, exitCode(t, err))
}

func TestExportWorkbook(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})
	path := filepath.Join(env.dir, "out.xlsx")

	out, _, err := env.run(t, "export", "--out", path, "--messages")
	require.NoError(t, err)
	require.Contains(t, out, "Exported 4 conversations")

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, []string{export.ConversationsSheet, export.MessagesSheet}, f.GetSheetList())

	_, _, err = env.run(t, "export", "--out", filepath.Join(env.dir, "out.csv"))
	require.Equal(t, ExitCodeUsage, exitCode(t, err))
}

func TestLoginThemeLogout(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})
	token, err := devserver.IssueToken([]byte("s3cret"), "alice", time.Hour, time.Now())
	require.NoError(t, err)

	out, _, err := env.run(t, "login", "--token", token)
	require.NoError(t, err)
	require.Contains(t, out, "Token saved for alice")

	out, _, err = env.run(t, "theme", "high-contrast")
	require.NoError(t, err)
	require.Contains(t, out, "Theme set to high-contrast")
	out, _, err = env.run(t, "theme")
	require.NoError(t, err)
	require.Equal(t, "high-contrast\n", out)

	_, _, err = env.run(t, "theme", "neon")
	require.Equal(t, ExitCodeUsage, exitCode(t, err))

	_, _, err = env.run(t, "logout")
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(env.dir, "config", "console-state.json"))
	require.NoError(t, err)
	require.NotContains(t, string(data), token)
}

func TestSavedTokenAuthenticatesAgainstSecuredServer(t *testing.T) {
	env := newTestEnv(t, devserver.Options{JWTSecret: "s3cret"})

	_, _, err := env.run(t, "conversations")
	require.Equal(t, ExitCodeFailure, exitCode(t, err))

	out, _, err := env.run(t, "dev-server", "token", "--jwt-secret", "s3cret", "--operator", "alice")
	require.NoError(t, err)
	token := strings.TrimSpace(out)
	require.Equal(t, "alice", operatorFromToken(token))

	_, _, err = env.run(t, "login", "--token", token)
	require.NoError(t, err)

	out, _, err = env.run(t, "--json", "send", "conv-3", "hola")
	require.NoError(t, err)
	conv, _ := env.srv.Conversation("conv-3")
	last, _ := conv.LastMessage()
	require.Equal(t, "hola", last.Content)
	require.Contains(t, out, last.ID)
}

func TestWatchPrintsNotifications(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})

	go func() {
		time.Sleep(400 * time.Millisecond)
		_, _ = env.srv.Inbound("conv-2", "¿Ya salió mi pedido?")
	}()

	out, _, err := env.run(t, "watch", "--for", "1500ms")
	require.NoError(t, err)
	require.Contains(t, out, "watching 4 conversations")
	require.Contains(t, out, "New message from Carlos Rodríguez: ¿Ya salió mi pedido? (conv-2)")
}

func TestOperatorFromToken(t *testing.T) {
	token, err := devserver.IssueToken([]byte("k"), "bob", time.Hour, time.Now())
	require.NoError(t, err)
	require.Equal(t, "bob", operatorFromToken(token))
	require.Empty(t, operatorFromToken("opaque-token"))
	require.Empty(t, operatorFromToken(""))
}

func TestActionErrorCodes(t *testing.T) {
	require.NoError(t, actionError(nil))

	kept := fmt.Errorf("%w: %w", session.ErrKeptLocally, errors.New("503"))
	require.Equal(t, ExitCodeKeptLocally, exitCode(t, actionError(kept)))
	require.Equal(t, ExitCodeFailure, exitCode(t, actionError(session.ErrNotConnected)))
	require.ErrorIs(t, actionError(kept), session.ErrKeptLocally)
}

func TestWriteTableAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"ID", "USER"}, [][]string{
		{"conv-1", "Lucía"},
		{"c", "\x1b[31m田中\x1b[0m"},
	}))
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	require.Equal(t, "ID      USER", lines[0])
	require.Equal(t, "conv-1  Lucía", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "c       "))
}

func TestLogFileClosedAfterFailingCommand(t *testing.T) {
	env := newTestEnv(t, devserver.Options{})
	logPath := filepath.Join(env.dir, "tony.log")
	t.Setenv("TONY_LOGGING_FILE", logPath)

	a, _, _, err := env.runApp(t, "show", "conv-missing")
	require.Error(t, err)
	require.Equal(t, ExitCodeFailure, exitCode(t, err))
	require.Nil(t, a.logFile)
	require.FileExists(t, logPath)
}
