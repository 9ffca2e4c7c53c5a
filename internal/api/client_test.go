package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/tony-assistant/console/internal/models"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Options{
		BaseURL: srv.URL + "/",
		Token:   "secret-token",
		Timeout: 2 * time.Second,
		Now:     func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return client
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)

	_, err = New(Options{BaseURL: "localhost"})
	require.Error(t, err)
}

func TestListConversationsNormalizesTimestamps(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations", r.URL.Path)
		require.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		writeBody(w, http.StatusOK, `{
			"success": true,
			"conversations": [{
				"id": "c1",
				"user": {"id": "u1", "name": "Ana"},
				"messages": [
					{"id": "m1", "content": "hola", "timestamp": 1700000000, "sender": "user"},
					{"id": "m2", "content": "buenas", "timestamp": 1700000001.5, "sender": "bot", "status": "sent"},
					{"id": "m3", "content": "sin hora", "sender": "operator"}
				],
				"status": "pending",
				"mode": "hybrid",
				"lastActivity": "1700000002",
				"unreadCount": 2,
				"tags": ["vip"],
				"pending_response": {"id": "p1", "content": "borrador", "timestamp": 1700000003}
			}]
		}`)
	})

	convs, err := client.ListConversations(context.Background())
	require.NoError(t, err)
	require.Len(t, convs, 1)

	conv := convs[0]
	require.Equal(t, "Ana", conv.User.Name)
	require.Equal(t, models.ModeHybrid, conv.Mode)
	require.Equal(t, 2, conv.UnreadCount)
	require.Equal(t, time.Unix(1700000002, 0), conv.LastActivity)
	require.Len(t, conv.Messages, 3)
	require.Equal(t, time.Unix(1700000000, 0), conv.Messages[0].Timestamp)
	require.Equal(t, time.Unix(1700000001, 500000000), conv.Messages[1].Timestamp)
	require.Equal(t, fixedNow, conv.Messages[2].Timestamp)
	require.NotNil(t, conv.PendingResponse)
	require.Equal(t, "borrador", conv.PendingResponse.Content)
	require.Equal(t, time.Unix(1700000003, 0), conv.PendingResponse.Timestamp)
}

func TestEnvelopeFailureBecomesError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"success": false, "error": "conversation locked"}`)
	})

	err := client.MarkRead(context.Background(), "c1")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrRequestFailed)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindEnvelope, apiErr.Kind)
	require.Equal(t, "conversation locked", apiErr.Message)
}

func TestNon2xxUsesDetail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusNotFound, `{"detail": "Conversación no encontrada"}`)
	})

	_, err := client.ApprovePending(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, IsNotFound(err))

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindStatus, apiErr.Kind)
	require.Equal(t, "Conversación no encontrada", apiErr.Message)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	client, err := New(Options{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)

	_, err = client.Health(context.Background())
	require.Error(t, err)

	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindTransport, apiErr.Kind)
}

func TestSendMessageBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/conversations/c1/messages", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "c1", body["conversation_id"])
		require.Equal(t, "en camino", body["content"])
		require.Equal(t, "operator", body["sender_mode"])
		require.Equal(t, "operator1", body["operator_id"])
		require.Equal(t, "key-1", body["client_message_id"])

		writeBody(w, http.StatusOK, `{"success": true, "message": {"id": "m9", "content": "en camino", "timestamp": 1700000100, "sender": "operator", "status": "sent"}}`)
	})

	msg, err := client.SendMessage(context.Background(), SendMessageRequest{
		ConversationID:  "c1",
		Content:         "en camino",
		SenderMode:      models.SenderModeOperator,
		OperatorID:      "operator1",
		ClientMessageID: "key-1",
	})
	require.NoError(t, err)
	require.Equal(t, "m9", msg.ID)
	require.Equal(t, models.SenderOperator, msg.Sender)
	require.Equal(t, "key-1", msg.ClientMessageID)
}

func TestSendMessageWithoutMessageIsError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"success": true, "message": "ok"}`)
	})

	_, err := client.SendMessage(context.Background(), SendMessageRequest{ConversationID: "c1", Content: "x"})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, KindEnvelope, apiErr.Kind)
}

func TestRejectPendingAcceptsStringMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/conversations/c1/reject-pending", r.URL.Path)
		writeBody(w, http.StatusOK, `{"success": true, "message": "Respuesta rechazada"}`)
	})

	require.NoError(t, client.RejectPending(context.Background(), "c1"))
}

func TestQuickResponsesAcceptStringsAndObjects(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"success": true, "quick_responses": [
			"Gracias por escribirnos",
			{"id": "greet", "text": "Hola", "category": "saludo"}
		]}`)
	})

	replies, err := client.ListQuickResponses(context.Background())
	require.NoError(t, err)
	require.Equal(t, []models.QuickResponse{
		{ID: "1", Text: "Gracias por escribirnos", Category: "general"},
		{ID: "greet", Text: "Hola", Category: "saludo"},
	}, replies)
}

func TestChangeModeBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPut, r.Method)
		var body modeBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, modeBody{Mode: "manual", OperatorID: "operator1"}, body)
		writeBody(w, http.StatusOK, `{"success": true}`)
	})

	require.NoError(t, client.ChangeMode(context.Background(), "c1", models.ModeManual, "operator1"))
}

func TestContextCancellationAbortsRequest(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		writeBody(w, http.StatusOK, `{"success": true, "conversations": []}`)
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.ListConversations(ctx)
	require.Error(t, err)
	require.True(t, errors.Is(err, context.Canceled))
}

func TestObserveReportsKinds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusInternalServerError, `{"detail": "boom"}`)
	}))
	defer srv.Close()

	var kinds []ErrorKind
	client, err := New(Options{
		BaseURL: srv.URL,
		Observe: func(op string, kind ErrorKind, _ time.Duration) { kinds = append(kinds, kind) },
	})
	require.NoError(t, err)

	_, err = client.ListConversations(context.Background())
	require.Error(t, err)
	require.Equal(t, []ErrorKind{KindStatus}, kinds)
}
