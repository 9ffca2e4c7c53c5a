// Package api is the REST client for the Tony backend.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/models"
)

// DefaultTimeout bounds each request when Options.Timeout is unset.
const DefaultTimeout = 15 * time.Second

// Options configures a Client.
type Options struct {
	BaseURL   string
	Token     string
	Timeout   time.Duration
	UserAgent string

	// Now is the clock used for missing timestamps. Defaults to time.Now.
	Now func() time.Time

	// Observe, when set, is called once per request with the outcome.
	Observe func(op string, kind ErrorKind, elapsed time.Duration)
}

// Client issues one HTTP request per operation against the Tony backend.
// It never retries.
type Client struct {
	http    *resty.Client
	baseURL string
	now     func() time.Time
	observe func(op string, kind ErrorKind, elapsed time.Duration)
	logger  zerolog.Logger
}

// New creates a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, errors.New("api: base URL is required")
	}
	if u, err := url.Parse(base); err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("api: invalid base URL %q", opts.BaseURL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := opts.UserAgent
	if ua == "" {
		ua = "tony-console"
	}

	httpClient := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", ua).
		SetJSONMarshaler(json.Marshal).
		SetJSONUnmarshaler(json.Unmarshal)
	if opts.Token != "" {
		httpClient.SetAuthToken(opts.Token)
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Client{
		http:    httpClient,
		baseURL: base,
		now:     now,
		observe: opts.Observe,
		logger:  logging.Component("api"),
	}, nil
}

// BaseURL returns the normalized backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListConversations fetches every conversation visible to the operator.
func (c *Client) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	env, err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", nil)
	if err != nil {
		return nil, err
	}
	now := c.now()
	out := make([]models.Conversation, 0, len(env.Conversations))
	for _, conv := range env.Conversations {
		out = append(out, conv.toModel(now))
	}
	return out, nil
}

// GetConversation fetches one conversation.
func (c *Client) GetConversation(ctx context.Context, id string) (models.Conversation, error) {
	const op = "get conversation"
	env, err := c.do(ctx, op, http.MethodGet, "/conversations/"+url.PathEscape(id), nil)
	if err != nil {
		return models.Conversation{}, err
	}
	if env.Conversation == nil {
		return models.Conversation{}, &Error{Op: op, Kind: KindEnvelope, Message: "response has no conversation"}
	}
	return env.Conversation.toModel(c.now()), nil
}

// SendMessageRequest is the payload for SendMessage.
type SendMessageRequest struct {
	ConversationID  string
	Content         string
	SenderMode      models.SenderMode
	OperatorID      string
	ClientMessageID string
}

// SendMessage posts a message to a conversation and returns the stored copy.
func (c *Client) SendMessage(ctx context.Context, req SendMessageRequest) (models.Message, error) {
	body := sendMessageBody{
		ConversationID:  req.ConversationID,
		Content:         req.Content,
		SenderMode:      string(req.SenderMode),
		OperatorID:      req.OperatorID,
		ClientMessageID: req.ClientMessageID,
	}
	path := "/conversations/" + url.PathEscape(req.ConversationID) + "/messages"
	msg, err := c.doMessage(ctx, "send message", http.MethodPost, path, body)
	if err != nil {
		return models.Message{}, err
	}
	if msg.ClientMessageID == "" {
		msg.ClientMessageID = req.ClientMessageID
	}
	return msg, nil
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, messageID, content string) (models.Message, error) {
	return c.doMessage(ctx, "edit message", http.MethodPut, "/messages/"+url.PathEscape(messageID), contentBody{Content: content})
}

// ChangeMode sets the conversation mode on the backend.
func (c *Client) ChangeMode(ctx context.Context, conversationID string, mode models.ConversationMode, operatorID string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/mode"
	_, err := c.do(ctx, "change mode", http.MethodPut, path, modeBody{Mode: string(mode), OperatorID: operatorID})
	return err
}

// MarkRead clears the backend unread counter for a conversation.
func (c *Client) MarkRead(ctx context.Context, conversationID string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/mark-read"
	_, err := c.do(ctx, "mark read", http.MethodPost, path, nil)
	return err
}

// ListQuickResponses fetches the canned replies.
func (c *Client) ListQuickResponses(ctx context.Context) ([]models.QuickResponse, error) {
	env, err := c.do(ctx, "list quick responses", http.MethodGet, "/quick-responses", nil)
	if err != nil {
		return nil, err
	}
	return quickRepliesToModel(env.QuickReplies), nil
}

// ApprovePending sends the drafted pending response as is.
func (c *Client) ApprovePending(ctx context.Context, conversationID string) (models.Message, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/approve-pending"
	return c.doMessage(ctx, "approve pending response", http.MethodPost, path, nil)
}

// RejectPending discards the drafted pending response.
func (c *Client) RejectPending(ctx context.Context, conversationID string) error {
	path := "/conversations/" + url.PathEscape(conversationID) + "/reject-pending"
	_, err := c.do(ctx, "reject pending response", http.MethodPost, path, nil)
	return err
}

// EditAndApprovePending sends edited content in place of the draft.
func (c *Client) EditAndApprovePending(ctx context.Context, conversationID, content string) (models.Message, error) {
	path := "/conversations/" + url.PathEscape(conversationID) + "/edit-and-approve"
	return c.doMessage(ctx, "edit and approve pending response", http.MethodPost, path, contentBody{Content: content})
}

// HealthStatus is the backend health payload.
type HealthStatus struct {
	Status  string  `json:"status"`
	Uptime  float64 `json:"uptime,omitempty"`
	Version string  `json:"version,omitempty"`
}

// Health checks backend reachability. Any 2xx answer counts as healthy.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	const op = "health check"
	start := time.Now()
	resp, err := c.http.R().SetContext(ctx).Get("/health")
	if err != nil {
		c.finish(op, KindTransport, start)
		return HealthStatus{}, &Error{Op: op, Kind: KindTransport, Err: err}
	}
	if resp.IsError() {
		c.finish(op, KindStatus, start)
		return HealthStatus{}, &Error{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode(), Message: http.StatusText(resp.StatusCode())}
	}
	var status HealthStatus
	_ = json.Unmarshal(resp.Body(), &status)
	if status.Status == "" {
		status.Status = "ok"
	}
	c.finish(op, "", start)
	return status, nil
}

func (c *Client) doMessage(ctx context.Context, op, method, path string, body any) (models.Message, error) {
	env, err := c.do(ctx, op, method, path, body)
	if err != nil {
		return models.Message{}, err
	}
	var wm wireMessage
	if len(env.Message) == 0 || json.Unmarshal(env.Message, &wm) != nil || wm.ID == "" {
		err := &Error{Op: op, Kind: KindEnvelope, Message: "response has no message"}
		c.logger.Warn().Str("op", op).Msg("backend response missing message")
		return models.Message{}, err
	}
	return wm.toModel(c.now()), nil
}

// do performs a request and normalizes every failure mode into *Error.
func (c *Client) do(ctx context.Context, op, method, path string, body any) (envelope, error) {
	start := time.Now()
	req := c.http.R().SetContext(ctx)
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		c.finish(op, KindTransport, start)
		c.logger.Debug().Str("error", logging.Redact(err.Error())).Str("op", op).Msg("request failed")
		return envelope{}, &Error{Op: op, Kind: KindTransport, Err: err}
	}

	var env envelope
	decodeErr := json.Unmarshal(resp.Body(), &env)

	if resp.IsError() {
		c.finish(op, KindStatus, start)
		msg := env.errorText()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		return envelope{}, &Error{Op: op, Kind: KindStatus, StatusCode: resp.StatusCode(), Message: msg}
	}
	if decodeErr != nil {
		c.finish(op, KindDecode, start)
		return envelope{}, &Error{Op: op, Kind: KindDecode, StatusCode: resp.StatusCode(), Message: "invalid response body", Err: decodeErr}
	}
	if !env.Success {
		c.finish(op, KindEnvelope, start)
		msg := env.errorText()
		if msg == "" {
			msg = "backend reported failure"
		}
		return envelope{}, &Error{Op: op, Kind: KindEnvelope, StatusCode: resp.StatusCode(), Message: msg}
	}

	c.finish(op, "", start)
	return env, nil
}

func (c *Client) finish(op string, kind ErrorKind, start time.Time) {
	if c.observe != nil {
		c.observe(op, kind, time.Since(start))
	}
}
