// Package devserver is an in-memory Tony backend for demos and tests. It
// serves the same REST surface the console consumes.
package devserver

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/jinzhu/copier"
	"github.com/rs/zerolog"

	"github.com/tony-assistant/console/internal/logging"
	"github.com/tony-assistant/console/internal/models"
)

// Version is reported by /health.
const Version = "dev"

// Options configures a Server.
type Options struct {
	// Seed preloads demo conversations and quick responses.
	Seed bool
	// Now is the server clock. Defaults to time.Now.
	Now func() time.Time
	// JWTSecret, when set, requires an HS256 bearer token on every route
	// except /health.
	JWTSecret string
}

// Server holds conversations in memory behind a chi router.
type Server struct {
	mu      sync.Mutex
	convs   []models.Conversation
	quick   []models.QuickResponse
	down    bool
	started time.Time
	secret  []byte

	now      func() time.Time
	validate *validator.Validate
	logger   zerolog.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	s := &Server{
		now:      now,
		started:  now(),
		secret:   []byte(opts.JWTSecret),
		validate: validator.New(),
		logger:   logging.Component("devserver"),
	}
	if opts.Seed {
		s.convs = Seed(now())
		s.quick = SeedQuickResponses()
	}
	return s
}

// SetQuickResponses replaces the canned replies.
func (s *Server) SetQuickResponses(q []models.QuickResponse) {
	s.mu.Lock()
	s.quick = append([]models.QuickResponse(nil), q...)
	s.mu.Unlock()
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	r.Use(s.availability)
	r.Use(s.authenticate)

	r.Get("/health", s.handleHealth)
	r.Get("/quick-responses", s.handleQuickResponses)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.handleListConversations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetConversation)
			r.Post("/messages", s.handleSendMessage)
			r.Put("/mode", s.handleSetMode)
			r.Post("/mark-read", s.handleMarkRead)
			r.Post("/approve-pending", s.handleApprovePending)
			r.Post("/reject-pending", s.handleRejectPending)
			r.Post("/edit-and-approve", s.handleEditAndApprove)
			r.Post("/inbound", s.handleInbound)
		})
	})
	r.Put("/messages/{id}", s.handleEditMessage)

	return r
}

func (s *Server) availability(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.unavailable() {
			writeError(w, http.StatusServiceUnavailable, "backend unavailable")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sendMessageRequest struct {
	ConversationID  string `json:"conversation_id"`
	Content         string `json:"content" validate:"required"`
	SenderMode      string `json:"sender_mode" validate:"required,oneof=bot operator"`
	OperatorID      string `json:"operator_id"`
	ClientMessageID string `json:"client_message_id" validate:"omitempty,max=128"`
}

type contentRequest struct {
	Content string `json:"content" validate:"required"`
}

type modeRequest struct {
	Mode       string `json:"mode" validate:"required,oneof=auto manual hybrid"`
	OperatorID string `json:"operator_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"uptime":  s.now().Sub(s.started).Seconds(),
		"version": Version,
	})
}

func (s *Server) handleQuickResponses(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	quick := append([]models.QuickResponse(nil), s.quick...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "quick_responses": quick})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs := s.snapshot()
	out := make([]conversationDTO, 0, len(convs))
	for _, c := range convs {
		dto, err := toConversationDTO(c)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversations": out})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	conv, ok := s.Conversation(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, errNotFound.Error())
		return
	}
	dto, err := toConversationDTO(conv)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "conversation": dto})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.sendMessage(chi.URLParam(r, "id"), req)
	if err != nil {
		writeStateError(w, err)
		return
	}
	s.writeMessage(w, msg)
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.editMessage(chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeMessage(w, msg)
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.setMode(chi.URLParam(r, "id"), models.ConversationMode(req.Mode), req.OperatorID); err != nil {
		writeStateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Modo actualizado"})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := s.markRead(chi.URLParam(r, "id")); err != nil {
		writeStateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleApprovePending(w http.ResponseWriter, r *http.Request) {
	msg, err := s.resolvePending(chi.URLParam(r, "id"), true, nil)
	if err != nil {
		writeStateError(w, err)
		return
	}
	s.writeMessage(w, msg)
}

func (s *Server) handleRejectPending(w http.ResponseWriter, r *http.Request) {
	if _, err := s.resolvePending(chi.URLParam(r, "id"), false, nil); err != nil {
		writeStateError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Respuesta rechazada"})
}

func (s *Server) handleEditAndApprove(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.resolvePending(chi.URLParam(r, "id"), true, &req.Content)
	if err != nil {
		writeStateError(w, err)
		return
	}
	s.writeMessage(w, msg)
}

func (s *Server) handleInbound(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if !s.decode(w, r, &req) {
		return
	}
	msg, err := s.Inbound(chi.URLParam(r, "id"), req.Content)
	if err != nil {
		writeStateError(w, err)
		return
	}
	s.writeMessage(w, msg)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	return true
}

func (s *Server) writeMessage(w http.ResponseWriter, msg models.Message) {
	dto, err := toMessageDTO(msg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": dto})
}

func writeStateError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound), errors.Is(err, errNoPending):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"success": false,
		"error":   message,
	})
}

// Wire DTOs: camelCase conversation fields and Unix-second timestamps.

type userDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type messageDTO struct {
	ID              string  `json:"id"`
	Content         string  `json:"content"`
	Unix            float64 `json:"timestamp"`
	Sender          string  `json:"sender"`
	Edited          bool    `json:"edited,omitempty"`
	Status          string  `json:"status,omitempty"`
	ClientMessageID string  `json:"client_message_id,omitempty"`
}

type pendingDTO struct {
	ID      string  `json:"id"`
	Content string  `json:"content"`
	Unix    float64 `json:"timestamp"`
	IsError bool    `json:"is_error,omitempty"`
}

type conversationDTO struct {
	ID               string       `json:"id"`
	User             userDTO      `json:"user"`
	Messages         []messageDTO `json:"messages"`
	Status           string       `json:"status"`
	Mode             string       `json:"mode"`
	LastActivityUnix float64      `json:"lastActivity"`
	UnreadCount      int          `json:"unreadCount"`
	Tags             []string     `json:"tags"`
	AssignedOperator string       `json:"assignedOperator,omitempty"`
	PendingResponse  *pendingDTO  `json:"pending_response"`
}

func unix(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func toMessageDTO(m models.Message) (messageDTO, error) {
	var dto messageDTO
	if err := copier.Copy(&dto, &m); err != nil {
		return messageDTO{}, err
	}
	dto.Unix = unix(m.Timestamp)
	return dto, nil
}

func toConversationDTO(c models.Conversation) (conversationDTO, error) {
	var dto conversationDTO
	if err := copier.Copy(&dto.User, &c.User); err != nil {
		return conversationDTO{}, err
	}
	dto.ID = c.ID
	dto.Status = string(c.Status)
	dto.Mode = string(c.Mode)
	dto.LastActivityUnix = unix(c.LastActivity)
	dto.UnreadCount = c.UnreadCount
	dto.Tags = append([]string{}, c.Tags...)
	dto.AssignedOperator = c.AssignedOperator

	dto.Messages = make([]messageDTO, 0, len(c.Messages))
	for _, m := range c.Messages {
		md, err := toMessageDTO(m)
		if err != nil {
			return conversationDTO{}, err
		}
		dto.Messages = append(dto.Messages, md)
	}
	if c.PendingResponse != nil {
		dto.PendingResponse = &pendingDTO{
			ID:      c.PendingResponse.ID,
			Content: c.PendingResponse.Content,
			Unix:    unix(c.PendingResponse.Timestamp),
			IsError: c.PendingResponse.IsError,
		}
	}
	return dto, nil
}
