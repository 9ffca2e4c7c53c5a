package devserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tony-assistant/console/internal/models"
)

var (
	errNotFound  = errors.New("conversation not found")
	errNoPending = errors.New("conversation has no pending response")
)

func (s *Server) findLocked(id string) (*models.Conversation, error) {
	for i := range s.convs {
		if s.convs[i].ID == id {
			return &s.convs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", errNotFound, id)
}

func (s *Server) newMessage(content string, sender models.Sender) models.Message {
	return models.Message{
		ID:        "msg-" + uuid.NewString(),
		Content:   content,
		Timestamp: s.now(),
		Sender:    sender,
		Status:    models.MessageSent,
	}
}

// AddConversation inserts or replaces a conversation.
func (s *Server) AddConversation(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.convs {
		if s.convs[i].ID == conv.ID {
			s.convs[i] = conv
			return
		}
	}
	s.convs = append(s.convs, conv)
}

// Conversation returns a copy of a stored conversation.
func (s *Server) Conversation(id string) (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findLocked(id)
	if err != nil {
		return models.Conversation{}, false
	}
	out := *conv
	out.Messages = append([]models.Message(nil), conv.Messages...)
	return out, true
}

// SetUnavailable makes every endpoint answer 503 while true.
func (s *Server) SetUnavailable(down bool) {
	s.mu.Lock()
	s.down = down
	s.mu.Unlock()
}

func (s *Server) unavailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.down
}

// Inbound simulates an end-user message. In auto mode the bot answers
// straight away; in hybrid mode a draft becomes the pending response.
func (s *Server) Inbound(conversationID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findLocked(conversationID)
	if err != nil {
		return models.Message{}, err
	}

	msg := s.newMessage(content, models.SenderUser)
	msg.Status = models.MessageDelivered
	conv.Messages = append(conv.Messages, msg)
	conv.UnreadCount++
	conv.LastActivity = msg.Timestamp
	if conv.Status == models.StatusClosed {
		conv.Status = models.StatusPending
	}

	reply := botReply(conv.User.Name, content)
	switch conv.Mode {
	case models.ModeAuto:
		conv.Messages = append(conv.Messages, s.newMessage(reply, models.SenderBot))
	case models.ModeHybrid:
		conv.PendingResponse = &models.PendingResponse{
			ID:        "pending-" + uuid.NewString(),
			Content:   reply,
			Timestamp: s.now(),
		}
	}
	return msg, nil
}

func (s *Server) sendMessage(conversationID string, req sendMessageRequest) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findLocked(conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if req.ClientMessageID != "" {
		for _, m := range conv.Messages {
			if m.ClientMessageID == req.ClientMessageID {
				return m, nil
			}
		}
	}

	msg := s.newMessage(req.Content, models.Sender(req.SenderMode))
	msg.ClientMessageID = req.ClientMessageID
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = msg.Timestamp
	if msg.Sender == models.SenderOperator {
		conv.Status = models.StatusInProgress
		if req.OperatorID != "" {
			conv.AssignedOperator = req.OperatorID
		}
	}
	return msg, nil
}

func (s *Server) editMessage(messageID, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ci := range s.convs {
		for mi := range s.convs[ci].Messages {
			m := &s.convs[ci].Messages[mi]
			if m.ID == messageID {
				m.Content = content
				m.Edited = true
				return *m, nil
			}
		}
	}
	return models.Message{}, fmt.Errorf("message not found: %s", messageID)
}

func (s *Server) setMode(conversationID string, mode models.ConversationMode, operatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findLocked(conversationID)
	if err != nil {
		return err
	}
	conv.Mode = mode
	if mode != models.ModeHybrid {
		conv.PendingResponse = nil
	}
	if mode == models.ModeManual && operatorID != "" {
		conv.AssignedOperator = operatorID
	}
	return nil
}

func (s *Server) markRead(conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findLocked(conversationID)
	if err != nil {
		return err
	}
	conv.UnreadCount = 0
	return nil
}

// resolvePending sends (content non-nil) or discards the pending response.
func (s *Server) resolvePending(conversationID string, send bool, content *string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, err := s.findLocked(conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if conv.PendingResponse == nil {
		return models.Message{}, errNoPending
	}

	text := conv.PendingResponse.Content
	conv.PendingResponse = nil
	if !send {
		return models.Message{}, nil
	}

	msg := s.newMessage(text, models.SenderBot)
	msg.Status = models.MessageApproved
	if content != nil {
		msg.Content = *content
		msg.Edited = true
	}
	conv.Messages = append(conv.Messages, msg)
	conv.LastActivity = msg.Timestamp
	return msg, nil
}

func (s *Server) snapshot() []models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Conversation, len(s.convs))
	for i, c := range s.convs {
		c.Messages = append([]models.Message(nil), c.Messages...)
		out[i] = c
	}
	return out
}

func botReply(name, content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "precio") || strings.Contains(lower, "price"):
		return "Te comparto la lista de precios actualizada en un momento."
	case strings.Contains(lower, "envío") || strings.Contains(lower, "envio") || strings.Contains(lower, "shipping"):
		return "Hacemos envíos a todo el país en 24 a 48 horas."
	}
	if name == "" {
		return "Gracias por escribirnos. ¿En qué más podemos ayudarte?"
	}
	return fmt.Sprintf("Gracias por escribirnos, %s. ¿En qué más podemos ayudarte?", name)
}

// Seed returns demo conversations anchored at now.
func Seed(now time.Time) []models.Conversation {
	ago := func(d time.Duration) time.Time { return now.Add(-d) }
	return []models.Conversation{
		{
			ID:     "conv-1",
			User:   models.User{ID: "+51987654321", Name: "María García"},
			Status: models.StatusPending,
			Mode:   models.ModeHybrid,
			Messages: []models.Message{
				{ID: "msg-1", Content: "Hola, quisiera saber el precio del plan anual", Timestamp: ago(12 * time.Minute), Sender: models.SenderUser, Status: models.MessageDelivered},
			},
			LastActivity: ago(12 * time.Minute),
			UnreadCount:  1,
			Tags:         []string{"ventas", "vip"},
			PendingResponse: &models.PendingResponse{
				ID:        "pending-1",
				Content:   "¡Hola María! El plan anual cuesta 1200 soles con dos meses gratis.",
				Timestamp: ago(11 * time.Minute),
			},
		},
		{
			ID:     "conv-2",
			User:   models.User{ID: "+51912345678", Name: "Carlos Rodríguez"},
			Status: models.StatusInProgress,
			Mode:   models.ModeManual,
			Messages: []models.Message{
				{ID: "msg-2", Content: "Mi pedido no ha llegado", Timestamp: ago(2 * time.Hour), Sender: models.SenderUser, Status: models.MessageRead},
				{ID: "msg-3", Content: "Lo reviso ahora mismo, Carlos.", Timestamp: ago(110 * time.Minute), Sender: models.SenderOperator, Status: models.MessageDelivered},
			},
			LastActivity:     ago(110 * time.Minute),
			Tags:             []string{"soporte", "envío"},
			AssignedOperator: "operator1",
		},
		{
			ID:     "conv-3",
			User:   models.User{ID: "+51955511122", Name: "Lucía Fernández"},
			Status: models.StatusPending,
			Mode:   models.ModeAuto,
			Messages: []models.Message{
				{ID: "msg-4", Content: "¿Atienden los domingos?", Timestamp: ago(26 * time.Hour), Sender: models.SenderUser, Status: models.MessageRead},
				{ID: "msg-5", Content: "Sí, atendemos de 9 a 13 horas.", Timestamp: ago(26 * time.Hour), Sender: models.SenderBot, Status: models.MessageDelivered},
			},
			LastActivity: ago(26 * time.Hour),
			Tags:         []string{"consulta"},
		},
		{
			ID:     "conv-4",
			User:   models.User{ID: "+51933344455", Name: "Jorge Salazar"},
			Status: models.StatusClosed,
			Mode:   models.ModeAuto,
			Messages: []models.Message{
				{ID: "msg-6", Content: "Gracias, todo resuelto", Timestamp: ago(9 * 24 * time.Hour), Sender: models.SenderUser, Status: models.MessageRead},
			},
			LastActivity: ago(9 * 24 * time.Hour),
			Tags:         []string{"soporte"},
		},
	}
}

// SeedQuickResponses returns the demo canned replies.
func SeedQuickResponses() []models.QuickResponse {
	return []models.QuickResponse{
		{ID: "qr-1", Text: "¡Hola! ¿En qué puedo ayudarte?", Category: "saludo"},
		{ID: "qr-2", Text: "Déjame revisarlo y te respondo en unos minutos.", Category: "seguimiento"},
		{ID: "qr-3", Text: "¿Podrías compartirme tu número de pedido?", Category: "soporte"},
		{ID: "qr-4", Text: "Gracias por tu paciencia. ¡Que tengas un buen día!", Category: "despedida"},
	}
}
