package models

import "time"

// Sender identifies who wrote a message.
type Sender string

const (
	SenderUser     Sender = "user"
	SenderBot      Sender = "bot"
	SenderOperator Sender = "operator"
)

// MessageStatus tracks delivery and approval state.
type MessageStatus string

const (
	MessageSent            MessageStatus = "sent"
	MessageDelivered       MessageStatus = "delivered"
	MessageRead            MessageStatus = "read"
	MessagePendingApproval MessageStatus = "pending_approval"
	MessageApproved        MessageStatus = "approved"
	MessageRejected        MessageStatus = "rejected"
)

// Message is one entry in a conversation transcript.
type Message struct {
	ID        string        `json:"id"`
	Content   string        `json:"content"`
	Timestamp time.Time     `json:"timestamp"`
	Sender    Sender        `json:"sender"`
	Edited    bool          `json:"edited,omitempty"`
	Status    MessageStatus `json:"status,omitempty"`

	// ClientMessageID is the idempotency key generated for messages sent
	// from this console. Empty for messages the console did not author.
	ClientMessageID string `json:"client_message_id,omitempty"`
}

// QuickResponse is a canned reply the operator can insert.
type QuickResponse struct {
	ID       string `json:"id"`
	Text     string `json:"text"`
	Category string `json:"category"`
}
