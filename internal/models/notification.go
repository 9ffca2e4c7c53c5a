package models

import "time"

// NotificationType sets the severity of a notification.
type NotificationType string

const (
	NotificationInfo    NotificationType = "info"
	NotificationWarning NotificationType = "warning"
	NotificationSuccess NotificationType = "success"
	NotificationError   NotificationType = "error"
)

// Notification is a client-side alert raised by the session.
type Notification struct {
	ID             string           `json:"id"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Type           NotificationType `json:"type"`
	Timestamp      time.Time        `json:"timestamp"`
	Read           bool             `json:"read"`
	ConversationID string           `json:"conversation_id,omitempty"`
}
