package models

import "time"

// NotificationType classifies feed entries.
type NotificationType string

const (
	NotificationStatusUpdate   NotificationType = "status_update"
	NotificationMessage        NotificationType = "message"
	NotificationCreditUpdate   NotificationType = "credit_update"
	NotificationFileAssignment NotificationType = "file_assignment"
	NotificationSystem         NotificationType = "system"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotificationStatusUpdate, NotificationMessage, NotificationCreditUpdate,
		NotificationFileAssignment, NotificationSystem:
		return true
	}
	return false
}

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	FileID    string           `json:"file_id,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
