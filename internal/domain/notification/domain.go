package notification

import (
	"context"
	"time"
)

// Notification is an audit row of one delivered (or attempted) alert.
type Notification struct {
	ID      int64     `json:"id"`
	CheckID int64     `json:"check_id"`
	UserID  int64     `json:"user_id"`
	Type    string    `json:"type"` // "email" | "slack"
	SentAt  time.Time `json:"sent_at"`
	Payload string    `json:"payload"`
}

type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

type Clock interface {
	Now() time.Time
}
