package check

import "time"

// Status is the derived liveness classification of a check. It reflects
// the most recently accepted ping (or a sweeper verdict) and nothing else.
type Status string

const (
	StatusUp   Status = "up"
	StatusDown Status = "down"
)

// Check is a monitored external automation. Token is an opaque,
// crypto-random heartbeat identifier embedded in the ping URL; it is the
// sole authentication for ingestion and must never be derivable from ID.
type Check struct {
	ID              int64         `json:"id"`
	Token           string        `json:"token"`
	UserID          int64         `json:"user_id"`
	Name            string        `json:"name"`
	Interval        time.Duration `json:"interval"`
	Grace           time.Duration `json:"grace"`
	Status          Status        `json:"status"`
	LastPingedAt    *time.Time    `json:"last_pinged_at"`
	SlackWebhookURL string        `json:"slack_webhook_url"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// Deadline is the point in time after which a silent check is considered
// to have missed its schedule: last ping + interval + grace.
func (c *Check) Deadline() time.Time {
	if c.LastPingedAt == nil {
		return time.Time{}
	}
	return c.LastPingedAt.Add(c.Interval + c.Grace)
}
