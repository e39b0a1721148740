package run

import (
	"encoding/json"
	"time"
)

// Status is the caller-reported outcome of one heartbeat, distinct from
// the check's derived up/down classification.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

// Run is one immutable ingestion record. Rows are never mutated or
// deleted; CreatedAt is the ordering key for uptime math.
type Run struct {
	ID           int64           `json:"id"`
	CheckID      int64           `json:"check_id"`
	Status       Status          `json:"status"`
	Payload      json.RawMessage `json:"payload"`
	ErrorMessage string          `json:"error_message"`
	DurationMS   *int64          `json:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at"`
}
