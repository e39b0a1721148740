package kafka

import (
	"context"
	"time"

	"github.com/NordCoder/Heartline/internal/domain/check"
)

// StatusChange is the wire event emitted whenever a check's liveness
// classification is persisted and notification is due.
type StatusChange struct {
	CheckID   int64     `json:"check_id"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	Source    string    `json:"source"` // "ping" | "sweep"
	At        time.Time `json:"at"`
}

type StatusEventsKafka struct {
	p *Producer
}

func NewStatusEventsKafka(p *Producer) *StatusEventsKafka { return &StatusEventsKafka{p: p} }

func (k *StatusEventsKafka) PublishStatusChanged(ctx context.Context, checkID int64, oldStatus, newStatus check.Status, source string, at time.Time) error {
	ev := StatusChange{
		CheckID:   checkID,
		OldStatus: string(oldStatus),
		NewStatus: string(newStatus),
		Source:    source,
		At:        at.UTC(),
	}
	return k.p.PublishJSON(ctx, KeyFromInt64(checkID), ev)
}
