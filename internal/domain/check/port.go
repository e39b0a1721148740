package check

import (
	"context"
	"time"
)

type Repo interface {
	GetByToken(ctx context.Context, token string) (*Check, error)
	GetByID(ctx context.Context, id int64) (*Check, error)
	// UpdateStatus persists the liveness transition in a single update.
	// A nil pingedAt leaves last_pinged_at untouched (sweeper path).
	UpdateStatus(ctx context.Context, id int64, status Status, pingedAt *time.Time) error
	// FetchOverdue returns up-status checks whose last ping is older than
	// interval+grace, locked for the caller (FOR UPDATE SKIP LOCKED).
	FetchOverdue(ctx context.Context, now time.Time, limit int) ([]*Check, error)
}
