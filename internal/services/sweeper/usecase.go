package sweeper

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/NordCoder/Heartline/internal/domain/check"
	"github.com/NordCoder/Heartline/internal/domain/notification"
	domoutbox "github.com/NordCoder/Heartline/internal/domain/outbox"
	intoutbox "github.com/NordCoder/Heartline/internal/outbox"
	"github.com/NordCoder/Heartline/internal/repository/postgres"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// Usecase marks checks down when their interval+grace window elapses
// with no accepted ping. It drives the same transition and notification
// contracts as ingestion, so a silent death and a reported failure look
// identical downstream. FetchOverdue only returns up-status checks, so
// an already-down check is not re-alerted every tick.
type Usecase struct {
	Checks check.Repo
	Outbox domoutbox.Repository
	Tx     postgres.Transactor
	Clock  notification.Clock
}

// Tick sweeps one batch and returns how many checks were marked down.
// The fetch, the transitions, and the event rows commit atomically; the
// row locks from FetchOverdue keep concurrent sweeper instances off the
// same checks.
func (u *Usecase) Tick(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	tr := otel.Tracer("sweeper.uc")
	ctx, span := tr.Start(ctx, "sweeper.tick")
	defer span.End()
	span.SetAttributes(attribute.Int("batch.limit", limit))

	now := u.Clock.Now().UTC()
	swept := 0

	err := u.Tx.WithTx(ctx, func(txCtx context.Context) error {
		overdue, err := u.Checks.FetchOverdue(txCtx, now, limit)
		if err != nil {
			return fmt.Errorf("fetch overdue: %w", err)
		}

		for _, c := range overdue {
			// last_pinged_at stays untouched: the check did not ping, it
			// just ran out of time.
			if err := u.Checks.UpdateStatus(txCtx, c.ID, check.StatusDown, nil); err != nil {
				return fmt.Errorf("mark check %d down: %w", c.ID, err)
			}

			payload := intoutbox.StatusChangedPayload{
				CheckID: c.ID,
				Old:     string(c.Status),
				New:     string(check.StatusDown),
				Source:  intoutbox.SourceSweep,
				At:      now,
			}
			b, _ := json.Marshal(payload)
			key := "sweep:" + strconv.FormatInt(c.ID, 10) + ":" + strconv.FormatInt(now.UnixNano(), 10)
			if err := u.Outbox.Enqueue(txCtx, key, domoutbox.KindStatusChanged, b); err != nil {
				return fmt.Errorf("outbox enqueue: %w", err)
			}
			swept++
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return 0, err
	}

	span.SetAttributes(attribute.Int("batch.swept", swept))
	return swept, nil
}
