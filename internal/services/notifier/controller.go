package notifier

import (
	"context"

	"github.com/NordCoder/Heartline/internal/domain/check"
	kafkax "github.com/NordCoder/Heartline/internal/repository/kafka"

	"go.uber.org/zap"
)

type Controller struct {
	Log *zap.Logger
	Sub *kafkax.Consumer
	UC  *Handler
}

func (c *Controller) Run(ctx context.Context) error {
	handler := kafkax.JSONHandler(
		func(ctx context.Context, _ []byte, ev *kafkax.StatusChange) error {
			if ev.CheckID <= 0 {
				c.Log.Warn("status-change: invalid check_id", zap.Int64("check_id", ev.CheckID))
				return nil
			}
			dto := StatusChange{
				CheckID:   ev.CheckID,
				OldStatus: check.Status(ev.OldStatus),
				NewStatus: check.Status(ev.NewStatus),
				Source:    ev.Source,
				At:        ev.At,
			}
			return c.UC.HandleStatusChange(ctx, dto)
		},
	)
	return c.Sub.Consume(ctx, handler)
}
