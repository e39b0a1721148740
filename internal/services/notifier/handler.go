package notifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Heartline/internal/domain/check"
	"github.com/NordCoder/Heartline/internal/domain/notification"
	"github.com/NordCoder/Heartline/internal/domain/user"
	"github.com/NordCoder/Heartline/internal/repository/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// StatusChange is the consumed liveness event, already decoded from the
// wire.
type StatusChange struct {
	CheckID   int64
	OldStatus check.Status
	NewStatus check.Status
	Source    string
	At        time.Time
}

var (
	mConsumed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_events_consumed_total", Help: "StatusChange events consumed.",
	})
	mEmailSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_emails_sent_total", Help: "Emails sent.",
	})
	mSlackSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notifier_slack_sent_total", Help: "Slack webhooks delivered.",
	})
	mSendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifier_send_errors_total", Help: "Delivery failures by channel.",
	}, []string{"channel"})
)

// Handler delivers down-transition alerts. Email and Slack are
// independent best-effort channels: a failure on either is counted and
// logged but never bubbles back into the ingestion path, which already
// returned to its caller by the time this runs.
type Handler struct {
	Checks check.Repo
	Users  user.Repo
	Store  notification.Repo
	Email  notification.EmailSender
	Slack  SlackSender
	Clock  notification.Clock
	Log    *zap.Logger
}

func (h *Handler) HandleStatusChange(ctx context.Context, ev StatusChange) error {
	mConsumed.Inc()

	if ev.NewStatus != check.StatusDown {
		return nil
	}

	chk, err := h.Checks.GetByID(ctx, ev.CheckID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			// Check deleted between the event and now; nothing to alert on.
			h.Log.Warn("status-change for missing check", zap.Int64("check_id", ev.CheckID))
			return nil
		}
		return fmt.Errorf("get check: %w", err)
	}

	h.sendEmail(ctx, chk, ev)
	h.sendSlack(ctx, chk, ev)
	return nil
}

func (h *Handler) sendEmail(ctx context.Context, chk *check.Check, ev StatusChange) {
	u, err := h.Users.GetByID(ctx, chk.UserID)
	if err != nil {
		mSendErrors.WithLabelValues("email").Inc()
		h.Log.Warn("resolve owner", zap.Int64("check_id", chk.ID), zap.Error(err))
		return
	}

	lastPing := "never"
	if chk.LastPingedAt != nil {
		lastPing = chk.LastPingedAt.UTC().Format(time.RFC3339)
	}
	subject := fmt.Sprintf("Check %q is %s", chk.Name, ev.NewStatus)
	body := fmt.Sprintf(
		"Hello!\n\nYour check %q went %s at %s.\n\nLast ping: %s\nExpected interval: %s (grace %s)\n\n— Heartline",
		chk.Name, ev.NewStatus, ev.At.UTC().Format(time.RFC3339),
		lastPing, chk.Interval, chk.Grace,
	)

	if err := h.Email.Send(ctx, u.Email, subject, body); err != nil {
		mSendErrors.WithLabelValues("email").Inc()
		h.Log.Warn("send email", zap.Int64("check_id", chk.ID), zap.Error(err))
		return
	}
	mEmailSent.Inc()

	h.record(ctx, chk, u.ID, "email", body)
}

func (h *Handler) sendSlack(ctx context.Context, chk *check.Check, ev StatusChange) {
	if chk.SlackWebhookURL == "" {
		return
	}
	// SSRF guard: the stored URL is user input and must never become an
	// arbitrary outbound request target.
	if !ValidSlackWebhookURL(chk.SlackWebhookURL) {
		mSendErrors.WithLabelValues("slack").Inc()
		h.Log.Warn("slack webhook rejected by allow-list", zap.Int64("check_id", chk.ID))
		return
	}

	msg := SlackMessage{
		CheckName: chk.Name,
		Status:    string(ev.NewStatus),
		LastPing:  chk.LastPingedAt,
		Interval:  chk.Interval,
		Grace:     chk.Grace,
	}
	if err := h.Slack.Send(ctx, chk.SlackWebhookURL, msg); err != nil {
		mSendErrors.WithLabelValues("slack").Inc()
		h.Log.Warn("send slack", zap.Int64("check_id", chk.ID), zap.Error(err))
		return
	}
	mSlackSent.Inc()

	h.record(ctx, chk, chk.UserID, "slack", fmt.Sprintf("check %q -> %s", chk.Name, ev.NewStatus))
}

func (h *Handler) record(ctx context.Context, chk *check.Check, userID int64, typ, payload string) {
	if h.Store == nil {
		return
	}
	n := &notification.Notification{
		CheckID: chk.ID,
		UserID:  userID,
		Type:    typ,
		SentAt:  h.Clock.Now().UTC(),
		Payload: payload,
	}
	if err := h.Store.Create(ctx, n); err != nil {
		h.Log.Warn("record notification", zap.Int64("check_id", chk.ID), zap.Error(err))
	}
}
