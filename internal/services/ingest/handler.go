package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/NordCoder/Heartline/internal/domain/check"
	"github.com/NordCoder/Heartline/internal/domain/notification"
	domoutbox "github.com/NordCoder/Heartline/internal/domain/outbox"
	"github.com/NordCoder/Heartline/internal/domain/run"
	intoutbox "github.com/NordCoder/Heartline/internal/outbox"
	"github.com/NordCoder/Heartline/internal/repository/postgres"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// NotifyPolicy decides which down-producing pings enqueue a notification
// event. PolicyEvery re-alerts on every down ping; PolicyTransition only
// on the up→down edge.
type NotifyPolicy string

const (
	PolicyEvery      NotifyPolicy = "every"
	PolicyTransition NotifyPolicy = "transition"
)

func ParseNotifyPolicy(s string) (NotifyPolicy, error) {
	switch NotifyPolicy(s) {
	case PolicyEvery, PolicyTransition:
		return NotifyPolicy(s), nil
	case "":
		return PolicyEvery, nil
	default:
		return "", fmt.Errorf("unknown notify policy %q", s)
	}
}

// ErrCheckNotFound is returned for a token no check matches.
var ErrCheckNotFound = errors.New("check not found")

// RateLimitError rejects a ping that arrives before the 30-second floor
// has elapsed; RetryAfterSeconds is actionable retry guidance.
type RateLimitError struct {
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %ds", e.RetryAfterSeconds)
}

// Result is the outcome of one accepted ping. Partial means the check
// status is durable but the run row was lost.
type Result struct {
	CheckID           int64
	RunID             int64
	Status            check.Status
	NotificationsSent bool
	Partial           bool
}

var (
	mPings = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_pings_total", Help: "Ping requests by outcome.",
	}, []string{"outcome"})
	mTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ingest_status_total", Help: "Persisted liveness classifications.",
	}, []string{"status"})
	mRunInsertFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ingest_run_insert_failures_total", Help: "Run rows lost after a durable status update.",
	})
	mHandleDur = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "ingest_handle_duration_seconds", Help: "Full pipeline duration per ping.",
		Buckets: prometheus.DefBuckets,
	})
)

// Handler runs the ingestion pipeline: registry lookup, rate limit,
// validation, liveness transition, run record, notification enqueue.
// All state lives behind the injected ports; the handler itself is
// stateless and safe for concurrent use.
type Handler struct {
	Checks check.Repo
	Runs   run.Repo
	Outbox domoutbox.Repository
	Tx     postgres.Transactor
	Clock  notification.Clock
	Log    *zap.Logger
	Policy NotifyPolicy
}

// HandlePing processes one heartbeat. Stages are strictly sequential and
// each failure short-circuits: nothing after a failed stage runs.
func (h *Handler) HandlePing(ctx context.Context, tok string, body []byte) (*Result, error) {
	start := time.Now()
	defer func() { mHandleDur.Observe(time.Since(start).Seconds()) }()

	chk, err := h.Checks.GetByToken(ctx, tok)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			mPings.WithLabelValues("not_found").Inc()
			return nil, ErrCheckNotFound
		}
		mPings.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("get check: %w", err)
	}

	now := h.Clock.Now().UTC()
	if wait := RetryAfter(chk.LastPingedAt, now); wait > 0 {
		mPings.WithLabelValues("rate_limited").Inc()
		return nil, &RateLimitError{RetryAfterSeconds: wait}
	}

	rep, err := ParseReport(body)
	if err != nil {
		mPings.WithLabelValues("invalid").Inc()
		return nil, err
	}

	newStatus := check.StatusDown
	if rep.Status == run.StatusSuccess {
		newStatus = check.StatusUp
	}

	notify := newStatus == check.StatusDown &&
		(h.Policy == PolicyEvery || chk.Status != check.StatusDown)

	// The status update and the notification enqueue commit together;
	// the run insert is deliberately outside so its failure cannot roll
	// back an already-reported transition.
	if err := h.Tx.WithTx(ctx, func(txCtx context.Context) error {
		if err := h.Checks.UpdateStatus(txCtx, chk.ID, newStatus, &now); err != nil {
			return fmt.Errorf("update check status: %w", err)
		}
		if !notify {
			return nil
		}
		payload := intoutbox.StatusChangedPayload{
			CheckID: chk.ID,
			Old:     string(chk.Status),
			New:     string(newStatus),
			Source:  intoutbox.SourcePing,
			At:      now,
		}
		b, _ := json.Marshal(payload)
		key := "status:" + strconv.FormatInt(chk.ID, 10) + ":" + strconv.FormatInt(now.UnixNano(), 10)
		if err := h.Outbox.Enqueue(txCtx, key, domoutbox.KindStatusChanged, b); err != nil {
			return fmt.Errorf("outbox enqueue: %w", err)
		}
		return nil
	}); err != nil {
		mPings.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("persist transition: %w", err)
	}
	mTransitions.WithLabelValues(string(newStatus)).Inc()

	res := &Result{
		CheckID:           chk.ID,
		Status:            newStatus,
		NotificationsSent: notify,
	}

	runRec := &run.Run{
		CheckID:      chk.ID,
		Status:       rep.Status,
		Payload:      rep.Payload,
		ErrorMessage: rep.ErrorMessage,
		DurationMS:   rep.DurationMS,
		CreatedAt:    now,
	}
	if err := h.Runs.Insert(ctx, runRec); err != nil {
		mRunInsertFailures.Inc()
		h.Log.Warn("run insert failed after status update",
			zap.Int64("check_id", chk.ID), zap.Error(err))
		res.Partial = true
	} else {
		res.RunID = runRec.ID
	}

	mPings.WithLabelValues("accepted").Inc()
	return res, nil
}
