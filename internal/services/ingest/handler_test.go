package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "github.com/NordCoder/Heartline/internal/config/ingest"
	"github.com/NordCoder/Heartline/internal/domain/check"
	domoutbox "github.com/NordCoder/Heartline/internal/domain/outbox"
	"github.com/NordCoder/Heartline/internal/domain/run"
	intoutbox "github.com/NordCoder/Heartline/internal/outbox"
	"github.com/NordCoder/Heartline/internal/repository/postgres"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type statusUpdate struct {
	id       int64
	status   check.Status
	pingedAt *time.Time
}

type fakeChecks struct {
	byToken   map[string]*check.Check
	updates   []statusUpdate
	updateErr error
}

func (f *fakeChecks) GetByToken(_ context.Context, tok string) (*check.Check, error) {
	c, ok := f.byToken[tok]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeChecks) GetByID(_ context.Context, id int64) (*check.Check, error) {
	for _, c := range f.byToken {
		if c.ID == id {
			cp := *c
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeChecks) UpdateStatus(_ context.Context, id int64, status check.Status, pingedAt *time.Time) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, statusUpdate{id: id, status: status, pingedAt: pingedAt})
	return nil
}

func (f *fakeChecks) FetchOverdue(context.Context, time.Time, int) ([]*check.Check, error) {
	return nil, nil
}

type fakeRuns struct {
	inserted  []*run.Run
	insertErr error
}

func (f *fakeRuns) Insert(_ context.Context, r *run.Run) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	r.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, r)
	return nil
}

func (f *fakeRuns) ListByCheck(context.Context, int64, int) ([]*run.Run, error) { return nil, nil }

type enqueued struct {
	key  string
	kind domoutbox.Kind
	data []byte
}

type fakeOutbox struct {
	enqueued []enqueued
}

func (f *fakeOutbox) Enqueue(_ context.Context, key string, kind domoutbox.Kind, data []byte) error {
	f.enqueued = append(f.enqueued, enqueued{key: key, kind: kind, data: data})
	return nil
}

func (f *fakeOutbox) PickBatch(context.Context, int, time.Duration) ([]domoutbox.Message, error) {
	return nil, nil
}

func (f *fakeOutbox) MarkSuccess(context.Context, []string) error { return nil }

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestEnv(chks ...*check.Check) (*fakeChecks, *fakeRuns, *fakeOutbox, *Handler) {
	checks := &fakeChecks{byToken: map[string]*check.Check{}}
	for _, c := range chks {
		checks.byToken[c.Token] = c
	}
	runs := &fakeRuns{}
	ob := &fakeOutbox{}
	h := &Handler{
		Checks: checks,
		Runs:   runs,
		Outbox: ob,
		Tx:     fakeTx{},
		Clock:  fixedClock{t: testNow},
		Log:    zap.NewNop(),
		Policy: PolicyEvery,
	}
	return checks, runs, ob, h
}

func doPing(t *testing.T, h *Handler, method, target string, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	srv := NewHTTPServer(config.Server{HTTPAddr: ":0"}, h, zap.NewNop())

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestPing_UnknownToken(t *testing.T) {
	_, runs, ob, h := newTestEnv()

	rec, resp := doPing(t, h, http.MethodGet, "/ping-handler?uuid=does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "error", resp["status"])
	require.Empty(t, runs.inserted)
	require.Empty(t, ob.enqueued)
}

func TestPing_MissingToken(t *testing.T) {
	_, _, _, h := newTestEnv()

	rec, _ := doPing(t, h, http.MethodGet, "/ping-handler", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPing_FirstSuccess(t *testing.T) {
	chk := &check.Check{ID: 7, Token: "tok-1", UserID: 3, Name: "nightly-export", Status: check.StatusUp}
	checks, runs, ob, h := newTestEnv(chk)

	rec, resp := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"success","duration_ms":120}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", resp["status"])
	require.EqualValues(t, 7, resp["check_id"])
	require.EqualValues(t, 1, resp["run_id"])
	require.Equal(t, false, resp["notifications_sent"])

	require.Len(t, checks.updates, 1)
	require.Equal(t, check.StatusUp, checks.updates[0].status)
	require.NotNil(t, checks.updates[0].pingedAt)
	require.Equal(t, testNow, *checks.updates[0].pingedAt)

	require.Len(t, runs.inserted, 1)
	require.Equal(t, run.StatusSuccess, runs.inserted[0].Status)
	require.NotNil(t, runs.inserted[0].DurationMS)
	require.EqualValues(t, 120, *runs.inserted[0].DurationMS)

	require.Empty(t, ob.enqueued)
}

func TestPing_FailedReportGoesDownAndNotifies(t *testing.T) {
	chk := &check.Check{
		ID: 7, Token: "tok-1", UserID: 3, Status: check.StatusUp,
		SlackWebhookURL: "https://hooks.slack.com/services/T123/B456/xyz",
	}
	checks, runs, ob, h := newTestEnv(chk)

	rec, resp := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"failed","error_message":"timeout"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, resp["notifications_sent"])

	require.Len(t, checks.updates, 1)
	require.Equal(t, check.StatusDown, checks.updates[0].status)

	require.Len(t, runs.inserted, 1)
	require.Equal(t, run.StatusFailed, runs.inserted[0].Status)
	require.Equal(t, "timeout", runs.inserted[0].ErrorMessage)

	require.Len(t, ob.enqueued, 1)
	var payload intoutbox.StatusChangedPayload
	require.NoError(t, json.Unmarshal(ob.enqueued[0].data, &payload))
	require.EqualValues(t, 7, payload.CheckID)
	require.Equal(t, "up", payload.Old)
	require.Equal(t, "down", payload.New)
	require.Equal(t, intoutbox.SourcePing, payload.Source)
}

func TestPing_PendingMapsToDown(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp}
	checks, runs, _, h := newTestEnv(chk)

	rec, _ := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"pending"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, check.StatusDown, checks.updates[0].status)
	require.Equal(t, run.StatusPending, runs.inserted[0].Status)
}

func TestPing_RateLimited(t *testing.T) {
	last := testNow.Add(-10 * time.Second)
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp, LastPingedAt: &last}
	checks, runs, ob, h := newTestEnv(chk)

	rec, resp := doPing(t, h, http.MethodGet, "/ping-handler?uuid=tok-1", "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "20", rec.Header().Get("Retry-After"))
	require.EqualValues(t, 20, resp["retry_after_seconds"])

	require.Empty(t, checks.updates)
	require.Empty(t, runs.inserted)
	require.Empty(t, ob.enqueued)
}

func TestPing_RateLimitWindowElapsed(t *testing.T) {
	last := testNow.Add(-30 * time.Second)
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp, LastPingedAt: &last}
	_, runs, _, h := newTestEnv(chk)

	rec, _ := doPing(t, h, http.MethodGet, "/ping-handler?uuid=tok-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runs.inserted, 1)
}

func TestPing_ValidationRejectsBeforeAnyWrite(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp}
	checks, runs, ob, h := newTestEnv(chk)

	for _, body := range []string{
		`{"status":"nope"}`,
		`{"duration_ms":-1}`,
		`{"duration_ms":3600001}`,
		`{"duration_ms":"abc"}`,
		`not json`,
	} {
		rec, _ := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", body)
		require.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
	}
	require.Empty(t, checks.updates)
	require.Empty(t, runs.inserted)
	require.Empty(t, ob.enqueued)
}

func TestPing_OversizedBody(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp}
	_, runs, _, h := newTestEnv(chk)

	body := `{"payload":{"x":"` + strings.Repeat("a", MaxBodyBytes) + `"}}`
	rec, _ := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", body)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	require.Empty(t, runs.inserted)
}

func TestPing_PartialSuccessWhenRunInsertFails(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp}
	checks, runs, _, h := newTestEnv(chk)
	runs.insertErr = errors.New("disk full")

	rec, resp := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"success"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "partial_success", resp["status"])
	// The status update must have committed even though the run was lost.
	require.Len(t, checks.updates, 1)
}

func TestPing_StatusUpdateFailureIsFatal(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp}
	checks, runs, _, h := newTestEnv(chk)
	checks.updateErr = errors.New("connection reset")

	rec, _ := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"success"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Empty(t, runs.inserted)
}

func TestPing_NotifyPolicyTransition(t *testing.T) {
	// Already down: the transition policy suppresses the repeat alert.
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusDown}
	_, _, ob, h := newTestEnv(chk)
	h.Policy = PolicyTransition

	rec, resp := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"failed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, false, resp["notifications_sent"])
	require.Empty(t, ob.enqueued)
}

func TestPing_NotifyPolicyEveryRepeats(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusDown}
	_, _, ob, h := newTestEnv(chk)

	rec, resp := doPing(t, h, http.MethodPost, "/ping-handler?uuid=tok-1", `{"status":"failed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, resp["notifications_sent"])
	require.Len(t, ob.enqueued, 1)
}

func TestPing_RepeatedSuccessReaffirmsUp(t *testing.T) {
	chk := &check.Check{ID: 1, Token: "tok-1", Status: check.StatusUp}
	checks, runs, ob, h := newTestEnv(chk)

	for i := 0; i < 3; i++ {
		rec, _ := doPing(t, h, http.MethodGet, "/ping-handler?uuid=tok-1", "")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Len(t, checks.updates, 3)
	for _, u := range checks.updates {
		require.Equal(t, check.StatusUp, u.status)
	}
	require.Len(t, runs.inserted, 3)
	require.Empty(t, ob.enqueued)
}

func TestPing_CORSPreflight(t *testing.T) {
	_, _, _, h := newTestEnv()
	srv := NewHTTPServer(config.Server{HTTPAddr: ":0"}, h, zap.NewNop())

	req := httptest.NewRequest(http.MethodOptions, "/ping-handler?uuid=tok-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Body.Bytes())
}

func TestPing_MethodNotAllowed(t *testing.T) {
	_, _, _, h := newTestEnv()

	rec, _ := doPing(t, h, http.MethodDelete, "/ping-handler?uuid=tok-1", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
