package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/NordCoder/Heartline/internal/domain/check"

	"github.com/jackc/pgx/v5"
)

var _ check.Repo = (*CheckRepoImpl)(nil)

type CheckRepoImpl struct {
	db *DB
}

func NewCheckRepo(db *DB) *CheckRepoImpl { return &CheckRepoImpl{db: db} }

const (
	qCheckByToken = `
SELECT id, token, user_id, name, interval_min, grace_min, status, last_pinged_at, slack_webhook_url, created_at, updated_at
FROM checks
WHERE token = $1;
`

	qCheckByID = `
SELECT id, token, user_id, name, interval_min, grace_min, status, last_pinged_at, slack_webhook_url, created_at, updated_at
FROM checks
WHERE id = $1;
`

	qCheckUpdateStatus = `
UPDATE checks
SET status = $2,
    last_pinged_at = COALESCE($3, last_pinged_at),
    updated_at = now()
WHERE id = $1;
`

	qCheckFetchOverdue = `
SELECT id, token, user_id, name, interval_min, grace_min, status, last_pinged_at, slack_webhook_url, created_at, updated_at
FROM checks
WHERE status = 'up'
  AND last_pinged_at IS NOT NULL
  AND last_pinged_at + ((interval_min + grace_min) * INTERVAL '1 minute') < $1
ORDER BY last_pinged_at
FOR UPDATE SKIP LOCKED
LIMIT $2;
`
)

func scanCheck(row pgx.Row, c *check.Check) error {
	var (
		intervalMin int
		graceMin    int
		status      string
	)
	if err := row.Scan(
		&c.ID,
		&c.Token,
		&c.UserID,
		&c.Name,
		&intervalMin,
		&graceMin,
		&status,
		&c.LastPingedAt,
		&c.SlackWebhookURL,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan check: %w", err)
	}
	c.Interval = time.Duration(intervalMin) * time.Minute
	c.Grace = time.Duration(graceMin) * time.Minute
	c.Status = check.Status(status)
	return nil
}

func (r *CheckRepoImpl) GetByToken(ctx context.Context, token string) (*check.Check, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var c check.Check
	if err := scanCheck(r.db.Pool.QueryRow(ctx, qCheckByToken, token), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CheckRepoImpl) GetByID(ctx context.Context, id int64) (*check.Check, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var c check.Check
	if err := scanCheck(r.db.Pool.QueryRow(ctx, qCheckByID, id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CheckRepoImpl) UpdateStatus(ctx context.Context, id int64, status check.Status, pingedAt *time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qCheckUpdateStatus, id, string(status), pingedAt)
	if err != nil {
		return fmt.Errorf("update check status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CheckRepoImpl) FetchOverdue(ctx context.Context, now time.Time, limit int) ([]*check.Check, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	rows, err := eq.Query(ctx, qCheckFetchOverdue, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch overdue: %w", err)
	}
	defer rows.Close()

	var out []*check.Check
	for rows.Next() {
		var c check.Check
		if err := scanCheck(rows, &c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
