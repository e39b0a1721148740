package postgres

import (
	"context"
	"fmt"

	"github.com/NordCoder/Heartline/internal/domain/run"
)

var _ run.Repo = (*RunRepoImpl)(nil)

type RunRepoImpl struct{ db *DB }

func NewRunRepo(db *DB) *RunRepoImpl { return &RunRepoImpl{db: db} }

const (
	qRunInsert = `
INSERT INTO check_runs (check_id, status, payload, error_message, duration_ms, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id;
`
	qRunsByCheck = `
SELECT id, check_id, status, payload, error_message, duration_ms, created_at
FROM check_runs
WHERE check_id = $1
ORDER BY created_at DESC
LIMIT $2;
`
)

func (r *RunRepoImpl) Insert(ctx context.Context, rr *run.Run) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	if err := eq.QueryRow(ctx, qRunInsert,
		rr.CheckID, string(rr.Status), rr.Payload, rr.ErrorMessage, rr.DurationMS, rr.CreatedAt,
	).Scan(&rr.ID); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepoImpl) ListByCheck(ctx context.Context, checkID int64, limit int) ([]*run.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qRunsByCheck, checkID, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	out := make([]*run.Run, 0, limit)
	for rows.Next() {
		var (
			rr     run.Run
			status string
		)
		if err := rows.Scan(&rr.ID, &rr.CheckID, &status, &rr.Payload, &rr.ErrorMessage, &rr.DurationMS, &rr.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rr.Status = run.Status(status)
		rp := rr
		out = append(out, &rp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}
