package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

func (r *RunRepo) Create(ctx context.Context, run *TeamRun) error {
	if run.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		run.ID = id
	}
	if strings.TrimSpace(run.Operation) == "" {
		return fmt.Errorf("run operation is required")
	}
	if run.Status == "" {
		run.Status = "running"
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = nowUTC()
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO team_runs (id, camp_id, operation, status, error, started_at, finished_at)
VALUES (?, ?, ?, ?, ?, ?, '')
`, run.ID, run.CampID, run.Operation, run.Status, run.Error, formatTimestamp(run.StartedAt))
	if err != nil {
		return fmt.Errorf("failed to create team run: %w", err)
	}
	return nil
}

func (r *RunRepo) Finish(ctx context.Context, runID string, status string, runErr string) error {
	status = strings.ToLower(strings.TrimSpace(status))
	if status == "" {
		status = "succeeded"
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE team_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?
`, status, runErr, formatTimestamp(nowUTC()), runID)
	if err != nil {
		return fmt.Errorf("failed to finish team run: %w", err)
	}
	return nil
}

func (r *RunRepo) ListByCamp(ctx context.Context, campID string, limit int) ([]*TeamRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, camp_id, operation, status, error, started_at, finished_at
FROM team_runs
WHERE camp_id = ?
ORDER BY started_at DESC
LIMIT ?
`, campID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list team runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*TeamRun, 0)
	for rows.Next() {
		var run TeamRun
		var startedAtRaw, finishedAtRaw string
		if err := rows.Scan(&run.ID, &run.CampID, &run.Operation, &run.Status, &run.Error, &startedAtRaw, &finishedAtRaw); err != nil {
			return nil, fmt.Errorf("failed to scan team run: %w", err)
		}
		var parseErr error
		run.StartedAt, parseErr = parseTimestamp(startedAtRaw)
		if parseErr != nil {
			return nil, parseErr
		}
		if finishedAtRaw != "" {
			run.FinishedAt, parseErr = parseTimestamp(finishedAtRaw)
			if parseErr != nil {
				return nil, parseErr
			}
		} else {
			run.FinishedAt = time.Time{}
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
