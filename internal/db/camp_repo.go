package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type CampRepo struct {
	db *sql.DB
}

func NewCampRepo(db *sql.DB) *CampRepo {
	return &CampRepo{db: db}
}

func (r *CampRepo) Create(ctx context.Context, camp *Camp) error {
	if camp.ID == "" {
		id, err := NewID()
		if err != nil {
			return err
		}
		camp.ID = id
	}
	if strings.TrimSpace(camp.Name) == "" {
		return fmt.Errorf("camp name is required")
	}
	if camp.CreatedAt.IsZero() {
		camp.CreatedAt = nowUTC()
	}
	if camp.UpdatedAt.IsZero() {
		camp.UpdatedAt = camp.CreatedAt
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO camps (id, name, model, is_team, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, camp.ID, camp.Name, camp.Model, boolToInt(camp.IsTeam), formatTimestamp(camp.CreatedAt), formatTimestamp(camp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create camp: %w", err)
	}
	return nil
}

func (r *CampRepo) Get(ctx context.Context, campID string) (*Camp, error) {
	var camp Camp
	var isTeam int
	var createdAtRaw, updatedAtRaw string
	err := r.db.QueryRowContext(ctx, `
SELECT id, name, model, is_team, created_at, updated_at
FROM camps
WHERE id = ?
`, campID).Scan(&camp.ID, &camp.Name, &camp.Model, &isTeam, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get camp: %w", err)
	}
	camp.IsTeam = isTeam != 0

	var parseErr error
	camp.CreatedAt, parseErr = parseTimestamp(createdAtRaw)
	if parseErr != nil {
		return nil, parseErr
	}
	camp.UpdatedAt, parseErr = parseTimestamp(updatedAtRaw)
	if parseErr != nil {
		return nil, parseErr
	}
	return &camp, nil
}

func (r *CampRepo) List(ctx context.Context) ([]*Camp, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, model, is_team, created_at, updated_at
FROM camps
ORDER BY updated_at DESC
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list camps: %w", err)
	}
	defer rows.Close()

	camps := make([]*Camp, 0)
	for rows.Next() {
		var camp Camp
		var isTeam int
		var createdAtRaw, updatedAtRaw string
		if err := rows.Scan(&camp.ID, &camp.Name, &camp.Model, &isTeam, &createdAtRaw, &updatedAtRaw); err != nil {
			return nil, fmt.Errorf("failed to scan camp: %w", err)
		}
		camp.IsTeam = isTeam != 0
		var parseErr error
		camp.CreatedAt, parseErr = parseTimestamp(createdAtRaw)
		if parseErr != nil {
			return nil, parseErr
		}
		camp.UpdatedAt, parseErr = parseTimestamp(updatedAtRaw)
		if parseErr != nil {
			return nil, parseErr
		}
		camps = append(camps, &camp)
	}
	return camps, rows.Err()
}

// MarkTeamMode flags the camp as team-enabled and bumps updated_at.
func (r *CampRepo) MarkTeamMode(ctx context.Context, campID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE camps SET is_team = 1, updated_at = ? WHERE id = ?
`, formatTimestamp(nowUTC()), campID)
	if err != nil {
		return fmt.Errorf("failed to mark camp team mode: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check camp update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("camp %q not found", campID)
	}
	return nil
}

func (r *CampRepo) Touch(ctx context.Context, campID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE camps SET updated_at = ? WHERE id = ?
`, formatTimestamp(nowUTC()), campID)
	if err != nil {
		return fmt.Errorf("failed to touch camp: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check camp update: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("camp %q not found", campID)
	}
	return nil
}

func (r *CampRepo) Delete(ctx context.Context, campID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM camps WHERE id = ?`, campID)
	if err != nil {
		return fmt.Errorf("failed to delete camp: %w", err)
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
