package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"missionctl/backend/pkg/models"
)

const runColumns = `id, schedule_id, work_item_id, run_type, status, started_at,
	completed_at, output, error, retry_requested`

func scanRun(row pgx.Row) (*models.Run, error) {
	run := &models.Run{}
	err := row.Scan(
		&run.ID, &run.ScheduleID, &run.WorkItemID, &run.RunType, &run.Status,
		&run.StartedAt, &run.CompletedAt, &run.Output, &run.Error, &run.RetryRequested,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CreateRun inserts a new run record.
func (s *PostgresStore) CreateRun(ctx context.Context, run *models.Run) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO runs (id, schedule_id, work_item_id, run_type, status, started_at,
			completed_at, output, error, retry_requested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.ID, run.ScheduleID, run.WorkItemID, run.RunType, run.Status,
		run.StartedAt, run.CompletedAt, run.Output, run.Error, run.RetryRequested,
	)
	return err
}

// GetRun retrieves a run by ID.
func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	row := s.db.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id)
	run, err := scanRun(row)
	if err != nil {
		return nil, notFound(err, "run")
	}
	return run, nil
}

// UpdateRun persists the mutable fields of a run.
func (s *PostgresStore) UpdateRun(ctx context.Context, run *models.Run) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE runs SET status = $1, completed_at = $2, output = $3, error = $4,
			retry_requested = $5
		WHERE id = $6`,
		run.Status, run.CompletedAt, run.Output, run.Error, run.RetryRequested, run.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run: %w", ErrNotFound)
	}
	return nil
}

// ListRuns returns runs matching the filter, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.ScheduleID != "" {
		add(` AND schedule_id = $%d`, filter.ScheduleID)
	}
	if filter.WorkItemID != "" {
		add(` AND work_item_id = $%d`, filter.WorkItemID)
	}
	if filter.RunType != "" {
		add(` AND run_type = $%d`, filter.RunType)
	}
	if filter.Status != "" {
		add(` AND status = $%d`, filter.Status)
	}
	query += ` ORDER BY started_at DESC`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// HasSuccessfulRun reports whether a run of the given type exists for the
// work item with a status in the given set.
func (s *PostgresStore) HasSuccessfulRun(ctx context.Context, workItemID, runType string, statuses []models.RunStatus) (bool, error) {
	set := make([]string, len(statuses))
	for i, st := range statuses {
		set[i] = string(st)
	}

	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS(
			SELECT 1 FROM runs
			WHERE work_item_id = $1 AND run_type = $2 AND status = ANY($3)
		)`,
		workItemID, runType, set,
	).Scan(&exists)
	return exists, err
}
