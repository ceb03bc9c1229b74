package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"missionctl/backend/pkg/models"
)

const scheduleColumns = `id, name, kind, expr, enabled, next_due_at, trigger_at,
	created_at, updated_at`

// dueCondition selects enabled definitions that are due at $N: recurring by
// next_due_at, one-time by trigger_at with no prior run.
const dueCondition = `enabled AND (
	(kind = 'RECURRING' AND next_due_at IS NOT NULL AND next_due_at <= %[1]s)
	OR (kind = 'ONE_TIME' AND trigger_at IS NOT NULL AND trigger_at <= %[1]s
		AND NOT EXISTS (SELECT 1 FROM runs WHERE runs.schedule_id = schedule_definitions.id))
)`

func scanSchedule(row pgx.Row) (*models.ScheduleDefinition, error) {
	sched := &models.ScheduleDefinition{}
	err := row.Scan(
		&sched.ID, &sched.Name, &sched.Kind, &sched.Expr, &sched.Enabled,
		&sched.NextDueAt, &sched.TriggerAt, &sched.CreatedAt, &sched.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return sched, nil
}

// CreateSchedule inserts a new schedule definition.
func (s *PostgresStore) CreateSchedule(ctx context.Context, sched *models.ScheduleDefinition) error {
	now := time.Now().UTC()
	sched.CreatedAt = now
	sched.UpdatedAt = now

	_, err := s.db.Exec(ctx,
		`INSERT INTO schedule_definitions (id, name, kind, expr, enabled, next_due_at,
			trigger_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sched.ID, sched.Name, sched.Kind, sched.Expr, sched.Enabled,
		sched.NextDueAt, sched.TriggerAt, sched.CreatedAt, sched.UpdatedAt,
	)
	return err
}

// GetSchedule retrieves a schedule definition by ID.
func (s *PostgresStore) GetSchedule(ctx context.Context, id string) (*models.ScheduleDefinition, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_definitions WHERE id = $1`, id)
	sched, err := scanSchedule(row)
	if err != nil {
		return nil, notFound(err, "schedule definition")
	}
	return sched, nil
}

// ListSchedules returns all schedule definitions.
func (s *PostgresStore) ListSchedules(ctx context.Context) ([]*models.ScheduleDefinition, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedule_definitions ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// UpdateSchedule persists all mutable fields of a schedule definition.
func (s *PostgresStore) UpdateSchedule(ctx context.Context, sched *models.ScheduleDefinition) error {
	sched.UpdatedAt = time.Now().UTC()

	tag, err := s.db.Exec(ctx,
		`UPDATE schedule_definitions SET name = $1, kind = $2, expr = $3, enabled = $4,
			next_due_at = $5, trigger_at = $6, updated_at = $7
		WHERE id = $8`,
		sched.Name, sched.Kind, sched.Expr, sched.Enabled,
		sched.NextDueAt, sched.TriggerAt, sched.UpdatedAt, sched.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("schedule definition: %w", ErrNotFound)
	}
	return nil
}

// ListDueSchedules returns due definitions oldest first. Ordering is
// best-effort; claim order across pollers is not strict.
func (s *PostgresStore) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.ScheduleDefinition, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule_definitions WHERE ` +
		fmt.Sprintf(dueCondition, "$1") +
		` ORDER BY COALESCE(next_due_at, trigger_at) LIMIT $2`

	rows, err := s.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// TryLockSchedule acquires an exclusive row lock on a due schedule without
// waiting. A contended or no-longer-due row yields (nil, false, nil). Must
// run inside InTx; the lock is released when the transaction ends.
func (s *PostgresStore) TryLockSchedule(ctx context.Context, id string, now time.Time) (*models.ScheduleDefinition, bool, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedule_definitions
		WHERE id = $1 AND ` + fmt.Sprintf(dueCondition, "$2") + `
		FOR UPDATE SKIP LOCKED`

	row := s.db.QueryRow(ctx, query, id, now)
	sched, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return sched, true, nil
}

func collectSchedules(rows pgx.Rows) ([]*models.ScheduleDefinition, error) {
	var scheds []*models.ScheduleDefinition
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		scheds = append(scheds, sched)
	}
	return scheds, rows.Err()
}
