package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"missionctl/backend/pkg/models"
)

const workItemColumns = `id, title, description, category, stage_id, position, status,
	artifacts, assigned_worker_id, assigned_user_id, created_at, updated_at`

func scanWorkItem(row pgx.Row) (*models.WorkItem, error) {
	item := &models.WorkItem{}
	var artifactsJSON []byte

	err := row.Scan(
		&item.ID, &item.Title, &item.Description, &item.Category,
		&item.StageID, &item.Position, &item.Status,
		&artifactsJSON, &item.AssignedWorkerID, &item.AssignedUserID,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(artifactsJSON) > 0 {
		if err := json.Unmarshal(artifactsJSON, &item.Artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for item %s: %w", item.ID, err)
		}
	}
	return item, nil
}

// CreateWorkItem inserts a new work item.
func (s *PostgresStore) CreateWorkItem(ctx context.Context, item *models.WorkItem) error {
	artifacts, err := marshalJSON(item.Artifacts, "{}")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err = s.db.Exec(ctx,
		`INSERT INTO work_items (id, title, description, category, stage_id, position, status,
			artifacts, assigned_worker_id, assigned_user_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		item.ID, item.Title, item.Description, item.Category, item.StageID, item.Position,
		item.Status, artifacts, item.AssignedWorkerID, item.AssignedUserID,
		item.CreatedAt, item.UpdatedAt,
	)
	return err
}

// GetWorkItem retrieves a work item by ID.
func (s *PostgresStore) GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id)
	item, err := scanWorkItem(row)
	if err != nil {
		return nil, notFound(err, "work item")
	}
	return item, nil
}

// ListWorkItems returns work items matching the filter, ordered by stage and
// position.
func (s *PostgresStore) ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error) {
	query := `SELECT ` + workItemColumns + ` FROM work_items WHERE 1=1`
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.StageID != "" {
		add(` AND stage_id = $%d`, filter.StageID)
	}
	if filter.Status != "" {
		add(` AND status = $%d`, filter.Status)
	}
	if filter.Category != "" {
		add(` AND category = $%d`, filter.Category)
	}
	if filter.WorkerID != "" {
		add(` AND assigned_worker_id = $%d`, filter.WorkerID)
	}
	if filter.Tag != "" {
		add(` AND artifacts->'tags' ? $%d`, filter.Tag)
	}
	query += ` ORDER BY stage_id, position`

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateWorkItem persists all mutable fields of a work item.
func (s *PostgresStore) UpdateWorkItem(ctx context.Context, item *models.WorkItem) error {
	artifacts, err := marshalJSON(item.Artifacts, "{}")
	if err != nil {
		return err
	}
	item.UpdatedAt = time.Now().UTC()

	tag, err := s.db.Exec(ctx,
		`UPDATE work_items SET title = $1, description = $2, category = $3, stage_id = $4,
			position = $5, status = $6, artifacts = $7, assigned_worker_id = $8,
			assigned_user_id = $9, updated_at = $10
		WHERE id = $11`,
		item.Title, item.Description, item.Category, item.StageID, item.Position,
		item.Status, artifacts, item.AssignedWorkerID, item.AssignedUserID,
		item.UpdatedAt, item.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item: %w", ErrNotFound)
	}
	return nil
}

// DeleteWorkItem removes a work item.
func (s *PostgresStore) DeleteWorkItem(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM work_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("work item: %w", ErrNotFound)
	}
	return nil
}

// ShiftPositions adds delta to the position of every item in the stage whose
// position lies in [min, max], excluding excludeID. max <= 0 means unbounded.
func (s *PostgresStore) ShiftPositions(ctx context.Context, stageID string, min, max, delta int, excludeID string) error {
	query := `UPDATE work_items SET position = position + $1, updated_at = now()
		WHERE stage_id = $2 AND position >= $3 AND id <> $4`
	args := []any{delta, stageID, min, excludeID}
	if max > 0 {
		query += ` AND position <= $5`
		args = append(args, max)
	}
	_, err := s.db.Exec(ctx, query, args...)
	return err
}

// MaxPosition returns the highest occupied position in a stage, 0 when empty.
func (s *PostgresStore) MaxPosition(ctx context.Context, stageID string) (int, error) {
	var max int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(MAX(position), 0) FROM work_items WHERE stage_id = $1`, stageID,
	).Scan(&max)
	return max, err
}

// CountActiveAssignments returns, per worker, the number of non-DONE work
// items currently assigned to it. Workers with no assignments are absent
// from the map.
func (s *PostgresStore) CountActiveAssignments(ctx context.Context, workerIDs []string) (map[string]int, error) {
	loads := make(map[string]int, len(workerIDs))
	if len(workerIDs) == 0 {
		return loads, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT assigned_worker_id, COUNT(*) FROM work_items
		WHERE assigned_worker_id = ANY($1) AND status <> $2
		GROUP BY assigned_worker_id`,
		workerIDs, models.ItemStatusDone,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		loads[id] = count
	}
	return loads, rows.Err()
}
