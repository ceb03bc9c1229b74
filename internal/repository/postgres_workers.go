package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"missionctl/backend/pkg/models"
)

const workerColumns = `id, name, role, capabilities, status, created_at, updated_at`

func scanWorker(row pgx.Row) (*models.Worker, error) {
	worker := &models.Worker{}
	var capsJSON []byte

	err := row.Scan(
		&worker.ID, &worker.Name, &worker.Role, &capsJSON, &worker.Status,
		&worker.CreatedAt, &worker.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(capsJSON) > 0 {
		if err := json.Unmarshal(capsJSON, &worker.Capabilities); err != nil {
			return nil, fmt.Errorf("decode capabilities for worker %s: %w", worker.ID, err)
		}
	}
	return worker, nil
}

// UpsertWorker creates or updates a worker by ID.
func (s *PostgresStore) UpsertWorker(ctx context.Context, worker *models.Worker) error {
	caps, err := marshalJSON(worker.Capabilities, "[]")
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	_, err = s.db.Exec(ctx,
		`INSERT INTO workers (id, name, role, capabilities, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			role = EXCLUDED.role,
			capabilities = EXCLUDED.capabilities,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`,
		worker.ID, worker.Name, worker.Role, caps, worker.Status, now,
	)
	return err
}

// GetWorker retrieves a worker by ID.
func (s *PostgresStore) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	row := s.db.QueryRow(ctx, `SELECT `+workerColumns+` FROM workers WHERE id = $1`, id)
	worker, err := scanWorker(row)
	if err != nil {
		return nil, notFound(err, "worker")
	}
	return worker, nil
}

// ListWorkersByRole returns workers with the given role whose status is not
// in the exclusion set, in stable ID order.
func (s *PostgresStore) ListWorkersByRole(ctx context.Context, role string, exclude []models.WorkerStatus) ([]*models.Worker, error) {
	excluded := make([]string, len(exclude))
	for i, st := range exclude {
		excluded[i] = string(st)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+workerColumns+` FROM workers
		WHERE role = $1 AND NOT (status = ANY($2))
		ORDER BY id`,
		role, excluded,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []*models.Worker
	for rows.Next() {
		worker, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, worker)
	}
	return workers, rows.Err()
}

// UpdateWorkerStatus sets a worker's operational status.
func (s *PostgresStore) UpdateWorkerStatus(ctx context.Context, id string, status models.WorkerStatus) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE workers SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("worker: %w", ErrNotFound)
	}
	return nil
}
