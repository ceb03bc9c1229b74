package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"missionctl/backend/pkg/models"
)

// AppendAudit writes an immutable audit record. Called inside the same
// transaction as the mutation it describes.
func (s *PostgresStore) AppendAudit(ctx context.Context, rec *models.AuditRecord) error {
	detail, err := marshalJSON(rec.Detail, "{}")
	if err != nil {
		return err
	}
	rec.CreatedAt = time.Now().UTC()

	return s.db.QueryRow(ctx,
		`INSERT INTO audit_log (entity_type, entity_id, action, actor_kind, actor_id,
			detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		rec.EntityType, rec.EntityID, rec.Action, rec.Actor.Kind, rec.Actor.ID,
		detail, rec.CreatedAt,
	).Scan(&rec.ID)
}

// ListAudit returns audit records matching the filter, newest first.
func (s *PostgresStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error) {
	query := `SELECT id, entity_type, entity_id, action, actor_kind, actor_id, detail, created_at
		FROM audit_log WHERE 1=1`
	var args []any

	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(clause, len(args))
	}
	if filter.EntityType != "" {
		add(` AND entity_type = $%d`, filter.EntityType)
	}
	if filter.EntityID != "" {
		add(` AND entity_id = $%d`, filter.EntityID)
	}
	query += ` ORDER BY id DESC`
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	add(` LIMIT $%d`, limit)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*models.AuditRecord
	for rows.Next() {
		rec := &models.AuditRecord{}
		var detailJSON []byte
		if err := rows.Scan(
			&rec.ID, &rec.EntityType, &rec.EntityID, &rec.Action,
			&rec.Actor.Kind, &rec.Actor.ID, &detailJSON, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &rec.Detail); err != nil {
				return nil, fmt.Errorf("decode audit detail %d: %w", rec.ID, err)
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
