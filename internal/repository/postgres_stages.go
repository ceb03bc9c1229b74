package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"missionctl/backend/pkg/models"
)

const stageColumns = `id, name, category, ord, default_role, status,
	required_artifacts, required_gates, created_at, updated_at`

func scanStage(row pgx.Row) (*models.Stage, error) {
	stage := &models.Stage{}
	var artifactsJSON, gatesJSON []byte

	err := row.Scan(
		&stage.ID, &stage.Name, &stage.Category, &stage.Order,
		&stage.DefaultRole, &stage.Status,
		&artifactsJSON, &gatesJSON, &stage.CreatedAt, &stage.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(artifactsJSON) > 0 {
		if err := json.Unmarshal(artifactsJSON, &stage.RequiredArtifacts); err != nil {
			return nil, fmt.Errorf("decode required artifacts for stage %s: %w", stage.ID, err)
		}
	}
	if len(gatesJSON) > 0 {
		if err := json.Unmarshal(gatesJSON, &stage.RequiredGates); err != nil {
			return nil, fmt.Errorf("decode required gates for stage %s: %w", stage.ID, err)
		}
	}
	return stage, nil
}

// UpsertStage creates or updates a stage keyed by name+category.
// Re-provisioning with the same key updates ordering and rules without
// creating duplicates; stage.ID is set to the persisted row's ID.
func (s *PostgresStore) UpsertStage(ctx context.Context, stage *models.Stage) error {
	artifacts, err := marshalJSON(stage.RequiredArtifacts, "[]")
	if err != nil {
		return err
	}
	gates, err := marshalJSON(stage.RequiredGates, "[]")
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.QueryRow(ctx,
		`INSERT INTO stages (id, name, category, ord, default_role, status,
			required_artifacts, required_gates, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		ON CONFLICT (name, (COALESCE(category, '')))
		DO UPDATE SET
			ord = EXCLUDED.ord,
			default_role = EXCLUDED.default_role,
			status = EXCLUDED.status,
			required_artifacts = EXCLUDED.required_artifacts,
			required_gates = EXCLUDED.required_gates,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		stage.ID, stage.Name, stage.Category, stage.Order, stage.DefaultRole, stage.Status,
		artifacts, gates, now,
	).Scan(&stage.ID)
}

// GetStage retrieves a stage by ID.
func (s *PostgresStore) GetStage(ctx context.Context, id string) (*models.Stage, error) {
	row := s.db.QueryRow(ctx, `SELECT `+stageColumns+` FROM stages WHERE id = $1`, id)
	stage, err := scanStage(row)
	if err != nil {
		return nil, notFound(err, "stage")
	}
	return stage, nil
}

// ListStages returns all stages ordered by display rank.
func (s *PostgresStore) ListStages(ctx context.Context) ([]*models.Stage, error) {
	rows, err := s.db.Query(ctx, `SELECT `+stageColumns+` FROM stages ORDER BY ord, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []*models.Stage
	for rows.Next() {
		stage, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		stages = append(stages, stage)
	}
	return stages, rows.Err()
}

const templateColumns = `id, name, category, stage_ids, always_available,
	stage_notes, gate_runs, created_at, updated_at`

func scanTemplate(row pgx.Row) (*models.WorkflowTemplate, error) {
	tpl := &models.WorkflowTemplate{}
	var stageIDs, always, notes, gateRuns []byte

	err := row.Scan(
		&tpl.ID, &tpl.Name, &tpl.Category,
		&stageIDs, &always, &notes, &gateRuns,
		&tpl.CreatedAt, &tpl.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	for _, pair := range []struct {
		raw []byte
		dst any
	}{
		{stageIDs, &tpl.StageIDs},
		{always, &tpl.AlwaysAvailable},
		{notes, &tpl.StageNotes},
		{gateRuns, &tpl.GateRuns},
	} {
		if len(pair.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(pair.raw, pair.dst); err != nil {
			return nil, fmt.Errorf("decode template %s: %w", tpl.ID, err)
		}
	}
	return tpl, nil
}

// UpsertTemplate creates or updates the workflow template for a category.
func (s *PostgresStore) UpsertTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	stageIDs, err := marshalJSON(tpl.StageIDs, "[]")
	if err != nil {
		return err
	}
	always, err := marshalJSON(tpl.AlwaysAvailable, "[]")
	if err != nil {
		return err
	}
	notes, err := marshalJSON(tpl.StageNotes, "{}")
	if err != nil {
		return err
	}
	gateRuns, err := marshalJSON(tpl.GateRuns, "{}")
	if err != nil {
		return err
	}
	now := time.Now().UTC()

	return s.db.QueryRow(ctx,
		`INSERT INTO workflow_templates (id, name, category, stage_ids, always_available,
			stage_notes, gate_runs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		ON CONFLICT (category)
		DO UPDATE SET
			name = EXCLUDED.name,
			stage_ids = EXCLUDED.stage_ids,
			always_available = EXCLUDED.always_available,
			stage_notes = EXCLUDED.stage_notes,
			gate_runs = EXCLUDED.gate_runs,
			updated_at = EXCLUDED.updated_at
		RETURNING id`,
		tpl.ID, tpl.Name, tpl.Category, stageIDs, always, notes, gateRuns, now,
	).Scan(&tpl.ID)
}

// GetTemplateByCategory retrieves the workflow template for a category.
func (s *PostgresStore) GetTemplateByCategory(ctx context.Context, category string) (*models.WorkflowTemplate, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM workflow_templates WHERE category = $1`, category)
	tpl, err := scanTemplate(row)
	if err != nil {
		return nil, notFound(err, "workflow template")
	}
	return tpl, nil
}

// ListTemplates returns all workflow templates.
func (s *PostgresStore) ListTemplates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+templateColumns+` FROM workflow_templates ORDER BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tpls []*models.WorkflowTemplate
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		tpls = append(tpls, tpl)
	}
	return tpls, rows.Err()
}
