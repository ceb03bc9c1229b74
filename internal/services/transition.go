// Package services orchestrates the workflow policy over the store: stage
// transitions, run lifecycle, and provisioning.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"missionctl/backend/internal/hooks"
	"missionctl/backend/internal/logging"
	"missionctl/backend/internal/observability"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/workflow"
	"missionctl/backend/pkg/models"
)

// MoveResult is the outcome of a transition attempt. Rejection is non-nil
// when gate validation failed; the item then reflects its unchanged state.
type MoveResult struct {
	Item           *models.WorkItem     `json:"item"`
	Rejection      *workflow.GateResult `json:"rejection,omitempty"`
	AssignedWorker *models.Worker       `json:"assigned_worker,omitempty"`
	FromStageID    string               `json:"from_stage_id"`
	FromPosition   int                  `json:"from_position"`
}

// Applied reports whether the move was committed.
func (r *MoveResult) Applied() bool { return r.Rejection == nil }

// TransitionService moves work items between stages: validate, reindex,
// persist, assign, audit, all inside one transaction per attempt.
type TransitionService struct {
	store   repository.Store
	catalog *workflow.Catalog
	hook    hooks.MemoryHook
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewTransitionService wires the coordinator. A nil hook gets NoopHook.
func NewTransitionService(store repository.Store, catalog *workflow.Catalog, hook hooks.MemoryHook, metrics *observability.Metrics, logger *slog.Logger) *TransitionService {
	if hook == nil {
		hook = hooks.NoopHook{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TransitionService{store: store, catalog: catalog, hook: hook, metrics: metrics, logger: logger}
}

// Move attempts to transition a work item into the destination stage at the
// requested position (0 or negative appends to the end of the stage).
//
// A gate rejection commits only its audit record and returns a MoveResult
// carrying the full rejection detail; the item is not mutated. On pass, the
// position reindex, the item update, the optional worker assignment, and the
// audit records all commit atomically. The memory hook fires after commit
// when the item newly reached DONE, and any hook failure is logged only.
func (s *TransitionService) Move(ctx context.Context, itemID, toStageID string, toPos int, actor models.Actor) (*MoveResult, error) {
	logger := logging.WithItemID(s.logger, itemID)

	var (
		result    MoveResult
		newlyDone bool
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		item, err := tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		stage, err := tx.GetStage(ctx, toStageID)
		if err != nil {
			return err
		}
		gateRuns, err := s.catalog.GateRunsForItem(ctx, item)
		if err != nil {
			return err
		}

		check, err := workflow.Validate(ctx, item, stage, gateRuns, tx)
		if err != nil {
			return err
		}
		result.Item = item
		result.FromStageID = item.StageID
		result.FromPosition = item.Position

		if !check.OK {
			result.Rejection = check
			return tx.AppendAudit(ctx, &models.AuditRecord{
				EntityType: "work_item",
				EntityID:   item.ID,
				Action:     "gate.checked",
				Actor:      actor,
				Detail: map[string]any{
					"passed":            false,
					"to_stage":          stage.ID,
					"missing_artifacts": check.MissingArtifacts,
					"missing_gates":     check.MissingGates,
					"category_mismatch": check.CategoryMismatch,
				},
			})
		}

		fromStageID, fromPos := item.StageID, item.Position
		maxPos, err := tx.MaxPosition(ctx, stage.ID)
		if err != nil {
			return err
		}
		if fromStageID != stage.ID {
			maxPos++ // room for the incoming item
		}
		if toPos <= 0 {
			toPos = maxPos
		}
		toPos = workflow.ClampPosition(toPos, maxPos)

		for _, shift := range workflow.PlanMove(fromStageID, fromPos, stage.ID, toPos) {
			if err := tx.ShiftPositions(ctx, shift.StageID, shift.Min, shift.Max, shift.Delta, item.ID); err != nil {
				return err
			}
		}

		prevStatus := item.Status
		item.StageID = stage.ID
		item.Position = toPos
		if stage.Status != nil {
			item.Status = *stage.Status
		}

		var assigned *models.Worker
		if stage.DefaultRole != nil {
			assigned, err = s.pickWorker(ctx, tx, item, stage)
			if err != nil {
				return err
			}
			if assigned != nil {
				item.AssignedWorkerID = &assigned.ID
				item.AssignedUserID = nil
			}
		}

		if err := tx.UpdateWorkItem(ctx, item); err != nil {
			return err
		}

		if err := tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   item.ID,
			Action:     "gate.checked",
			Actor:      actor,
			Detail:     map[string]any{"passed": true, "to_stage": stage.ID},
		}); err != nil {
			return err
		}
		if err := tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   item.ID,
			Action:     "item.moved",
			Actor:      actor,
			Detail: map[string]any{
				"from":          fromStageID,
				"to":            stage.ID,
				"from_position": fromPos,
				"to_position":   toPos,
			},
		}); err != nil {
			return err
		}

		if assigned != nil {
			if err := tx.UpdateWorkerStatus(ctx, assigned.ID, models.WorkerStatusBusy); err != nil {
				return err
			}
			if err := tx.AppendAudit(ctx, &models.AuditRecord{
				EntityType: "work_item",
				EntityID:   item.ID,
				Action:     "item.assigned",
				Actor:      actor,
				Detail:     map[string]any{"worker_id": assigned.ID, "role": *stage.DefaultRole},
			}); err != nil {
				return err
			}
			result.AssignedWorker = assigned
		}

		newlyDone = item.Status == models.ItemStatusDone && prevStatus != models.ItemStatusDone
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("moving work item: %w", err)
	}

	if result.Rejection != nil {
		s.metrics.TransitionRejected(ctx, rejectionReason(result.Rejection))
		logger.Info("move rejected",
			"to_stage", toStageID,
			"missing_artifacts", result.Rejection.MissingArtifacts,
			"missing_gates", result.Rejection.MissingGates)
		return &result, nil
	}

	s.metrics.TransitionApplied(ctx, toStageID)
	logger.Info("item moved", "to_stage", toStageID, "position", result.Item.Position)

	if newlyDone {
		if err := s.hook.OnWorkItemDone(ctx, result.Item.ID, actor); err != nil {
			logger.Warn("memory hook failed", "error", err)
		}
	}
	return &result, nil
}

// ValidateMove runs gate validation speculatively, with no writes.
func (s *TransitionService) ValidateMove(ctx context.Context, itemID, toStageID string) (*workflow.GateResult, error) {
	item, err := s.store.GetWorkItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	stage, err := s.catalog.Stage(ctx, toStageID)
	if err != nil {
		return nil, err
	}
	gateRuns, err := s.catalog.GateRunsForItem(ctx, item)
	if err != nil {
		return nil, err
	}
	return workflow.Validate(ctx, item, stage, gateRuns, s.store)
}

func (s *TransitionService) pickWorker(ctx context.Context, tx repository.Store, item *models.WorkItem, stage *models.Stage) (*models.Worker, error) {
	workers, err := tx.ListWorkersByRole(ctx, *stage.DefaultRole,
		[]models.WorkerStatus{models.WorkerStatusOffline, models.WorkerStatusError})
	if err != nil {
		return nil, err
	}
	if len(workers) == 0 {
		return nil, nil
	}
	ids := make([]string, len(workers))
	for i, w := range workers {
		ids[i] = w.ID
	}
	loads, err := tx.CountActiveAssignments(ctx, ids)
	if err != nil {
		return nil, err
	}
	return workflow.SelectWorker(workers, loads, item, stage), nil
}

func rejectionReason(res *workflow.GateResult) string {
	switch {
	case res.CategoryMismatch != nil:
		return "category_mismatch"
	case len(res.MissingArtifacts) > 0 && len(res.MissingGates) > 0:
		return "missing_artifacts_and_gates"
	case len(res.MissingArtifacts) > 0:
		return "missing_artifacts"
	default:
		return "missing_gates"
	}
}
