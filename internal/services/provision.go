package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"missionctl/backend/internal/auth"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/workflow"
	"missionctl/backend/pkg/models"
)

// ProvisionService handles the configuration surface: idempotent upsert of
// stages, workflow templates, workers, and schedule definitions. Upserts are
// keyed by name+category (stages), category (templates), and id (workers),
// so re-provisioning updates in place without duplicates.
type ProvisionService struct {
	store   repository.Store
	catalog *workflow.Catalog
	logger  *slog.Logger
}

func NewProvisionService(store repository.Store, catalog *workflow.Catalog, logger *slog.Logger) *ProvisionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProvisionService{store: store, catalog: catalog, logger: logger}
}

// UpsertStage creates or updates a stage definition. Requires the
// workflow:provision capability.
func (s *ProvisionService) UpsertStage(ctx context.Context, stage *models.Stage, actor models.Actor, caps auth.Capabilities) (*models.Stage, error) {
	if err := caps.Require(auth.ScopeWorkflowProvision); err != nil {
		return nil, err
	}
	if stage.Name == "" {
		return nil, fmt.Errorf("stage name is required")
	}
	if stage.ID == "" {
		stage.ID = uuid.NewString()
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.UpsertStage(ctx, stage); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "stage",
			EntityID:   stage.ID,
			Action:     "stage.provisioned",
			Actor:      actor,
			Detail:     map[string]any{"name": stage.Name},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("provisioning stage: %w", err)
	}
	s.catalog.Invalidate()
	s.logger.Info("stage provisioned", "stage_id", stage.ID, "name", stage.Name)
	return stage, nil
}

// UpsertTemplate creates or updates the workflow template for a category.
// Requires the workflow:provision capability. Every referenced stage must
// already exist.
func (s *ProvisionService) UpsertTemplate(ctx context.Context, tpl *models.WorkflowTemplate, actor models.Actor, caps auth.Capabilities) (*models.WorkflowTemplate, error) {
	if err := caps.Require(auth.ScopeWorkflowProvision); err != nil {
		return nil, err
	}
	if tpl.Category == "" {
		return nil, fmt.Errorf("template category is required")
	}
	if tpl.ID == "" {
		tpl.ID = uuid.NewString()
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		for _, stageID := range tpl.StageIDs {
			if _, err := tx.GetStage(ctx, stageID); err != nil {
				return fmt.Errorf("template references stage %s: %w", stageID, err)
			}
		}
		for _, stageID := range tpl.AlwaysAvailable {
			if _, err := tx.GetStage(ctx, stageID); err != nil {
				return fmt.Errorf("template references stage %s: %w", stageID, err)
			}
		}
		if err := tx.UpsertTemplate(ctx, tpl); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "workflow_template",
			EntityID:   tpl.ID,
			Action:     "template.provisioned",
			Actor:      actor,
			Detail:     map[string]any{"category": tpl.Category, "stages": len(tpl.StageIDs)},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("provisioning template: %w", err)
	}
	s.catalog.Invalidate()
	s.logger.Info("template provisioned", "category", tpl.Category)
	return tpl, nil
}

// UpsertWorker registers or updates an automated worker. Requires the
// workers:write capability.
func (s *ProvisionService) UpsertWorker(ctx context.Context, worker *models.Worker, actor models.Actor, caps auth.Capabilities) (*models.Worker, error) {
	if err := caps.Require(auth.ScopeWorkersWrite); err != nil {
		return nil, err
	}
	if worker.ID == "" {
		worker.ID = uuid.NewString()
	}
	if worker.Status == "" {
		worker.Status = models.WorkerStatusIdle
	}
	if err := s.store.UpsertWorker(ctx, worker); err != nil {
		return nil, fmt.Errorf("upserting worker: %w", err)
	}
	return worker, nil
}

// SetWorkerStatus applies a job-completion or health signal to a worker.
// Requires the workers:write capability.
func (s *ProvisionService) SetWorkerStatus(ctx context.Context, workerID string, status models.WorkerStatus, actor models.Actor, caps auth.Capabilities) error {
	if err := caps.Require(auth.ScopeWorkersWrite); err != nil {
		return err
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.UpdateWorkerStatus(ctx, workerID, status); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "worker",
			EntityID:   workerID,
			Action:     "worker.status_changed",
			Actor:      actor,
			Detail:     map[string]any{"status": string(status)},
		})
	})
	if err != nil {
		return fmt.Errorf("updating worker status: %w", err)
	}
	return nil
}

// UpsertSchedule creates or updates a schedule definition. Requires the
// schedules:write capability. NextDueAt is left for the scheduler to manage;
// a new RECURRING definition starts due immediately unless the caller seeds
// a next-due time.
func (s *ProvisionService) UpsertSchedule(ctx context.Context, sched *models.ScheduleDefinition, actor models.Actor, caps auth.Capabilities) (*models.ScheduleDefinition, error) {
	if err := caps.Require(auth.ScopeSchedulesWrite); err != nil {
		return nil, err
	}
	switch sched.Kind {
	case models.ScheduleKindRecurring:
		if sched.Expr == "" {
			return nil, fmt.Errorf("recurring schedule needs an expression")
		}
	case models.ScheduleKindOneTime:
		if sched.TriggerAt == nil {
			return nil, fmt.Errorf("one-time schedule needs a trigger time")
		}
	default:
		return nil, fmt.Errorf("unknown schedule kind %q", sched.Kind)
	}

	create := sched.ID == ""
	if create {
		sched.ID = uuid.NewString()
		if sched.Kind == models.ScheduleKindRecurring && sched.NextDueAt == nil {
			now := time.Now().UTC()
			sched.NextDueAt = &now
		}
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if create {
			if err := tx.CreateSchedule(ctx, sched); err != nil {
				return err
			}
		} else if err := tx.UpdateSchedule(ctx, sched); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "schedule",
			EntityID:   sched.ID,
			Action:     "schedule.provisioned",
			Actor:      actor,
			Detail:     map[string]any{"kind": string(sched.Kind), "enabled": sched.Enabled},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("provisioning schedule: %w", err)
	}
	return sched, nil
}
