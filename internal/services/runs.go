package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"missionctl/backend/internal/hooks"
	"missionctl/backend/internal/logging"
	"missionctl/backend/internal/observability"
	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

// ErrRunTerminal is returned when an operation targets a run that has
// already reached a terminal status.
var ErrRunTerminal = errors.New("run already terminal")

// JobExecutor runs the opaque job body behind a schedule definition. The
// engine records the lifecycle; it does not interpret what the job does.
type JobExecutor interface {
	Execute(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (output string, err error)
}

// JobExecutorFunc adapts a function to JobExecutor.
type JobExecutorFunc func(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error)

func (f JobExecutorFunc) Execute(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
	return f(ctx, run, sched)
}

// RunService owns the run lifecycle: creation, completion, retry signaling,
// and manual schedule triggers.
type RunService struct {
	store    repository.Store
	hook     hooks.MemoryHook
	metrics  *observability.Metrics
	executor JobExecutor
	logger   *slog.Logger
}

// NewRunService wires the run lifecycle. A nil hook gets NoopHook; a nil
// executor makes TriggerNow finalize runs immediately with empty output.
func NewRunService(store repository.Store, hook hooks.MemoryHook, metrics *observability.Metrics, executor JobExecutor, logger *slog.Logger) *RunService {
	if hook == nil {
		hook = hooks.NoopHook{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{store: store, hook: hook, metrics: metrics, executor: executor, logger: logger}
}

// StartItemRun creates a RUNNING run owned by a work item, for an external
// executor to complete through CompleteRun. Run gates read these records.
func (s *RunService) StartItemRun(ctx context.Context, itemID, runType string, actor models.Actor) (*models.Run, error) {
	run := &models.Run{
		ID:         uuid.NewString(),
		WorkItemID: &itemID,
		RunType:    runType,
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if _, err := tx.GetWorkItem(ctx, itemID); err != nil {
			return err
		}
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "run",
			EntityID:   run.ID,
			Action:     "run.started",
			Actor:      actor,
			Detail:     map[string]any{"work_item_id": itemID, "run_type": runType},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("starting run: %w", err)
	}
	s.metrics.RunStarted(ctx, runType)
	return run, nil
}

// CompleteRun moves a run to a terminal status with captured output or
// error. Terminal runs are never resumed; completing one again returns
// ErrRunTerminal.
func (s *RunService) CompleteRun(ctx context.Context, runID string, status models.RunStatus, output, errMsg string, actor models.Actor) (*models.Run, error) {
	if !status.Terminal() {
		return nil, fmt.Errorf("status %s is not terminal", status)
	}
	var run *models.Run
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		run, err = tx.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if run.Status.Terminal() {
			return fmt.Errorf("run %s: %w", runID, ErrRunTerminal)
		}
		now := time.Now().UTC()
		run.Status = status
		run.CompletedAt = &now
		run.Output = output
		run.Error = errMsg
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "run",
			EntityID:   run.ID,
			Action:     auditActionFor(status),
			Actor:      actor,
			Detail:     map[string]any{"status": string(status), "error": errMsg},
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RunFinished(ctx, string(status))
	if status == models.RunStatusSuccess {
		if err := s.hook.OnRunFinished(ctx, run.ID, actor); err != nil {
			logging.WithRunID(s.logger, run.ID).Warn("memory hook failed", "error", err)
		}
	}
	return run, nil
}

// RequestRetry marks a failed run for a separate executor to pick up. It
// does not cancel or restart anything in flight.
func (s *RunService) RequestRetry(ctx context.Context, runID string, actor models.Actor) (*models.Run, error) {
	var run *models.Run
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		run, err = tx.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		if !run.Status.Terminal() {
			return fmt.Errorf("run %s is still in flight", runID)
		}
		run.RetryRequested = true
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "run",
			EntityID:   run.ID,
			Action:     "run.retry_requested",
			Actor:      actor,
		})
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// TriggerNow creates and executes a run for a schedule outside the poll
// cycle. It bypasses the claim lock; callers serialize their own triggers.
func (s *RunService) TriggerNow(ctx context.Context, scheduleID string, actor models.Actor) (*models.Run, error) {
	sched, err := s.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	run := &models.Run{
		ID:         uuid.NewString(),
		ScheduleID: &sched.ID,
		RunType:    "schedule",
		Status:     models.RunStatusRunning,
		StartedAt:  time.Now().UTC(),
	}
	err = s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "run",
			EntityID:   run.ID,
			Action:     "run.started",
			Actor:      actor,
			Detail:     map[string]any{"schedule_id": sched.ID, "trigger": "manual"},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("starting manual run: %w", err)
	}
	s.metrics.RunStarted(ctx, run.RunType)

	output, execErr := s.execute(ctx, run, sched)
	if err := s.Finalize(ctx, run, output, execErr, actor); err != nil {
		return nil, err
	}
	return run, nil
}

// Finalize moves an in-flight run to SUCCESS or FAILED based on execErr,
// writes the matching audit record, and fires the memory hook on success.
func (s *RunService) Finalize(ctx context.Context, run *models.Run, output string, execErr error, actor models.Actor) error {
	now := time.Now().UTC()
	run.CompletedAt = &now
	run.Output = output
	if execErr != nil {
		run.Status = models.RunStatusFailed
		run.Error = execErr.Error()
	} else {
		run.Status = models.RunStatusSuccess
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		if err := tx.UpdateRun(ctx, run); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "run",
			EntityID:   run.ID,
			Action:     auditActionFor(run.Status),
			Actor:      actor,
			Detail:     map[string]any{"status": string(run.Status), "error": run.Error},
		})
	})
	if err != nil {
		return fmt.Errorf("finalizing run: %w", err)
	}

	s.metrics.RunFinished(ctx, string(run.Status))
	if run.Status == models.RunStatusSuccess {
		if err := s.hook.OnRunFinished(ctx, run.ID, actor); err != nil {
			logging.WithRunID(s.logger, run.ID).Warn("memory hook failed", "error", err)
		}
	}
	return nil
}

func (s *RunService) execute(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
	if s.executor == nil {
		return "", nil
	}
	return s.executor.Execute(ctx, run, sched)
}

func auditActionFor(status models.RunStatus) string {
	if status == models.RunStatusFailed {
		return "run.failed"
	}
	return "run.finished"
}
