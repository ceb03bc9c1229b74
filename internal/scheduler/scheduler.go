// Package scheduler polls schedule definitions and claims due ones with a
// non-blocking row lock, so any number of poller processes can share one
// backlog without duplicating runs.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"missionctl/backend/internal/logging"
	"missionctl/backend/internal/observability"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/services"
	"missionctl/backend/pkg/models"
)

const (
	defaultInterval  = 30 * time.Second
	defaultBatchSize = 20
)

// Options tunes the poll loop.
type Options struct {
	Interval  time.Duration
	BatchSize int
}

// Scheduler is one poller instance. Multiple instances may run concurrently
// against the same database; the per-row claim lock is the only coordination
// between them.
type Scheduler struct {
	store    repository.Store
	runs     *services.RunService
	executor services.JobExecutor
	metrics  *observability.Metrics
	logger   *slog.Logger

	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a scheduler. A nil executor finalizes claimed runs immediately
// with empty output.
func New(store repository.Store, runs *services.RunService, executor services.JobExecutor, metrics *observability.Metrics, logger *slog.Logger, opts Options) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Scheduler{
		store:     store,
		runs:      runs,
		executor:  executor,
		metrics:   metrics,
		logger:    logger.With("component", "scheduler"),
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
	}
}

// Start launches the poll loop. Stop or cancelling ctx shuts it down.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.logger.Info("scheduler starting", "interval", s.interval, "batch_size", s.batchSize)
	go s.loop(ctx)
}

// Stop halts the loop and waits for the in-flight tick to finish. Job bodies
// already executing run to completion.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one poll pass: list due definitions oldest first, claim each in
// its own transaction, execute claimed jobs, finalize their runs. Exported
// so tests and the manual poller can drive passes directly.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()
	due, err := s.store.ListDueSchedules(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("listing due schedules", "error", err)
		return
	}
	for _, sched := range due {
		if ctx.Err() != nil {
			return
		}
		s.process(ctx, sched.ID)
	}
}

func (s *Scheduler) process(ctx context.Context, scheduleID string) {
	logger := logging.WithScheduleID(s.logger, scheduleID)

	run, sched, err := s.claim(ctx, scheduleID)
	if err != nil {
		logger.Error("claiming schedule", "error", err)
		return
	}
	if run == nil {
		// Held by another poller, no longer due, or failed closed.
		s.metrics.ClaimMiss(ctx)
		logger.Debug("claim miss")
		return
	}
	s.metrics.RunStarted(ctx, run.RunType)
	logger.Info("run claimed", "run_id", run.ID)

	output, execErr := s.execute(ctx, run, sched)
	if execErr != nil {
		logger.Warn("job execution failed", "run_id", run.ID, "error", execErr)
	}
	if err := s.runs.Finalize(ctx, run, output, execErr, models.SystemActor()); err != nil {
		logger.Error("finalizing run", "run_id", run.ID, "error", err)
	}
}

// claim locks the schedule row without waiting, creates the RUNNING run, and
// advances the recurring next-due time, all in one transaction. (nil, nil,
// nil) means the claim was skipped. A malformed recurring expression fails
// closed: next-due is cleared, no run is created, and the definition stays
// dormant until re-provisioned.
func (s *Scheduler) claim(ctx context.Context, scheduleID string) (*models.Run, *models.ScheduleDefinition, error) {
	now := time.Now().UTC()
	var (
		run   *models.Run
		sched *models.ScheduleDefinition
	)
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		locked, ok, err := tx.TryLockSchedule(ctx, scheduleID, now)
		if err != nil {
			return fmt.Errorf("locking schedule: %w", err)
		}
		if !ok {
			return nil
		}

		if locked.Kind == models.ScheduleKindRecurring {
			next, nerr := NextDue(locked.Expr, now)
			if nerr != nil {
				logging.WithScheduleID(s.logger, locked.ID).Error("schedule expression rejected", "error", nerr)
				locked.NextDueAt = nil
				return tx.UpdateSchedule(ctx, locked)
			}
			locked.NextDueAt = &next
			if err := tx.UpdateSchedule(ctx, locked); err != nil {
				return err
			}
		}

		run = &models.Run{
			ID:         uuid.NewString(),
			ScheduleID: &locked.ID,
			RunType:    "schedule",
			Status:     models.RunStatusRunning,
			StartedAt:  now,
		}
		if err := tx.CreateRun(ctx, run); err != nil {
			return err
		}
		sched = locked
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "run",
			EntityID:   run.ID,
			Action:     "run.started",
			Actor:      models.SystemActor(),
			Detail:     map[string]any{"schedule_id": locked.ID, "trigger": "scheduler"},
		})
	})
	if err != nil {
		return nil, nil, err
	}
	if sched == nil {
		return nil, nil, nil
	}
	return run, sched, nil
}

func (s *Scheduler) execute(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
	if s.executor == nil {
		return "", nil
	}
	return s.executor.Execute(ctx, run, sched)
}
