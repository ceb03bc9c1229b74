package repository

import (
	"context"
	"errors"
	"time"

	"missionctl/backend/pkg/models"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// WorkItemFilter narrows work-item listings.
type WorkItemFilter struct {
	StageID  string
	Status   models.ItemStatus
	Category string
	WorkerID string
	Tag      string
}

// RunFilter narrows run listings.
type RunFilter struct {
	ScheduleID string
	WorkItemID string
	RunType    string
	Status     models.RunStatus
}

// AuditFilter narrows audit listings.
type AuditFilter struct {
	EntityType string
	EntityID   string
	Limit      int
}

// Store defines the persistence layer contract. Implementations must be
// safe for concurrent use. InTx runs the callback against a transactional
// view of the store; any error rolls back every write made inside it.
type Store interface {
	// Work items
	CreateWorkItem(ctx context.Context, item *models.WorkItem) error
	GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error)
	ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error)
	UpdateWorkItem(ctx context.Context, item *models.WorkItem) error
	DeleteWorkItem(ctx context.Context, id string) error
	// ShiftPositions adds delta to the position of every item in the stage
	// whose position lies in [min, max], excluding excludeID. max <= 0 means
	// unbounded.
	ShiftPositions(ctx context.Context, stageID string, min, max, delta int, excludeID string) error
	MaxPosition(ctx context.Context, stageID string) (int, error)
	// CountActiveAssignments returns, per worker, the number of non-DONE
	// work items currently assigned to it.
	CountActiveAssignments(ctx context.Context, workerIDs []string) (map[string]int, error)

	// Stages
	UpsertStage(ctx context.Context, stage *models.Stage) error
	GetStage(ctx context.Context, id string) (*models.Stage, error)
	ListStages(ctx context.Context) ([]*models.Stage, error)

	// Workflow templates
	UpsertTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error
	GetTemplateByCategory(ctx context.Context, category string) (*models.WorkflowTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.WorkflowTemplate, error)

	// Workers
	UpsertWorker(ctx context.Context, worker *models.Worker) error
	GetWorker(ctx context.Context, id string) (*models.Worker, error)
	ListWorkersByRole(ctx context.Context, role string, exclude []models.WorkerStatus) ([]*models.Worker, error)
	UpdateWorkerStatus(ctx context.Context, id string, status models.WorkerStatus) error

	// Schedule definitions
	CreateSchedule(ctx context.Context, sched *models.ScheduleDefinition) error
	GetSchedule(ctx context.Context, id string) (*models.ScheduleDefinition, error)
	ListSchedules(ctx context.Context) ([]*models.ScheduleDefinition, error)
	UpdateSchedule(ctx context.Context, sched *models.ScheduleDefinition) error
	// ListDueSchedules returns enabled definitions due at now, oldest first:
	// recurring with next_due_at <= now, one-time with trigger_at <= now and
	// no prior run.
	ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.ScheduleDefinition, error)
	// TryLockSchedule acquires an exclusive, non-blocking lock on a due
	// schedule row. It returns (nil, false, nil) without waiting when the
	// row is held by another poller or is no longer due. Only meaningful
	// inside InTx; the lock is released on commit or rollback.
	TryLockSchedule(ctx context.Context, id string, now time.Time) (*models.ScheduleDefinition, bool, error)

	// Runs
	CreateRun(ctx context.Context, run *models.Run) error
	GetRun(ctx context.Context, id string) (*models.Run, error)
	UpdateRun(ctx context.Context, run *models.Run) error
	ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, error)
	// HasSuccessfulRun reports whether a run of the given type exists for
	// the work item with a status in the given set.
	HasSuccessfulRun(ctx context.Context, workItemID, runType string, statuses []models.RunStatus) (bool, error)

	// Audit log (append-only)
	AppendAudit(ctx context.Context, rec *models.AuditRecord) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error)

	// Transactions
	InTx(ctx context.Context, fn func(Store) error) error

	// Maintenance
	Migrate(ctx context.Context) error
}
