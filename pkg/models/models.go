// Package models defines the domain models for the mission control core.
package models

import "time"

// ItemStatus represents the lifecycle status of a work item.
type ItemStatus string

const (
	ItemStatusOpen       ItemStatus = "OPEN"
	ItemStatusInProgress ItemStatus = "IN_PROGRESS"
	ItemStatusDone       ItemStatus = "DONE"
	ItemStatusBlocked    ItemStatus = "BLOCKED"
)

// WorkerStatus represents the operational status of an automated worker.
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "IDLE"
	WorkerStatusBusy    WorkerStatus = "BUSY"
	WorkerStatusError   WorkerStatus = "ERROR"
	WorkerStatusOffline WorkerStatus = "OFFLINE"
)

// ScheduleKind distinguishes recurring from one-shot schedule definitions.
type ScheduleKind string

const (
	ScheduleKindRecurring ScheduleKind = "RECURRING"
	ScheduleKindOneTime   ScheduleKind = "ONE_TIME"
)

// RunStatus represents the lifecycle status of a run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "PENDING"
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusSuccess   RunStatus = "SUCCESS"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the status is final. Terminal runs are never resumed.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusSuccess, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// GateKind distinguishes boolean-flag gates from run-outcome gates.
type GateKind string

const (
	GateKindBool GateKind = "bool"
	GateKindRun  GateKind = "run"
)

// Evidence is a single named piece of evidence attached to a work item,
// e.g. a PR link or a document reference.
type Evidence struct {
	Kind    string    `json:"kind,omitempty"`
	Name    string    `json:"name,omitempty"`
	Content string    `json:"content,omitempty"`
	AddedAt time.Time `json:"added_at,omitempty"`
}

// ArtifactDoc is the structured artifact document carried by a work item:
// free-form tags, required-capability hints for assignment, boolean gate
// flags, and named evidence entries keyed by artifact key.
type ArtifactDoc struct {
	Tags                 []string            `json:"tags,omitempty"`
	RequiredCapabilities []string            `json:"required_capabilities,omitempty"`
	Gates                map[string]bool     `json:"gates,omitempty"`
	Evidence             map[string]Evidence `json:"evidence,omitempty"`
}

// HasArtifact reports whether an evidence entry exists for the given key.
func (d ArtifactDoc) HasArtifact(key string) bool {
	_, ok := d.Evidence[key]
	return ok
}

// GateSet reports whether the named boolean gate flag is present and true.
func (d ArtifactDoc) GateSet(key string) bool {
	return d.Gates[key]
}

// WorkItem is a unit of work moving through a stage pipeline.
// Within a stage, positions form a contiguous 1..N permutation.
type WorkItem struct {
	ID               string      `json:"id" db:"id"`
	Title            string      `json:"title" db:"title"`
	Description      string      `json:"description,omitempty" db:"description"`
	Category         *string     `json:"category,omitempty" db:"category"`
	StageID          string      `json:"stage_id" db:"stage_id"`
	Position         int         `json:"position" db:"position"`
	Status           ItemStatus  `json:"status" db:"status"`
	Artifacts        ArtifactDoc `json:"artifacts" db:"artifacts"`
	AssignedWorkerID *string     `json:"assigned_worker_id,omitempty" db:"assigned_worker_id"`
	AssignedUserID   *string     `json:"assigned_user_id,omitempty" db:"assigned_user_id"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at" db:"updated_at"`
}

// ArtifactRule names an artifact key a stage requires before entry.
type ArtifactRule struct {
	Key   string `json:"key"`
	Label string `json:"label,omitempty"`
}

// RunGateConfig configures a run-outcome gate: which run type satisfies it
// and which run statuses count as success. Zero values fall back to the gate
// key and {SUCCESS}.
type RunGateConfig struct {
	RunType         string      `json:"run_type,omitempty"`
	SuccessStatuses []RunStatus `json:"success_statuses,omitempty"`
}

// GateRule names a precondition a stage requires before entry.
type GateRule struct {
	Key   string         `json:"key"`
	Label string         `json:"label,omitempty"`
	Kind  GateKind       `json:"kind"`
	Run   *RunGateConfig `json:"run,omitempty"`
}

// Stage is a named step in a work-item pipeline. Category nil means the
// stage is shared across all categories. Status, when set, is the item
// status derived on entry (e.g. the Done stage maps to DONE).
type Stage struct {
	ID                string         `json:"id" db:"id"`
	Name              string         `json:"name" db:"name"`
	Category          *string        `json:"category,omitempty" db:"category"`
	Order             int            `json:"order" db:"ord"`
	DefaultRole       *string        `json:"default_role,omitempty" db:"default_role"`
	Status            *ItemStatus    `json:"status,omitempty" db:"status"`
	RequiredArtifacts []ArtifactRule `json:"required_artifacts,omitempty" db:"required_artifacts"`
	RequiredGates     []GateRule     `json:"required_gates,omitempty" db:"required_gates"`
	CreatedAt         time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at" db:"updated_at"`
}

// WorkflowTemplate is the canonical pipeline for a work-item category: an
// ordered list of stage references plus stages reachable from anywhere.
// StageNotes are human-readable annotations; authoritative rules live on
// the stages themselves. GateRuns supplies per-gate-key run-gate defaults.
type WorkflowTemplate struct {
	ID              string                   `json:"id" db:"id"`
	Name            string                   `json:"name" db:"name"`
	Category        string                   `json:"category" db:"category"`
	StageIDs        []string                 `json:"stage_ids" db:"stage_ids"`
	AlwaysAvailable []string                 `json:"always_available,omitempty" db:"always_available"`
	StageNotes      map[string]string        `json:"stage_notes,omitempty" db:"stage_notes"`
	GateRuns        map[string]RunGateConfig `json:"gate_runs,omitempty" db:"gate_runs"`
	CreatedAt       time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at" db:"updated_at"`
}

// Worker is an automated worker eligible for stage default-role assignment.
type Worker struct {
	ID           string       `json:"id" db:"id"`
	Name         string       `json:"name" db:"name"`
	Role         string       `json:"role" db:"role"`
	Capabilities []string     `json:"capabilities,omitempty" db:"capabilities"`
	Status       WorkerStatus `json:"status" db:"status"`
	CreatedAt    time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at" db:"updated_at"`
}

// ScheduleDefinition is a recurring or one-time trigger definition.
// NextDueAt is mutated only by the scheduler after each claim.
type ScheduleDefinition struct {
	ID        string       `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Kind      ScheduleKind `json:"kind" db:"kind"`
	Expr      string       `json:"expr,omitempty" db:"expr"`
	Enabled   bool         `json:"enabled" db:"enabled"`
	NextDueAt *time.Time   `json:"next_due_at,omitempty" db:"next_due_at"`
	TriggerAt *time.Time   `json:"trigger_at,omitempty" db:"trigger_at"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Run is one execution attempt of a job, owned by either a schedule
// definition or a work item. Terminal runs are never resumed;
// RetryRequested is an external signal for a separate executor.
type Run struct {
	ID             string     `json:"id" db:"id"`
	ScheduleID     *string    `json:"schedule_id,omitempty" db:"schedule_id"`
	WorkItemID     *string    `json:"work_item_id,omitempty" db:"work_item_id"`
	RunType        string     `json:"run_type" db:"run_type"`
	Status         RunStatus  `json:"status" db:"status"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Output         string     `json:"output,omitempty" db:"output"`
	Error          string     `json:"error,omitempty" db:"error"`
	RetryRequested bool       `json:"retry_requested" db:"retry_requested"`
}

// AuditRecord is an immutable entry in the append-only audit log.
type AuditRecord struct {
	ID         int64          `json:"id" db:"id"`
	EntityType string         `json:"entity_type" db:"entity_type"`
	EntityID   string         `json:"entity_id" db:"entity_id"`
	Action     string         `json:"action" db:"action"`
	Actor      Actor          `json:"actor"`
	Detail     map[string]any `json:"detail,omitempty" db:"detail"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
