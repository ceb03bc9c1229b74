package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"missionctl/backend/pkg/models"
)

// MemoryStore is an in-memory implementation of the Store interface, used by
// unit tests and local experiments. Transactions take a global lock and roll
// back by restoring a snapshot, so InTx callbacks are fully serialized.
type MemoryStore struct {
	mu   *sync.Mutex
	st   *memState
	inTx bool
}

type memState struct {
	items     map[string]*models.WorkItem
	stages    map[string]*models.Stage
	templates map[string]*models.WorkflowTemplate // keyed by category
	workers   map[string]*models.Worker
	schedules map[string]*models.ScheduleDefinition
	runs      map[string]*models.Run
	audit     []*models.AuditRecord
	auditSeq  int64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mu: &sync.Mutex{}, st: newMemState()}
}

func newMemState() *memState {
	return &memState{
		items:     make(map[string]*models.WorkItem),
		stages:    make(map[string]*models.Stage),
		templates: make(map[string]*models.WorkflowTemplate),
		workers:   make(map[string]*models.Worker),
		schedules: make(map[string]*models.ScheduleDefinition),
		runs:      make(map[string]*models.Run),
	}
}

// InTx serializes the callback under the store lock and restores the
// pre-transaction snapshot when fn returns an error. Nested calls join the
// enclosing transaction.
func (s *MemoryStore) InTx(ctx context.Context, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	tx := &MemoryStore{mu: s.mu, st: s.st, inTx: true}
	if err := fn(tx); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

// lockState acquires the store lock unless already inside a transaction, and
// returns the matching unlock.
func (s *MemoryStore) lockState() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Migrate is a no-op for the in-memory store.
func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }

// --- work items ---

func (s *MemoryStore) CreateWorkItem(ctx context.Context, item *models.WorkItem) error {
	defer s.lockState()()
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.st.items[item.ID] = cloneItem(item)
	return nil
}

func (s *MemoryStore) GetWorkItem(ctx context.Context, id string) (*models.WorkItem, error) {
	defer s.lockState()()
	item, ok := s.st.items[id]
	if !ok {
		return nil, fmt.Errorf("work item: %w", ErrNotFound)
	}
	return cloneItem(item), nil
}

func (s *MemoryStore) ListWorkItems(ctx context.Context, filter WorkItemFilter) ([]*models.WorkItem, error) {
	defer s.lockState()()
	var out []*models.WorkItem
	for _, item := range s.st.items {
		if filter.StageID != "" && item.StageID != filter.StageID {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		if filter.Category != "" && (item.Category == nil || *item.Category != filter.Category) {
			continue
		}
		if filter.WorkerID != "" && (item.AssignedWorkerID == nil || *item.AssignedWorkerID != filter.WorkerID) {
			continue
		}
		if filter.Tag != "" && !contains(item.Artifacts.Tags, filter.Tag) {
			continue
		}
		out = append(out, cloneItem(item))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StageID != out[j].StageID {
			return out[i].StageID < out[j].StageID
		}
		return out[i].Position < out[j].Position
	})
	return out, nil
}

func (s *MemoryStore) UpdateWorkItem(ctx context.Context, item *models.WorkItem) error {
	defer s.lockState()()
	if _, ok := s.st.items[item.ID]; !ok {
		return fmt.Errorf("work item: %w", ErrNotFound)
	}
	item.UpdatedAt = time.Now().UTC()
	s.st.items[item.ID] = cloneItem(item)
	return nil
}

func (s *MemoryStore) DeleteWorkItem(ctx context.Context, id string) error {
	defer s.lockState()()
	if _, ok := s.st.items[id]; !ok {
		return fmt.Errorf("work item: %w", ErrNotFound)
	}
	delete(s.st.items, id)
	return nil
}

func (s *MemoryStore) ShiftPositions(ctx context.Context, stageID string, min, max, delta int, excludeID string) error {
	defer s.lockState()()
	for _, item := range s.st.items {
		if item.StageID != stageID || item.ID == excludeID {
			continue
		}
		if item.Position < min {
			continue
		}
		if max > 0 && item.Position > max {
			continue
		}
		item.Position += delta
	}
	return nil
}

func (s *MemoryStore) MaxPosition(ctx context.Context, stageID string) (int, error) {
	defer s.lockState()()
	max := 0
	for _, item := range s.st.items {
		if item.StageID == stageID && item.Position > max {
			max = item.Position
		}
	}
	return max, nil
}

func (s *MemoryStore) CountActiveAssignments(ctx context.Context, workerIDs []string) (map[string]int, error) {
	defer s.lockState()()
	loads := make(map[string]int, len(workerIDs))
	for _, item := range s.st.items {
		if item.AssignedWorkerID == nil || item.Status == models.ItemStatusDone {
			continue
		}
		if contains(workerIDs, *item.AssignedWorkerID) {
			loads[*item.AssignedWorkerID]++
		}
	}
	return loads, nil
}

// --- stages and templates ---

func (s *MemoryStore) UpsertStage(ctx context.Context, stage *models.Stage) error {
	defer s.lockState()()
	for _, existing := range s.st.stages {
		if existing.Name == stage.Name && derefOr(existing.Category, "") == derefOr(stage.Category, "") {
			stage.ID = existing.ID
			break
		}
	}
	stage.UpdatedAt = time.Now().UTC()
	s.st.stages[stage.ID] = cloneStage(stage)
	return nil
}

func (s *MemoryStore) GetStage(ctx context.Context, id string) (*models.Stage, error) {
	defer s.lockState()()
	stage, ok := s.st.stages[id]
	if !ok {
		return nil, fmt.Errorf("stage: %w", ErrNotFound)
	}
	return cloneStage(stage), nil
}

func (s *MemoryStore) ListStages(ctx context.Context) ([]*models.Stage, error) {
	defer s.lockState()()
	var out []*models.Stage
	for _, stage := range s.st.stages {
		out = append(out, cloneStage(stage))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) UpsertTemplate(ctx context.Context, tpl *models.WorkflowTemplate) error {
	defer s.lockState()()
	if existing, ok := s.st.templates[tpl.Category]; ok {
		tpl.ID = existing.ID
	}
	tpl.UpdatedAt = time.Now().UTC()
	s.st.templates[tpl.Category] = cloneTemplate(tpl)
	return nil
}

func (s *MemoryStore) GetTemplateByCategory(ctx context.Context, category string) (*models.WorkflowTemplate, error) {
	defer s.lockState()()
	tpl, ok := s.st.templates[category]
	if !ok {
		return nil, fmt.Errorf("workflow template: %w", ErrNotFound)
	}
	return cloneTemplate(tpl), nil
}

func (s *MemoryStore) ListTemplates(ctx context.Context) ([]*models.WorkflowTemplate, error) {
	defer s.lockState()()
	var out []*models.WorkflowTemplate
	for _, tpl := range s.st.templates {
		out = append(out, cloneTemplate(tpl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

// --- workers ---

func (s *MemoryStore) UpsertWorker(ctx context.Context, worker *models.Worker) error {
	defer s.lockState()()
	worker.UpdatedAt = time.Now().UTC()
	s.st.workers[worker.ID] = cloneWorker(worker)
	return nil
}

func (s *MemoryStore) GetWorker(ctx context.Context, id string) (*models.Worker, error) {
	defer s.lockState()()
	worker, ok := s.st.workers[id]
	if !ok {
		return nil, fmt.Errorf("worker: %w", ErrNotFound)
	}
	return cloneWorker(worker), nil
}

func (s *MemoryStore) ListWorkersByRole(ctx context.Context, role string, exclude []models.WorkerStatus) ([]*models.Worker, error) {
	defer s.lockState()()
	var out []*models.Worker
	for _, worker := range s.st.workers {
		if worker.Role != role {
			continue
		}
		excluded := false
		for _, st := range exclude {
			if worker.Status == st {
				excluded = true
				break
			}
		}
		if !excluded {
			out = append(out, cloneWorker(worker))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) UpdateWorkerStatus(ctx context.Context, id string, status models.WorkerStatus) error {
	defer s.lockState()()
	worker, ok := s.st.workers[id]
	if !ok {
		return fmt.Errorf("worker: %w", ErrNotFound)
	}
	worker.Status = status
	worker.UpdatedAt = time.Now().UTC()
	return nil
}

// --- schedules ---

func (s *MemoryStore) CreateSchedule(ctx context.Context, sched *models.ScheduleDefinition) error {
	defer s.lockState()()
	now := time.Now().UTC()
	sched.CreatedAt = now
	sched.UpdatedAt = now
	s.st.schedules[sched.ID] = cloneSchedule(sched)
	return nil
}

func (s *MemoryStore) GetSchedule(ctx context.Context, id string) (*models.ScheduleDefinition, error) {
	defer s.lockState()()
	sched, ok := s.st.schedules[id]
	if !ok {
		return nil, fmt.Errorf("schedule definition: %w", ErrNotFound)
	}
	return cloneSchedule(sched), nil
}

func (s *MemoryStore) ListSchedules(ctx context.Context) ([]*models.ScheduleDefinition, error) {
	defer s.lockState()()
	var out []*models.ScheduleDefinition
	for _, sched := range s.st.schedules {
		out = append(out, cloneSchedule(sched))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) UpdateSchedule(ctx context.Context, sched *models.ScheduleDefinition) error {
	defer s.lockState()()
	if _, ok := s.st.schedules[sched.ID]; !ok {
		return fmt.Errorf("schedule definition: %w", ErrNotFound)
	}
	sched.UpdatedAt = time.Now().UTC()
	s.st.schedules[sched.ID] = cloneSchedule(sched)
	return nil
}

func (s *MemoryStore) ListDueSchedules(ctx context.Context, now time.Time, limit int) ([]*models.ScheduleDefinition, error) {
	defer s.lockState()()
	var out []*models.ScheduleDefinition
	for _, sched := range s.st.schedules {
		if s.st.scheduleDue(sched, now) {
			out = append(out, cloneSchedule(sched))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return dueTime(out[i]).Before(dueTime(out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) TryLockSchedule(ctx context.Context, id string, now time.Time) (*models.ScheduleDefinition, bool, error) {
	defer s.lockState()()
	sched, ok := s.st.schedules[id]
	if !ok || !s.st.scheduleDue(sched, now) {
		return nil, false, nil
	}
	return cloneSchedule(sched), true, nil
}

func (st *memState) scheduleDue(sched *models.ScheduleDefinition, now time.Time) bool {
	if !sched.Enabled {
		return false
	}
	switch sched.Kind {
	case models.ScheduleKindRecurring:
		return sched.NextDueAt != nil && !sched.NextDueAt.After(now)
	case models.ScheduleKindOneTime:
		if sched.TriggerAt == nil || sched.TriggerAt.After(now) {
			return false
		}
		for _, run := range st.runs {
			if run.ScheduleID != nil && *run.ScheduleID == sched.ID {
				return false
			}
		}
		return true
	}
	return false
}

func dueTime(sched *models.ScheduleDefinition) time.Time {
	if sched.NextDueAt != nil {
		return *sched.NextDueAt
	}
	if sched.TriggerAt != nil {
		return *sched.TriggerAt
	}
	return time.Time{}
}

// --- runs ---

func (s *MemoryStore) CreateRun(ctx context.Context, run *models.Run) error {
	defer s.lockState()()
	s.st.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(ctx context.Context, id string) (*models.Run, error) {
	defer s.lockState()()
	run, ok := s.st.runs[id]
	if !ok {
		return nil, fmt.Errorf("run: %w", ErrNotFound)
	}
	return cloneRun(run), nil
}

func (s *MemoryStore) UpdateRun(ctx context.Context, run *models.Run) error {
	defer s.lockState()()
	if _, ok := s.st.runs[run.ID]; !ok {
		return fmt.Errorf("run: %w", ErrNotFound)
	}
	s.st.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) ListRuns(ctx context.Context, filter RunFilter) ([]*models.Run, error) {
	defer s.lockState()()
	var out []*models.Run
	for _, run := range s.st.runs {
		if filter.ScheduleID != "" && (run.ScheduleID == nil || *run.ScheduleID != filter.ScheduleID) {
			continue
		}
		if filter.WorkItemID != "" && (run.WorkItemID == nil || *run.WorkItemID != filter.WorkItemID) {
			continue
		}
		if filter.RunType != "" && run.RunType != filter.RunType {
			continue
		}
		if filter.Status != "" && run.Status != filter.Status {
			continue
		}
		out = append(out, cloneRun(run))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}

func (s *MemoryStore) HasSuccessfulRun(ctx context.Context, workItemID, runType string, statuses []models.RunStatus) (bool, error) {
	defer s.lockState()()
	for _, run := range s.st.runs {
		if run.WorkItemID == nil || *run.WorkItemID != workItemID || run.RunType != runType {
			continue
		}
		for _, st := range statuses {
			if run.Status == st {
				return true, nil
			}
		}
	}
	return false, nil
}

// --- audit ---

func (s *MemoryStore) AppendAudit(ctx context.Context, rec *models.AuditRecord) error {
	defer s.lockState()()
	s.st.auditSeq++
	rec.ID = s.st.auditSeq
	rec.CreatedAt = time.Now().UTC()
	s.st.audit = append(s.st.audit, cloneAudit(rec))
	return nil
}

func (s *MemoryStore) ListAudit(ctx context.Context, filter AuditFilter) ([]*models.AuditRecord, error) {
	defer s.lockState()()
	var out []*models.AuditRecord
	for i := len(s.st.audit) - 1; i >= 0; i-- {
		rec := s.st.audit[i]
		if filter.EntityType != "" && rec.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && rec.EntityID != filter.EntityID {
			continue
		}
		out = append(out, cloneAudit(rec))
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// --- clone helpers ---

func (st *memState) clone() *memState {
	next := &memState{
		items:     make(map[string]*models.WorkItem, len(st.items)),
		stages:    make(map[string]*models.Stage, len(st.stages)),
		templates: make(map[string]*models.WorkflowTemplate, len(st.templates)),
		workers:   make(map[string]*models.Worker, len(st.workers)),
		schedules: make(map[string]*models.ScheduleDefinition, len(st.schedules)),
		runs:      make(map[string]*models.Run, len(st.runs)),
		audit:     make([]*models.AuditRecord, len(st.audit)),
		auditSeq:  st.auditSeq,
	}
	for id, v := range st.items {
		next.items[id] = cloneItem(v)
	}
	for id, v := range st.stages {
		next.stages[id] = cloneStage(v)
	}
	for id, v := range st.templates {
		next.templates[id] = cloneTemplate(v)
	}
	for id, v := range st.workers {
		next.workers[id] = cloneWorker(v)
	}
	for id, v := range st.schedules {
		next.schedules[id] = cloneSchedule(v)
	}
	for id, v := range st.runs {
		next.runs[id] = cloneRun(v)
	}
	copy(next.audit, st.audit)
	return next
}

func cloneItem(in *models.WorkItem) *models.WorkItem {
	out := *in
	out.Category = clonePtr(in.Category)
	out.AssignedWorkerID = clonePtr(in.AssignedWorkerID)
	out.AssignedUserID = clonePtr(in.AssignedUserID)
	out.Artifacts = cloneArtifacts(in.Artifacts)
	return &out
}

func cloneArtifacts(in models.ArtifactDoc) models.ArtifactDoc {
	out := in
	out.Tags = append([]string(nil), in.Tags...)
	out.RequiredCapabilities = append([]string(nil), in.RequiredCapabilities...)
	if in.Gates != nil {
		out.Gates = make(map[string]bool, len(in.Gates))
		for k, v := range in.Gates {
			out.Gates[k] = v
		}
	}
	if in.Evidence != nil {
		out.Evidence = make(map[string]models.Evidence, len(in.Evidence))
		for k, v := range in.Evidence {
			out.Evidence[k] = v
		}
	}
	return out
}

func cloneStage(in *models.Stage) *models.Stage {
	out := *in
	out.Category = clonePtr(in.Category)
	out.DefaultRole = clonePtr(in.DefaultRole)
	out.Status = clonePtr(in.Status)
	out.RequiredArtifacts = append([]models.ArtifactRule(nil), in.RequiredArtifacts...)
	out.RequiredGates = make([]models.GateRule, len(in.RequiredGates))
	for i, g := range in.RequiredGates {
		out.RequiredGates[i] = g
		if g.Run != nil {
			run := *g.Run
			run.SuccessStatuses = append([]models.RunStatus(nil), g.Run.SuccessStatuses...)
			out.RequiredGates[i].Run = &run
		}
	}
	return &out
}

func cloneTemplate(in *models.WorkflowTemplate) *models.WorkflowTemplate {
	out := *in
	out.StageIDs = append([]string(nil), in.StageIDs...)
	out.AlwaysAvailable = append([]string(nil), in.AlwaysAvailable...)
	if in.StageNotes != nil {
		out.StageNotes = make(map[string]string, len(in.StageNotes))
		for k, v := range in.StageNotes {
			out.StageNotes[k] = v
		}
	}
	if in.GateRuns != nil {
		out.GateRuns = make(map[string]models.RunGateConfig, len(in.GateRuns))
		for k, v := range in.GateRuns {
			v.SuccessStatuses = append([]models.RunStatus(nil), v.SuccessStatuses...)
			out.GateRuns[k] = v
		}
	}
	return &out
}

func cloneWorker(in *models.Worker) *models.Worker {
	out := *in
	out.Capabilities = append([]string(nil), in.Capabilities...)
	return &out
}

func cloneSchedule(in *models.ScheduleDefinition) *models.ScheduleDefinition {
	out := *in
	out.NextDueAt = clonePtr(in.NextDueAt)
	out.TriggerAt = clonePtr(in.TriggerAt)
	return &out
}

func cloneRun(in *models.Run) *models.Run {
	out := *in
	out.ScheduleID = clonePtr(in.ScheduleID)
	out.WorkItemID = clonePtr(in.WorkItemID)
	out.CompletedAt = clonePtr(in.CompletedAt)
	return &out
}

func cloneAudit(in *models.AuditRecord) *models.AuditRecord {
	out := *in
	if in.Detail != nil {
		out.Detail = make(map[string]any, len(in.Detail))
		for k, v := range in.Detail {
			out.Detail[k] = v
		}
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func derefOr(p *string, fallback string) string {
	if p == nil {
		return fallback
	}
	return *p
}
