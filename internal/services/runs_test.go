package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

func TestStartAndCompleteItemRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	hook := &captureHook{}
	svc := NewRunService(store, hook, nil, nil, testLogger())

	assert.NoError(t, store.UpsertStage(ctx, &models.Stage{ID: "a", Name: "A", Order: 1}))
	assert.NoError(t, store.CreateWorkItem(ctx, &models.WorkItem{
		ID: "t1", Title: "x", StageID: "a", Position: 1, Status: models.ItemStatusOpen,
	}))

	run, err := svc.StartItemRun(ctx, "t1", "test", models.WorkerActor("w-1"))
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, run.Status)
	if assert.NotNil(t, run.WorkItemID) {
		assert.Equal(t, "t1", *run.WorkItemID)
	}

	done, err := svc.CompleteRun(ctx, run.ID, models.RunStatusSuccess, "42 passed", "", models.WorkerActor("w-1"))
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, done.Status)
	assert.NotNil(t, done.CompletedAt)
	assert.Equal(t, []string{run.ID}, hook.finishedRuns)

	ok, err := store.HasSuccessfulRun(ctx, "t1", "test", []models.RunStatus{models.RunStatusSuccess})
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestStartItemRunUnknownItem(t *testing.T) {
	ctx := context.Background()
	svc := NewRunService(repository.NewMemoryStore(), nil, nil, nil, testLogger())

	_, err := svc.StartItemRun(ctx, "missing", "test", models.SystemActor())
	assert.True(t, repository.IsNotFound(err))
}

func TestCompleteRunIsTerminalOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewRunService(store, nil, nil, nil, testLogger())

	assert.NoError(t, store.UpsertStage(ctx, &models.Stage{ID: "a", Name: "A", Order: 1}))
	assert.NoError(t, store.CreateWorkItem(ctx, &models.WorkItem{
		ID: "t1", Title: "x", StageID: "a", Position: 1, Status: models.ItemStatusOpen,
	}))
	run, err := svc.StartItemRun(ctx, "t1", "test", models.SystemActor())
	assert.NoError(t, err)

	_, err = svc.CompleteRun(ctx, run.ID, models.RunStatusFailed, "", "timeout", models.SystemActor())
	assert.NoError(t, err)

	_, err = svc.CompleteRun(ctx, run.ID, models.RunStatusSuccess, "", "", models.SystemActor())
	assert.True(t, errors.Is(err, ErrRunTerminal))

	// The failed status stands.
	after, err := store.GetRun(ctx, run.ID)
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, after.Status)
	assert.Equal(t, "timeout", after.Error)
}

func TestCompleteRunRejectsNonTerminalStatus(t *testing.T) {
	svc := NewRunService(repository.NewMemoryStore(), nil, nil, nil, testLogger())
	_, err := svc.CompleteRun(context.Background(), "r1", models.RunStatusRunning, "", "", models.SystemActor())
	assert.Error(t, err)
}

func TestRequestRetryOnlyAfterTerminal(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	svc := NewRunService(store, nil, nil, nil, testLogger())

	now := time.Now().UTC()
	assert.NoError(t, store.CreateRun(ctx, &models.Run{
		ID: "r1", RunType: "test", Status: models.RunStatusRunning, StartedAt: now,
	}))

	_, err := svc.RequestRetry(ctx, "r1", models.HumanActor("alice"))
	assert.Error(t, err)

	completed := now
	assert.NoError(t, store.UpdateRun(ctx, &models.Run{
		ID: "r1", RunType: "test", Status: models.RunStatusFailed, StartedAt: now, CompletedAt: &completed,
	}))

	run, err := svc.RequestRetry(ctx, "r1", models.HumanActor("alice"))
	assert.NoError(t, err)
	assert.True(t, run.RetryRequested)
}

func TestTriggerNowRunsFullLifecycle(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	hook := &captureHook{}
	executor := JobExecutorFunc(func(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
		return "report generated", nil
	})
	svc := NewRunService(store, hook, nil, executor, testLogger())

	due := time.Now().UTC().Add(time.Hour)
	assert.NoError(t, store.CreateSchedule(ctx, &models.ScheduleDefinition{
		ID: "sched-1", Name: "report", Kind: models.ScheduleKindRecurring,
		Expr: "0 9 * * *", Enabled: true, NextDueAt: &due,
	}))

	run, err := svc.TriggerNow(ctx, "sched-1", models.HumanActor("alice"))
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusSuccess, run.Status)
	assert.Equal(t, "report generated", run.Output)
	assert.Equal(t, []string{run.ID}, hook.finishedRuns)

	// Manual triggers do not touch the schedule's next-due time.
	sched, err := store.GetSchedule(ctx, "sched-1")
	assert.NoError(t, err)
	if assert.NotNil(t, sched.NextDueAt) {
		assert.Equal(t, due, *sched.NextDueAt)
	}
}

func TestTriggerNowCapturesExecutorFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	executor := JobExecutorFunc(func(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
		return "", errors.New("no report today")
	})
	svc := NewRunService(store, nil, nil, executor, testLogger())

	trigger := time.Now().UTC().Add(time.Hour)
	assert.NoError(t, store.CreateSchedule(ctx, &models.ScheduleDefinition{
		ID: "sched-1", Name: "report", Kind: models.ScheduleKindOneTime,
		Enabled: true, TriggerAt: &trigger,
	}))

	run, err := svc.TriggerNow(ctx, "sched-1", models.HumanActor("alice"))
	assert.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	assert.Equal(t, "no report today", run.Error)
}

func TestTriggerNowUnknownSchedule(t *testing.T) {
	svc := NewRunService(repository.NewMemoryStore(), nil, nil, nil, testLogger())
	_, err := svc.TriggerNow(context.Background(), "missing", models.HumanActor("alice"))
	assert.True(t, repository.IsNotFound(err))
}
