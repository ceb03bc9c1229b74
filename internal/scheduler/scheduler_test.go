package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/services"
	"missionctl/backend/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestScheduler(t *testing.T, store repository.Store, executor services.JobExecutor) *Scheduler {
	t.Helper()
	runs := services.NewRunService(store, nil, nil, nil, testLogger())
	return New(store, runs, executor, nil, testLogger(), Options{Interval: time.Hour, BatchSize: 10})
}

func seedRecurring(t *testing.T, store repository.Store, id string, due time.Time) {
	t.Helper()
	err := store.CreateSchedule(context.Background(), &models.ScheduleDefinition{
		ID:        id,
		Name:      id,
		Kind:      models.ScheduleKindRecurring,
		Expr:      "0 9 * * *",
		Enabled:   true,
		NextDueAt: &due,
	})
	assert.NoError(t, err)
}

func TestConcurrentClaimsProduceExactlyOneRun(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRecurring(t, store, "sched-1", time.Now().UTC().Add(-time.Minute))

	a := newTestScheduler(t, store, nil)
	b := newTestScheduler(t, store, nil)

	var wg sync.WaitGroup
	for _, s := range []*Scheduler{a, b} {
		wg.Add(1)
		go func(s *Scheduler) {
			defer wg.Done()
			s.Tick(ctx)
		}(s)
	}
	wg.Wait()

	runs, err := store.ListRuns(ctx, repository.RunFilter{ScheduleID: "sched-1"})
	assert.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusSuccess, runs[0].Status)

	sched, err := store.GetSchedule(ctx, "sched-1")
	assert.NoError(t, err)
	if assert.NotNil(t, sched.NextDueAt) {
		assert.True(t, sched.NextDueAt.After(time.Now()))
	}
}

func TestOneTimeScheduleRunsAtMostOnce(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	trigger := time.Now().UTC().Add(-time.Minute)
	err := store.CreateSchedule(ctx, &models.ScheduleDefinition{
		ID:        "once-1",
		Name:      "once-1",
		Kind:      models.ScheduleKindOneTime,
		Enabled:   true,
		TriggerAt: &trigger,
	})
	assert.NoError(t, err)

	s := newTestScheduler(t, store, nil)
	for i := 0; i < 5; i++ {
		s.Tick(ctx)
	}

	runs, err := store.ListRuns(ctx, repository.RunFilter{ScheduleID: "once-1"})
	assert.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestJobFailureIsCapturedAndLoopContinues(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRecurring(t, store, "sched-bad", time.Now().UTC().Add(-2*time.Minute))
	seedRecurring(t, store, "sched-good", time.Now().UTC().Add(-time.Minute))

	executor := services.JobExecutorFunc(func(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
		if sched.ID == "sched-bad" {
			return "", errors.New("job exploded")
		}
		return "done", nil
	})

	s := newTestScheduler(t, store, executor)
	s.Tick(ctx)

	bad, err := store.ListRuns(ctx, repository.RunFilter{ScheduleID: "sched-bad"})
	assert.NoError(t, err)
	if assert.Len(t, bad, 1) {
		assert.Equal(t, models.RunStatusFailed, bad[0].Status)
		assert.Equal(t, "job exploded", bad[0].Error)
		assert.NotNil(t, bad[0].CompletedAt)
	}

	good, err := store.ListRuns(ctx, repository.RunFilter{ScheduleID: "sched-good"})
	assert.NoError(t, err)
	if assert.Len(t, good, 1) {
		assert.Equal(t, models.RunStatusSuccess, good[0].Status)
		assert.Equal(t, "done", good[0].Output)
	}
}

func TestMalformedExpressionFailsClosed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	due := time.Now().UTC().Add(-time.Minute)
	err := store.CreateSchedule(ctx, &models.ScheduleDefinition{
		ID:        "sched-broken",
		Name:      "sched-broken",
		Kind:      models.ScheduleKindRecurring,
		Expr:      "not a schedule",
		Enabled:   true,
		NextDueAt: &due,
	})
	assert.NoError(t, err)

	s := newTestScheduler(t, store, nil)
	s.Tick(ctx)
	s.Tick(ctx)

	runs, err := store.ListRuns(ctx, repository.RunFilter{ScheduleID: "sched-broken"})
	assert.NoError(t, err)
	assert.Empty(t, runs)

	sched, err := store.GetSchedule(ctx, "sched-broken")
	assert.NoError(t, err)
	assert.Nil(t, sched.NextDueAt)
}

func TestRecurringScheduleAdvancesAfterFailure(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	seedRecurring(t, store, "sched-1", time.Now().UTC().Add(-time.Minute))

	executor := services.JobExecutorFunc(func(ctx context.Context, run *models.Run, sched *models.ScheduleDefinition) (string, error) {
		return "", errors.New("boom")
	})
	s := newTestScheduler(t, store, executor)
	s.Tick(ctx)

	// A failed run must not stop future recurrences.
	sched, err := store.GetSchedule(ctx, "sched-1")
	assert.NoError(t, err)
	if assert.NotNil(t, sched.NextDueAt) {
		assert.True(t, sched.NextDueAt.After(time.Now()))
	}
}

func TestDisabledScheduleIsNeverClaimed(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	due := time.Now().UTC().Add(-time.Minute)
	err := store.CreateSchedule(ctx, &models.ScheduleDefinition{
		ID:        "sched-off",
		Name:      "sched-off",
		Kind:      models.ScheduleKindRecurring,
		Expr:      "0 9 * * *",
		Enabled:   false,
		NextDueAt: &due,
	})
	assert.NoError(t, err)

	s := newTestScheduler(t, store, nil)
	s.Tick(ctx)

	runs, err := store.ListRuns(ctx, repository.RunFilter{ScheduleID: "sched-off"})
	assert.NoError(t, err)
	assert.Empty(t, runs)
}
