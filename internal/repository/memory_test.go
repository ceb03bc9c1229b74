package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"missionctl/backend/pkg/models"
)

func TestMemoryInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stage := &models.Stage{ID: "s1", Name: "Backlog"}
	assert.NoError(t, store.UpsertStage(ctx, stage))
	assert.NoError(t, store.CreateWorkItem(ctx, &models.WorkItem{
		ID: "i1", Title: "keep me", StageID: stage.ID, Position: 1,
	}))

	boom := errors.New("boom")
	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateWorkItem(ctx, &models.WorkItem{
			ID: "i2", Title: "discard me", StageID: stage.ID, Position: 2,
		}); err != nil {
			return err
		}
		item, err := tx.GetWorkItem(ctx, "i1")
		if err != nil {
			return err
		}
		item.Title = "mutated"
		if err := tx.UpdateWorkItem(ctx, item); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = store.GetWorkItem(ctx, "i2")
	assert.True(t, IsNotFound(err))

	kept, err := store.GetWorkItem(ctx, "i1")
	if assert.NoError(t, err) {
		assert.Equal(t, "keep me", kept.Title)
	}
}

func TestMemoryInTxCommitsOnNil(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stage := &models.Stage{ID: "s1", Name: "Backlog"}
	assert.NoError(t, store.UpsertStage(ctx, stage))

	err := store.InTx(ctx, func(tx Store) error {
		if err := tx.CreateWorkItem(ctx, &models.WorkItem{
			ID: "i1", Title: "committed", StageID: stage.ID, Position: 1,
		}); err != nil {
			return err
		}
		// Nested transactions join the enclosing one.
		return tx.InTx(ctx, func(inner Store) error {
			return inner.AppendAudit(ctx, &models.AuditRecord{
				EntityType: "work_item",
				EntityID:   "i1",
				Action:     "item.created",
				Actor:      models.SystemActor(),
			})
		})
	})
	assert.NoError(t, err)

	item, err := store.GetWorkItem(ctx, "i1")
	if assert.NoError(t, err) {
		assert.Equal(t, "committed", item.Title)
	}

	recs, err := store.ListAudit(ctx, AuditFilter{EntityID: "i1"})
	assert.NoError(t, err)
	if assert.Len(t, recs, 1) {
		assert.Equal(t, "item.created", recs[0].Action)
	}
}

func TestMemoryReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	stage := &models.Stage{ID: "s1", Name: "Backlog"}
	assert.NoError(t, store.UpsertStage(ctx, stage))
	assert.NoError(t, store.CreateWorkItem(ctx, &models.WorkItem{
		ID: "i1", Title: "original", StageID: stage.ID, Position: 1,
		Artifacts: models.ArtifactDoc{Tags: []string{"go"}},
	}))

	read, err := store.GetWorkItem(ctx, "i1")
	assert.NoError(t, err)
	read.Title = "scribbled"
	read.Artifacts.Tags[0] = "scribbled"

	again, err := store.GetWorkItem(ctx, "i1")
	if assert.NoError(t, err) {
		assert.Equal(t, "original", again.Title)
		assert.Equal(t, []string{"go"}, again.Artifacts.Tags)
	}
}

func TestMemoryDueAndLockSemantics(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	recurring := &models.ScheduleDefinition{
		ID: "rec", Name: "rec", Kind: models.ScheduleKindRecurring,
		Expr: "* * * * *", Enabled: true, NextDueAt: &past,
	}
	oneTime := &models.ScheduleDefinition{
		ID: "once", Name: "once", Kind: models.ScheduleKindOneTime,
		Enabled: true, TriggerAt: &past,
	}
	notYet := &models.ScheduleDefinition{
		ID: "later", Name: "later", Kind: models.ScheduleKindRecurring,
		Expr: "* * * * *", Enabled: true, NextDueAt: &future,
	}
	disabled := &models.ScheduleDefinition{
		ID: "off", Name: "off", Kind: models.ScheduleKindRecurring,
		Expr: "* * * * *", Enabled: false, NextDueAt: &past,
	}
	for _, sched := range []*models.ScheduleDefinition{recurring, oneTime, notYet, disabled} {
		assert.NoError(t, store.CreateSchedule(ctx, sched))
	}

	due, err := store.ListDueSchedules(ctx, now, 10)
	assert.NoError(t, err)
	ids := make([]string, len(due))
	for i, sched := range due {
		ids[i] = sched.ID
	}
	assert.ElementsMatch(t, []string{"rec", "once"}, ids)

	t.Run("one-time with a prior run is no longer due", func(t *testing.T) {
		assert.NoError(t, store.CreateRun(ctx, &models.Run{
			ID: "r1", ScheduleID: &oneTime.ID, RunType: "schedule",
			Status: models.RunStatusSuccess, StartedAt: now,
		}))
		err := store.InTx(ctx, func(tx Store) error {
			_, ok, err := tx.TryLockSchedule(ctx, "once", now)
			assert.False(t, ok)
			return err
		})
		assert.NoError(t, err)
	})

	t.Run("recurring advanced past now is no longer due", func(t *testing.T) {
		recurring.NextDueAt = &future
		assert.NoError(t, store.UpdateSchedule(ctx, recurring))
		err := store.InTx(ctx, func(tx Store) error {
			_, ok, err := tx.TryLockSchedule(ctx, "rec", now)
			assert.False(t, ok)
			return err
		})
		assert.NoError(t, err)
	})
}
