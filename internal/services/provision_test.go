package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"missionctl/backend/internal/auth"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/workflow"
	"missionctl/backend/pkg/models"
)

func newProvisionFixture() (*repository.MemoryStore, *ProvisionService) {
	store := repository.NewMemoryStore()
	catalog := workflow.NewCatalog(store, time.Minute)
	return store, NewProvisionService(store, catalog, testLogger())
}

func TestUpsertStageRequiresCapability(t *testing.T) {
	ctx := context.Background()
	_, svc := newProvisionFixture()

	stage := &models.Stage{Name: "Backlog", Order: 1}
	_, err := svc.UpsertStage(ctx, stage, models.HumanActor("alice"), nil)
	assert.True(t, errors.Is(err, auth.ErrForbidden))

	_, err = svc.UpsertStage(ctx, stage, models.HumanActor("alice"),
		auth.Capabilities{auth.ScopeItemsWrite})
	assert.True(t, errors.Is(err, auth.ErrForbidden))

	_, err = svc.UpsertStage(ctx, stage, models.HumanActor("alice"),
		auth.Capabilities{auth.ScopeWorkflowProvision})
	assert.NoError(t, err)
}

func TestUpsertStageIsIdempotentByNameAndCategory(t *testing.T) {
	ctx := context.Background()
	store, svc := newProvisionFixture()
	caps := auth.Capabilities{auth.ScopeWorkflowProvision}

	dev := "dev"
	first, err := svc.UpsertStage(ctx, &models.Stage{Name: "In Dev", Category: &dev, Order: 5}, models.SystemActor(), caps)
	assert.NoError(t, err)

	second, err := svc.UpsertStage(ctx, &models.Stage{Name: "In Dev", Category: &dev, Order: 7}, models.SystemActor(), caps)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	stages, err := store.ListStages(ctx)
	assert.NoError(t, err)
	assert.Len(t, stages, 1)
	assert.Equal(t, 7, stages[0].Order)
}

func TestUpsertStageSameNameDifferentCategory(t *testing.T) {
	ctx := context.Background()
	store, svc := newProvisionFixture()
	caps := auth.Capabilities{auth.ScopeWorkflowProvision}

	dev, research := "dev", "research"
	_, err := svc.UpsertStage(ctx, &models.Stage{Name: "Review", Category: &dev, Order: 6}, models.SystemActor(), caps)
	assert.NoError(t, err)
	_, err = svc.UpsertStage(ctx, &models.Stage{Name: "Review", Category: &research, Order: 8}, models.SystemActor(), caps)
	assert.NoError(t, err)

	stages, err := store.ListStages(ctx)
	assert.NoError(t, err)
	assert.Len(t, stages, 2)
}

func TestUpsertTemplateValidatesStageReferences(t *testing.T) {
	ctx := context.Background()
	_, svc := newProvisionFixture()
	caps := auth.Capabilities{auth.ScopeWorkflowProvision}

	tpl := &models.WorkflowTemplate{
		Name: "Dev Flow", Category: "dev", StageIDs: []string{"missing-stage"},
	}
	_, err := svc.UpsertTemplate(ctx, tpl, models.SystemActor(), caps)
	assert.True(t, repository.IsNotFound(err))
}

func TestUpsertTemplateIdempotentByCategory(t *testing.T) {
	ctx := context.Background()
	store, svc := newProvisionFixture()
	caps := auth.Capabilities{auth.ScopeWorkflowProvision}

	stage, err := svc.UpsertStage(ctx, &models.Stage{Name: "Backlog", Order: 1}, models.SystemActor(), caps)
	assert.NoError(t, err)

	first, err := svc.UpsertTemplate(ctx, &models.WorkflowTemplate{
		Name: "Dev Flow", Category: "dev", StageIDs: []string{stage.ID},
	}, models.SystemActor(), caps)
	assert.NoError(t, err)

	second, err := svc.UpsertTemplate(ctx, &models.WorkflowTemplate{
		Name: "Dev Flow v2", Category: "dev", StageIDs: []string{stage.ID},
	}, models.SystemActor(), caps)
	assert.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	templates, err := store.ListTemplates(ctx)
	assert.NoError(t, err)
	assert.Len(t, templates, 1)
	assert.Equal(t, "Dev Flow v2", templates[0].Name)
}

func TestUpsertScheduleValidation(t *testing.T) {
	ctx := context.Background()
	_, svc := newProvisionFixture()
	caps := auth.Capabilities{auth.ScopeSchedulesWrite}

	_, err := svc.UpsertSchedule(ctx, &models.ScheduleDefinition{
		Name: "bad", Kind: models.ScheduleKindRecurring,
	}, models.SystemActor(), caps)
	assert.Error(t, err)

	_, err = svc.UpsertSchedule(ctx, &models.ScheduleDefinition{
		Name: "bad", Kind: models.ScheduleKindOneTime,
	}, models.SystemActor(), caps)
	assert.Error(t, err)

	now := time.Now().UTC()
	sched, err := svc.UpsertSchedule(ctx, &models.ScheduleDefinition{
		Name: "ok", Kind: models.ScheduleKindOneTime, TriggerAt: &now, Enabled: true,
	}, models.SystemActor(), caps)
	assert.NoError(t, err)
	assert.NotEmpty(t, sched.ID)
}

func TestUpsertScheduleNewRecurringIsDueImmediately(t *testing.T) {
	ctx := context.Background()
	store, svc := newProvisionFixture()
	caps := auth.Capabilities{auth.ScopeSchedulesWrite}

	sched, err := svc.UpsertSchedule(ctx, &models.ScheduleDefinition{
		Name: "nightly", Kind: models.ScheduleKindRecurring, Expr: "0 9 * * *", Enabled: true,
	}, models.SystemActor(), caps)
	assert.NoError(t, err)
	assert.NotNil(t, sched.NextDueAt)

	due, err := store.ListDueSchedules(ctx, time.Now().UTC(), 10)
	assert.NoError(t, err)
	if assert.Len(t, due, 1) {
		assert.Equal(t, sched.ID, due[0].ID)
	}
}
