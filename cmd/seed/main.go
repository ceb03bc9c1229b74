package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"missionctl/backend/internal/auth"
	"missionctl/backend/internal/config"
	"missionctl/backend/internal/logging"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/services"
	"missionctl/backend/internal/workflow"
	"missionctl/backend/pkg/models"
)

type stageSeed struct {
	name              string
	category          *string
	ord               int
	defaultRole       *string
	status            *models.ItemStatus
	requiredArtifacts []models.ArtifactRule
	requiredGates     []models.GateRule
}

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool, logger)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	catalog := workflow.NewCatalog(store, time.Minute)
	provision := services.NewProvisionService(store, catalog, logger)
	actor := models.SystemActor()
	caps := auth.Capabilities{"*"}

	dev := "dev"
	research := "research"
	open := models.ItemStatusOpen
	inProgress := models.ItemStatusInProgress
	done := models.ItemStatusDone
	blocked := models.ItemStatusBlocked

	sharedStages := []stageSeed{
		{name: "Backlog", ord: 1, status: &open},
		{name: "Ready", ord: 2, status: &open},
		{name: "Blocked", ord: 3, status: &blocked},
		{name: "Done", ord: 4, status: &done},
	}
	devStages := []stageSeed{
		{name: "In Dev", category: &dev, ord: 5, defaultRole: role("Developer"), status: &inProgress},
		{
			name: "In Review", category: &dev, ord: 6, defaultRole: role("Reviewer"), status: &inProgress,
			requiredArtifacts: []models.ArtifactRule{{Key: "pr", Label: "PR link"}},
		},
		{
			name: "In Test", category: &dev, ord: 7, defaultRole: role("Tester"), status: &inProgress,
			requiredGates: []models.GateRule{{Key: "reviewApproved", Label: "Review approved", Kind: models.GateKindBool}},
		},
		{
			name: "In Deploy", category: &dev, ord: 8, defaultRole: role("Deployer"), status: &inProgress,
			requiredGates: []models.GateRule{{
				Key:   "testPassed",
				Label: "Test passed",
				Kind:  models.GateKindRun,
				Run:   &models.RunGateConfig{RunType: "test", SuccessStatuses: []models.RunStatus{models.RunStatusSuccess}},
			}},
		},
	}
	researchStages := []stageSeed{
		{name: "Scoping", category: &research, ord: 5, defaultRole: role("Admin"), status: &inProgress},
		{name: "Researching", category: &research, ord: 6, defaultRole: role("Researcher"), status: &inProgress},
		{
			name: "Synthesis", category: &research, ord: 7, defaultRole: role("Writer"), status: &inProgress,
			requiredArtifacts: []models.ArtifactRule{{Key: "evidence", Label: "Evidence links"}},
		},
		{
			name: "Review", category: &research, ord: 8, defaultRole: role("Reviewer"), status: &inProgress,
			requiredArtifacts: []models.ArtifactRule{{Key: "draft", Label: "Draft doc"}},
		},
	}

	stageIDs := make(map[string]string)
	for _, seed := range append(append(sharedStages, devStages...), researchStages...) {
		stage := &models.Stage{
			Name:              seed.name,
			Category:          seed.category,
			Order:             seed.ord,
			DefaultRole:       seed.defaultRole,
			Status:            seed.status,
			RequiredArtifacts: seed.requiredArtifacts,
			RequiredGates:     seed.requiredGates,
		}
		saved, err := provision.UpsertStage(ctx, stage, actor, caps)
		if err != nil {
			log.Fatalf("Failed to upsert stage %s: %v", seed.name, err)
		}
		stageIDs[key(seed.category, seed.name)] = saved.ID
	}
	logger.Info("stages provisioned", "count", len(stageIDs))

	devFlow := &models.WorkflowTemplate{
		Name:     "Dev Flow",
		Category: dev,
		StageIDs: []string{
			stageIDs[key(nil, "Backlog")],
			stageIDs[key(nil, "Ready")],
			stageIDs[key(&dev, "In Dev")],
			stageIDs[key(&dev, "In Review")],
			stageIDs[key(&dev, "In Test")],
			stageIDs[key(&dev, "In Deploy")],
			stageIDs[key(nil, "Done")],
		},
		AlwaysAvailable: []string{stageIDs[key(nil, "Blocked")]},
		StageNotes: map[string]string{
			"In Review": "pr artifact required",
			"In Test":   "reviewApproved gate required",
			"In Deploy": "testPassed run gate required",
		},
		GateRuns: map[string]models.RunGateConfig{
			"testPassed": {RunType: "test", SuccessStatuses: []models.RunStatus{models.RunStatusSuccess}},
		},
	}
	if _, err := provision.UpsertTemplate(ctx, devFlow, actor, caps); err != nil {
		log.Fatalf("Failed to upsert dev template: %v", err)
	}

	researchFlow := &models.WorkflowTemplate{
		Name:     "Research Flow",
		Category: research,
		StageIDs: []string{
			stageIDs[key(nil, "Backlog")],
			stageIDs[key(nil, "Ready")],
			stageIDs[key(&research, "Scoping")],
			stageIDs[key(&research, "Researching")],
			stageIDs[key(&research, "Synthesis")],
			stageIDs[key(&research, "Review")],
			stageIDs[key(nil, "Done")],
		},
		AlwaysAvailable: []string{stageIDs[key(nil, "Blocked")]},
		StageNotes: map[string]string{
			"Synthesis": "evidence artifact recommended",
			"Review":    "draft artifact required",
		},
	}
	if _, err := provision.UpsertTemplate(ctx, researchFlow, actor, caps); err != nil {
		log.Fatalf("Failed to upsert research template: %v", err)
	}
	logger.Info("templates provisioned")

	workers := []*models.Worker{
		{ID: "worker-dev-1", Name: "Dev One", Role: "Developer", Capabilities: []string{"go", "pr"}, Status: models.WorkerStatusIdle},
		{ID: "worker-rev-1", Name: "Reviewer One", Role: "Reviewer", Capabilities: []string{"pr", "reviewApproved"}, Status: models.WorkerStatusIdle},
		{ID: "worker-test-1", Name: "Tester One", Role: "Tester", Capabilities: []string{"testPassed"}, Status: models.WorkerStatusIdle},
	}
	for _, w := range workers {
		if _, err := provision.UpsertWorker(ctx, w, actor, caps); err != nil {
			log.Fatalf("Failed to upsert worker %s: %v", w.ID, err)
		}
	}
	logger.Info("workers provisioned", "count", len(workers))

	now := time.Now().UTC()
	nightly := &models.ScheduleDefinition{
		Name:      "nightly-report",
		Kind:      models.ScheduleKindRecurring,
		Expr:      "0 9 * * *",
		Enabled:   true,
		NextDueAt: &now,
	}
	existing, err := store.ListSchedules(ctx)
	if err != nil {
		log.Fatalf("Failed to list schedules: %v", err)
	}
	for _, sched := range existing {
		if sched.Name == nightly.Name {
			nightly.ID = sched.ID
			nightly.NextDueAt = sched.NextDueAt
			break
		}
	}
	if _, err := provision.UpsertSchedule(ctx, nightly, actor, caps); err != nil {
		log.Fatalf("Failed to upsert schedule: %v", err)
	}
	logger.Info("seed complete")
}

func role(name string) *string { return &name }

func key(category *string, name string) string {
	if category == nil {
		return "shared:" + name
	}
	return *category + ":" + name
}
