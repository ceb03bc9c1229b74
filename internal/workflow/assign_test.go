package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"missionctl/backend/pkg/models"
)

func worker(id string, status models.WorkerStatus, caps ...string) *models.Worker {
	return &models.Worker{ID: id, Role: "Developer", Status: status, Capabilities: caps}
}

func TestSelectWorkerPrefersIdleOverOverlap(t *testing.T) {
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{Tags: []string{"go", "api"}}}
	stage := &models.Stage{ID: "in-dev"}

	busyExpert := worker("w-busy", models.WorkerStatusBusy, "go", "api")
	idleNovice := worker("w-idle", models.WorkerStatusIdle)

	picked := SelectWorker([]*models.Worker{busyExpert, idleNovice}, map[string]int{"w-busy": 3}, item, stage)
	if assert.NotNil(t, picked) {
		assert.Equal(t, "w-idle", picked.ID)
	}
}

func TestSelectWorkerOverlapBreaksIdleTies(t *testing.T) {
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{
		RequiredCapabilities: []string{"go"},
		Tags:                 []string{"api"},
	}}
	stage := &models.Stage{ID: "in-review", RequiredArtifacts: []models.ArtifactRule{{Key: "pr"}}}

	generalist := worker("w-a", models.WorkerStatusIdle, "docs")
	specialist := worker("w-b", models.WorkerStatusIdle, "go", "pr")

	picked := SelectWorker([]*models.Worker{generalist, specialist}, nil, item, stage)
	if assert.NotNil(t, picked) {
		assert.Equal(t, "w-b", picked.ID)
	}
}

func TestSelectWorkerLoadThenIDBreaksTies(t *testing.T) {
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}
	stage := &models.Stage{ID: "in-dev"}

	a := worker("w-a", models.WorkerStatusIdle)
	b := worker("w-b", models.WorkerStatusIdle)
	c := worker("w-c", models.WorkerStatusIdle)

	picked := SelectWorker([]*models.Worker{c, a, b}, map[string]int{"w-a": 2, "w-b": 1, "w-c": 1}, item, stage)
	if assert.NotNil(t, picked) {
		// Equal idle/overlap; w-b and w-c share the lowest load, id decides.
		assert.Equal(t, "w-b", picked.ID)
	}
}

func TestSelectWorkerSkipsOfflineAndError(t *testing.T) {
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}
	stage := &models.Stage{ID: "in-dev"}

	offline := worker("w-off", models.WorkerStatusOffline)
	errored := worker("w-err", models.WorkerStatusError)

	assert.Nil(t, SelectWorker([]*models.Worker{offline, errored}, nil, item, stage))
	assert.Nil(t, SelectWorker(nil, nil, item, stage))
}

func TestCapabilityHintsUnion(t *testing.T) {
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{
		RequiredCapabilities: []string{"go"},
		Tags:                 []string{"api", "go"},
	}}
	stage := &models.Stage{
		ID:                "in-review",
		RequiredArtifacts: []models.ArtifactRule{{Key: "pr"}},
		RequiredGates:     []models.GateRule{{Key: "reviewApproved", Kind: models.GateKindBool}},
	}

	hints := CapabilityHints(item, stage)
	assert.ElementsMatch(t, []string{"go", "api", "pr", "reviewApproved"}, hints)
}
