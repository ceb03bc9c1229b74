package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"missionctl/backend/pkg/models"
)

// fakeRunChecker answers run-gate queries from a fixed set.
type fakeRunChecker struct {
	runs map[string][]models.RunStatus // runType -> statuses on record
}

func (f *fakeRunChecker) HasSuccessfulRun(ctx context.Context, workItemID, runType string, statuses []models.RunStatus) (bool, error) {
	for _, have := range f.runs[runType] {
		for _, want := range statuses {
			if have == want {
				return true, nil
			}
		}
	}
	return false, nil
}

func strptr(s string) *string { return &s }

func TestValidateCategoryMismatch(t *testing.T) {
	ctx := context.Background()
	item := &models.WorkItem{ID: "t1", Category: strptr("research"), Artifacts: models.ArtifactDoc{}}
	stage := &models.Stage{
		ID:                "in-review",
		Category:          strptr("dev"),
		RequiredArtifacts: []models.ArtifactRule{{Key: "pr"}},
		RequiredGates:     []models.GateRule{{Key: "reviewApproved", Kind: models.GateKindBool}},
	}

	res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{})
	assert.NoError(t, err)
	assert.False(t, res.OK)
	if assert.NotNil(t, res.CategoryMismatch) {
		assert.Equal(t, "research", res.CategoryMismatch.Current)
		assert.Equal(t, "dev", res.CategoryMismatch.Required)
	}
	// A cross-category move is never partially valid.
	assert.Empty(t, res.MissingArtifacts)
	assert.Empty(t, res.MissingGates)
}

func TestValidateUncategorizedItemEntersCategoryStage(t *testing.T) {
	ctx := context.Background()
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}
	stage := &models.Stage{ID: "in-dev", Category: strptr("dev")}

	res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{})
	assert.NoError(t, err)
	assert.True(t, res.OK)
}

func TestValidateMissingArtifact(t *testing.T) {
	ctx := context.Background()
	stage := &models.Stage{
		ID:                "in-review",
		RequiredArtifacts: []models.ArtifactRule{{Key: "pr", Label: "PR link"}},
	}

	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}
	res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{})
	assert.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []string{"pr"}, res.MissingArtifacts)

	item.Artifacts.Evidence = map[string]models.Evidence{
		"pr": {Kind: "link", Content: "https://example.com/pr/1"},
	}
	res, err = Validate(ctx, item, stage, nil, &fakeRunChecker{})
	assert.NoError(t, err)
	assert.True(t, res.OK)
}

func TestValidateBooleanGate(t *testing.T) {
	ctx := context.Background()
	stage := &models.Stage{
		ID:            "in-test",
		RequiredGates: []models.GateRule{{Key: "reviewApproved", Kind: models.GateKindBool}},
	}

	for _, tc := range []struct {
		name  string
		gates map[string]bool
		ok    bool
	}{
		{name: "absent", gates: nil, ok: false},
		{name: "false", gates: map[string]bool{"reviewApproved": false}, ok: false},
		{name: "true", gates: map[string]bool{"reviewApproved": true}, ok: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{Gates: tc.gates}}
			res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{})
			assert.NoError(t, err)
			assert.Equal(t, tc.ok, res.OK)
			if !tc.ok {
				assert.Equal(t, []string{"reviewApproved"}, res.MissingGates)
			}
		})
	}
}

func TestValidateRunGate(t *testing.T) {
	ctx := context.Background()
	stage := &models.Stage{
		ID: "in-deploy",
		RequiredGates: []models.GateRule{{
			Key:  "testPassed",
			Kind: models.GateKindRun,
			Run:  &models.RunGateConfig{RunType: "test"},
		}},
	}
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}

	res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{})
	assert.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []string{"testPassed"}, res.MissingGates)

	res, err = Validate(ctx, item, stage, nil, &fakeRunChecker{
		runs: map[string][]models.RunStatus{"test": {models.RunStatusFailed}},
	})
	assert.NoError(t, err)
	assert.False(t, res.OK)

	res, err = Validate(ctx, item, stage, nil, &fakeRunChecker{
		runs: map[string][]models.RunStatus{"test": {models.RunStatusSuccess}},
	})
	assert.NoError(t, err)
	assert.True(t, res.OK)
}

func TestValidateRunGateDefaultsToGateKey(t *testing.T) {
	ctx := context.Background()
	stage := &models.Stage{
		ID:            "in-deploy",
		RequiredGates: []models.GateRule{{Key: "smoke", Kind: models.GateKindRun}},
	}
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}

	res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{
		runs: map[string][]models.RunStatus{"smoke": {models.RunStatusSuccess}},
	})
	assert.NoError(t, err)
	assert.True(t, res.OK)
}

func TestValidateTemplateGateRunsApply(t *testing.T) {
	ctx := context.Background()
	stage := &models.Stage{
		ID:            "in-deploy",
		RequiredGates: []models.GateRule{{Key: "testPassed", Kind: models.GateKindRun}},
	}
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{}}
	gateRuns := map[string]models.RunGateConfig{
		"testPassed": {RunType: "test"},
	}

	res, err := Validate(ctx, item, stage, gateRuns, &fakeRunChecker{
		runs: map[string][]models.RunStatus{"test": {models.RunStatusSuccess}},
	})
	assert.NoError(t, err)
	assert.True(t, res.OK)
}

func TestValidateReportsArtifactsAndGatesTogether(t *testing.T) {
	ctx := context.Background()
	stage := &models.Stage{
		ID:                "strict",
		RequiredArtifacts: []models.ArtifactRule{{Key: "pr"}, {Key: "design"}},
		RequiredGates: []models.GateRule{
			{Key: "reviewApproved", Kind: models.GateKindBool},
			{Key: "testPassed", Kind: models.GateKindRun, Run: &models.RunGateConfig{RunType: "test"}},
		},
	}
	item := &models.WorkItem{ID: "t1", Artifacts: models.ArtifactDoc{
		Evidence: map[string]models.Evidence{"design": {Content: "doc"}},
	}}

	res, err := Validate(ctx, item, stage, nil, &fakeRunChecker{})
	assert.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, []string{"pr"}, res.MissingArtifacts)
	assert.Equal(t, []string{"reviewApproved", "testPassed"}, res.MissingGates)
}
