// Package workflow implements the stage-transition policy: gate validation,
// position reindexing, worker selection, and the cached stage/template catalog.
package workflow

import (
	"context"
	"fmt"

	"missionctl/backend/pkg/models"
)

// RunChecker answers whether a work item has a qualifying run on record.
// Satisfied by repository.Store.
type RunChecker interface {
	HasSuccessfulRun(ctx context.Context, workItemID, runType string, statuses []models.RunStatus) (bool, error)
}

// CategoryMismatch reports a cross-category move attempt.
type CategoryMismatch struct {
	Current  string `json:"current"`
	Required string `json:"required"`
}

// GateResult is the outcome of validating a work item against a destination
// stage. A rejection carries every missing requirement so the caller can
// render actionable detail.
type GateResult struct {
	OK               bool              `json:"ok"`
	MissingArtifacts []string          `json:"missing_artifacts,omitempty"`
	MissingGates     []string          `json:"missing_gates,omitempty"`
	CategoryMismatch *CategoryMismatch `json:"category_mismatch,omitempty"`
}

// Validate checks whether item may enter stage. It has no side effects and is
// safe to call speculatively.
//
// A category mismatch short-circuits with empty requirement lists; otherwise
// artifact and gate checks are both evaluated and reported together. Run
// gates consult the RunChecker: the gate's own config wins, then the
// template-level gateRuns entry for the gate key, then the defaults (run type
// = gate key, success set = {SUCCESS}).
func Validate(ctx context.Context, item *models.WorkItem, stage *models.Stage, gateRuns map[string]models.RunGateConfig, runs RunChecker) (*GateResult, error) {
	if stage.Category != nil && item.Category != nil && *stage.Category != *item.Category {
		return &GateResult{
			CategoryMismatch: &CategoryMismatch{
				Current:  *item.Category,
				Required: *stage.Category,
			},
		}, nil
	}

	res := &GateResult{}
	for _, rule := range stage.RequiredArtifacts {
		if !item.Artifacts.HasArtifact(rule.Key) {
			res.MissingArtifacts = append(res.MissingArtifacts, rule.Key)
		}
	}

	for _, gate := range stage.RequiredGates {
		switch gate.Kind {
		case models.GateKindRun:
			cfg := runConfigFor(gate, gateRuns)
			ok, err := runs.HasSuccessfulRun(ctx, item.ID, cfg.RunType, cfg.SuccessStatuses)
			if err != nil {
				return nil, fmt.Errorf("checking run gate %q: %w", gate.Key, err)
			}
			if !ok {
				res.MissingGates = append(res.MissingGates, gate.Key)
			}
		default:
			if !item.Artifacts.GateSet(gate.Key) {
				res.MissingGates = append(res.MissingGates, gate.Key)
			}
		}
	}

	res.OK = len(res.MissingArtifacts) == 0 && len(res.MissingGates) == 0
	return res, nil
}

func runConfigFor(gate models.GateRule, gateRuns map[string]models.RunGateConfig) models.RunGateConfig {
	cfg := models.RunGateConfig{}
	if tpl, ok := gateRuns[gate.Key]; ok {
		cfg = tpl
	}
	if gate.Run != nil {
		if gate.Run.RunType != "" {
			cfg.RunType = gate.Run.RunType
		}
		if len(gate.Run.SuccessStatuses) > 0 {
			cfg.SuccessStatuses = gate.Run.SuccessStatuses
		}
	}
	if cfg.RunType == "" {
		cfg.RunType = gate.Key
	}
	if len(cfg.SuccessStatuses) == 0 {
		cfg.SuccessStatuses = []models.RunStatus{models.RunStatusSuccess}
	}
	return cfg
}
