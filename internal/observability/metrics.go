// Package observability holds the OpenTelemetry instruments the core emits.
package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics bundles the counters recorded by the transition coordinator and
// the scheduler. A nil *Metrics is valid and records nothing, so tests can
// pass it around without a meter provider.
type Metrics struct {
	transitionsApplied  metric.Int64Counter
	transitionsRejected metric.Int64Counter
	runsStarted         metric.Int64Counter
	runsFinished        metric.Int64Counter
	claimMisses         metric.Int64Counter
}

// NewMetrics registers the core's instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("missionctl/backend")
	m := &Metrics{}
	var err error
	if m.transitionsApplied, err = meter.Int64Counter("missionctl.transitions.applied",
		metric.WithDescription("Work-item stage transitions applied")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if m.transitionsRejected, err = meter.Int64Counter("missionctl.transitions.rejected",
		metric.WithDescription("Work-item stage transitions rejected by gate validation")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if m.runsStarted, err = meter.Int64Counter("missionctl.runs.started",
		metric.WithDescription("Runs created by the scheduler or manual triggers")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if m.runsFinished, err = meter.Int64Counter("missionctl.runs.finished",
		metric.WithDescription("Runs reaching a terminal status")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	if m.claimMisses, err = meter.Int64Counter("missionctl.scheduler.claim_misses",
		metric.WithDescription("Claim attempts skipped because the row was held or no longer due")); err != nil {
		return nil, fmt.Errorf("creating counter: %w", err)
	}
	return m, nil
}

// TransitionApplied records a committed move into the named stage.
func (m *Metrics) TransitionApplied(ctx context.Context, stageName string) {
	if m == nil {
		return
	}
	m.transitionsApplied.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stageName)))
}

// TransitionRejected records a gate rejection.
func (m *Metrics) TransitionRejected(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.transitionsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RunStarted records a run entering RUNNING.
func (m *Metrics) RunStarted(ctx context.Context, runType string) {
	if m == nil {
		return
	}
	m.runsStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("run_type", runType)))
}

// RunFinished records a run reaching a terminal status.
func (m *Metrics) RunFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.runsFinished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// ClaimMiss records a skipped claim attempt.
func (m *Metrics) ClaimMiss(ctx context.Context) {
	if m == nil {
		return
	}
	m.claimMisses.Add(ctx, 1)
}
