// Package hooks integrates the platform's memory/notification service.
// Every call is best-effort: callers log failures and move on, never roll
// back the transition or run that triggered the hook.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"missionctl/backend/pkg/models"
)

// MemoryHook receives completion events after the owning transaction has
// committed. Implementations must be safe for concurrent use.
type MemoryHook interface {
	OnWorkItemDone(ctx context.Context, workItemID string, actor models.Actor) error
	OnRunFinished(ctx context.Context, runID string, actor models.Actor) error
}

// NoopHook discards every event. Used when no memory service is configured.
type NoopHook struct{}

func (NoopHook) OnWorkItemDone(ctx context.Context, workItemID string, actor models.Actor) error {
	return nil
}

func (NoopHook) OnRunFinished(ctx context.Context, runID string, actor models.Actor) error {
	return nil
}

// HTTPMemoryHook posts events as JSON to the memory service.
type HTTPMemoryHook struct {
	baseURL string
	client  *http.Client
}

// NewHTTPMemoryHook creates a hook posting to baseURL. A nil client gets a
// default with a 5s timeout.
func NewHTTPMemoryHook(baseURL string, client *http.Client) *HTTPMemoryHook {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &HTTPMemoryHook{baseURL: baseURL, client: client}
}

type memoryEvent struct {
	Event     string    `json:"event"`
	EntityID  string    `json:"entity_id"`
	ActorKind string    `json:"actor_kind"`
	ActorID   string    `json:"actor_id,omitempty"`
	At        time.Time `json:"at"`
}

func (h *HTTPMemoryHook) OnWorkItemDone(ctx context.Context, workItemID string, actor models.Actor) error {
	return h.post(ctx, memoryEvent{
		Event:     "work_item.done",
		EntityID:  workItemID,
		ActorKind: string(actor.Kind),
		ActorID:   actor.ID,
		At:        time.Now().UTC(),
	})
}

func (h *HTTPMemoryHook) OnRunFinished(ctx context.Context, runID string, actor models.Actor) error {
	return h.post(ctx, memoryEvent{
		Event:     "run.finished",
		EntityID:  runID,
		ActorKind: string(actor.Kind),
		ActorID:   actor.ID,
		At:        time.Now().UTC(),
	})
}

func (h *HTTPMemoryHook) post(ctx context.Context, event memoryEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding memory event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/api/v1/events", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building memory request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting memory event: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory service returned %d", resp.StatusCode)
	}
	return nil
}
