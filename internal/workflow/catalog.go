package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

// CatalogStore is the slice of the repository the catalog reads from.
type CatalogStore interface {
	ListStages(ctx context.Context) ([]*models.Stage, error)
	GetStage(ctx context.Context, id string) (*models.Stage, error)
	GetTemplateByCategory(ctx context.Context, category string) (*models.WorkflowTemplate, error)
	ListTemplates(ctx context.Context) ([]*models.WorkflowTemplate, error)
}

// Catalog caches stage and workflow-template definitions. They are
// provisioned by configuration and effectively static at runtime, so a short
// TTL keeps reads off the database without a change-notification channel.
type Catalog struct {
	store CatalogStore
	ttl   time.Duration

	mu          sync.Mutex
	stages      map[string]*models.Stage
	stagesAt    time.Time
	templates   map[string]*models.WorkflowTemplate
	templatesAt time.Time
}

// NewCatalog creates a catalog over store with the given cache TTL. A zero
// or negative ttl disables caching.
func NewCatalog(store CatalogStore, ttl time.Duration) *Catalog {
	return &Catalog{store: store, ttl: ttl}
}

// Stage returns the stage by id, from cache when fresh.
func (c *Catalog) Stage(ctx context.Context, id string) (*models.Stage, error) {
	stages, err := c.stageIndex(ctx)
	if err != nil {
		return nil, err
	}
	if stage, ok := stages[id]; ok {
		return stage, nil
	}
	// Cache may predate a freshly provisioned stage.
	stage, err := c.store.GetStage(ctx, id)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	if c.stages != nil {
		c.stages[stage.ID] = stage
	}
	c.mu.Unlock()
	return stage, nil
}

// Stages returns all stage definitions ordered by display rank.
func (c *Catalog) Stages(ctx context.Context) ([]*models.Stage, error) {
	return c.store.ListStages(ctx)
}

// TemplateForCategory returns the workflow template for a category, from
// cache when fresh. Returns repository.ErrNotFound (wrapped) when no
// template is provisioned for the category.
func (c *Catalog) TemplateForCategory(ctx context.Context, category string) (*models.WorkflowTemplate, error) {
	c.mu.Lock()
	fresh := c.templates != nil && c.ttl > 0 && time.Since(c.templatesAt) < c.ttl
	if fresh {
		tpl, ok := c.templates[category]
		c.mu.Unlock()
		if ok {
			return tpl, nil
		}
		return nil, fmt.Errorf("workflow template %q: %w", category, repository.ErrNotFound)
	}
	c.mu.Unlock()

	list, err := c.store.ListTemplates(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing template cache: %w", err)
	}
	byCategory := make(map[string]*models.WorkflowTemplate, len(list))
	for _, tpl := range list {
		byCategory[tpl.Category] = tpl
	}
	c.mu.Lock()
	c.templates = byCategory
	c.templatesAt = time.Now()
	c.mu.Unlock()

	if tpl, ok := byCategory[category]; ok {
		return tpl, nil
	}
	return nil, fmt.Errorf("workflow template %q: %w", category, repository.ErrNotFound)
}

// GateRunsForItem resolves the template-level run-gate defaults for an item.
// Items without a category, or without a provisioned template, get none.
func (c *Catalog) GateRunsForItem(ctx context.Context, item *models.WorkItem) (map[string]models.RunGateConfig, error) {
	if item.Category == nil {
		return nil, nil
	}
	tpl, err := c.TemplateForCategory(ctx, *item.Category)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return tpl.GateRuns, nil
}

// Invalidate drops the cached entries. Provisioning calls this after writes.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.stages = nil
	c.templates = nil
	c.mu.Unlock()
}

func (c *Catalog) stageIndex(ctx context.Context) (map[string]*models.Stage, error) {
	c.mu.Lock()
	if c.stages != nil && c.ttl > 0 && time.Since(c.stagesAt) < c.ttl {
		idx := c.stages
		c.mu.Unlock()
		return idx, nil
	}
	c.mu.Unlock()

	list, err := c.store.ListStages(ctx)
	if err != nil {
		return nil, fmt.Errorf("refreshing stage cache: %w", err)
	}
	idx := make(map[string]*models.Stage, len(list))
	for _, stage := range list {
		idx[stage.ID] = stage
	}
	c.mu.Lock()
	c.stages = idx
	c.stagesAt = time.Now()
	c.mu.Unlock()
	return idx, nil
}
