package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

// ItemService covers work-item lifecycle outside of stage transitions:
// creation, edits, deletion, and artifact/gate updates on the artifact
// document.
type ItemService struct {
	store  repository.Store
	logger *slog.Logger
}

func NewItemService(store repository.Store, logger *slog.Logger) *ItemService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ItemService{store: store, logger: logger}
}

// Create inserts a work item at the end of its stage.
func (s *ItemService) Create(ctx context.Context, item *models.WorkItem, actor models.Actor) (*models.WorkItem, error) {
	if item.Title == "" {
		return nil, fmt.Errorf("item title is required")
	}
	if item.StageID == "" {
		return nil, fmt.Errorf("item stage is required")
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.Status == "" {
		item.Status = models.ItemStatusOpen
	}

	err := s.store.InTx(ctx, func(tx repository.Store) error {
		stage, err := tx.GetStage(ctx, item.StageID)
		if err != nil {
			return err
		}
		if stage.Status != nil {
			item.Status = *stage.Status
		}
		max, err := tx.MaxPosition(ctx, item.StageID)
		if err != nil {
			return err
		}
		item.Position = max + 1
		if err := tx.CreateWorkItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   item.ID,
			Action:     "item.created",
			Actor:      actor,
			Detail:     map[string]any{"stage": item.StageID, "position": item.Position},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("creating work item: %w", err)
	}
	return item, nil
}

// Update edits the item's descriptive fields. Stage and position are owned
// by the transition coordinator and are not touched here.
func (s *ItemService) Update(ctx context.Context, id string, title, description *string, category **string, actor models.Actor) (*models.WorkItem, error) {
	var item *models.WorkItem
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		item, err = tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		if title != nil {
			item.Title = *title
		}
		if description != nil {
			item.Description = *description
		}
		if category != nil {
			item.Category = *category
		}
		if err := tx.UpdateWorkItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   item.ID,
			Action:     "item.updated",
			Actor:      actor,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("updating work item: %w", err)
	}
	return item, nil
}

// Delete removes an item and closes the position gap it leaves behind, so
// the stage keeps a dense 1..N ordering.
func (s *ItemService) Delete(ctx context.Context, id string, actor models.Actor) error {
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		item, err := tx.GetWorkItem(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.DeleteWorkItem(ctx, id); err != nil {
			return err
		}
		if err := tx.ShiftPositions(ctx, item.StageID, item.Position+1, 0, -1, id); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   id,
			Action:     "item.deleted",
			Actor:      actor,
			Detail:     map[string]any{"stage": item.StageID},
		})
	})
	if err != nil {
		return fmt.Errorf("deleting work item: %w", err)
	}
	return nil
}

// AddArtifact attaches a named evidence entry to the item's artifact
// document. Re-adding a key overwrites its entry.
func (s *ItemService) AddArtifact(ctx context.Context, itemID, key string, ev models.Evidence, actor models.Actor) (*models.WorkItem, error) {
	if key == "" {
		return nil, fmt.Errorf("artifact key is required")
	}
	var item *models.WorkItem
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		item, err = tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if ev.AddedAt.IsZero() {
			ev.AddedAt = time.Now().UTC()
		}
		if item.Artifacts.Evidence == nil {
			item.Artifacts.Evidence = make(map[string]models.Evidence)
		}
		item.Artifacts.Evidence[key] = ev
		if err := tx.UpdateWorkItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   item.ID,
			Action:     "item.artifact_added",
			Actor:      actor,
			Detail:     map[string]any{"key": key, "kind": ev.Kind},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("adding artifact: %w", err)
	}
	return item, nil
}

// SetGate sets a boolean gate flag on the item's artifact document.
func (s *ItemService) SetGate(ctx context.Context, itemID, key string, value bool, actor models.Actor) (*models.WorkItem, error) {
	if key == "" {
		return nil, fmt.Errorf("gate key is required")
	}
	var item *models.WorkItem
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		var err error
		item, err = tx.GetWorkItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Artifacts.Gates == nil {
			item.Artifacts.Gates = make(map[string]bool)
		}
		item.Artifacts.Gates[key] = value
		if err := tx.UpdateWorkItem(ctx, item); err != nil {
			return err
		}
		return tx.AppendAudit(ctx, &models.AuditRecord{
			EntityType: "work_item",
			EntityID:   item.ID,
			Action:     "item.gate_set",
			Actor:      actor,
			Detail:     map[string]any{"key": key, "value": value},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("setting gate: %w", err)
	}
	return item, nil
}
