package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"missionctl/backend/internal/auth"
	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

// CreateItem creates a work item at the end of its stage.
// (POST /api/v1/items)
func (s *Server) CreateItem(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeItemsWrite); err != nil {
		return httpError(err)
	}

	var item models.WorkItem
	if err := c.Bind(&item); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	created, err := s.Items.Create(ctx, &item, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, created)
}

// ListItems lists work items, optionally filtered.
// (GET /api/v1/items)
func (s *Server) ListItems(c echo.Context) error {
	ctx := c.Request().Context()
	filter := repository.WorkItemFilter{
		StageID:  c.QueryParam("stage_id"),
		Status:   models.ItemStatus(c.QueryParam("status")),
		Category: c.QueryParam("category"),
		WorkerID: c.QueryParam("worker_id"),
		Tag:      c.QueryParam("tag"),
	}
	items, err := s.Store.ListWorkItems(ctx, filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

// GetItem returns a single work item.
// (GET /api/v1/items/:id)
func (s *Server) GetItem(c echo.Context) error {
	item, err := s.Store.GetWorkItem(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

type updateItemRequest struct {
	Title       *string  `json:"title"`
	Description *string  `json:"description"`
	Category    **string `json:"category"`
}

// UpdateItem edits descriptive fields. Stage and position only change
// through the move endpoint.
// (PATCH /api/v1/items/:id)
func (s *Server) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeItemsWrite); err != nil {
		return httpError(err)
	}
	var req updateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	item, err := s.Items.Update(ctx, c.Param("id"), req.Title, req.Description, req.Category, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

// DeleteItem removes an item and closes its position gap.
// (DELETE /api/v1/items/:id)
func (s *Server) DeleteItem(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeItemsWrite); err != nil {
		return httpError(err)
	}
	if err := s.Items.Delete(ctx, c.Param("id"), actorFrom(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type moveRequest struct {
	ToStageID string `json:"to_stage_id"`
	Position  int    `json:"position"`
}

// MoveItem attempts a stage transition. Gate rejections come back as 422
// with the full missing-requirement detail.
// (POST /api/v1/items/:id/move)
func (s *Server) MoveItem(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeItemsMove); err != nil {
		return httpError(err)
	}
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.ToStageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to_stage_id is required")
	}

	result, err := s.Transitions.Move(ctx, c.Param("id"), req.ToStageID, req.Position, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	if !result.Applied() {
		return c.JSON(http.StatusUnprocessableEntity, result)
	}
	return c.JSON(http.StatusOK, result)
}

// ValidateMove runs gate validation without applying anything.
// (POST /api/v1/items/:id/validate-move)
func (s *Server) ValidateMove(c echo.Context) error {
	ctx := c.Request().Context()
	var req moveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.ToStageID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "to_stage_id is required")
	}
	result, err := s.Transitions.ValidateMove(ctx, c.Param("id"), req.ToStageID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type addArtifactRequest struct {
	Key      string          `json:"key"`
	Evidence models.Evidence `json:"evidence"`
}

// AddArtifact attaches evidence to the item's artifact document.
// (POST /api/v1/items/:id/artifacts)
func (s *Server) AddArtifact(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeItemsWrite); err != nil {
		return httpError(err)
	}
	var req addArtifactRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	item, err := s.Items.AddArtifact(ctx, c.Param("id"), req.Key, req.Evidence, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

type setGateRequest struct {
	Key   string `json:"key"`
	Value bool   `json:"value"`
}

// SetGate sets a boolean gate flag on the item.
// (POST /api/v1/items/:id/gates)
func (s *Server) SetGate(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeItemsWrite); err != nil {
		return httpError(err)
	}
	var req setGateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	item, err := s.Items.SetGate(ctx, c.Param("id"), req.Key, req.Value, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, item)
}

type startItemRunRequest struct {
	RunType string `json:"run_type"`
}

// StartItemRun opens a RUNNING run for the item; run gates read the outcome.
// (POST /api/v1/items/:id/runs)
func (s *Server) StartItemRun(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeRunsWrite); err != nil {
		return httpError(err)
	}
	var req startItemRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if req.RunType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "run_type is required")
	}
	run, err := s.Runs.StartItemRun(ctx, c.Param("id"), req.RunType, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, run)
}
