package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

// ListStages returns all stage definitions ordered by display rank.
// (GET /api/v1/stages)
func (s *Server) ListStages(c echo.Context) error {
	stages, err := s.Catalog.Stages(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, stages)
}

// PutStage creates or updates a stage, keyed by name+category.
// (PUT /api/v1/stages)
func (s *Server) PutStage(c echo.Context) error {
	ctx := c.Request().Context()
	var stage models.Stage
	if err := c.Bind(&stage); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	saved, err := s.Provision.UpsertStage(ctx, &stage, actorFrom(c), capsFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// ListTemplates returns all workflow templates.
// (GET /api/v1/templates)
func (s *Server) ListTemplates(c echo.Context) error {
	templates, err := s.Store.ListTemplates(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, templates)
}

// PutTemplate creates or updates the workflow template for a category.
// (PUT /api/v1/templates)
func (s *Server) PutTemplate(c echo.Context) error {
	ctx := c.Request().Context()
	var tpl models.WorkflowTemplate
	if err := c.Bind(&tpl); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	saved, err := s.Provision.UpsertTemplate(ctx, &tpl, actorFrom(c), capsFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// ListWorkers returns workers for a role. The role query parameter is
// required; status filtering happens client-side.
// (GET /api/v1/workers)
func (s *Server) ListWorkers(c echo.Context) error {
	role := c.QueryParam("role")
	if role == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "role query parameter is required")
	}
	workers, err := s.Store.ListWorkersByRole(c.Request().Context(), role, nil)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, workers)
}

// PutWorker registers or updates an automated worker.
// (PUT /api/v1/workers)
func (s *Server) PutWorker(c echo.Context) error {
	ctx := c.Request().Context()
	var worker models.Worker
	if err := c.Bind(&worker); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	saved, err := s.Provision.UpsertWorker(ctx, &worker, actorFrom(c), capsFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

type workerStatusRequest struct {
	Status models.WorkerStatus `json:"status"`
}

// PatchWorkerStatus applies a job-completion or health signal to a worker.
// (PATCH /api/v1/workers/:id/status)
func (s *Server) PatchWorkerStatus(c echo.Context) error {
	ctx := c.Request().Context()
	var req workerStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if err := s.Provision.SetWorkerStatus(ctx, c.Param("id"), req.Status, actorFrom(c), capsFrom(c)); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListAudit returns recent audit entries, newest first.
// (GET /api/v1/audit)
func (s *Server) ListAudit(c echo.Context) error {
	filter := auditFilterFromQuery(c)
	records, err := s.Store.ListAudit(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, records)
}

func auditFilterFromQuery(c echo.Context) repository.AuditFilter {
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	return repository.AuditFilter{
		EntityType: c.QueryParam("entity_type"),
		EntityID:   c.QueryParam("entity_id"),
		Limit:      limit,
	}
}
