package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"missionctl/backend/internal/auth"
	"missionctl/backend/internal/repository"
	"missionctl/backend/pkg/models"
)

// ListSchedules returns all schedule definitions.
// (GET /api/v1/schedules)
func (s *Server) ListSchedules(c echo.Context) error {
	schedules, err := s.Store.ListSchedules(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, schedules)
}

// GetSchedule returns a single schedule definition.
// (GET /api/v1/schedules/:id)
func (s *Server) GetSchedule(c echo.Context) error {
	sched, err := s.Store.GetSchedule(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sched)
}

// PutSchedule creates or updates a schedule definition.
// (PUT /api/v1/schedules)
func (s *Server) PutSchedule(c echo.Context) error {
	ctx := c.Request().Context()
	var sched models.ScheduleDefinition
	if err := c.Bind(&sched); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	saved, err := s.Provision.UpsertSchedule(ctx, &sched, actorFrom(c), capsFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, saved)
}

// TriggerSchedule fires a schedule immediately, outside the poll cycle.
// (POST /api/v1/schedules/:id/trigger)
func (s *Server) TriggerSchedule(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeSchedulesTrigger); err != nil {
		return httpError(err)
	}
	run, err := s.Runs.TriggerNow(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, run)
}

// ListRuns lists runs, newest first, optionally filtered.
// (GET /api/v1/runs)
func (s *Server) ListRuns(c echo.Context) error {
	filter := repository.RunFilter{
		ScheduleID: c.QueryParam("schedule_id"),
		WorkItemID: c.QueryParam("work_item_id"),
		RunType:    c.QueryParam("run_type"),
		Status:     models.RunStatus(c.QueryParam("status")),
	}
	runs, err := s.Store.ListRuns(c.Request().Context(), filter)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, runs)
}

// GetRun returns a single run.
// (GET /api/v1/runs/:id)
func (s *Server) GetRun(c echo.Context) error {
	run, err := s.Store.GetRun(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

type completeRunRequest struct {
	Status models.RunStatus `json:"status"`
	Output string           `json:"output"`
	Error  string           `json:"error"`
}

// CompleteRun moves an in-flight run to a terminal status. This is the
// callback external executors use when a job body finishes.
// (PATCH /api/v1/runs/:id)
func (s *Server) CompleteRun(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeRunsWrite); err != nil {
		return httpError(err)
	}
	var req completeRunRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body: "+err.Error())
	}
	if !req.Status.Terminal() {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be terminal")
	}
	run, err := s.Runs.CompleteRun(ctx, c.Param("id"), req.Status, req.Output, req.Error, actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}

// RetryRun marks a terminal run for an external executor to retry.
// (POST /api/v1/runs/:id/retry)
func (s *Server) RetryRun(c echo.Context) error {
	ctx := c.Request().Context()
	if err := capsFrom(c).Require(auth.ScopeRunsWrite); err != nil {
		return httpError(err)
	}
	run, err := s.Runs.RequestRetry(ctx, c.Param("id"), actorFrom(c))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, run)
}
