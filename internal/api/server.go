// Package api contains the HTTP handlers for the mission control core.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"missionctl/backend/internal/auth"
	"missionctl/backend/internal/repository"
	"missionctl/backend/internal/services"
	"missionctl/backend/internal/workflow"
	"missionctl/backend/pkg/models"
)

const (
	headerActorKind    = "X-Actor-Kind"
	headerActorID      = "X-Actor-Id"
	headerCapabilities = "X-Capabilities"

	ctxActor        = "actor"
	ctxCapabilities = "capabilities"
)

// Server holds the dependencies for the API server.
type Server struct {
	Store       repository.Store
	Catalog     *workflow.Catalog
	Items       *services.ItemService
	Transitions *services.TransitionService
	Runs        *services.RunService
	Provision   *services.ProvisionService
}

// NewServer creates a new Server.
func NewServer(store repository.Store, catalog *workflow.Catalog, items *services.ItemService, transitions *services.TransitionService, runs *services.RunService, provision *services.ProvisionService) *Server {
	return &Server{
		Store:       store,
		Catalog:     catalog,
		Items:       items,
		Transitions: transitions,
		Runs:        runs,
		Provision:   provision,
	}
}

// Register mounts all routes on e.
func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.Health)

	v1 := e.Group("/api/v1", s.ActorMiddleware)

	v1.POST("/items", s.CreateItem)
	v1.GET("/items", s.ListItems)
	v1.GET("/items/:id", s.GetItem)
	v1.PATCH("/items/:id", s.UpdateItem)
	v1.DELETE("/items/:id", s.DeleteItem)
	v1.POST("/items/:id/move", s.MoveItem)
	v1.POST("/items/:id/validate-move", s.ValidateMove)
	v1.POST("/items/:id/artifacts", s.AddArtifact)
	v1.POST("/items/:id/gates", s.SetGate)
	v1.POST("/items/:id/runs", s.StartItemRun)

	v1.GET("/stages", s.ListStages)
	v1.PUT("/stages", s.PutStage)
	v1.GET("/templates", s.ListTemplates)
	v1.PUT("/templates", s.PutTemplate)

	v1.GET("/workers", s.ListWorkers)
	v1.PUT("/workers", s.PutWorker)
	v1.PATCH("/workers/:id/status", s.PatchWorkerStatus)

	v1.GET("/schedules", s.ListSchedules)
	v1.GET("/schedules/:id", s.GetSchedule)
	v1.PUT("/schedules", s.PutSchedule)
	v1.POST("/schedules/:id/trigger", s.TriggerSchedule)

	v1.GET("/runs", s.ListRuns)
	v1.GET("/runs/:id", s.GetRun)
	v1.PATCH("/runs/:id", s.CompleteRun)
	v1.POST("/runs/:id/retry", s.RetryRun)

	v1.GET("/audit", s.ListAudit)
}

// HealthStatus represents the health check response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Service   string    `json:"service"`
}

// Health returns basic health status (always returns 200 OK).
func (s *Server) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthStatus{
		Status:    "ok",
		Timestamp: time.Now(),
		Service:   "missionctl",
	})
}

// ActorMiddleware reads the caller's identity and capability scopes from
// request headers. Missing headers yield a human actor with no id and no
// capabilities; write endpoints that need scopes then return 403.
func (s *Server) ActorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		kind := c.Request().Header.Get(headerActorKind)
		id := c.Request().Header.Get(headerActorID)

		var actor models.Actor
		switch models.ActorKind(kind) {
		case models.ActorKindWorker:
			actor = models.WorkerActor(id)
		case models.ActorKindSystem:
			actor = models.SystemActor()
		default:
			actor = models.HumanActor(id)
		}
		c.Set(ctxActor, actor)
		c.Set(ctxCapabilities, auth.ParseCapabilities(c.Request().Header.Get(headerCapabilities)))
		return next(c)
	}
}

func actorFrom(c echo.Context) models.Actor {
	if actor, ok := c.Get(ctxActor).(models.Actor); ok {
		return actor
	}
	return models.HumanActor("")
}

func capsFrom(c echo.Context) auth.Capabilities {
	if caps, ok := c.Get(ctxCapabilities).(auth.Capabilities); ok {
		return caps
	}
	return nil
}

// httpError maps service errors onto HTTP status codes.
func httpError(err error) error {
	switch {
	case repository.IsNotFound(err):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrRunTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
