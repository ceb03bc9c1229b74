// Package mcp exposes the board to the platform's agents as MCP tools.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"missionctl/backend/internal/services"
	"missionctl/backend/internal/workflow"
	"missionctl/backend/pkg/models"
)

type Server struct {
	mcpServer   *server.MCPServer
	transitions *services.TransitionService
	items       *services.ItemService
	runs        *services.RunService
	catalog     *workflow.Catalog
}

func NewServer(transitions *services.TransitionService, items *services.ItemService, runs *services.RunService, catalog *workflow.Catalog) *Server {
	s := &Server{
		mcpServer: server.NewMCPServer(
			"Mission Control",
			"1.0.0",
			server.WithToolCapabilities(true),
		),
		transitions: transitions,
		items:       items,
		runs:        runs,
		catalog:     catalog,
	}

	s.registerTools()
	return s
}

func (s *Server) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(
		mcp.NewTool(
			"move_item",
			mcp.WithDescription("Move a work item into a stage, enforcing its gates"),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("The work item to move")),
			mcp.WithString("to_stage_id", mcp.Required(), mcp.Description("The destination stage")),
			mcp.WithNumber("position", mcp.Description("Target position in the stage, 1-based; omit to append")),
			mcp.WithString("agent_id", mcp.Description("The calling agent's worker id")),
		),
		s.handleMoveItem,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"validate_move",
			mcp.WithDescription("Check whether a work item could enter a stage, without moving it"),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("The work item to check")),
			mcp.WithString("to_stage_id", mcp.Required(), mcp.Description("The destination stage")),
		),
		s.handleValidateMove,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"add_artifact",
			mcp.WithDescription("Attach a named piece of evidence to a work item"),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("The work item")),
			mcp.WithString("key", mcp.Required(), mcp.Description("The artifact key, e.g. pr")),
			mcp.WithString("content", mcp.Description("The evidence content, e.g. a link")),
			mcp.WithString("agent_id", mcp.Description("The calling agent's worker id")),
		),
		s.handleAddArtifact,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"set_gate",
			mcp.WithDescription("Set a boolean gate flag on a work item"),
			mcp.WithString("item_id", mcp.Required(), mcp.Description("The work item")),
			mcp.WithString("key", mcp.Required(), mcp.Description("The gate key")),
			mcp.WithBoolean("value", mcp.Required(), mcp.Description("The flag value")),
			mcp.WithString("agent_id", mcp.Description("The calling agent's worker id")),
		),
		s.handleSetGate,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"trigger_schedule",
			mcp.WithDescription("Fire a schedule definition immediately and report the run outcome"),
			mcp.WithString("schedule_id", mcp.Required(), mcp.Description("The schedule definition to trigger")),
			mcp.WithString("agent_id", mcp.Description("The calling agent's worker id")),
		),
		s.handleTriggerSchedule,
	)

	s.mcpServer.AddTool(
		mcp.NewTool(
			"list_stages",
			mcp.WithDescription("List all stage definitions with their entry requirements"),
		),
		s.handleListStages,
	)
}

func toolActor(args map[string]interface{}) models.Actor {
	if id, ok := args["agent_id"].(string); ok && id != "" {
		return models.WorkerActor(id)
	}
	return models.SystemActor()
}

func (s *Server) handleMoveItem(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	itemID, ok := args["item_id"].(string)
	if !ok || itemID == "" {
		return mcp.NewToolResultError("Missing required parameter: item_id"), nil
	}
	toStageID, ok := args["to_stage_id"].(string)
	if !ok || toStageID == "" {
		return mcp.NewToolResultError("Missing required parameter: to_stage_id"), nil
	}
	position := 0
	if p, ok := args["position"].(float64); ok {
		position = int(p)
	}

	result, err := s.transitions.Move(ctx, itemID, toStageID, position, toolActor(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to move item: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleValidateMove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	itemID, ok := args["item_id"].(string)
	if !ok || itemID == "" {
		return mcp.NewToolResultError("Missing required parameter: item_id"), nil
	}
	toStageID, ok := args["to_stage_id"].(string)
	if !ok || toStageID == "" {
		return mcp.NewToolResultError("Missing required parameter: to_stage_id"), nil
	}

	result, err := s.transitions.ValidateMove(ctx, itemID, toStageID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to validate move: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleAddArtifact(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	itemID, ok := args["item_id"].(string)
	if !ok || itemID == "" {
		return mcp.NewToolResultError("Missing required parameter: item_id"), nil
	}
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return mcp.NewToolResultError("Missing required parameter: key"), nil
	}
	content, _ := args["content"].(string)

	item, err := s.items.AddArtifact(ctx, itemID, key, models.Evidence{Kind: "link", Name: key, Content: content}, toolActor(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add artifact: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(item.Artifacts)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleSetGate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	itemID, ok := args["item_id"].(string)
	if !ok || itemID == "" {
		return mcp.NewToolResultError("Missing required parameter: item_id"), nil
	}
	key, ok := args["key"].(string)
	if !ok || key == "" {
		return mcp.NewToolResultError("Missing required parameter: key"), nil
	}
	value, ok := args["value"].(bool)
	if !ok {
		return mcp.NewToolResultError("Missing required parameter: value"), nil
	}

	item, err := s.items.SetGate(ctx, itemID, key, value, toolActor(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set gate: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(item.Artifacts)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleTriggerSchedule(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return mcp.NewToolResultError("Invalid arguments type"), nil
	}

	scheduleID, ok := args["schedule_id"].(string)
	if !ok || scheduleID == "" {
		return mcp.NewToolResultError("Missing required parameter: schedule_id"), nil
	}

	run, err := s.runs.TriggerNow(ctx, scheduleID, toolActor(args))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to trigger schedule: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(run)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleListStages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stages, err := s.catalog.Stages(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list stages: %v", err)), nil
	}

	jsonBytes, _ := json.Marshal(stages)
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// MountHTTPHandlers wires the MCP server's SSE transport under /mcp.
func MountHTTPHandlers(mux *http.ServeMux, mcpServer *server.MCPServer) {
	sseServer := server.NewSSEServer(mcpServer, server.WithStaticBasePath("/mcp"))

	mux.HandleFunc("/mcp", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sseServer.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
	mux.Handle("/mcp/", sseServer)
}
