package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dbgpd/internal/errors"
)

// registerTools registers the session and breakpoint tools
func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("dbgp_status",
		mcp.WithDescription("Report the debugger engine state: IDE connections, whether the target is paused at a breakpoint, stepping mode and the pending continuation command."),
	), s.handleStatus)

	s.mcpServer.AddTool(mcp.NewTool("dbgp_list_breakpoints",
		mcp.WithDescription("List the armed breakpoints with the ids the IDE sees."),
	), s.handleListBreakpoints)

	s.mcpServer.AddTool(mcp.NewTool("dbgp_set_breakpoint",
		mcp.WithDescription("Arm a line breakpoint. The target pauses and connects to the IDE when it reaches the line."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Absolute source path, optionally with a file:// prefix"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based line number"),
		),
	), s.handleSetBreakpoint)

	s.mcpServer.AddTool(mcp.NewTool("dbgp_remove_breakpoint",
		mcp.WithDescription("Disarm a breakpoint by id. Other breakpoint ids are unaffected."),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Breakpoint id from dbgp_set_breakpoint or dbgp_list_breakpoints"),
		),
	), s.handleRemoveBreakpoint)
}

func (s *Server) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.engine.Info())
}

func (s *Server) handleListBreakpoints(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	breakpoints := s.engine.Breakpoints()
	return jsonResult(map[string]interface{}{
		"breakpoints": breakpoints,
		"count":       len(breakpoints),
	})
}

func (s *Server) handleSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil || file == "" {
		return mcp.NewToolResultError(errors.InvalidBreakpoint(file, "").Error()), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil || line < 1 || line != float64(int(line)) {
		return mcp.NewToolResultError(errors.InvalidBreakpoint(file, fmt.Sprint(request.GetArguments()["line"])).Error()), nil
	}

	id := s.engine.SetBreakpoint(file, int(line))
	s.logger.Info("breakpoint set over MCP", "breakpoint_id", id, "file", file, "line", int(line))

	return jsonResult(map[string]interface{}{
		"id":   id,
		"file": file,
		"line": int(line),
	})
}

func (s *Server) handleRemoveBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := request.RequireFloat("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	id := int(raw)

	found := false
	for _, bp := range s.engine.Breakpoints() {
		if bp.ID == id {
			found = true
			break
		}
	}
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("no breakpoint with id %d", id)), nil
	}

	s.engine.RemoveBreakpoint(id)
	s.logger.Info("breakpoint removed over MCP", "breakpoint_id", id)

	return jsonResult(map[string]interface{}{
		"id":      id,
		"removed": true,
	})
}

// jsonResult marshals data as the text content of a tool result
func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
