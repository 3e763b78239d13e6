// Package mcp exposes the running debugger engine through Model Context
// Protocol (MCP) tools, so an MCP client can inspect the session and manage
// breakpoints while an IDE drives the DBGP connection:
//   - dbgp_status: engine state, connections and stepping mode
//   - dbgp_list_breakpoints: armed breakpoints and their protocol ids
//   - dbgp_set_breakpoint: arm a file:line location
//   - dbgp_remove_breakpoint: disarm a breakpoint by id
package mcp

import (
	"context"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ctagard/dbgpd/internal/version"
	"github.com/ctagard/dbgpd/pkg/types"
)

// Controller is the part of the session engine the tools operate on.
type Controller interface {
	Info() types.SessionInfo
	Breakpoints() []types.BreakpointInfo
	SetBreakpoint(file string, line int) int
	RemoveBreakpoint(id int)
}

// Server wraps the MCP server with the engine's controls
type Server struct {
	mcpServer *server.MCPServer
	engine    Controller
	logger    *slog.Logger
}

// NewServer creates a new MCP server over engine
func NewServer(engine Controller, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		version.EngineName,
		version.GetVersion(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		engine:    engine,
		logger:    logger,
	}
	s.registerTools()
	return s
}

// Serve speaks MCP over in and out until ctx is cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}
