package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerSessionTools() {
	statusTool := mcp.NewTool("get_session_status",
		mcp.WithDescription("Get the current session status: authentication state, registered "+
			"tables and links, and whether a fresh materialized snapshot is ready for "+
			"predictions."),
	)
	s.mcpServer.AddTool(statusTool, s.handleGetSessionStatus)

	clearTool := mcp.NewTool("clear_session",
		mcp.WithDescription("Reset the session to its initial state: all tables, links and the "+
			"materialized snapshot are dropped and authentication is reset. Tables and links "+
			"need to be re-registered and the graph re-materialized before new predictions."),
		mcp.WithBoolean("forget",
			mcp.Description("Also remove the API key cached in the OS credential store. By "+
				"default the stored key survives, so the session re-authenticates without an "+
				"interactive flow."),
		),
	)
	s.mcpServer.AddTool(clearTool, s.handleClearSession)
}

func (s *Server) handleGetSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return ok("Session status retrieved successfully", s.session.Status()), nil
}

func (s *Server) handleClearSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	forget := request.GetBool("forget", false)
	if err := s.session.Clear(forget); err != nil {
		return fail("Failed to clear session", err), nil
	}
	return ok("Session cleared successfully", nil), nil
}
