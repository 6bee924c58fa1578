package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"kumorfm/internal/graph"
	"kumorfm/internal/inspector"
)

func (s *Server) registerGraphTools() {
	inspectTool := mcp.NewTool("inspect_graph_metadata",
		mcp.WithDescription("Obtain the complete graph structure: all registered tables with "+
			"their columns, semantic types and keys, plus the links between them. The graph "+
			"needs to be materialized before predictions can run."),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspectGraphMetadata)

	updateTool := mcp.NewTool("update_graph_metadata",
		mcp.WithDescription("Apply a metadata patch to the graph: add, update or remove tables "+
			"and links in a single atomic operation. Either every item commits or nothing "+
			"changes. Semantic types are inferred from file previews for added tables and can "+
			"be overridden per column. Removing a table drops the links that reference it."),
		mcp.WithArray("tables_to_add",
			mcp.Description("Tables to register: objects with 'path', 'name' and optional "+
				"'primary_key', 'time_column' and 'stypes' (column name to semantic type, one "+
				"of ID, numerical, categorical, timestamp, text)"),
		),
		mcp.WithObject("tables_to_update",
			mcp.Description("Partial updates keyed by table name: 'primary_key' and "+
				"'time_column' (empty string clears), 'stypes' overrides"),
		),
		mcp.WithArray("tables_to_remove",
			mcp.Description("Names of tables to remove"),
		),
		mcp.WithArray("links_to_add",
			mcp.Description("Links to add: objects with 'source_table', 'foreign_key', "+
				"'destination_table'"),
		),
		mcp.WithArray("links_to_remove",
			mcp.Description("Links to remove, same shape as links_to_add"),
		),
	)
	s.mcpServer.AddTool(updateTool, s.handleUpdateGraphMetadata)

	inferTool := mcp.NewTool("infer_links",
		mcp.WithDescription("Propose foreign-key links by matching column names against primary "+
			"keys of other tables. Proposals are not committed; add the ones you want through "+
			"update_graph_metadata."),
	)
	s.mcpServer.AddTool(inferTool, s.handleInferLinks)

	mermaidTool := mcp.NewTool("get_mermaid",
		mcp.WithDescription("Render the current graph as a mermaid entity-relationship diagram."),
		mcp.WithBoolean("show_columns",
			mcp.Description("Show all columns (default true). When false, only key and time "+
				"columns are listed, which keeps large schemas readable."),
		),
	)
	s.mcpServer.AddTool(mermaidTool, s.handleGetMermaid)

	materializeTool := mcp.NewTool("materialize_graph",
		mcp.WithDescription("Validate graph completeness and scan every table file, producing "+
			"an immutable snapshot with row counts and time ranges. Predictions run against "+
			"the snapshot; any later metadata change requires re-materialization."),
	)
	s.mcpServer.AddTool(materializeTool, s.handleMaterializeGraph)
}

func (s *Server) handleInspectGraphMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	meta := s.store.Inspect()
	return ok("Graph structure retrieved successfully", meta), nil
}

func (s *Server) handleUpdateGraphMetadata(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var patch graph.Patch
	if err := request.BindArguments(&patch); err != nil {
		return fail("Invalid graph metadata patch", err), nil
	}

	meta, err := s.store.ApplyPatch(ctx, &patch)
	if err != nil {
		return fail("Failed to update graph metadata", err), nil
	}

	return ok("Graph metadata updated successfully", map[string]any{"graph": meta}), nil
}

func (s *Server) handleInferLinks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	proposals := s.store.InferLinks()
	if proposals == nil {
		proposals = []graph.Link{}
	}
	return ok("Link inference completed", map[string]any{"inferred_links": proposals}), nil
}

func (s *Server) handleGetMermaid(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	showColumns := request.GetBool("show_columns", true)
	return ok("Mermaid diagram generated", map[string]any{
		"mermaid": s.store.Mermaid(showColumns),
	}), nil
}

func (s *Server) handleMaterializeGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snapshot, err := s.store.Materialize(ctx, inspector.ScanStats)
	if err != nil {
		return fail("Failed to materialize graph", err), nil
	}
	s.session.SetSnapshot(snapshot)

	return ok(
		fmt.Sprintf("Graph materialized with %d nodes and %d edges", snapshot.NumNodes, snapshot.NumEdges),
		snapshot,
	), nil
}
