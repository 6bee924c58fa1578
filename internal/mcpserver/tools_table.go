package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"kumorfm/internal/inspector"
)

// inspectConcurrency bounds parallel file previews in inspect_table_files.
const inspectConcurrency = 4

func (s *Server) registerTableTools() {
	findTool := mcp.NewTool("find_table_files",
		mcp.WithDescription("Discover all table-like files (CSV, Parquet) in a directory. "+
			"Returns each file's path, default table name and size."),
		mcp.WithString("directory",
			mcp.Required(),
			mcp.Description("Root directory to scan"),
		),
		mcp.WithBoolean("recursive",
			mcp.Description("Whether to scan subdirectories recursively. Use with caution "+
				"in large directories such as home folders."),
		),
	)
	s.mcpServer.AddTool(findTool, s.handleFindTableFiles)

	inspectTool := mcp.NewTool("inspect_table_files",
		mcp.WithDescription("Inspect the first rows of one or more table-like files. "+
			"Each row is a mapping from column names to values. Files are read in parallel."),
		mcp.WithArray("paths",
			mcp.Required(),
			mcp.Description("File paths to inspect"),
		),
		mcp.WithNumber("num_rows",
			mcp.Description("Number of rows to read per file (default 20, capped by the "+
				"configured maximum)"),
		),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspectTableFiles)

	lookupTool := mcp.NewTool("lookup_table_rows",
		mcp.WithDescription("Look up rows of a registered table by primary key values. "+
			"The graph must be materialized first. Rows are returned in request order."),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("Name of a registered table with a primary key"),
		),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Primary key values to look up"),
		),
	)
	s.mcpServer.AddTool(lookupTool, s.handleLookupTableRows)
}

func (s *Server) handleFindTableFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	directory, err := request.RequireString("directory")
	if err != nil {
		return fail("Missing or invalid 'directory' parameter", err), nil
	}
	recursive := request.GetBool("recursive", false)

	sources, err := inspector.Discover(ctx, directory, recursive)
	if err != nil {
		return fail(fmt.Sprintf("Failed to scan directory %q", directory), err), nil
	}

	return ok(
		fmt.Sprintf("Discovered %d table files", len(sources)),
		map[string]any{"files": sources},
	), nil
}

// inspectedTable is one file's preview in the inspect_table_files response.
type inspectedTable struct {
	Path    string           `json:"path"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

func (s *Server) handleInspectTableFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths := request.GetStringSlice("paths", nil)
	if len(paths) == 0 {
		return fail("Missing or empty 'paths' parameter", nil), nil
	}
	numRows := request.GetInt("num_rows", inspector.DefaultPreviewRows)
	if numRows > s.cfg.MaxPreviewRows {
		numRows = s.cfg.MaxPreviewRows
	}

	results := make([]inspectedTable, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(inspectConcurrency)
	for i, path := range paths {
		g.Go(func() error {
			preview, err := inspector.PreviewFile(gctx, path, numRows)
			if err != nil {
				return fmt.Errorf("could not inspect %q: %w", path, err)
			}
			results[i] = inspectedTable{Path: path, Columns: preview.Columns, Rows: preview.Rows}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fail("Failed to inspect table files", err), nil
	}

	return ok(
		fmt.Sprintf("Inspected %d table files", len(results)),
		map[string]any{"tables": results},
	), nil
}

func (s *Server) handleLookupTableRows(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		TableName string `json:"table_name"`
		IDs       []any  `json:"ids"`
	}
	if err := request.BindArguments(&args); err != nil {
		return fail("Invalid arguments", err), nil
	}
	if args.TableName == "" {
		return fail("Missing or invalid 'table_name' parameter", nil), nil
	}
	if len(args.IDs) > s.cfg.MaxPreviewRows {
		return fail(fmt.Sprintf("Lookup is limited to %d ids per call, got %d",
			s.cfg.MaxPreviewRows, len(args.IDs)), nil), nil
	}

	snapshot, err := s.session.FreshSnapshot()
	if err != nil {
		return fail("Graph is not ready for lookups", err), nil
	}
	table, found := snapshot.Table(args.TableName)
	if !found {
		return fail(fmt.Sprintf("Table %q is not part of the materialized graph", args.TableName), nil), nil
	}
	if table.PrimaryKey == "" {
		return fail(fmt.Sprintf("Table %q has no primary key to look up by", args.TableName), nil), nil
	}

	preview, err := inspector.LookupRows(ctx, table.Path, table.PrimaryKey, args.IDs)
	if err != nil {
		return fail(fmt.Sprintf("Failed to look up rows in %q", args.TableName), err), nil
	}

	return ok(
		fmt.Sprintf("Found %d of %d requested rows", len(preview.Rows), len(args.IDs)),
		map[string]any{"columns": preview.Columns, "rows": preview.Rows},
	), nil
}
