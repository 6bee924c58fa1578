package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"kumorfm/internal/docs"
)

func (s *Server) registerDocsTools() {
	tool := mcp.NewTool("get_docs",
		mcp.WithDescription("Read a documentation page by its kumo:// URI. Covers the "+
			"predictive query language (PQL), data and graph preparation, and worked query "+
			"examples. Available URIs: "+strings.Join(docs.URIs(s.docs), ", ")+"."),
		mcp.WithString("resource_uri",
			mcp.Required(),
			mcp.Description("The kumo:// URI of the documentation page to read."),
		),
	)
	s.mcpServer.AddTool(tool, s.handleGetDocs)
}

func (s *Server) handleGetDocs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	uri, err := request.RequireString("resource_uri")
	if err != nil {
		return fail("Missing resource_uri", err), nil
	}

	resource, found := docs.Find(s.docs, uri)
	if !found {
		return fail(fmt.Sprintf("Unknown documentation resource %q. Available resources: %s",
			uri, strings.Join(docs.URIs(s.docs), ", ")), nil), nil
	}
	return ok(fmt.Sprintf("Retrieved documentation resource %q", uri), map[string]any{
		"uri":     resource.URI,
		"name":    resource.Name,
		"content": resource.Content,
	}), nil
}

func (s *Server) registerDocsResources() {
	for i := range s.docs {
		r := s.docs[i]
		s.mcpServer.AddResource(
			mcp.NewResource(r.URI, r.Name,
				mcp.WithResourceDescription(r.Description),
				mcp.WithMIMEType("text/markdown"),
			),
			func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
				return []mcp.ResourceContents{
					mcp.TextResourceContents{
						URI:      r.URI,
						MIMEType: "text/markdown",
						Text:     r.Content,
					},
				}, nil
			},
		)
	}
}
