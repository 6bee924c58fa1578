// Package mcpserver implements the Model Context Protocol (MCP) server for
// KumoRFM using the mcp-go library.
//
// The server exposes tools for table file discovery and inspection, graph
// metadata management, materialization, predictive queries, and session
// management, plus the embedded documentation corpus as kumo:// resources.
// It communicates via stdin/stdout using JSON-RPC 2.0 as specified by the
// MCP standard; all logging goes to stderr.
package mcpserver

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"kumorfm/internal/config"
	"kumorfm/internal/docs"
	"kumorfm/internal/graph"
	"kumorfm/internal/kumo"
	"kumorfm/internal/logging"
	"kumorfm/internal/session"
)

// Server wires the graph store, session and query gateway behind the MCP
// tool surface.
type Server struct {
	cfg     *config.Config
	logger  *logging.AppLogger
	store   *graph.Store
	session *session.Session
	gateway *kumo.Client
	docs    []docs.Resource

	mcpServer *server.MCPServer
}

// NewServer creates a fully wired MCP server instance.
func NewServer(cfg *config.Config, logger *logging.AppLogger, version string) (*Server, error) {
	corpus, err := docs.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load documentation corpus: %w", err)
	}

	store := graph.NewStore()
	sess := session.New(cfg, store)

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		session: sess,
		gateway: kumo.NewClient(cfg.APIURL, sess, cfg.RequestTimeout),
		docs:    corpus,
	}

	s.mcpServer = server.NewMCPServer(
		"kumo-rfm-mcp",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, true),
	)
	s.registerTableTools()
	s.registerGraphTools()
	s.registerModelTools()
	s.registerSessionTools()
	s.registerDocsTools()
	s.registerDocsResources()

	return s, nil
}

// Start serves MCP over stdio until the client disconnects.
func (s *Server) Start() error {
	s.logger.Info("Starting MCP server",
		"api_url", s.cfg.APIURL,
		"resources", len(s.docs))

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}
	return nil
}
