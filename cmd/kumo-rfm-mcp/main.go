// Package main is the entry point for the kumo-rfm-mcp server.
//
// The server speaks the Model Context Protocol over stdin/stdout, so all
// diagnostics go to stderr. Running the binary with no arguments starts the
// server; MCP clients such as Claude Desktop invoke it exactly that way.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kumorfm/internal/config"
	"kumorfm/internal/logging"
	"kumorfm/internal/mcpserver"
)

// version is overridden at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "kumo-rfm-mcp",
	Short: "MCP server for the KumoRFM relational foundation model",
	Long: "kumo-rfm-mcp exposes the KumoRFM relational foundation model through the\n" +
		"Model Context Protocol: table file discovery and inspection, graph metadata\n" +
		"management, materialization, and predictive queries over stdio.",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the server version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("kumo-rfm-mcp %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd, versionCmd)
}

func runServer() error {
	logger := logging.GetDefault()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		return err
	}

	srv, err := mcpserver.NewServer(cfg, logger, version)
	if err != nil {
		logger.Error("Failed to initialize server", "error", err)
		return err
	}
	return srv.Start()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
