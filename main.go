package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/conky/docsearch/internal/config"
	"github.com/conky/docsearch/tools"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	version     = "0.1.0"
	serverName  = "conkydocs-mcp-server"
	description = "MCP server for searching the Conky documentation"
)

func main() {
	// Handle version flag
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		fmt.Printf("%s version %s\n", serverName, version)
		os.Exit(0)
	}

	// Set up logging to stderr (MCP uses stdout for protocol)
	log.SetOutput(os.Stderr)
	log.Printf("%s v%s starting...", serverName, version)

	if err := config.LoadDotEnv(); err != nil {
		log.Printf("Warning: %v", err)
	}
	cfg, err := config.Load(config.New())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	tools.Configure(cfg)

	server := createMCPServer()

	if err := registerTools(server); err != nil {
		log.Fatalf("Failed to register tools: %v", err)
	}

	log.Printf("✓ Server ready and waiting for connections")

	// Set up cleanup on shutdown
	defer func() {
		if err := tools.CloseDocSearch(); err != nil {
			log.Printf("Error closing doc search: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Run server with stdio transport
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Printf("Server error: %v", err)
	}
}

// createMCPServer initializes the MCP server
func createMCPServer() *mcp.Server {
	server := mcp.NewServer(
		&mcp.Implementation{
			Name:    serverName,
			Version: version,
		},
		nil, // Default options
	)

	log.Printf("Server initialized: %s v%s (%s)", serverName, version, description)
	return server
}

// registerTools registers all MCP tools
func registerTools(server *mcp.Server) error {
	if err := tools.RegisterDocSearchTools(server); err != nil {
		return fmt.Errorf("failed to register doc search tools: %w", err)
	}

	log.Printf("✓ All tools registered: 4 tools (search + open + describe + refresh)")
	return nil
}
