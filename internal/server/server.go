// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it loads configuration and injects it into
// the tools that need it. No business logic lives here, only wiring.
package server

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/knowledge"
	"github.com/distill-sh/distill/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all five knowledge tools
// registered. Stores are opened per call inside the tools, so there is no
// cleanup to return.
func New() (*server.MCPServer, error) {
	root, _ := knowledge.DetectProjectRoot("")
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	s := server.NewMCPServer(
		"distill",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	recallTool := tools.NewRecallTool()
	s.AddTool(recallTool.Definition(), recallTool.Handle)

	learnTool := tools.NewLearnTool(cfg)
	s.AddTool(learnTool.Definition(), learnTool.Handle)

	profileTool := tools.NewProfileTool()
	s.AddTool(profileTool.Definition(), profileTool.Handle)

	digestTool := tools.NewDigestTool()
	s.AddTool(digestTool.Definition(), digestTool.Handle)

	memoryTool := tools.NewMemoryTool(cfg)
	s.AddTool(memoryTool.Definition(), memoryTool.Handle)

	return s, nil
}
