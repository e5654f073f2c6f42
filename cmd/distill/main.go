// Distill: Conversational Knowledge Extraction MCP Server
//
// Distills agent session transcripts into persistent, searchable knowledge
// and serves it back over MCP (stdio transport).
//
// Usage:
//
//	distill serve           # Start MCP server (stdio transport)
//	distill hook            # Process a lifecycle hook event from stdin
//	distill session-start   # Emit pending-learn context for a new session
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/hook"
	"github.com/distill-sh/distill/internal/knowledge"
	distserver "github.com/distill-sh/distill/internal/server"
)

func main() {
	// Stdout carries MCP traffic and hook JSON; everything else goes to stderr.
	log.SetOutput(os.Stderr)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		if err := runServe(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "hook":
		if err := runHook(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "session-start":
		if err := hook.SessionStart(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case "--help", "-h", "help":
		printUsage()
		os.Exit(0)
	case "--version", "-v", "version":
		fmt.Printf("distill v%s\n", distserver.Version)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runServe() error {
	s, err := distserver.New()
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return server.ServeStdio(s)
}

func runHook() error {
	root, _ := knowledge.DetectProjectRoot("")
	cfg, err := config.Load(root)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	return hook.Run(context.Background(), os.Stdin, cfg)
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Distill v%s — Conversational Knowledge Extraction MCP Server

Usage:
  distill serve           Start the MCP server (stdio transport)
  distill hook            Process a lifecycle hook event (JSON on stdin)
  distill session-start   Emit pending-learn context for a new session

Configuration:
  Add to your AI tool's MCP config:

  {
    "mcpServers": {
      "distill": {
        "command": "distill",
        "args": ["serve"]
      }
    }
  }

  Set DISTILL_API_KEY (or OPENAI_API_KEY) to enable extraction.
`, distserver.Version)
}
