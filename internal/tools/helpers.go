// Package tools provides the MCP tool handlers for the distill server.
//
// Each tool follows the same pattern: a struct with dependencies injected
// via constructor, Definition() returning the mcp.Tool schema, and Handle()
// processing the request. Handlers open their own store handles per call and
// close them before returning; no handle outlives one invocation.
package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/extractor"
	"github.com/distill-sh/distill/internal/knowledge"
	"github.com/distill-sh/distill/internal/store"
)

// detectRoot is a package-level var to allow test injection.
var detectRoot = knowledge.DetectProjectRoot

// extractionClient is the slice of the extractor the tools depend on.
type extractionClient interface {
	Extract(ctx context.Context, opts extractor.Options) ([]knowledge.Input, error)
	Crystallize(ctx context.Context, chunks []knowledge.Chunk, existingRules string) ([]extractor.RuleChange, error)
}

// newExtractionClient is a package-level var to allow test injection. The
// client is constructed per call so a missing credential surfaces as a tool
// error instead of disabling the whole server.
var newExtractionClient = func(cfg *config.Config) (extractionClient, error) {
	return extractor.NewClient(cfg)
}

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// scopesFor resolves which scopes a tool operates on: an explicit scope
// parameter wins; otherwise both when a project context exists, global only
// when not.
func scopesFor(scopeParam string, hasProject bool) []knowledge.Scope {
	if scopeParam != "" {
		return []knowledge.Scope{knowledge.Scope(scopeParam)}
	}
	if hasProject {
		return []knowledge.Scope{knowledge.ScopeGlobal, knowledge.ScopeProject}
	}
	return []knowledge.Scope{knowledge.ScopeGlobal}
}

// openStores opens the record store and search index for one scope. Both
// must be closed by the caller.
func openStores(scope knowledge.Scope, projectRoot string) (*store.RecordStore, *store.SearchIndex, error) {
	loc, err := knowledge.Resolve(scope, projectRoot)
	if err != nil {
		return nil, nil, err
	}
	rec, err := store.OpenRecordStore(loc)
	if err != nil {
		return nil, nil, err
	}
	idx, err := store.OpenSearchIndex(loc)
	if err != nil {
		rec.Close()
		return nil, nil, err
	}
	return rec, idx, nil
}

// snippet shortens a string for display with an ellipsis.
func snippet(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
