package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/distill-sh/distill/internal/knowledge"
)

// maxRecallResults caps the recall limit parameter.
const maxRecallResults = 20

// RecallTool handles the recall MCP tool: similarity search over the
// accumulated knowledge base.
type RecallTool struct{}

// NewRecallTool creates a RecallTool.
func NewRecallTool() *RecallTool {
	return &RecallTool{}
}

// Definition returns the MCP tool definition for recall.
func (t *RecallTool) Definition() mcp.Tool {
	return mcp.NewTool("recall",
		mcp.WithDescription("Search accumulated knowledge by semantic similarity"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query for knowledge retrieval"),
		),
		mcp.WithString("scope",
			mcp.Enum("global", "project"),
			mcp.Description("Filter by scope (default: both)"),
		),
		mcp.WithString("type",
			mcp.Enum("pattern", "preference", "decision", "mistake", "workaround"),
			mcp.Description("Filter by knowledge type"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Max results (default: 5, max: 20)"),
		),
	)
}

// Handle processes the recall tool call. Scopes whose stores do not exist
// yet are skipped so one scope's absence never hides the other's results.
func (t *RecallTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query := req.GetString("query", "")
	if query == "" {
		return mcp.NewToolResultError("'query' is required"), nil
	}

	scopeParam := req.GetString("scope", "")
	if scopeParam != "" && !knowledge.ValidScope(scopeParam) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scope %q", scopeParam)), nil
	}
	typeParam := req.GetString("type", "")
	if typeParam != "" && !knowledge.ValidType(typeParam) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid type %q", typeParam)), nil
	}

	limit := intArg(req, "limit", 5)
	if limit <= 0 {
		limit = 5
	}
	if limit > maxRecallResults {
		limit = maxRecallResults
	}

	root, hasProject := detectRoot("")
	var results []knowledge.Chunk

	for _, scope := range scopesFor(scopeParam, hasProject) {
		rec, idx, err := openStores(scope, root)
		if err != nil {
			continue // scope may not exist yet
		}

		hits, err := idx.Search(query, limit)
		if err == nil {
			for _, hit := range hits {
				chunk, err := rec.GetByID(hit.ID)
				if err != nil || chunk == nil {
					continue
				}
				if typeParam != "" && string(chunk.Type) != typeParam {
					continue
				}
				if err := rec.Touch(chunk.ID); err == nil {
					chunk.AccessCount++
				}
				results = append(results, *chunk)
			}
		}

		rec.Close()
		idx.Close()
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	if len(results) > limit {
		results = results[:limit]
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No matching knowledge found."), nil
	}

	var b strings.Builder
	for i, k := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%d. [%s] (%s, confidence: %g)\n   %s\n   tags: %s",
			i+1, k.Type, k.Scope, k.Confidence, k.Content, strings.Join(k.Tags, ", "))
	}
	return mcp.NewToolResultText(b.String()), nil
}
