package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/distill-sh/distill/internal/knowledge"
	"github.com/distill-sh/distill/internal/store"
)

// ProfileTool handles the profile MCP tool: aggregate statistics over the
// accumulated knowledge base.
type ProfileTool struct{}

// NewProfileTool creates a ProfileTool.
func NewProfileTool() *ProfileTool {
	return &ProfileTool{}
}

// Definition returns the MCP tool definition for profile.
func (t *ProfileTool) Definition() mcp.Tool {
	return mcp.NewTool("profile",
		mcp.WithDescription("View accumulated user knowledge profile and statistics"),
		mcp.WithString("scope",
			mcp.Enum("global", "project"),
			mcp.Description("Filter by scope (default: both)"),
		),
	)
}

// Handle processes the profile tool call.
func (t *ProfileTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	scopeParam := req.GetString("scope", "")
	if scopeParam != "" && !knowledge.ValidScope(scopeParam) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scope %q", scopeParam)), nil
	}

	root, hasProject := detectRoot("")
	var sections []string

	for _, scope := range scopesFor(scopeParam, hasProject) {
		section, ok := profileScope(scope, root)
		if !ok {
			sections = append(sections, fmt.Sprintf("## %s scope\n(no data yet)", strings.ToUpper(string(scope))))
			continue
		}
		sections = append(sections, section)
	}

	out := strings.Join(sections, "\n\n")
	if out == "" {
		out = "No knowledge accumulated yet."
	}
	return mcp.NewToolResultText(out), nil
}

func profileScope(scope knowledge.Scope, root string) (string, bool) {
	loc, err := knowledge.Resolve(scope, root)
	if err != nil {
		return "", false
	}
	rec, err := store.OpenRecordStore(loc)
	if err != nil {
		return "", false
	}
	defer rec.Close()

	stats, err := rec.Stats()
	if err != nil {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "## %s scope\nTotal: %d\n\nBy type:\n", strings.ToUpper(string(scope)), stats.Total)

	if len(stats.ByType) == 0 {
		b.WriteString("  (empty)")
	} else {
		types := make([]string, 0, len(stats.ByType))
		for typ := range stats.ByType {
			types = append(types, typ)
		}
		sort.Strings(types)
		for i, typ := range types {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "  %s: %d", typ, stats.ByType[typ])
		}
	}

	chunks, err := rec.Search(store.SearchFilter{Scope: scope, Limit: 25})
	if err == nil && len(chunks) > 0 {
		sort.SliceStable(chunks, func(i, j int) bool {
			return chunks[i].AccessCount > chunks[j].AccessCount
		})
		if len(chunks) > 3 {
			chunks = chunks[:3]
		}
		b.WriteString("\n\nMost accessed:")
		for _, c := range chunks {
			fmt.Fprintf(&b, "\n  - [%s] (accessed %dx) %s", c.Type, c.AccessCount, snippet(c.Content, 60))
		}
	}

	return b.String(), true
}
