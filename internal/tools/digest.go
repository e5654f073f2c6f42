package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/distill-sh/distill/internal/digest"
	"github.com/distill-sh/distill/internal/knowledge"
	"github.com/distill-sh/distill/internal/store"
)

// digestScanLimit caps how many entries per scope the analysis reads.
const digestScanLimit = 1000

// DigestTool handles the digest MCP tool: read-only duplicate and staleness
// analysis across the knowledge base.
type DigestTool struct{}

// NewDigestTool creates a DigestTool.
func NewDigestTool() *DigestTool {
	return &DigestTool{}
}

// Definition returns the MCP tool definition for digest.
func (t *DigestTool) Definition() mcp.Tool {
	return mcp.NewTool("digest",
		mcp.WithDescription("Analyze patterns across accumulated knowledge: surface duplicates and stale entries"),
	)
}

// Handle processes the digest tool call. The digest mutates nothing; any
// cleanup is a separate, explicit memory operation.
func (t *DigestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	root, hasProject := detectRoot("")
	var report []string

	for _, scope := range scopesFor("", hasProject) {
		section, ok := digestScope(scope, root)
		if !ok {
			report = append(report, fmt.Sprintf("## %s scope\n(no data yet)", strings.ToUpper(string(scope))))
			continue
		}
		report = append(report, section)
	}

	out := strings.Join(report, "\n\n")
	if out == "" {
		out = "No knowledge to analyze."
	}
	return mcp.NewToolResultText(out), nil
}

func digestScope(scope knowledge.Scope, root string) (string, bool) {
	loc, err := knowledge.Resolve(scope, root)
	if err != nil {
		return "", false
	}
	rec, err := store.OpenRecordStore(loc)
	if err != nil {
		return "", false
	}
	defer rec.Close()

	entries, err := rec.Search(store.SearchFilter{Scope: scope, Limit: digestScanLimit})
	if err != nil {
		return "", false
	}

	duplicates := digest.FindDuplicates(entries)
	stale := digest.FindStale(entries)

	var b strings.Builder
	fmt.Fprintf(&b, "## %s scope (%d entries)\n", strings.ToUpper(string(scope)), len(entries))

	if len(duplicates) == 0 {
		b.WriteString("\nNo duplicates detected.")
	} else {
		fmt.Fprintf(&b, "\nPotential duplicates (%d):", len(duplicates))
		for i, pair := range duplicates {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "\n  - %q ≈ %q", snippet(pair.A.Content, 50), snippet(pair.B.Content, 50))
		}
	}

	if len(stale) > 0 {
		fmt.Fprintf(&b, "\n\nStale entries (low confidence, never accessed): %d", len(stale))
		for i, c := range stale {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "\n  - [%s] (confidence: %g) %s", c.Type, c.Confidence, snippet(c.Content, 60))
		}
	}

	return b.String(), true
}
