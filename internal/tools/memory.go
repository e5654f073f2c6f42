package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/knowledge"
)

// MemoryTool handles the memory MCP tool: promote/demote scope, delete
// entries, or crystallize rules.
type MemoryTool struct {
	cfg *config.Config
}

// NewMemoryTool creates a MemoryTool.
func NewMemoryTool(cfg *config.Config) *MemoryTool {
	return &MemoryTool{cfg: cfg}
}

// Definition returns the MCP tool definition for memory.
func (t *MemoryTool) Definition() mcp.Tool {
	return mcp.NewTool("memory",
		mcp.WithDescription("Manage knowledge: promote/demote scope, delete entries, or crystallize rules"),
		mcp.WithString("action",
			mcp.Required(),
			mcp.Enum("promote", "demote", "delete", "crystallize"),
			mcp.Description("promote: project->global, demote: global->project, delete: remove, crystallize: generate rules from accumulated knowledge"),
		),
		mcp.WithString("id",
			mcp.Description("Knowledge entry ID (required for promote/demote/delete, ignored for crystallize)"),
		),
	)
}

// Handle processes the memory tool call.
func (t *MemoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	action := req.GetString("action", "")
	id := req.GetString("id", "")
	root, _ := detectRoot("")

	switch action {
	case "crystallize":
		return t.handleCrystallize(ctx, root)
	case "delete":
		if id == "" {
			return mcp.NewToolResultError("action \"delete\" requires an id parameter"), nil
		}
		return t.handleDelete(id, root)
	case "promote", "demote":
		if id == "" {
			return mcp.NewToolResultError(fmt.Sprintf("action %q requires an id parameter", action)), nil
		}
		return t.handleMove(action, id, root)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown action %q", action)), nil
	}
}

// handleDelete removes an entry from whichever scope holds it, from both the
// record store and the search index.
func (t *MemoryTool) handleDelete(id, root string) (*mcp.CallToolResult, error) {
	for _, scope := range []knowledge.Scope{knowledge.ScopeGlobal, knowledge.ScopeProject} {
		rec, idx, err := openStores(scope, root)
		if err != nil {
			continue // scope may not exist yet
		}

		deleted, err := rec.Delete(id)
		if err == nil && deleted {
			_ = idx.Remove(id)
			rec.Close()
			idx.Close()
			return mcp.NewToolResultText(fmt.Sprintf("Deleted knowledge entry %s from %s scope.", id, scope)), nil
		}
		rec.Close()
		idx.Close()
	}
	return mcp.NewToolResultText(fmt.Sprintf("Knowledge entry %s not found.", id)), nil
}

// handleMove performs promote (project -> global) or demote (global ->
// project) as a cross-store move: insert into the destination with a fresh
// id, then delete from the source. Ids are never reused across a move.
func (t *MemoryTool) handleMove(action, id, root string) (*mcp.CallToolResult, error) {
	fromScope, toScope := knowledge.ScopeProject, knowledge.ScopeGlobal
	if action == "demote" {
		fromScope, toScope = knowledge.ScopeGlobal, knowledge.ScopeProject
	}

	if toScope == knowledge.ScopeProject && root == "" {
		return mcp.NewToolResultError("cannot demote to project scope: no project root detected"), nil
	}
	if fromScope == knowledge.ScopeProject && root == "" {
		return mcp.NewToolResultError("cannot promote from project scope: no project root detected"), nil
	}

	fromRec, fromIdx, err := openStores(fromScope, root)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open %s stores: %v", fromScope, err)), nil
	}
	defer fromRec.Close()
	defer fromIdx.Close()

	toRec, toIdx, err := openStores(toScope, root)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("open %s stores: %v", toScope, err)), nil
	}
	defer toRec.Close()
	defer toIdx.Close()

	chunk, err := fromRec.GetByID(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("lookup failed: %v", err)), nil
	}
	if chunk == nil {
		return mcp.NewToolResultText(fmt.Sprintf("Knowledge entry %s not found in %s scope.", id, fromScope)), nil
	}

	project := ""
	if toScope == knowledge.ScopeProject {
		project = knowledge.ProjectName(root)
	}

	inserted, err := toRec.Insert(knowledge.Input{
		Content:    chunk.Content,
		Type:       chunk.Type,
		Scope:      toScope,
		Project:    project,
		Tags:       chunk.Tags,
		Source:     chunk.Source,
		Confidence: chunk.Confidence,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("error during %s: %v", action, err)), nil
	}
	// An index failure leaves the destination record unsearchable but the
	// move still proceeds so the source copy is not duplicated.
	_ = toIdx.Index(inserted.ID, inserted.Content, inserted.Tags)

	if _, err := fromRec.Delete(id); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("inserted as %s but failed to remove source entry: %v", inserted.ID, err)), nil
	}
	_ = fromIdx.Remove(id)

	label := "Promoted"
	if action == "demote" {
		label = "Demoted"
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"%s knowledge entry.\n%s → %s\nNew ID: %s\nContent: %s",
		label, fromScope, toScope, inserted.ID, snippet(chunk.Content, 100),
	)), nil
}

func (t *MemoryTool) handleCrystallize(ctx context.Context, root string) (*mcp.CallToolResult, error) {
	client, err := newExtractionClient(t.cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	report, err := RunCrystallize(ctx, client, root)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("crystallize failed: %v", err)), nil
	}
	if report.TotalRules == 0 && len(report.Created)+len(report.Updated)+len(report.Removed) == 0 {
		return mcp.NewToolResultText("No knowledge chunks to crystallize."), nil
	}

	lines := []string{"Crystallize complete."}
	if len(report.Created) > 0 {
		lines = append(lines, "Created: "+strings.Join(report.Created, ", "))
	}
	if len(report.Updated) > 0 {
		lines = append(lines, "Updated: "+strings.Join(report.Updated, ", "))
	}
	if len(report.Removed) > 0 {
		lines = append(lines, "Removed: "+strings.Join(report.Removed, ", "))
	}
	lines = append(lines, fmt.Sprintf("Total rules: %d", report.TotalRules))
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}
