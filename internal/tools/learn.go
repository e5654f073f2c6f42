package tools

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/extractor"
	"github.com/distill-sh/distill/internal/knowledge"
	"github.com/distill-sh/distill/internal/rules"
	"github.com/distill-sh/distill/internal/store"
)

// lastCrystallizeKey is the meta key tracking when crystallize last ran.
const lastCrystallizeKey = "last_crystallize"

// LearnTool handles the learn MCP tool: extract knowledge from a transcript
// and persist it.
type LearnTool struct {
	cfg *config.Config
}

// NewLearnTool creates a LearnTool.
func NewLearnTool(cfg *config.Config) *LearnTool {
	return &LearnTool{cfg: cfg}
}

// Definition returns the MCP tool definition for learn.
func (t *LearnTool) Definition() mcp.Tool {
	return mcp.NewTool("learn",
		mcp.WithDescription("Extract and save knowledge from a conversation transcript"),
		mcp.WithString("transcript_path",
			mcp.Required(),
			mcp.Description("Path to the .jsonl transcript file"),
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session ID for tracking source"),
		),
		mcp.WithString("scope",
			mcp.Enum("global", "project"),
			mcp.Description("Force scope (default: auto-detect per chunk)"),
		),
	)
}

// Handle processes the learn tool call. Each extracted chunk is written to
// the record store and the search index of its own scope; a single chunk's
// failure is reported but does not abort the rest of the batch.
func (t *LearnTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	transcriptPath := req.GetString("transcript_path", "")
	if transcriptPath == "" {
		return mcp.NewToolResultError("'transcript_path' is required"), nil
	}
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		return mcp.NewToolResultError("'session_id' is required"), nil
	}
	scopeParam := req.GetString("scope", "")
	if scopeParam != "" && !knowledge.ValidScope(scopeParam) {
		return mcp.NewToolResultError(fmt.Sprintf("invalid scope %q", scopeParam)), nil
	}

	client, err := newExtractionClient(t.cfg)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	root, _ := detectRoot("")
	inputs, err := client.Extract(ctx, extractor.Options{
		TranscriptPath: transcriptPath,
		SessionID:      sessionID,
		Trigger:        knowledge.TriggerManual,
		ProjectName:    knowledge.ProjectName(root),
		ScopeOverride:  knowledge.Scope(scopeParam),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("extraction failed: %v", err)), nil
	}
	if len(inputs) == 0 {
		return mcp.NewToolResultText("No extractable knowledge found in this transcript."), nil
	}

	saved := SaveChunks(inputs, root)

	var b strings.Builder
	fmt.Fprintf(&b, "Extracted %d knowledge chunks, saved %d.\n", len(inputs), saved)
	for _, in := range inputs {
		fmt.Fprintf(&b, "\n- [%s] %s", in.Type, snippet(in.Content, 80))
	}

	if msg := t.maybeAutoCrystallize(ctx, client, root); msg != "" {
		b.WriteString("\n\n")
		b.WriteString(msg)
	}

	return mcp.NewToolResultText(b.String()), nil
}

// SaveChunks dual-writes each input into its own scope's record store and
// search index, returning how many were fully persisted. The two writes are
// back-to-back best effort: an index failure after a successful insert
// leaves the chunk stored but unsearchable, and it is not counted as saved.
func SaveChunks(inputs []knowledge.Input, projectRoot string) int {
	saved := 0
	for _, in := range inputs {
		rec, idx, err := openStores(in.Scope, projectRoot)
		if err != nil {
			log.Printf("learn: open %s stores: %v", in.Scope, err)
			continue
		}

		chunk, err := rec.Insert(in)
		if err == nil {
			if err := idx.Index(chunk.ID, chunk.Content, chunk.Tags); err == nil {
				saved++
			} else {
				log.Printf("learn: index chunk %s: %v", chunk.ID, err)
			}
		} else {
			log.Printf("learn: insert chunk: %v", err)
		}

		rec.Close()
		idx.Close()
	}
	return saved
}

// maybeAutoCrystallize runs crystallize when enough new chunks accumulated
// since the last run. Failures produce a warning line, never a tool error.
func (t *LearnTool) maybeAutoCrystallize(ctx context.Context, client extractionClient, root string) string {
	if t.cfg.AutoCrystallizeThreshold <= 0 {
		return ""
	}

	rec, err := store.OpenRecordStore(knowledge.GlobalLocation())
	if err != nil {
		return ""
	}
	last, _ := rec.GetMeta(lastCrystallizeKey)
	if last == "" {
		last = "1970-01-01T00:00:00Z"
	}
	n, err := rec.CountSince(last)
	rec.Close()
	if err != nil || n < t.cfg.AutoCrystallizeThreshold {
		return ""
	}

	report, err := RunCrystallize(ctx, client, root)
	if err != nil {
		return fmt.Sprintf("Auto-crystallize failed: %v", err)
	}

	var parts []string
	if len(report.Created) > 0 {
		parts = append(parts, "created: "+strings.Join(report.Created, ", "))
	}
	if len(report.Updated) > 0 {
		parts = append(parts, "updated: "+strings.Join(report.Updated, ", "))
	}
	if len(report.Removed) > 0 {
		parts = append(parts, "removed: "+strings.Join(report.Removed, ", "))
	}
	summary := strings.Join(parts, "; ")
	if summary == "" {
		summary = "no changes"
	}
	return fmt.Sprintf("Auto-crystallize triggered (%d chunks since last run): %s", n, summary)
}

// RunCrystallize gathers every chunk from both scopes, asks the model for
// rule changes, applies them, and records the run timestamp.
func RunCrystallize(ctx context.Context, client extractionClient, projectRoot string) (*rules.Report, error) {
	var all []knowledge.Chunk
	for _, scope := range scopesFor("", projectRoot != "") {
		loc, err := knowledge.Resolve(scope, projectRoot)
		if err != nil {
			continue
		}
		rec, err := store.OpenRecordStore(loc)
		if err != nil {
			continue // scope may not exist yet
		}
		chunks, err := rec.GetAll()
		rec.Close()
		if err == nil {
			all = append(all, chunks...)
		}
	}

	if len(all) == 0 {
		return &rules.Report{}, nil
	}

	changes, err := client.Crystallize(ctx, all, rules.ReadAll(projectRoot))
	if err != nil {
		return nil, err
	}
	report, err := rules.Apply(changes, projectRoot)
	if err != nil {
		return nil, err
	}

	if rec, err := store.OpenRecordStore(knowledge.GlobalLocation()); err == nil {
		_ = rec.SetMeta(lastCrystallizeKey, time.Now().UTC().Format(time.RFC3339))
		rec.Close()
	}
	return report, nil
}
