// Package hook handles agent lifecycle events: extraction runs triggered at
// compaction or session end, and the pending-learn handoff used when no API
// key is available at hook time.
package hook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/extractor"
	"github.com/distill-sh/distill/internal/knowledge"
	"github.com/distill-sh/distill/internal/tools"
)

// pendingFile is written under ~/.distill when a hook fires without a
// configured API key, so the next session can pick the transcript up.
const pendingFile = "pending-learn.json"

// pendingMaxAge bounds how long a pending handoff stays actionable. Older
// entries are discarded on consumption.
const pendingMaxAge = 24 * time.Hour

// Event is the JSON payload an agent delivers on stdin when a lifecycle
// hook fires.
type Event struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd,omitempty"`
	HookEventName  string `json:"hook_event_name,omitempty"`
}

// pendingLearn is the handoff record persisted when extraction cannot run.
type pendingLearn struct {
	SessionID      string `json:"session_id"`
	TranscriptPath string `json:"transcript_path"`
	Cwd            string `json:"cwd,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// extractionClient is the slice of the extractor the hook needs; tests
// inject a mock through newClient.
type extractionClient interface {
	Extract(ctx context.Context, opts extractor.Options) ([]knowledge.Input, error)
}

var newClient = func(cfg *config.Config) (extractionClient, error) {
	return extractor.NewClient(cfg)
}

// Run reads one hook event from in and runs the extraction pipeline for its
// transcript. PreCompact events record a pre_compact trigger; everything
// else is treated as session end. When no API key is configured the event
// is written to the pending-learn file instead of failing the session.
func Run(ctx context.Context, in io.Reader, cfg *config.Config) error {
	var ev Event
	if err := json.NewDecoder(in).Decode(&ev); err != nil {
		return fmt.Errorf("hook: decoding event: %w", err)
	}
	if ev.SessionID == "" || ev.TranscriptPath == "" {
		return errors.New("hook: event requires session_id and transcript_path")
	}

	trigger := knowledge.TriggerSessionEnd
	if ev.HookEventName == "PreCompact" {
		trigger = knowledge.TriggerPreCompact
	}

	client, err := newClient(cfg)
	if errors.Is(err, extractor.ErrNoAPIKey) {
		if werr := writePending(ev); werr != nil {
			return werr
		}
		log.Printf("hook: no API key configured, deferred extraction for session %s", ev.SessionID)
		return nil
	}
	if err != nil {
		return err
	}

	root, _ := knowledge.DetectProjectRoot(ev.Cwd)

	inputs, err := client.Extract(ctx, extractor.Options{
		TranscriptPath: ev.TranscriptPath,
		SessionID:      ev.SessionID,
		Trigger:        trigger,
		ProjectName:    knowledge.ProjectName(root),
	})
	if err != nil {
		return fmt.Errorf("hook: extraction failed: %w", err)
	}
	if len(inputs) == 0 {
		log.Printf("hook: no extractable knowledge in session %s (%s)", ev.SessionID, trigger)
		return nil
	}

	saved := tools.SaveChunks(inputs, root)
	log.Printf("hook: saved %d/%d knowledge chunks from session %s (%s)", saved, len(inputs), ev.SessionID, trigger)
	return nil
}

// SessionStart consumes a pending-learn handoff, if one exists and is fresh,
// and writes an additionalContext payload to out prompting an in-session
// learn call. The pending file is removed regardless of its contents.
func SessionStart(out io.Writer) error {
	path, err := pendingPath()
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	// Consume-once: remove before acting so a bad payload can't wedge
	// every future session start.
	_ = os.Remove(path)

	var p pendingLearn
	if err := json.Unmarshal(data, &p); err != nil || p.TranscriptPath == "" {
		log.Printf("hook: discarding malformed pending-learn file")
		return nil
	}

	if ts, err := time.Parse(time.RFC3339, p.Timestamp); err != nil || time.Since(ts) > pendingMaxAge {
		log.Printf("hook: discarding stale pending-learn entry for session %s", p.SessionID)
		return nil
	}

	payload := map[string]string{
		"additionalContext": fmt.Sprintf(
			"A previous session (%s) ended before knowledge extraction could run because no API key was configured. "+
				"If an API key is now available, call the learn tool with transcript_path=%q and session_id=%q to capture it.",
			p.SessionID, p.TranscriptPath, p.SessionID,
		),
	}
	return json.NewEncoder(out).Encode(payload)
}

func pendingPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, ".distill")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return filepath.Join(dir, pendingFile), nil
}

func writePending(ev Event) error {
	path, err := pendingPath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(pendingLearn{
		SessionID:      ev.SessionID,
		TranscriptPath: ev.TranscriptPath,
		Cwd:            ev.Cwd,
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
