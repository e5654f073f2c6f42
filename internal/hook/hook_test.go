package hook

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/extractor"
	"github.com/distill-sh/distill/internal/knowledge"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

type mockClient struct {
	inputs   []knowledge.Input
	lastOpts extractor.Options
	calls    int
}

func (m *mockClient) Extract(_ context.Context, opts extractor.Options) ([]knowledge.Input, error) {
	m.calls++
	m.lastOpts = opts
	return m.inputs, nil
}

func injectClient(t *testing.T, c extractionClient, err error) {
	t.Helper()
	orig := newClient
	newClient = func(*config.Config) (extractionClient, error) { return c, err }
	t.Cleanup(func() { newClient = orig })
}

func eventJSON(t *testing.T, ev Event) *bytes.Buffer {
	t.Helper()
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatal(err)
	}
	return bytes.NewBuffer(data)
}

// ─── Run tests ───────────────────────────────────────────────────────────────

func TestRun_SessionEnd(t *testing.T) {
	setHome(t)
	client := &mockClient{inputs: []knowledge.Input{{
		Content: "Prefers explicit error checks",
		Type:    knowledge.TypePreference,
		Scope:   knowledge.ScopeGlobal,
		Source:  knowledge.Source{SessionID: "s1", Trigger: knowledge.TriggerSessionEnd},
	}}}
	injectClient(t, client, nil)

	in := eventJSON(t, Event{
		SessionID:      "s1",
		TranscriptPath: "/tmp/session.jsonl",
	})
	if err := Run(context.Background(), in, &config.Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if client.calls != 1 {
		t.Fatalf("extract called %d times, want 1", client.calls)
	}
	if client.lastOpts.Trigger != knowledge.TriggerSessionEnd {
		t.Errorf("trigger = %q, want session_end", client.lastOpts.Trigger)
	}
	if client.lastOpts.TranscriptPath != "/tmp/session.jsonl" {
		t.Errorf("transcript path = %q", client.lastOpts.TranscriptPath)
	}
}

func TestRun_PreCompactTrigger(t *testing.T) {
	setHome(t)
	client := &mockClient{}
	injectClient(t, client, nil)

	in := eventJSON(t, Event{
		SessionID:      "s1",
		TranscriptPath: "/tmp/session.jsonl",
		HookEventName:  "PreCompact",
	})
	if err := Run(context.Background(), in, &config.Config{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if client.lastOpts.Trigger != knowledge.TriggerPreCompact {
		t.Errorf("trigger = %q, want pre_compact", client.lastOpts.Trigger)
	}
}

func TestRun_RejectsIncompleteEvent(t *testing.T) {
	setHome(t)
	injectClient(t, &mockClient{}, nil)

	if err := Run(context.Background(), strings.NewReader(`{"session_id": "s1"}`), &config.Config{}); err == nil {
		t.Error("expected error for event without transcript_path")
	}
	if err := Run(context.Background(), strings.NewReader(`not json`), &config.Config{}); err == nil {
		t.Error("expected error for malformed event")
	}
}

func TestRun_NoAPIKeyWritesPending(t *testing.T) {
	home := setHome(t)
	injectClient(t, nil, extractor.ErrNoAPIKey)

	in := eventJSON(t, Event{
		SessionID:      "s1",
		TranscriptPath: "/tmp/session.jsonl",
		Cwd:            "/tmp/proj",
	})
	if err := Run(context.Background(), in, &config.Config{}); err != nil {
		t.Fatalf("Run must not fail the session without a key: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(home, ".distill", "pending-learn.json"))
	if err != nil {
		t.Fatalf("pending file missing: %v", err)
	}
	var p pendingLearn
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("pending file not valid JSON: %v", err)
	}
	if p.SessionID != "s1" || p.TranscriptPath != "/tmp/session.jsonl" {
		t.Errorf("pending = %+v", p)
	}
	if _, err := time.Parse(time.RFC3339, p.Timestamp); err != nil {
		t.Errorf("pending timestamp %q not RFC 3339: %v", p.Timestamp, err)
	}
}

// ─── SessionStart tests ──────────────────────────────────────────────────────

func writePendingFile(t *testing.T, home string, p pendingLearn) string {
	t.Helper()
	dir := filepath.Join(home, ".distill")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "pending-learn.json")
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSessionStart_ConsumesPending(t *testing.T) {
	home := setHome(t)
	path := writePendingFile(t, home, pendingLearn{
		SessionID:      "s1",
		TranscriptPath: "/tmp/session.jsonl",
		Timestamp:      time.Now().UTC().Format(time.RFC3339),
	})

	var out bytes.Buffer
	if err := SessionStart(&out); err != nil {
		t.Fatalf("SessionStart: %v", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(out.Bytes(), &payload); err != nil {
		t.Fatalf("output not valid JSON: %v", err)
	}
	ctx := payload["additionalContext"]
	if !strings.Contains(ctx, "/tmp/session.jsonl") || !strings.Contains(ctx, "s1") {
		t.Errorf("additionalContext = %q", ctx)
	}

	// Consume-once.
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("pending file still present after consumption")
	}
	out.Reset()
	if err := SessionStart(&out); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 {
		t.Errorf("second session start emitted output: %q", out.String())
	}
}

func TestSessionStart_DiscardsStale(t *testing.T) {
	home := setHome(t)
	writePendingFile(t, home, pendingLearn{
		SessionID:      "s1",
		TranscriptPath: "/tmp/session.jsonl",
		Timestamp:      time.Now().UTC().Add(-25 * time.Hour).Format(time.RFC3339),
	})

	var out bytes.Buffer
	if err := SessionStart(&out); err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("stale pending entry emitted output: %q", out.String())
	}
}

func TestSessionStart_ToleratesMalformed(t *testing.T) {
	home := setHome(t)
	dir := filepath.Join(home, ".distill")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "pending-learn.json")
	if err := os.WriteFile(path, []byte("{corrupt"), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := SessionStart(&out); err != nil {
		t.Fatalf("SessionStart must tolerate a corrupt file: %v", err)
	}
	if out.Len() != 0 {
		t.Error("corrupt pending file emitted output")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("corrupt pending file was not removed")
	}
}

func TestSessionStart_NoPendingFile(t *testing.T) {
	setHome(t)
	var out bytes.Buffer
	if err := SessionStart(&out); err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("no pending file but output emitted: %q", out.String())
	}
}
