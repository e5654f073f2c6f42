package rules

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/distill-sh/distill/internal/extractor"
)

// setHome points the global rules directory at a temp dir.
func setHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func TestApply_CreateInProjectDir(t *testing.T) {
	setHome(t)
	root := t.TempDir()

	report, err := Apply([]extractor.RuleChange{
		{Topic: "error-handling", Action: "create", Rules: []string{"Wrap errors with %w", "Never panic in libraries"}},
	}, root)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if len(report.Created) != 1 || report.Created[0] != "distill-error-handling.md" {
		t.Errorf("created = %v", report.Created)
	}
	if report.TotalRules != 1 {
		t.Errorf("total rules = %d, want 1", report.TotalRules)
	}

	content, err := os.ReadFile(filepath.Join(root, ".distill", "rules", "distill-error-handling.md"))
	if err != nil {
		t.Fatalf("rule file missing in project dir: %v", err)
	}
	text := string(content)
	if !strings.HasPrefix(text, "# error-handling\n") {
		t.Errorf("file = %q", text)
	}
	if !strings.Contains(text, "- Wrap errors with %w\n") || !strings.Contains(text, "- Never panic in libraries\n") {
		t.Errorf("rules missing from file: %q", text)
	}
}

func TestApply_CreateGlobalWithoutProjectRoot(t *testing.T) {
	home := setHome(t)

	_, err := Apply([]extractor.RuleChange{
		{Topic: "go-style", Action: "create", Rules: []string{"Use gofmt"}},
	}, "")
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	if _, err := os.Stat(filepath.Join(home, ".distill", "rules", "distill-go-style.md")); err != nil {
		t.Errorf("rule file missing in global dir: %v", err)
	}
}

func TestApply_UpdateInPlace(t *testing.T) {
	home := setHome(t)
	root := t.TempDir()

	// Seed an existing global file; the update must land there, not in
	// the project dir.
	globalDir := filepath.Join(home, ".distill", "rules")
	if err := os.MkdirAll(globalDir, 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(globalDir, "distill-testing.md"), []byte("# testing\n\n- old rule\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	report, err := Apply([]extractor.RuleChange{
		{Topic: "testing", Action: "update", Rules: []string{"new rule"}, ExistingFile: "distill-testing.md"},
	}, root)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Updated) != 1 {
		t.Errorf("updated = %v", report.Updated)
	}

	content, _ := os.ReadFile(filepath.Join(globalDir, "distill-testing.md"))
	if !strings.Contains(string(content), "- new rule\n") {
		t.Errorf("global file not updated: %q", content)
	}
	if _, err := os.Stat(filepath.Join(root, ".distill", "rules", "distill-testing.md")); err == nil {
		t.Error("update created a duplicate project file")
	}
}

func TestApply_Remove(t *testing.T) {
	setHome(t)
	root := t.TempDir()

	if _, err := Apply([]extractor.RuleChange{
		{Topic: "obsolete", Action: "create", Rules: []string{"old"}},
	}, root); err != nil {
		t.Fatal(err)
	}

	report, err := Apply([]extractor.RuleChange{
		{Topic: "obsolete", Action: "remove"},
	}, root)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if len(report.Removed) != 1 {
		t.Errorf("removed = %v", report.Removed)
	}
	if report.TotalRules != 0 {
		t.Errorf("total rules = %d, want 0", report.TotalRules)
	}
}

func TestReadAll(t *testing.T) {
	setHome(t)
	root := t.TempDir()

	if ReadAll(root) != "" {
		t.Error("expected empty rules context before any apply")
	}

	if _, err := Apply([]extractor.RuleChange{
		{Topic: "logging", Action: "create", Rules: []string{"Log to stderr"}},
	}, root); err != nil {
		t.Fatal(err)
	}

	all := ReadAll(root)
	if !strings.Contains(all, "### distill-logging.md") {
		t.Errorf("missing file header: %q", all)
	}
	if !strings.Contains(all, "- Log to stderr") {
		t.Errorf("missing rule body: %q", all)
	}
}

func TestList(t *testing.T) {
	setHome(t)
	root := t.TempDir()

	if _, err := Apply([]extractor.RuleChange{
		{Topic: "b-topic", Action: "create", Rules: []string{"x"}},
		{Topic: "a-topic", Action: "create", Rules: []string{"y"}},
	}, root); err != nil {
		t.Fatal(err)
	}

	names := List(root)
	if len(names) != 2 {
		t.Fatalf("got %d files, want 2", len(names))
	}
	if names[0] != "distill-a-topic.md" || names[1] != "distill-b-topic.md" {
		t.Errorf("names = %v, want sorted", names)
	}
}
