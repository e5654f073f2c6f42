package knowledge

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidType(t *testing.T) {
	for _, typ := range []string{"pattern", "preference", "decision", "mistake", "workaround"} {
		if !ValidType(typ) {
			t.Errorf("ValidType(%q) = false, want true", typ)
		}
	}
	for _, typ := range []string{"", "PATTERN", "note", "idea"} {
		if ValidType(typ) {
			t.Errorf("ValidType(%q) = true, want false", typ)
		}
	}
}

func TestValidScope(t *testing.T) {
	if !ValidScope("global") || !ValidScope("project") {
		t.Error("global and project must be valid scopes")
	}
	if ValidScope("") || ValidScope("local") || ValidScope("Global") {
		t.Error("unknown scopes must be invalid")
	}
}

func TestDetectProjectRoot_Marker(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	root, ok := DetectProjectRoot(dir)
	if !ok {
		t.Fatal("expected project root to be detected")
	}
	if root != dir {
		t.Errorf("root = %q, want %q", root, dir)
	}
}

func TestDetectProjectRoot_NoMarker(t *testing.T) {
	if root, ok := DetectProjectRoot(t.TempDir()); ok {
		t.Errorf("detected unexpected root %q in empty dir", root)
	}
}

func TestDetectProjectRoot_NoUpwardWalk(t *testing.T) {
	parent := t.TempDir()
	if err := os.Mkdir(filepath.Join(parent, ".git"), 0o700); err != nil {
		t.Fatal(err)
	}
	child := filepath.Join(parent, "sub")
	if err := os.Mkdir(child, 0o700); err != nil {
		t.Fatal(err)
	}

	// Only the given directory is checked; the marker in the parent
	// must not be found.
	if root, ok := DetectProjectRoot(child); ok {
		t.Errorf("detected root %q via upward walk", root)
	}
}

func TestResolve(t *testing.T) {
	loc, err := Resolve(ScopeGlobal, "")
	if err != nil {
		t.Fatalf("Resolve(global): %v", err)
	}
	if loc.Scope != ScopeGlobal || loc.Root != "" {
		t.Errorf("global location = %+v", loc)
	}

	loc, err = Resolve(ScopeProject, "/tmp/proj")
	if err != nil {
		t.Fatalf("Resolve(project): %v", err)
	}
	if loc.Scope != ScopeProject || loc.Root != "/tmp/proj" {
		t.Errorf("project location = %+v", loc)
	}

	if _, err := Resolve(ScopeProject, ""); err != ErrNoProjectRoot {
		t.Errorf("Resolve(project, \"\") error = %v, want ErrNoProjectRoot", err)
	}
}

func TestLocationDir_CreatesProjectDir(t *testing.T) {
	root := t.TempDir()
	dir, err := ProjectLocation(root).Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	want := filepath.Join(root, ".distill", "knowledge")
	if dir != want {
		t.Errorf("dir = %q, want %q", dir, want)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("dir was not created: %v", err)
	}
}

func TestLocationDir_Global(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir, err := GlobalLocation().Dir()
	if err != nil {
		t.Fatalf("Dir: %v", err)
	}
	if dir != filepath.Join(home, ".distill", "knowledge") {
		t.Errorf("global dir = %q", dir)
	}
}

func TestProjectName(t *testing.T) {
	if got := ProjectName("/home/dev/my-api"); got != "my-api" {
		t.Errorf("ProjectName = %q, want %q", got, "my-api")
	}
	if got := ProjectName(""); got != "" {
		t.Errorf("ProjectName(\"\") = %q, want empty", got)
	}
}
