package knowledge

import (
	"errors"
	"os"
	"path/filepath"
)

// storeSubdir is the hidden directory that holds a scope's knowledge store.
const storeSubdir = ".distill"

// dbFile is the SQLite file holding both the record table and the lexical
// index for one scope.
const dbFile = "metadata.db"

// projectMarkers are checked (non-recursively) when detecting a project root.
var projectMarkers = []string{".git", "go.mod", "package.json", "pubspec.yaml", "AGENT.md"}

// ErrNoProjectRoot is returned when a project-scope location is requested
// without a project root. This is a configuration error, not a soft miss.
var ErrNoProjectRoot = errors.New("knowledge: project scope requires a project root")

// Location identifies one scope's storage: the global per-user store, or a
// project-local store rooted at Root. Root is set iff Scope == ScopeProject.
type Location struct {
	Scope Scope
	Root  string
}

// GlobalLocation returns the location of the per-user global store.
func GlobalLocation() Location {
	return Location{Scope: ScopeGlobal}
}

// ProjectLocation returns the location of a project-local store.
func ProjectLocation(root string) Location {
	return Location{Scope: ScopeProject, Root: root}
}

// Resolve returns a Location for the given scope, using projectRoot when the
// scope is project. An empty projectRoot for project scope is an error.
func Resolve(scope Scope, projectRoot string) (Location, error) {
	if scope == ScopeGlobal {
		return GlobalLocation(), nil
	}
	if projectRoot == "" {
		return Location{}, ErrNoProjectRoot
	}
	return ProjectLocation(projectRoot), nil
}

// Dir returns the storage directory for the location, creating it lazily.
func (l Location) Dir() (string, error) {
	var dir string
	switch l.Scope {
	case ScopeGlobal:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, storeSubdir, "knowledge")
	case ScopeProject:
		if l.Root == "" {
			return "", ErrNoProjectRoot
		}
		dir = filepath.Join(l.Root, storeSubdir, "knowledge")
	default:
		return "", errors.New("knowledge: unknown scope " + string(l.Scope))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// DBPath returns the SQLite database path for the location, creating the
// parent directory lazily.
func (l Location) DBPath() (string, error) {
	dir, err := l.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbFile), nil
}

// DetectProjectRoot checks whether cwd looks like a project root by marker
// file presence. Only the given directory is checked, no upward walk. An
// empty cwd defaults to the process working directory. The second return is
// false when no project context exists; callers then operate in global
// scope only.
func DetectProjectRoot(cwd string) (string, bool) {
	dir := cwd
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", false
		}
		dir = wd
	}

	for _, marker := range projectMarkers {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, true
		}
	}
	return "", false
}

// ProjectName derives a display name for a project root (its base directory).
func ProjectName(root string) string {
	if root == "" {
		return ""
	}
	return filepath.Base(root)
}
