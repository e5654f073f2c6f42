// Package rules reads and writes the distill-*.md rule files that
// crystallization produces. Rules live under ~/.distill/rules (global) and
// <project>/.distill/rules (project-local).
package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/distill-sh/distill/internal/extractor"
)

const (
	rulesSubdir = ".distill"
	filePrefix  = "distill-"
	fileSuffix  = ".md"
)

// Report summarizes one crystallize application.
type Report struct {
	Created    []string `json:"created"`
	Updated    []string `json:"updated"`
	Removed    []string `json:"removed"`
	TotalRules int      `json:"total_rules"`
}

// GlobalDir returns the per-user rules directory.
func GlobalDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, rulesSubdir, "rules"), nil
}

func projectDir(projectRoot string) string {
	return filepath.Join(projectRoot, rulesSubdir, "rules")
}

// ReadAll returns the concatenated content of every rule file across global
// and project scope, each prefixed with a "### <file>" header, or "" when no
// rules exist. Used as context for crystallization so the model updates
// rather than duplicates.
func ReadAll(projectRoot string) string {
	var parts []string

	if global, err := GlobalDir(); err == nil {
		parts = append(parts, readDir(global)...)
	}
	if projectRoot != "" {
		parts = append(parts, readDir(projectDir(projectRoot))...)
	}

	return strings.Join(parts, "\n\n")
}

func readDir(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	var parts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("### %s\n%s", name, content))
	}
	return parts
}

// Apply writes the given rule changes to disk. New files go to the project
// rules directory when a project root is known, else global; updates and
// removes are applied wherever the file already exists. Per-change failures
// are skipped so one bad change does not abort the rest.
func Apply(changes []extractor.RuleChange, projectRoot string) (*Report, error) {
	report := &Report{}

	global, err := GlobalDir()
	if err != nil {
		return nil, fmt.Errorf("rules: resolve global dir: %w", err)
	}
	dirs := []string{global}
	writeDir := global
	if projectRoot != "" {
		pd := projectDir(projectRoot)
		dirs = append(dirs, pd)
		writeDir = pd
	}

	for _, change := range changes {
		name := change.ExistingFile
		if name == "" {
			name = filePrefix + change.Topic + fileSuffix
		}

		switch change.Action {
		case "remove":
			for _, dir := range dirs {
				if err := os.Remove(filepath.Join(dir, name)); err == nil {
					report.Removed = append(report.Removed, name)
					break
				}
			}

		case "create", "update":
			target := filepath.Join(writeDir, name)
			updated := false
			for _, dir := range dirs {
				path := filepath.Join(dir, name)
				if _, err := os.Stat(path); err == nil {
					target = path
					updated = true
					break
				}
			}

			if err := os.MkdirAll(filepath.Dir(target), 0o700); err != nil {
				continue
			}
			if err := os.WriteFile(target, []byte(renderRuleFile(change)), 0o600); err != nil {
				continue
			}
			if updated {
				report.Updated = append(report.Updated, name)
			} else {
				report.Created = append(report.Created, name)
			}
		}
	}

	report.TotalRules = countRuleFiles(dirs)
	return report, nil
}

func renderRuleFile(change extractor.RuleChange) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", change.Topic)
	for _, rule := range change.Rules {
		fmt.Fprintf(&b, "- %s\n", rule)
	}
	return b.String()
}

func countRuleFiles(dirs []string) int {
	seen := map[string]bool{}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
				seen[filepath.Join(dir, name)] = true
			}
		}
	}
	return len(seen)
}

// List returns the rule file names present across both scopes, sorted.
func List(projectRoot string) []string {
	seen := map[string]bool{}
	collect := func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return
		}
		for _, e := range entries {
			name := e.Name()
			if !e.IsDir() && strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileSuffix) {
				seen[name] = true
			}
		}
	}

	if global, err := GlobalDir(); err == nil {
		collect(global)
	}
	if projectRoot != "" {
		collect(projectDir(projectRoot))
	}

	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
