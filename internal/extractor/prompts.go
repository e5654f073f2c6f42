package extractor

import (
	_ "embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// prompts.md is the single source of truth for the extraction prompts. It is
// parsed exactly once per process; failure to find both blocks is a startup
// integrity error, not a per-request one.
//
//go:embed prompts.md
var promptsDoc string

var (
	promptsOnce    sync.Once
	systemPrompt   string
	userTemplate   string
	promptsLoadErr error
)

var fencedBlockRe = regexp.MustCompile("(?s)```\n(.*?)```")

func loadPrompts() {
	blocks := fencedBlockRe.FindAllStringSubmatch(promptsDoc, -1)
	if len(blocks) < 2 {
		promptsLoadErr = fmt.Errorf("extractor: prompts document must contain a system prompt and a user template, found %d blocks", len(blocks))
		return
	}
	systemPrompt = strings.TrimSpace(blocks[0][1])
	userTemplate = strings.TrimSpace(blocks[1][1])
}

// SystemPrompt returns the fixed extraction system prompt.
func SystemPrompt() (string, error) {
	promptsOnce.Do(loadPrompts)
	return systemPrompt, promptsLoadErr
}

// BuildExtractionPrompt substitutes the transcript and optional project
// context into the user prompt template. No other template logic exists.
func BuildExtractionPrompt(formattedTranscript, projectName string) (string, error) {
	promptsOnce.Do(loadPrompts)
	if promptsLoadErr != nil {
		return "", promptsLoadErr
	}

	projectContext := ""
	if projectName != "" {
		projectContext = fmt.Sprintf("\n\nProject context: %q", projectName)
	}

	prompt := strings.ReplaceAll(userTemplate, "{{PROJECT_CONTEXT}}", projectContext)
	prompt = strings.ReplaceAll(prompt, "{{TRANSCRIPT}}", formattedTranscript)
	return prompt, nil
}
