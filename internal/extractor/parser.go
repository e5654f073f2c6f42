// Package extractor implements the knowledge extraction pipeline: transcript
// parsing, recency-preserving truncation, prompt assembly, the LLM call, and
// strict validation of the model's output before anything becomes durable.
package extractor

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Turn is one conversational turn parsed from a transcript log.
type Turn struct {
	Role      string // "user" | "assistant"
	Text      string
	Timestamp string
}

// turnSeparator joins rendered turns in the canonical transcript form.
const turnSeparator = "\n\n---\n\n"

// transcriptLine is the recognized per-line shape of the JSONL log. Lines of
// any other shape are skipped.
type transcriptLine struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Content []contentBlock `json:"content"`
	} `json:"message"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ParseTranscript reads a line-delimited JSON transcript and returns the
// ordered user/assistant turns. Malformed lines, non-conversational entries
// (tool calls, tool results, internal reasoning), and entries without text
// content are skipped; a malformed individual line is never fatal.
func ParseTranscript(path string) ([]Turn, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extractor: read transcript: %w", err)
	}
	return parseTranscriptText(string(raw)), nil
}

func parseTranscriptText(raw string) []Turn {
	var turns []Turn
	for _, line := range strings.Split(raw, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		var entry transcriptLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type != "user" && entry.Type != "assistant" {
			continue
		}
		if entry.Message == nil || len(entry.Message.Content) == 0 {
			continue
		}

		var parts []string
		for _, block := range entry.Message.Content {
			if block.Type == "text" && block.Text != "" {
				parts = append(parts, block.Text)
			}
		}
		text := strings.TrimSpace(strings.Join(parts, "\n"))
		if text == "" {
			continue
		}

		turns = append(turns, Turn{
			Role:      entry.Type,
			Text:      text,
			Timestamp: entry.Timestamp,
		})
	}
	return turns
}

// FormatTranscript renders turns as [ROLE] blocks in original order. This is
// the canonical transcript representation fed to the extraction prompt.
func FormatTranscript(turns []Turn) string {
	rendered := make([]string, len(turns))
	for i, t := range turns {
		rendered[i] = renderTurn(t)
	}
	return strings.Join(rendered, turnSeparator)
}

func renderTurn(t Turn) string {
	return "[" + strings.ToUpper(t.Role) + "]\n" + t.Text
}

// TruncateToRecent drops the oldest turns until the rendered transcript fits
// within maxChars, keeping a contiguous recency-biased suffix in original
// chronological order. If even the most recent turn alone exceeds the budget
// it is kept as-is; recent context is never dropped in favor of older
// context.
func TruncateToRecent(turns []Turn, maxChars int) string {
	var kept []Turn
	total := 0

	for i := len(turns) - 1; i >= 0; i-- {
		entry := renderTurn(turns[i]) + turnSeparator
		if total+len(entry) > maxChars {
			break
		}
		total += len(entry)
		kept = append([]Turn{turns[i]}, kept...)
	}

	if len(kept) == 0 && len(turns) > 0 {
		kept = turns[len(turns)-1:]
	}
	return FormatTranscript(kept)
}
