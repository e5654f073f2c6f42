package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/distill-sh/distill/internal/knowledge"
)

// crystallizeSystemPrompt drives rule generation. Unlike the extraction
// prompts it is not part of the prompts document: crystallize consumes store
// contents, not transcripts, and the two surfaces evolve independently.
const crystallizeSystemPrompt = `You are a rule crystallization engine. You receive accumulated knowledge chunks (preferences, decisions, patterns, mistakes, workarounds) and distill them into durable rule files grouped by topic.

Guidelines:
- Group related chunks under a short kebab-case topic (e.g. "error-handling", "go-style").
- Each rule is one imperative sentence, self-contained and actionable.
- Prefer updating an existing rule file over creating a near-duplicate topic.
- Propose "remove" only when a topic's rules are contradicted or obsoleted by newer knowledge.

Respond with a JSON array. Each element:
{
  "topic": "kebab-case-topic",
  "action": "create | update | remove",
  "rules": ["rule sentence", ...],
  "source_ids": ["chunk id", ...],
  "existing_file": "distill-<topic>.md (only for update/remove of an existing file)"
}

If nothing is worth crystallizing, return an empty array [].`

// RuleChange is one validated instruction from the crystallize response.
type RuleChange struct {
	Topic        string   `json:"topic"`
	Action       string   `json:"action"` // create | update | remove
	Rules        []string `json:"rules"`
	SourceIDs    []string `json:"source_ids"`
	ExistingFile string   `json:"existing_file,omitempty"`
}

// Crystallize asks the larger model to distill the given chunks into rule
// file changes. existingRules carries the current rule files as context so
// the model updates rather than duplicates.
func (c *Client) Crystallize(ctx context.Context, chunks []knowledge.Chunk, existingRules string) ([]RuleChange, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.crystallizeModel,
		MaxTokens: maxOutputTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: crystallizeSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: buildCrystallizePrompt(chunks, existingRules)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extractor: crystallize call: %w", err)
	}

	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Message.Content)
	}
	return ParseCrystallizeResponse(b.String()), nil
}

func buildCrystallizePrompt(chunks []knowledge.Chunk, existingRules string) string {
	var b strings.Builder
	b.WriteString("Crystallize the following knowledge chunks into rule files.\n\n<chunks>\n")
	for _, c := range chunks {
		fmt.Fprintf(&b, "- id: %s | type: %s | scope: %s | confidence: %.2f\n  %s\n",
			c.ID, c.Type, c.Scope, c.Confidence, c.Content)
	}
	b.WriteString("</chunks>\n")

	if existingRules != "" {
		b.WriteString("\n<existing_rules>\n")
		b.WriteString(existingRules)
		b.WriteString("\n</existing_rules>\n")
	}

	b.WriteString("\nRespond with the JSON array of rule changes.")
	return b.String()
}

// ParseCrystallizeResponse extracts and validates the rule-change array from
// the model's reply. Entries with an unknown action or malformed fields are
// dropped; parse failure yields zero changes.
func ParseCrystallizeResponse(text string) []RuleChange {
	match := jsonArrayRe.FindString(text)
	if match == "" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(match), &items); err != nil {
		return nil
	}

	var valid []RuleChange
	for _, item := range items {
		change, err := validateRuleChange(item)
		if err != nil {
			continue
		}
		valid = append(valid, change)
	}
	return valid
}

func validateRuleChange(item json.RawMessage) (RuleChange, error) {
	var change RuleChange
	if err := json.Unmarshal(item, &change); err != nil {
		return RuleChange{}, err
	}
	if change.Topic == "" {
		return RuleChange{}, errors.New("topic is required")
	}
	switch change.Action {
	case "create", "update", "remove":
	default:
		return RuleChange{}, fmt.Errorf("unknown action %q", change.Action)
	}
	if change.Action != "remove" && len(change.Rules) == 0 {
		return RuleChange{}, errors.New("create/update requires rules")
	}
	return change, nil
}
