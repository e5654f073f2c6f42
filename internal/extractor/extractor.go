package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/distill-sh/distill/internal/config"
	"github.com/distill-sh/distill/internal/knowledge"
)

// ErrNoAPIKey is returned when extraction is attempted without a credential.
// This is a fatal configuration error, not a soft-empty result.
var ErrNoAPIKey = errors.New("extractor: API key is required for extraction (set DISTILL_API_KEY or OPENAI_API_KEY)")

// maxOutputTokens bounds the extraction response.
const maxOutputTokens = 4096

// completionAPI is the slice of the chat client the extractor uses; tests
// inject a mock through it.
type completionAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client extracts knowledge from transcripts via an LLM.
type Client struct {
	api                completionAPI
	model              string
	crystallizeModel   string
	maxTranscriptChars int
}

// NewClient builds an extraction client from configuration. The API key is
// required; everything else has defaults.
func NewClient(cfg *config.Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		api:                openai.NewClientWithConfig(clientCfg),
		model:              cfg.ExtractionModel,
		crystallizeModel:   cfg.CrystallizeModel,
		maxTranscriptChars: cfg.MaxTranscriptChars,
	}, nil
}

// Options parameterize one extraction run.
type Options struct {
	TranscriptPath string
	SessionID      string
	Trigger        knowledge.Trigger
	ProjectName    string
	// ScopeOverride, when set, forces every extracted chunk into one scope
	// instead of the scope the model classified.
	ScopeOverride knowledge.Scope
}

// Extract runs the full pipeline for one transcript: parse, truncate, prompt,
// call, validate. Transcripts with fewer than two qualifying turns yield an
// empty result without invoking the model; a single exchange is the minimum
// unit of extractable knowledge.
func (c *Client) Extract(ctx context.Context, opts Options) ([]knowledge.Input, error) {
	turns, err := ParseTranscript(opts.TranscriptPath)
	if err != nil {
		return nil, err
	}
	if len(turns) < 2 {
		return nil, nil
	}

	formatted := FormatTranscript(turns)
	if len(formatted) > c.maxTranscriptChars {
		formatted = TruncateToRecent(turns, c.maxTranscriptChars)
	}

	text, err := c.complete(ctx, formatted, opts.ProjectName)
	if err != nil {
		return nil, err
	}

	candidates := ParseExtractionResponse(text)
	if len(candidates) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	inputs := make([]knowledge.Input, 0, len(candidates))
	for _, cand := range candidates {
		scope := knowledge.Scope(cand.Scope)
		if opts.ScopeOverride != "" {
			scope = opts.ScopeOverride
		}
		project := ""
		if cand.Scope == string(knowledge.ScopeProject) {
			project = opts.ProjectName
		}
		inputs = append(inputs, knowledge.Input{
			Content: cand.Content,
			Type:    knowledge.Type(cand.Type),
			Scope:   scope,
			Project: project,
			Tags:    cand.Tags,
			Source: knowledge.Source{
				SessionID: opts.SessionID,
				Timestamp: now,
				Trigger:   opts.Trigger,
			},
			Confidence: cand.Confidence,
		})
	}
	return inputs, nil
}

func (c *Client) complete(ctx context.Context, formattedTranscript, projectName string) (string, error) {
	system, err := SystemPrompt()
	if err != nil {
		return "", err
	}
	user, err := BuildExtractionPrompt(formattedTranscript, projectName)
	if err != nil {
		return "", err
	}

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxOutputTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("extractor: completion call: %w", err)
	}

	// Concatenate text content across choices; non-text payloads (tool
	// calls) carry no Content and contribute nothing.
	var b strings.Builder
	for _, choice := range resp.Choices {
		b.WriteString(choice.Message.Content)
	}
	return b.String(), nil
}

// ─── Response validation ─────────────────────────────────────────────────────

// Candidate is one validated extraction from the model's response.
type Candidate struct {
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Scope      string   `json:"scope"`
	Tags       []string `json:"tags"`
	Confidence float64  `json:"confidence"`
}

// jsonArrayRe locates the first JSON-array-looking substring (greedy bracket
// match) in natural-language text.
var jsonArrayRe = regexp.MustCompile(`(?s)\[.*\]`)

// ParseExtractionResponse locates the JSON array embedded in the model's
// reply and returns the candidates that pass validation. Any parse failure
// or non-array result yields zero candidates: the conversation may
// legitimately contain nothing extractable.
func ParseExtractionResponse(text string) []Candidate {
	match := jsonArrayRe.FindString(text)
	if match == "" {
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(match), &items); err != nil {
		return nil
	}

	var valid []Candidate
	for _, item := range items {
		cand, err := validateCandidate(item)
		if err != nil {
			// Malformed objects are dropped whole; the pipeline never
			// partially trusts model output.
			continue
		}
		valid = append(valid, cand)
	}
	return valid
}

// rawCandidate uses pointers and raw fields so field absence and wrong types
// are detected explicitly instead of defaulting silently.
type rawCandidate struct {
	Content    *string         `json:"content"`
	Type       *string         `json:"type"`
	Scope      *string         `json:"scope"`
	Tags       json.RawMessage `json:"tags"`
	Confidence *float64        `json:"confidence"`
}

func validateCandidate(item json.RawMessage) (Candidate, error) {
	var raw rawCandidate
	if err := json.Unmarshal(item, &raw); err != nil {
		return Candidate{}, fmt.Errorf("not an object with expected field types: %w", err)
	}

	if raw.Content == nil || *raw.Content == "" {
		return Candidate{}, errors.New("content must be a non-empty string")
	}
	if raw.Type == nil || !knowledge.ValidType(*raw.Type) {
		return Candidate{}, errors.New("type must be one of pattern, preference, decision, mistake, workaround")
	}
	if raw.Scope == nil || !knowledge.ValidScope(*raw.Scope) {
		return Candidate{}, errors.New("scope must be global or project")
	}

	var tags []string
	if !strings.HasPrefix(strings.TrimSpace(string(raw.Tags)), "[") {
		return Candidate{}, errors.New("tags must be a list")
	}
	if err := json.Unmarshal(raw.Tags, &tags); err != nil {
		return Candidate{}, errors.New("tags must be a list of strings")
	}
	if tags == nil {
		tags = []string{}
	}

	if raw.Confidence == nil || *raw.Confidence < 0 || *raw.Confidence > 1 {
		return Candidate{}, errors.New("confidence must be a number in [0, 1]")
	}

	return Candidate{
		Content:    *raw.Content,
		Type:       *raw.Type,
		Scope:      *raw.Scope,
		Tags:       tags,
		Confidence: *raw.Confidence,
	}, nil
}
