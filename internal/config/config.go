// Package config loads distill configuration from the environment and from
// layered JSON files. Precedence: project config > global config > env >
// defaults, field by field.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all runtime settings.
type Config struct {
	// APIKey authorizes the extraction endpoint. Required for learn; its
	// absence is a fatal configuration error at extraction time, not at
	// startup, so the read-only tools keep working without it.
	APIKey string `envconfig:"API_KEY"`

	// BaseURL overrides the completion endpoint, for OpenAI-compatible
	// gateways. Empty means the client default.
	BaseURL string `envconfig:"BASE_URL"`

	// ExtractionModel is the small, cost-bounded model used by learn.
	ExtractionModel string `envconfig:"EXTRACTION_MODEL" default:"gpt-4o-mini"`

	// CrystallizeModel is the larger model used for rule generation.
	CrystallizeModel string `envconfig:"CRYSTALLIZE_MODEL" default:"gpt-4o"`

	// MaxTranscriptChars bounds the transcript sent to the LLM; older turns
	// are dropped first.
	MaxTranscriptChars int `envconfig:"MAX_TRANSCRIPT_CHARS" default:"100000"`

	// AutoCrystallizeThreshold triggers crystallize after N new chunks
	// since the last run. 0 disables the automatic trigger.
	AutoCrystallizeThreshold int `envconfig:"AUTO_CRYSTALLIZE_THRESHOLD" default:"0"`
}

// fileConfig mirrors the JSON config file shape; pointer fields distinguish
// "absent" from zero so each level only overrides what it sets.
type fileConfig struct {
	ExtractionModel          *string `json:"extraction_model,omitempty"`
	CrystallizeModel         *string `json:"crystallize_model,omitempty"`
	MaxTranscriptChars       *int    `json:"max_transcript_chars,omitempty"`
	AutoCrystallizeThreshold *int    `json:"auto_crystallize_threshold,omitempty"`
}

const configFile = "config.json"

// Load builds the effective configuration. projectRoot may be empty when no
// project context exists; the project config layer is then skipped.
func Load(projectRoot string) (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("DISTILL", &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}

	// The API key commonly lives under the provider's own variable.
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}

	if home, err := os.UserHomeDir(); err == nil {
		cfg.apply(loadFile(filepath.Join(home, ".distill", configFile)))
	}
	if projectRoot != "" {
		cfg.apply(loadFile(filepath.Join(projectRoot, ".distill", configFile)))
	}

	return &cfg, nil
}

// loadFile reads one JSON config layer. Missing or malformed files are
// treated as empty layers.
func loadFile(path string) fileConfig {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}
	}
	var fc fileConfig
	if err := json.Unmarshal(raw, &fc); err != nil {
		return fileConfig{}
	}
	return fc
}

func (c *Config) apply(fc fileConfig) {
	if fc.ExtractionModel != nil {
		c.ExtractionModel = *fc.ExtractionModel
	}
	if fc.CrystallizeModel != nil {
		c.CrystallizeModel = *fc.CrystallizeModel
	}
	if fc.MaxTranscriptChars != nil {
		c.MaxTranscriptChars = *fc.MaxTranscriptChars
	}
	if fc.AutoCrystallizeThreshold != nil {
		c.AutoCrystallizeThreshold = *fc.AutoCrystallizeThreshold
	}
}
