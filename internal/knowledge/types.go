// Package knowledge defines the shared data model for distilled knowledge:
// the chunk types, scopes, extraction triggers, and the scope-to-storage
// resolution used by every other subsystem.
package knowledge

// Type categorizes a chunk of distilled knowledge.
type Type string

const (
	TypePattern    Type = "pattern"
	TypePreference Type = "preference"
	TypeDecision   Type = "decision"
	TypeMistake    Type = "mistake"
	TypeWorkaround Type = "workaround"
)

// Types lists all valid knowledge types.
var Types = []Type{TypePattern, TypePreference, TypeDecision, TypeMistake, TypeWorkaround}

// ValidType reports whether s is a recognized knowledge type.
func ValidType(s string) bool {
	for _, t := range Types {
		if string(t) == s {
			return true
		}
	}
	return false
}

// Scope partitions the knowledge base: global (all projects) or project
// (one codebase).
type Scope string

const (
	ScopeGlobal  Scope = "global"
	ScopeProject Scope = "project"
)

// ValidScope reports whether s is a recognized scope.
func ValidScope(s string) bool {
	return s == string(ScopeGlobal) || s == string(ScopeProject)
}

// Trigger records why an extraction ran.
type Trigger string

const (
	TriggerPreCompact Trigger = "pre_compact"
	TriggerSessionEnd Trigger = "session_end"
	TriggerManual     Trigger = "manual"
)

// Source is the provenance of a chunk: which session produced it, when,
// and what triggered the extraction.
type Source struct {
	SessionID string  `json:"session_id"`
	Timestamp string  `json:"timestamp"`
	Trigger   Trigger `json:"trigger"`
}

// Chunk is one persisted unit of distilled knowledge.
//
// Project is non-empty iff Scope == ScopeProject. AccessCount is incremented
// only by successful retrieval; UpdatedAt advances on any mutation.
type Chunk struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Type        Type     `json:"type"`
	Scope       Scope    `json:"scope"`
	Project     string   `json:"project,omitempty"`
	Tags        []string `json:"tags"`
	Source      Source   `json:"source"`
	Confidence  float64  `json:"confidence"`
	AccessCount int      `json:"access_count"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

// Input is the pre-persistence form of a chunk: same fields minus the ones
// the record store assigns at insert time (id, access count, timestamps).
type Input struct {
	Content    string   `json:"content"`
	Type       Type     `json:"type"`
	Scope      Scope    `json:"scope"`
	Project    string   `json:"project,omitempty"`
	Tags       []string `json:"tags"`
	Source     Source   `json:"source"`
	Confidence float64  `json:"confidence"`
}
