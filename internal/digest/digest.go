// Package digest performs read-only cross-entry analysis of a scope's
// knowledge: near-duplicate detection by word-set similarity, and staleness
// detection for low-value entries. It never mutates the store; cleanup is a
// separate, explicit operation.
package digest

import (
	"strings"

	"github.com/distill-sh/distill/internal/knowledge"
)

// DuplicateThreshold is the strict lower bound a pair's similarity must
// exceed to be flagged.
const DuplicateThreshold = 0.7

// Staleness bounds: entries below the confidence floor that were never
// recalled are flagged for review.
const staleConfidence = 0.5

// DuplicatePair is a flagged pair of near-identical entries.
type DuplicatePair struct {
	A          knowledge.Chunk
	B          knowledge.Chunk
	Similarity float64
}

// Similarity computes word-set Jaccard similarity between two texts:
// lower-cased whitespace tokenization, intersection over union. An empty
// union scores 0.
func Similarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	intersection := 0
	union := len(wordsB)
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		} else {
			union++
		}
	}

	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}

// FindDuplicates flags every unordered pair whose content similarity
// strictly exceeds DuplicateThreshold. The pairwise scan is quadratic,
// which holds up fine at personal-knowledge-base scale.
func FindDuplicates(chunks []knowledge.Chunk) []DuplicatePair {
	var pairs []DuplicatePair
	for i := 0; i < len(chunks); i++ {
		for j := i + 1; j < len(chunks); j++ {
			sim := Similarity(chunks[i].Content, chunks[j].Content)
			if sim > DuplicateThreshold {
				pairs = append(pairs, DuplicatePair{A: chunks[i], B: chunks[j], Similarity: sim})
			}
		}
	}
	return pairs
}

// FindStale returns entries with low confidence that have never been
// accessed: candidates for review or removal.
func FindStale(chunks []knowledge.Chunk) []knowledge.Chunk {
	var stale []knowledge.Chunk
	for _, c := range chunks {
		if c.Confidence < staleConfidence && c.AccessCount == 0 {
			stale = append(stale, c)
		}
	}
	return stale
}
