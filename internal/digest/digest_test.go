package digest

import (
	"testing"

	"github.com/distill-sh/distill/internal/knowledge"
)

func TestSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "use tabs for indentation", "use tabs for indentation", 1.0},
		{"case and order insensitive", "Tabs use", "use tabs", 1.0},
		{"disjoint", "alpha beta", "gamma delta", 0.0},
		{"both empty", "", "", 0.0},
		{"one empty", "something", "", 0.0},
		{"half overlap", "a b", "a c", 1.0 / 3.0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Similarity(c.a, c.b); got != c.want {
				t.Errorf("Similarity(%q, %q) = %g, want %g", c.a, c.b, got, c.want)
			}
		})
	}
}

func TestFindDuplicates(t *testing.T) {
	chunks := []knowledge.Chunk{
		{ID: "a", Content: "always run gofmt before committing code changes"},
		{ID: "b", Content: "always run gofmt before committing any code changes"},
		{ID: "c", Content: "database migrations use golang-migrate"},
	}

	pairs := FindDuplicates(chunks)
	if len(pairs) != 1 {
		t.Fatalf("got %d pairs, want 1", len(pairs))
	}
	if pairs[0].A.ID != "a" || pairs[0].B.ID != "b" {
		t.Errorf("pair = (%s, %s)", pairs[0].A.ID, pairs[0].B.ID)
	}
	if pairs[0].Similarity <= DuplicateThreshold {
		t.Errorf("similarity %g not above threshold", pairs[0].Similarity)
	}
}

func TestFindDuplicates_ThresholdIsStrict(t *testing.T) {
	// 7 of 10 shared words: similarity exactly 0.7 must NOT be flagged.
	chunks := []knowledge.Chunk{
		{ID: "a", Content: "w1 w2 w3 w4 w5 w6 w7 x1 x2 x3"},
		{ID: "b", Content: "w1 w2 w3 w4 w5 w6 w7"},
	}
	if sim := Similarity(chunks[0].Content, chunks[1].Content); sim != 0.7 {
		t.Fatalf("fixture similarity = %g, want exactly 0.7", sim)
	}
	if pairs := FindDuplicates(chunks); len(pairs) != 0 {
		t.Errorf("pair at exactly the threshold was flagged")
	}
}

func TestFindStale(t *testing.T) {
	chunks := []knowledge.Chunk{
		{ID: "stale", Confidence: 0.3, AccessCount: 0},
		{ID: "low-but-used", Confidence: 0.3, AccessCount: 2},
		{ID: "confident", Confidence: 0.9, AccessCount: 0},
		{ID: "boundary", Confidence: 0.5, AccessCount: 0},
	}

	stale := FindStale(chunks)
	if len(stale) != 1 {
		t.Fatalf("got %d stale entries, want 1", len(stale))
	}
	if stale[0].ID != "stale" {
		t.Errorf("stale entry = %q", stale[0].ID)
	}
}
