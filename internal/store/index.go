package store

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/distill-sh/distill/internal/knowledge"
)

// The index is lexical on purpose: FTS5 keyword ranking approximates
// similarity search well enough at personal-knowledge-base scale. Swapping
// in an embedding-backed store later only requires replacing this type.
const indexSchema = `
	CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
		id UNINDEXED,
		content,
		tags
	);
`

// Hit is one ranked search result. Score is higher-is-better.
type Hit struct {
	ID      string
	Content string
	Tags    []string
	Score   float64
}

// SearchIndex is the per-scope lexical index, co-located in the same SQLite
// file as the record store and keyed by chunk id.
type SearchIndex struct {
	db *sql.DB
}

// OpenSearchIndex opens (and initializes, if needed) the search index at the
// given location. The caller must Close it when the operation completes.
func OpenSearchIndex(loc knowledge.Location) (*SearchIndex, error) {
	db, err := openScopeDB(loc)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: index schema: %w", err)
	}
	return &SearchIndex{db: db}, nil
}

// Close releases the underlying database handle.
func (x *SearchIndex) Close() error {
	return x.db.Close()
}

// Index inserts or replaces the entry for a chunk id.
func (x *SearchIndex) Index(id, content string, tags []string) error {
	if _, err := x.db.Exec(`DELETE FROM knowledge_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: reindex %s: %w", id, err)
	}
	_, err := x.db.Exec(
		`INSERT INTO knowledge_fts (id, content, tags) VALUES (?, ?, ?)`,
		id, content, strings.Join(tags, " "),
	)
	if err != nil {
		return fmt.Errorf("store: index %s: %w", id, err)
	}
	return nil
}

// Search returns ranked hits for the query. A query that sanitizes to no
// tokens (pure punctuation) yields zero results rather than an error.
func (x *SearchIndex) Search(query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 5
	}

	sanitized := sanitizeQuery(query)
	if sanitized == "" {
		return nil, nil
	}

	rows, err := x.db.Query(
		`SELECT id, content, tags, rank
		 FROM knowledge_fts
		 WHERE knowledge_fts MATCH ?
		 ORDER BY rank
		 LIMIT ?`,
		sanitized, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: index search: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var tags string
		var rank float64
		if err := rows.Scan(&h.ID, &h.Content, &tags, &rank); err != nil {
			return nil, err
		}
		h.Tags = splitTags(tags)
		// FTS5 rank is negative, lower = better.
		h.Score = -rank
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// Remove deletes a chunk from the index. Absence is not an error.
func (x *SearchIndex) Remove(id string) error {
	if _, err := x.db.Exec(`DELETE FROM knowledge_fts WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: index remove %s: %w", id, err)
	}
	return nil
}

// nonWordRe strips everything that is not a word character or whitespace
// (Unicode-aware), defusing FTS5 MATCH operators in user queries.
var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)

// sanitizeQuery turns free text into an FTS5 MATCH expression. Tokens are
// combined disjunctively: matching any token favors recall over precision,
// which suits a small personal knowledge base.
func sanitizeQuery(query string) string {
	cleaned := nonWordRe.ReplaceAllString(query, " ")
	tokens := strings.Fields(cleaned)
	if len(tokens) == 0 {
		return ""
	}

	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, " ") {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
