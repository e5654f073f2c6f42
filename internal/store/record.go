// Package store implements the two per-scope persistence layers: the record
// store (ledger of truth for knowledge chunks) and the lexical search index
// (a derived FTS5 projection keyed by the same ids).
//
// Both live in one SQLite file per scope. Handles are opened fresh for each
// logical operation and closed before returning; WAL journaling keeps
// concurrent readers from other processes unblocked.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/distill-sh/distill/internal/knowledge"

	_ "modernc.org/sqlite"
)

const recordSchema = `
	CREATE TABLE IF NOT EXISTS knowledge (
		id               TEXT PRIMARY KEY,
		content          TEXT NOT NULL,
		type             TEXT NOT NULL CHECK(type IN ('pattern','preference','decision','mistake','workaround')),
		scope            TEXT NOT NULL CHECK(scope IN ('global','project')),
		project          TEXT,
		tags             TEXT NOT NULL DEFAULT '[]',
		session_id       TEXT NOT NULL,
		trigger          TEXT NOT NULL CHECK("trigger" IN ('pre_compact','session_end','manual')),
		source_timestamp TEXT NOT NULL,
		confidence       REAL NOT NULL DEFAULT 0.5,
		access_count     INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_knowledge_scope   ON knowledge(scope);
	CREATE INDEX IF NOT EXISTS idx_knowledge_type    ON knowledge(type);
	CREATE INDEX IF NOT EXISTS idx_knowledge_project ON knowledge(project);

	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
`

// Stats holds aggregate counts for one scope's record store.
type Stats struct {
	Total   int            `json:"total"`
	ByType  map[string]int `json:"by_type"`
	ByScope map[string]int `json:"by_scope"`
}

// SearchFilter narrows RecordStore.Search. Zero values mean "no filter".
type SearchFilter struct {
	Scope   knowledge.Scope
	Type    knowledge.Type
	Project string
	Limit   int
}

// RecordStore is the durable per-scope ledger of knowledge chunks.
type RecordStore struct {
	db *sql.DB
}

// OpenRecordStore opens (and initializes, if needed) the record store at the
// given location. The caller must Close it when the operation completes.
func OpenRecordStore(loc knowledge.Location) (*RecordStore, error) {
	db, err := openScopeDB(loc)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(recordSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: record schema: %w", err)
	}
	return &RecordStore{db: db}, nil
}

// Close releases the underlying database handle.
func (r *RecordStore) Close() error {
	return r.db.Close()
}

// Insert persists a new chunk, assigning its id and timestamps, and returns
// the full chunk. Access count starts at zero.
func (r *RecordStore) Insert(in knowledge.Input) (*knowledge.Chunk, error) {
	now := nowUTC()
	id := uuid.NewString()

	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("store: encode tags: %w", err)
	}

	_, err = r.db.Exec(
		`INSERT INTO knowledge (id, content, type, scope, project, tags, session_id, "trigger", source_timestamp, confidence, access_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		id, in.Content, string(in.Type), string(in.Scope), nullable(in.Project),
		string(tagsJSON), in.Source.SessionID, string(in.Source.Trigger),
		in.Source.Timestamp, in.Confidence, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("store: insert: %w", err)
	}

	return &knowledge.Chunk{
		ID:          id,
		Content:     in.Content,
		Type:        in.Type,
		Scope:       in.Scope,
		Project:     in.Project,
		Tags:        tags,
		Source:      in.Source,
		Confidence:  in.Confidence,
		AccessCount: 0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// GetByID returns the chunk with the given id, or nil when absent.
func (r *RecordStore) GetByID(id string) (*knowledge.Chunk, error) {
	row := r.db.QueryRow(selectColumns+` FROM knowledge WHERE id = ?`, id)
	c, err := scanChunk(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %s: %w", id, err)
	}
	return c, nil
}

// Search returns chunks matching the filter, most recently updated first.
func (r *RecordStore) Search(f SearchFilter) ([]knowledge.Chunk, error) {
	query := selectColumns + ` FROM knowledge WHERE 1=1`
	var args []any

	if f.Scope != "" {
		query += " AND scope = ?"
		args = append(args, string(f.Scope))
	}
	if f.Type != "" {
		query += " AND type = ?"
		args = append(args, string(f.Type))
	}
	if f.Project != "" {
		query += " AND project = ?"
		args = append(args, f.Project)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += " ORDER BY updated_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var results []knowledge.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *c)
	}
	return results, rows.Err()
}

// GetAll returns every chunk in the store, oldest first.
func (r *RecordStore) GetAll() ([]knowledge.Chunk, error) {
	rows, err := r.db.Query(selectColumns + ` FROM knowledge ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: get all: %w", err)
	}
	defer rows.Close()

	var results []knowledge.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *c)
	}
	return results, rows.Err()
}

// Touch increments a chunk's access count and advances updated_at. Touching
// an absent id is a no-op, not an error.
func (r *RecordStore) Touch(id string) error {
	_, err := r.db.Exec(
		`UPDATE knowledge SET access_count = access_count + 1, updated_at = ? WHERE id = ?`,
		nowUTC(), id,
	)
	if err != nil {
		return fmt.Errorf("store: touch %s: %w", id, err)
	}
	return nil
}

// UpdateScope mutates a chunk's scope in place. The tool-level promote and
// demote flow moves chunks across stores instead; this is the single-store
// primitive.
func (r *RecordStore) UpdateScope(id string, scope knowledge.Scope) error {
	_, err := r.db.Exec(
		`UPDATE knowledge SET scope = ?, updated_at = ? WHERE id = ?`,
		string(scope), nowUTC(), id,
	)
	if err != nil {
		return fmt.Errorf("store: update scope %s: %w", id, err)
	}
	return nil
}

// Delete removes a chunk, reporting whether it existed.
func (r *RecordStore) Delete(id string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM knowledge WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Stats returns aggregate counts by type and scope.
func (r *RecordStore) Stats() (*Stats, error) {
	stats := &Stats{ByType: map[string]int{}, ByScope: map[string]int{}}

	if err := r.db.QueryRow(`SELECT COUNT(*) FROM knowledge`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("store: stats: %w", err)
	}

	rows, err := r.db.Query(`SELECT type, COUNT(*) FROM knowledge GROUP BY type`)
	if err != nil {
		return nil, fmt.Errorf("store: stats by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		stats.ByType[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scopeRows, err := r.db.Query(`SELECT scope, COUNT(*) FROM knowledge GROUP BY scope`)
	if err != nil {
		return nil, fmt.Errorf("store: stats by scope: %w", err)
	}
	defer scopeRows.Close()
	for scopeRows.Next() {
		var scope string
		var n int
		if err := scopeRows.Scan(&scope, &n); err != nil {
			return nil, err
		}
		stats.ByScope[scope] = n
	}
	return stats, scopeRows.Err()
}

// CountSince returns the number of chunks created strictly after the given
// timestamp (lexicographic comparison over the store's fixed-width format).
func (r *RecordStore) CountSince(timestamp string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM knowledge WHERE created_at > ?`, timestamp).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count since: %w", err)
	}
	return n, nil
}

// GetMeta returns a store-level metadata value, or "" when the key is absent.
func (r *RecordStore) GetMeta(key string) (string, error) {
	var value string
	err := r.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: get meta %s: %w", key, err)
	}
	return value, nil
}

// SetMeta stores a store-level metadata value.
func (r *RecordStore) SetMeta(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("store: set meta %s: %w", key, err)
	}
	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const selectColumns = `SELECT id, content, type, scope, project, tags, session_id, "trigger", source_timestamp, confidence, access_count, created_at, updated_at`

type rowLike interface {
	Scan(dest ...any) error
}

func scanChunk(row rowLike) (*knowledge.Chunk, error) {
	var c knowledge.Chunk
	var project sql.NullString
	var tagsJSON string
	var typ, scope, trigger string

	if err := row.Scan(
		&c.ID, &c.Content, &typ, &scope, &project, &tagsJSON,
		&c.Source.SessionID, &trigger, &c.Source.Timestamp,
		&c.Confidence, &c.AccessCount, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}

	c.Type = knowledge.Type(typ)
	c.Scope = knowledge.Scope(scope)
	c.Source.Trigger = knowledge.Trigger(trigger)
	if project.Valid {
		c.Project = project.String
	}

	if err := json.Unmarshal([]byte(tagsJSON), &c.Tags); err != nil {
		return nil, fmt.Errorf("store: decode tags for %s: %w", c.ID, err)
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return &c, nil
}

func openScopeDB(loc knowledge.Location) (*sql.DB, error) {
	path, err := loc.DBPath()
	if err != nil {
		return nil, fmt.Errorf("store: resolve location: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}
	return db, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nowUTC returns the current time in a fixed-width RFC 3339 form so that
// lexicographic ordering matches chronological ordering.
func nowUTC() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
