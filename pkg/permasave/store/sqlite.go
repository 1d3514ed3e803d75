package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore is a ContentStore backed by a local SQLite database.
// It keeps the same content-addressed identity scheme as MemoryStore and is
// suitable for single-process use: offline development, tests, or an edge
// cache in front of the remote store.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (or creates) a SQLite-backed content store.
// The path should be a file path (e.g., "./objects.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS objects (
			id TEXT PRIMARY KEY,
			body BLOB NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create objects table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS object_tags (
			object_id TEXT NOT NULL,
			name TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (object_id, name)
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tags table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_object_tags_name_value
		ON object_tags(name, value)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tag index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Upload implements ContentStore.
func (s *SQLiteStore) Upload(ctx context.Context, body []byte, tags Tags) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrStoreClosed
	}

	id := ContentID(body)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin upload: %w", err)
	}
	defer tx.Rollback()

	// Re-uploading identical content replaces the object and its tags.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO objects (id, body) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, id, body); err != nil {
		return "", fmt.Errorf("insert object: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM object_tags WHERE object_id = ?
	`, id); err != nil {
		return "", fmt.Errorf("clear tags: %w", err)
	}

	for name, value := range tags {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO object_tags (object_id, name, value) VALUES (?, ?, ?)
		`, id, name, value); err != nil {
			return "", fmt.Errorf("insert tag %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit upload: %w", err)
	}
	return id, nil
}

// Query implements ContentStore.
func (s *SQLiteStore) Query(ctx context.Context, filter Tags) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	ids, err := s.matchIDs(ctx, filter)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(ids))
	for _, id := range ids {
		tags, err := s.tagsFor(ctx, id)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{ID: id, Tags: tags})
	}
	return entries, nil
}

// matchIDs returns the identifiers of objects carrying every pair in filter.
func (s *SQLiteStore) matchIDs(ctx context.Context, filter Tags) ([]string, error) {
	if len(filter) == 0 {
		rows, err := s.db.QueryContext(ctx, `SELECT id FROM objects`)
		if err != nil {
			return nil, fmt.Errorf("query objects: %w", err)
		}
		return scanIDs(rows)
	}

	// One (name, value) predicate per filter pair; an object matches when it
	// satisfies all of them.
	var b strings.Builder
	args := make([]any, 0, len(filter)*2+1)
	b.WriteString(`SELECT object_id FROM object_tags WHERE `)
	first := true
	for name, value := range filter {
		if !first {
			b.WriteString(` OR `)
		}
		first = false
		b.WriteString(`(name = ? AND value = ?)`)
		args = append(args, name, value)
	}
	b.WriteString(` GROUP BY object_id HAVING COUNT(*) = ?`)
	args = append(args, len(filter))

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	return scanIDs(rows)
}

func scanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan object id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate objects: %w", err)
	}
	return ids, nil
}

func (s *SQLiteStore) tagsFor(ctx context.Context, id string) (Tags, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, value FROM object_tags WHERE object_id = ?
	`, id)
	if err != nil {
		return nil, fmt.Errorf("query object tags: %w", err)
	}
	defer rows.Close()

	tags := make(Tags)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tags: %w", err)
	}
	return tags, nil
}

// Fetch implements ContentStore.
func (s *SQLiteStore) Fetch(ctx context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var body []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM objects WHERE id = ?
	`, id).Scan(&body)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch object: %w", err)
	}
	return body, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}
