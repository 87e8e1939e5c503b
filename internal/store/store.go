// Package store provides a SQLite-backed log of answered questions. Every
// request to the question endpoint is recorded with its outcome and latency
// so operators can review what was asked and which sources were cited.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Outcome classifies how a request ended.
type Outcome string

const (
	// OutcomeOK is an answered question.
	OutcomeOK Outcome = "ok"
	// OutcomeBadInput is a rejected request body, image, or URL.
	OutcomeBadInput Outcome = "bad_input"
	// OutcomeNoContext is a question with no relevant passages.
	OutcomeNoContext Outcome = "no_context"
	// OutcomeTimeout is a request that exceeded its budget.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeError is any other failure.
	OutcomeError Outcome = "error"
)

// Entry is one logged request.
type Entry struct {
	// ID is assigned by the store.
	ID int64
	// Question is the question as received.
	Question string
	// Answer is empty unless Outcome is OutcomeOK.
	Answer string
	// Links are the source URLs returned with the answer.
	Links []string
	// Outcome is how the request ended.
	Outcome Outcome
	// Latency is the end-to-end handling time.
	Latency time.Duration
	// CreatedAt is when the entry was persisted.
	CreatedAt time.Time
}

// QueryLog persists and lists logged requests. Implementations must be safe
// for concurrent use.
type QueryLog interface {
	// Append persists one entry. ID and CreatedAt are assigned by the store.
	Append(ctx context.Context, e Entry) error
	// Recent returns up to n entries, newest first.
	Recent(ctx context.Context, n int) ([]Entry, error)
	// Close releases any resources held by the store.
	Close() error
}

// SQLiteStore is a QueryLog backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// DefaultDBPath returns the default path for the query log database.
// It resolves to ~/.tdsqa/history.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".tdsqa")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "history.db"), nil
}

// Open opens (or creates) a SQLiteStore at the given path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS queries (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    question     TEXT    NOT NULL,
    answer       TEXT    NOT NULL DEFAULT '',
    links        TEXT    NOT NULL DEFAULT '[]', -- JSON array of URLs
    outcome      TEXT    NOT NULL,
    latency_ms   INTEGER NOT NULL,
    created_at   INTEGER NOT NULL  -- Unix timestamp (seconds)
);
CREATE INDEX IF NOT EXISTS idx_queries_created ON queries (created_at);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Append persists one entry.
func (s *SQLiteStore) Append(ctx context.Context, e Entry) error {
	links := e.Links
	if links == nil {
		links = []string{}
	}
	raw, err := json.Marshal(links)
	if err != nil {
		return fmt.Errorf("store: encode links: %w", err)
	}
	const q = `INSERT INTO queries (question, answer, links, outcome, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q,
		e.Question, e.Answer, string(raw), string(e.Outcome), e.Latency.Milliseconds(), time.Now().Unix(),
	); err != nil {
		return fmt.Errorf("store: append: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, n int) ([]Entry, error) {
	const q = `
SELECT id, question, answer, links, outcome, latency_ms, created_at
FROM   queries
ORDER  BY created_at DESC, id DESC
LIMIT  ?`

	rows, err := s.db.QueryContext(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			links   string
			outcome string
			ms, ts  int64
		)
		if err := rows.Scan(&e.ID, &e.Question, &e.Answer, &links, &outcome, &ms, &ts); err != nil {
			return nil, fmt.Errorf("store: recent scan: %w", err)
		}
		if err := json.Unmarshal([]byte(links), &e.Links); err != nil {
			return nil, fmt.Errorf("store: decode links for entry %d: %w", e.ID, err)
		}
		e.Outcome = Outcome(outcome)
		e.Latency = time.Duration(ms) * time.Millisecond
		e.CreatedAt = time.Unix(ts, 0)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent rows: %w", err)
	}
	return entries, nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
