// Package store persists tokens, roots, and the word-level consensus cache
// in SQLite. It is the only package that touches the database; the pipeline
// components consume it through the TokenStore, RootStore, and CacheStore
// interfaces so they stay testable against fakes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Status is the reconciliation state of a token.
type Status string

const (
	// StatusMissing: no root assigned yet, or every source failed.
	StatusMissing Status = "missing"
	// StatusVerified: sources agree with high confidence.
	StatusVerified Status = "verified"
	// StatusDiscrepancy: sources disagree, but not badly enough to block.
	StatusDiscrepancy Status = "discrepancy"
	// StatusManualReview: disagreement severe enough to need a human.
	StatusManualReview Status = "manual_review"
)

// ErrWriteConflict marks a lost concurrency race. Callers retry with a fresh
// read instead of dropping the write.
var ErrWriteConflict = errors.New("store write conflict")

// ErrNotFound is returned for absent tokens or roots.
var ErrNotFound = errors.New("not found")

// CorpusRange bounds a batch pass to a chapter interval. Zero values leave
// that side open: the zero range covers the whole corpus.
type CorpusRange struct {
	FromSura int `json:"from_sura"`
	ToSura   int `json:"to_sura"`
}

// where renders the range filter and its arguments.
func (r CorpusRange) where() (string, []any) {
	var conds []string
	var args []any
	if r.FromSura > 0 {
		conds = append(conds, "sura >= ?")
		args = append(args, r.FromSura)
	}
	if r.ToSura > 0 {
		conds = append(conds, "sura <= ?")
		args = append(args, r.ToSura)
	}
	if len(conds) == 0 {
		return "1=1", nil
	}
	return strings.Join(conds, " AND "), args
}

// Store wraps the SQLite database. A single *sql.DB is shared by all
// workers; SQLite serializes writers and the busy timeout absorbs short
// contention, so no additional locking lives here.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open initializes the database at path, creating directories and running
// migrations as needed. Use ":memory:" for tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	dsn := path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Each pool connection would get its own empty in-memory database;
		// pin the pool to one connection so tests see a single database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying handle for ad-hoc stats queries.
func (s *Store) DB() *sql.DB { return s.db }

// Stats returns row counts per table.
func (s *Store) Stats(ctx context.Context) (map[string]int, error) {
	out := map[string]int{}
	for _, table := range []string{"tokens", "roots", "extract_cache"} {
		var n int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out[table] = n
	}
	return out, nil
}

// StatusCounts returns the number of tokens per status within the range.
func (s *Store) StatusCounts(ctx context.Context, rng CorpusRange) (map[Status]int, error) {
	cond, args := rng.where()
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM tokens WHERE "+cond+" GROUP BY status", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[Status]int{}
	for rows.Next() {
		var st string
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		out[Status(st)] = n
	}
	return out, rows.Err()
}
