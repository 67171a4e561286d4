package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// CacheEntry is a persisted consensus result, keyed by word plus an optional
// corpus coordinate. Repeat extractions of the same word hit this table and
// skip every source.
type CacheEntry struct {
	Word       string            `json:"word"`
	LocKey     string            `json:"loc_key,omitempty"`
	Root       string            `json:"root"`
	Sources    map[string]string `json:"sources,omitempty"`
	Confidence float64           `json:"confidence"`
}

// CacheStore is the consensus-cache surface consumed by the orchestrator.
type CacheStore interface {
	// GetCached looks up an entry by exact coordinate first, then by the
	// bare word. The boolean reports whether anything was found.
	GetCached(ctx context.Context, word, locKey string) (*CacheEntry, bool, error)
	PutCached(ctx context.Context, e *CacheEntry) error
}

var _ CacheStore = (*Store)(nil)

// GetCached implements CacheStore.
func (s *Store) GetCached(ctx context.Context, word, locKey string) (*CacheEntry, bool, error) {
	if locKey != "" {
		e, ok, err := s.getCacheRow(ctx, word, locKey)
		if err != nil || ok {
			return e, ok, err
		}
	}
	return s.getCacheRow(ctx, word, "")
}

func (s *Store) getCacheRow(ctx context.Context, word, locKey string) (*CacheEntry, bool, error) {
	var e CacheEntry
	var sources sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT word, loc_key, root, sources, confidence
		 FROM extract_cache WHERE word = ? AND loc_key = ?`, word, locKey).
		Scan(&e.Word, &e.LocKey, &e.Root, &sources, &e.Confidence)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &e.Sources); err != nil {
			return nil, false, fmt.Errorf("decode cached sources for %q: %w", word, err)
		}
	}
	return &e, true, nil
}

// PutCached implements CacheStore. Entries are append-mostly; a re-extraction
// overwrites the previous verdict for the same key.
func (s *Store) PutCached(ctx context.Context, e *CacheEntry) error {
	var sourcesJSON any
	if len(e.Sources) > 0 {
		b, err := json.Marshal(e.Sources)
		if err != nil {
			return err
		}
		sourcesJSON = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO extract_cache (word, loc_key, root, sources, confidence)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(word, loc_key) DO UPDATE SET
		   root = excluded.root, sources = excluded.sources,
		   confidence = excluded.confidence`,
		e.Word, e.LocKey, e.Root, sourcesJSON, e.Confidence)
	return err
}
