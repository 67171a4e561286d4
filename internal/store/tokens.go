package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Token is one surface-form occurrence of a word at a fixed corpus
// coordinate (sura, aya, position).
type Token struct {
	ID          int64             `json:"id"`
	Sura        int               `json:"sura"`
	Aya         int               `json:"aya"`
	Position    int               `json:"position"`
	TextAr      string            `json:"text_ar"`
	Normalized  string            `json:"normalized"`
	Root        string            `json:"root,omitempty"`
	RootSources map[string]string `json:"root_sources,omitempty"`
	Status      Status            `json:"status"`
	Confidence  float64           `json:"confidence"`
	Refs        []int64           `json:"refs,omitempty"`
	Pattern     string            `json:"pattern,omitempty"`
}

// TokenStore is the token repository surface consumed by the pipeline.
type TokenStore interface {
	GetToken(ctx context.Context, id int64) (*Token, error)
	GetTokenAt(ctx context.Context, sura, aya, position int) (*Token, error)
	FindByNormalized(ctx context.Context, normalized string) ([]*Token, error)
	FindByRoot(ctx context.Context, root string) ([]*Token, error)
	ListTokens(ctx context.Context, rng CorpusRange) ([]*Token, error)
	CountTokens(ctx context.Context, rng CorpusRange) (int, error)
	InsertToken(ctx context.Context, t *Token) error

	// ApplyExtraction writes root, sources, status, and confidence as one
	// atomic unit and keeps the root counters consistent. An empty root
	// clears the assignment.
	ApplyExtraction(ctx context.Context, id int64, root string, sources map[string]string, st Status, confidence float64, pattern string) error

	// SetTokenRefs stores the bounded reference sample for a token.
	SetTokenRefs(ctx context.Context, id int64, refs []int64) error
}

var _ TokenStore = (*Store)(nil)

const tokenColumns = `id, sura, aya, position, text_ar, normalized,
	COALESCE(root, ''), root_sources, status, COALESCE(confidence, 0),
	refs, COALESCE(pattern, '')`

func scanToken(row interface{ Scan(...any) error }) (*Token, error) {
	var t Token
	var sources, refs sql.NullString
	err := row.Scan(&t.ID, &t.Sura, &t.Aya, &t.Position, &t.TextAr, &t.Normalized,
		&t.Root, &sources, &t.Status, &t.Confidence, &refs, &t.Pattern)
	if err != nil {
		return nil, err
	}
	if sources.Valid && sources.String != "" {
		if err := json.Unmarshal([]byte(sources.String), &t.RootSources); err != nil {
			return nil, fmt.Errorf("decode root_sources for token %d: %w", t.ID, err)
		}
	}
	if refs.Valid && refs.String != "" {
		if err := json.Unmarshal([]byte(refs.String), &t.Refs); err != nil {
			return nil, fmt.Errorf("decode refs for token %d: %w", t.ID, err)
		}
	}
	return &t, nil
}

// GetToken fetches one token by id.
func (s *Store) GetToken(ctx context.Context, id int64) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE id = ?", id)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %d: %w", id, ErrNotFound)
	}
	return t, err
}

// GetTokenAt fetches the token at a corpus coordinate.
func (s *Store) GetTokenAt(ctx context.Context, sura, aya, position int) (*Token, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE sura = ? AND aya = ? AND position = ?",
		sura, aya, position)
	t, err := scanToken(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("token %d:%d:%d: %w", sura, aya, position, ErrNotFound)
	}
	return t, err
}

func (s *Store) queryTokens(ctx context.Context, query string, args ...any) ([]*Token, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindByNormalized returns every token sharing a normalized form.
func (s *Store) FindByNormalized(ctx context.Context, normalized string) ([]*Token, error) {
	return s.queryTokens(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE normalized = ? ORDER BY sura, aya, position",
		normalized)
}

// FindByRoot returns every token assigned the given root, in corpus order.
func (s *Store) FindByRoot(ctx context.Context, root string) ([]*Token, error) {
	return s.queryTokens(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE root = ? ORDER BY sura, aya, position",
		root)
}

// ListTokens returns all tokens in the range, in corpus order.
func (s *Store) ListTokens(ctx context.Context, rng CorpusRange) ([]*Token, error) {
	cond, args := rng.where()
	return s.queryTokens(ctx,
		"SELECT "+tokenColumns+" FROM tokens WHERE "+cond+" ORDER BY sura, aya, position",
		args...)
}

// CountTokens returns the number of tokens in the range.
func (s *Store) CountTokens(ctx context.Context, rng CorpusRange) (int, error) {
	cond, args := rng.where()
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tokens WHERE "+cond, args...).Scan(&n)
	return n, err
}

// InsertToken creates a token row; used by corpus ingestion and tests.
// The id is filled in on return.
func (s *Store) InsertToken(ctx context.Context, t *Token) error {
	if t.Status == "" {
		t.Status = StatusMissing
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tokens (sura, aya, position, text_ar, normalized, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.Sura, t.Aya, t.Position, t.TextAr, t.Normalized, string(t.Status))
	if err != nil {
		return fmt.Errorf("insert token %d:%d:%d: %w", t.Sura, t.Aya, t.Position, err)
	}
	t.ID, err = res.LastInsertId()
	return err
}

// ApplyExtraction atomically writes a token's extraction outcome and keeps
// the denormalized root counters in step: the old root (if any) is
// decremented, the new root is created on first use and incremented. All of
// it happens in one transaction so a cancelled batch never leaves a token
// half-updated.
func (s *Store) ApplyExtraction(ctx context.Context, id int64, root string, sources map[string]string, st Status, confidence float64, pattern string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var oldRoot sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT root FROM tokens WHERE id = ?", id).Scan(&oldRoot)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("token %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return wrapConflict(err)
	}

	var sourcesJSON, rootVal, confVal, patternVal any
	if len(sources) > 0 {
		b, err := json.Marshal(sources)
		if err != nil {
			return err
		}
		sourcesJSON = string(b)
	}
	if root != "" {
		rootVal = root
	}
	if st != StatusMissing {
		confVal = confidence
	}
	if pattern != "" {
		patternVal = pattern
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE tokens
		 SET root = ?, root_sources = COALESCE(?, root_sources), status = ?,
		     confidence = ?, pattern = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		rootVal, sourcesJSON, string(st), confVal, patternVal, id)
	if err != nil {
		return fmt.Errorf("update token %d: %w", id, wrapConflict(err))
	}

	if oldRoot.String != root {
		if oldRoot.Valid && oldRoot.String != "" {
			if err := decrementRootTx(ctx, tx, oldRoot.String); err != nil {
				return wrapConflict(err)
			}
		}
		if root != "" {
			if err := incrementRootTx(ctx, tx, root); err != nil {
				return wrapConflict(err)
			}
		}
	}
	return wrapConflict(tx.Commit())
}

// wrapConflict maps SQLite lock contention onto ErrWriteConflict so callers
// can retry with a fresh read instead of dropping the write.
func wrapConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "locked") || strings.Contains(err.Error(), "busy") {
		return fmt.Errorf("%w: %v", ErrWriteConflict, err)
	}
	return err
}

// SetTokenRefs stores the bounded reference sample for a token.
func (s *Store) SetTokenRefs(ctx context.Context, id int64, refs []int64) error {
	var val any
	if len(refs) > 0 {
		b, err := json.Marshal(refs)
		if err != nil {
			return err
		}
		val = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE tokens SET refs = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", val, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("token %d: %w", id, ErrNotFound)
	}
	return err
}
