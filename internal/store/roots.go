package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Root is the canonical root entity with its denormalized token count and
// the materialized reverse index (inline or compressed, see MembersCodec).
type Root struct {
	ID         int64    `json:"id"`
	Root       string   `json:"root"`
	Meaning    string   `json:"meaning,omitempty"`
	TokenCount int      `json:"token_count"`
	Related    []string `json:"related_roots,omitempty"`

	// Members holds the full membership list encoded per MembersCodec:
	// "json" for small groups, "json+xz" for large ones.
	Members      []byte `json:"-"`
	MembersCodec string `json:"-"`
}

// RootStore is the root repository surface consumed by the pipeline.
type RootStore interface {
	GetRoot(ctx context.Context, root string) (*Root, error)
	GetOrCreateRoot(ctx context.Context, root string) (*Root, error)
	IncrementRootCount(ctx context.Context, root string) error
	DecrementRootCount(ctx context.Context, root string) error
	ListRoots(ctx context.Context) ([]*Root, error)
	SetRootMembers(ctx context.Context, root string, count int, members []byte, codec string) error
	SetRelatedRoots(ctx context.Context, root string, related []string) error
}

var _ RootStore = (*Store)(nil)

const rootColumns = `id, root, COALESCE(meaning, ''), token_count,
	related_roots, members, COALESCE(members_codec, '')`

func scanRoot(row interface{ Scan(...any) error }) (*Root, error) {
	var r Root
	var related sql.NullString
	err := row.Scan(&r.ID, &r.Root, &r.Meaning, &r.TokenCount,
		&related, &r.Members, &r.MembersCodec)
	if err != nil {
		return nil, err
	}
	if related.Valid && related.String != "" {
		if err := json.Unmarshal([]byte(related.String), &r.Related); err != nil {
			return nil, fmt.Errorf("decode related_roots for %s: %w", r.Root, err)
		}
	}
	return &r, nil
}

// GetRoot fetches one root by its string.
func (s *Store) GetRoot(ctx context.Context, root string) (*Root, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+rootColumns+" FROM roots WHERE root = ?", root)
	r, err := scanRoot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("root %s: %w", root, ErrNotFound)
	}
	return r, err
}

// GetOrCreateRoot fetches a root row, creating it with a zero count on first
// use. The upsert keeps concurrent creators from racing.
func (s *Store) GetOrCreateRoot(ctx context.Context, root string) (*Root, error) {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO roots (root) VALUES (?) ON CONFLICT(root) DO NOTHING", root)
	if err != nil {
		return nil, fmt.Errorf("create root %s: %w", root, err)
	}
	return s.GetRoot(ctx, root)
}

// IncrementRootCount atomically bumps a root's token count, creating the
// row if needed.
func (s *Store) IncrementRootCount(ctx context.Context, root string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO roots (root, token_count) VALUES (?, 1)
		 ON CONFLICT(root) DO UPDATE SET
		   token_count = token_count + 1, updated_at = CURRENT_TIMESTAMP`, root)
	return err
}

// DecrementRootCount atomically lowers a root's token count, never below
// zero.
func (s *Store) DecrementRootCount(ctx context.Context, root string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE roots SET
		   token_count = MAX(token_count - 1, 0), updated_at = CURRENT_TIMESTAMP
		 WHERE root = ?`, root)
	return err
}

// incrementRootTx / decrementRootTx are the in-transaction versions used by
// ApplyExtraction. The SQL is a single statement, so increments from
// concurrent workers never lose updates.
func incrementRootTx(ctx context.Context, tx *sql.Tx, root string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO roots (root, token_count) VALUES (?, 1)
		 ON CONFLICT(root) DO UPDATE SET
		   token_count = token_count + 1, updated_at = CURRENT_TIMESTAMP`, root)
	return err
}

func decrementRootTx(ctx context.Context, tx *sql.Tx, root string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE roots SET
		   token_count = MAX(token_count - 1, 0), updated_at = CURRENT_TIMESTAMP
		 WHERE root = ?`, root)
	return err
}

// ListRoots returns all roots ordered by descending token count.
func (s *Store) ListRoots(ctx context.Context) ([]*Root, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+rootColumns+" FROM roots ORDER BY token_count DESC, root")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Root
	for rows.Next() {
		r, err := scanRoot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetRootMembers stores the materialized membership for a root: the
// authoritative count and the encoded member list.
func (s *Store) SetRootMembers(ctx context.Context, root string, count int, members []byte, codec string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE roots SET
		   token_count = ?, members = ?, members_codec = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE root = ?`, count, members, codec, root)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("root %s: %w", root, ErrNotFound)
	}
	return err
}

// SetRelatedRoots stores the curated similar-roots list.
func (s *Store) SetRelatedRoots(ctx context.Context, root string, related []string) error {
	var val any
	if len(related) > 0 {
		b, err := json.Marshal(related)
		if err != nil {
			return err
		}
		val = string(b)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE roots SET related_roots = ?, updated_at = CURRENT_TIMESTAMP WHERE root = ?",
		val, root)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("root %s: %w", root, ErrNotFound)
	}
	return err
}
