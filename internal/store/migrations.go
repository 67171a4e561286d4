package store

import (
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// Schema versions:
// v1: tokens, roots, extract_cache tables
// v2: pattern column on tokens (وزن annotation)
// v3: related_roots and compressed members blob on roots
const currentSchemaVersion = 3

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tokens (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		sura         INTEGER NOT NULL,
		aya          INTEGER NOT NULL,
		position     INTEGER NOT NULL,
		text_ar      TEXT NOT NULL,
		normalized   TEXT NOT NULL,
		root         TEXT,
		root_sources TEXT,
		status       TEXT NOT NULL DEFAULT 'missing',
		confidence   REAL,
		refs         TEXT,
		created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (sura, aya, position)
	)`,
	`CREATE INDEX IF NOT EXISTS ix_tokens_normalized ON tokens (normalized)`,
	`CREATE INDEX IF NOT EXISTS ix_tokens_root ON tokens (root)`,
	`CREATE INDEX IF NOT EXISTS ix_tokens_status ON tokens (status)`,
	`CREATE TABLE IF NOT EXISTS roots (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		root        TEXT NOT NULL UNIQUE,
		meaning     TEXT,
		token_count INTEGER NOT NULL DEFAULT 0,
		updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS extract_cache (
		word       TEXT NOT NULL,
		loc_key    TEXT NOT NULL DEFAULT '',
		root       TEXT NOT NULL,
		sources    TEXT,
		confidence REAL NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (word, loc_key)
	)`,
}

// columnMigration adds a column to an existing table. Additive-only schema
// evolution: old databases gain the column via ALTER TABLE, fresh databases
// get the full current schema from the CREATE statements plus these.
type columnMigration struct {
	table  string
	column string
	def    string
}

var pendingMigrations = []columnMigration{
	// v2: pattern annotation on tokens
	{"tokens", "pattern", "TEXT"},
	// v3: similarity browsing and compressed membership on roots
	{"roots", "related_roots", "TEXT"},
	{"roots", "members", "BLOB"},
	{"roots", "members_codec", "TEXT"},
}

func (s *Store) migrate() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}

	for _, m := range pendingMigrations {
		ok, err := columnExists(s.db, m.table, m.column)
		if err != nil {
			return err
		}
		if ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.table, m.column, m.def)
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
		}
		s.log.Debug("added column",
			zap.String("table", m.table), zap.String("column", m.column))
	}

	var version sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return err
	}
	if int(version.Int64) < currentSchemaVersion {
		if _, err := s.db.Exec("DELETE FROM schema_version"); err != nil {
			return err
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
			return err
		}
	}
	return nil
}

func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}
