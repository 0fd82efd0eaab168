// Package index provides the SQLite-backed secondary index over note files:
// metadata rows, a full-text projection, backlink edges, and a title lookup.
// The database is a rebuildable cache: deleting the file forces a full
// rebuild from note files on the next start, so synchronous durability is
// deliberately relaxed while the content store stays fully durable.
package index

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const schemaVersionSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL
);
`

const migrationV1 = `
CREATE TABLE IF NOT EXISTS notes (
	uid          TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	file_path    TEXT NOT NULL UNIQUE,
	content_hash TEXT NOT NULL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	indexed_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_updated_at ON notes(updated_at DESC);
CREATE INDEX IF NOT EXISTS idx_notes_title ON notes(title);

CREATE TABLE IF NOT EXISTS backlinks (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_uid   TEXT NOT NULL,
	target_title TEXT NOT NULL,
	position     INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_backlinks_target ON backlinks(target_title);
CREATE INDEX IF NOT EXISTS idx_backlinks_source ON backlinks(source_uid);

CREATE TABLE IF NOT EXISTS title_index (
	title_normalized TEXT PRIMARY KEY,
	uid              TEXT NOT NULL
);

INSERT INTO schema_version (version, applied_at) VALUES (1, datetime('now'));
`

const migrationV2 = `
ALTER TABLE notes ADD COLUMN preview TEXT NOT NULL DEFAULT '';
ALTER TABLE notes ADD COLUMN tags_json TEXT NOT NULL DEFAULT '[]';

CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at DESC);

INSERT INTO schema_version (version, applied_at) VALUES (2, datetime('now'));
`

// DB wraps the single shared SQLite handle.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the index database and applies pending migrations.
// Each migration runs exactly once, gated by the schema_version table.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("index: create db dir: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	// Single shared handle; all index operations serialize here.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	return &DB{conn: conn}, nil
}

func migrate(conn *sql.DB) error {
	if _, err := conn.Exec(schemaVersionSQL); err != nil {
		return fmt.Errorf("index: create schema_version: %w", err)
	}

	var version int
	if err := conn.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&version); err != nil {
		return fmt.Errorf("index: read schema version: %w", err)
	}

	if version < 1 {
		if _, err := conn.Exec(migrationV1); err != nil {
			return fmt.Errorf("index: migrate v1: %w", err)
		}
	}
	if version < 2 {
		if _, err := conn.Exec(migrationV2); err != nil {
			return fmt.Errorf("index: migrate v2: %w", err)
		}
	}

	if err := initFTS(conn); err != nil {
		return fmt.Errorf("index: apply fts schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
