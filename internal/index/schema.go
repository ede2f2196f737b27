// Package index provides a SQLite-backed store of model validation runs:
// one run per model file with its diagnostics and entity graph.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	path             TEXT PRIMARY KEY,
	checksum         TEXT NOT NULL DEFAULT '',
	valid            INTEGER NOT NULL DEFAULT 0,
	errors           INTEGER NOT NULL DEFAULT 0,
	warnings         INTEGER NOT NULL DEFAULT 0,
	unclear          INTEGER NOT NULL DEFAULT 0,
	entities         INTEGER NOT NULL DEFAULT 0,
	states_total     INTEGER NOT NULL DEFAULT 0,
	states_reachable INTEGER NOT NULL DEFAULT 0,
	load_error       TEXT NOT NULL DEFAULT '',
	validated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS diagnostics (
	path       TEXT NOT NULL REFERENCES runs(path) ON DELETE CASCADE,
	seq        INTEGER NOT NULL,
	severity   TEXT NOT NULL,
	code       TEXT NOT NULL,
	message    TEXT NOT NULL,
	entity     TEXT NOT NULL DEFAULT '',
	state      TEXT NOT NULL DEFAULT '',
	transition TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(path, seq)
);

CREATE TABLE IF NOT EXISTS entities (
	path     TEXT NOT NULL REFERENCES runs(path) ON DELETE CASCADE,
	seq      INTEGER NOT NULL,
	name     TEXT NOT NULL,
	stateful INTEGER NOT NULL DEFAULT 0,
	states   TEXT NOT NULL DEFAULT '[]',
	PRIMARY KEY(path, name)
);

CREATE TABLE IF NOT EXISTS relationships (
	path   TEXT NOT NULL REFERENCES runs(path) ON DELETE CASCADE,
	seq    INTEGER NOT NULL,
	source TEXT NOT NULL,
	target TEXT NOT NULL,
	type   TEXT NOT NULL,
	UNIQUE(path, source, target, type)
);

CREATE INDEX IF NOT EXISTS idx_diagnostics_code ON diagnostics(code);
CREATE INDEX IF NOT EXISTS idx_diagnostics_severity ON diagnostics(severity);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
