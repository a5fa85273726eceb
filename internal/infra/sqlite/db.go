// Package sqlite is the durable snapshot store for the RepID engine.
// The engine itself is purely in-memory; this adapter periodically persists
// full agent snapshots and warm-loads them at boot.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the snapshot database and applies migrations.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Snapshot writes are single-writer; one connection avoids SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	db := &DB{db: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error { return db.db.Close() }

// migrate applies the schema. Each string is a single SQL statement.
func (db *DB) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			agent_id          TEXT PRIMARY KEY,
			score             REAL NOT NULL,
			last_update       TEXT NOT NULL,
			total_validations INTEGER NOT NULL DEFAULT 0,
			total_correct     INTEGER NOT NULL DEFAULT 0,
			saved_at          TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		`CREATE TABLE IF NOT EXISTS validation_history (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			agent_id     TEXT NOT NULL,
			correct      INTEGER NOT NULL,
			confidence   REAL NOT NULL,
			difficulty   REAL NOT NULL,
			is_edge_case INTEGER NOT NULL DEFAULT 0,
			timestamp    TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_validation_agent ON validation_history(agent_id, id)`,

		`CREATE TABLE IF NOT EXISTS update_history (
			id        TEXT PRIMARY KEY,
			agent_id  TEXT NOT NULL,
			old_repid REAL NOT NULL,
			new_repid REAL NOT NULL,
			change    REAL NOT NULL,
			reason    TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_update_agent ON update_history(agent_id, rowid)`,
	}

	for _, stmt := range stmts {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
