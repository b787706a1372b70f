// Package db provides the SQLite connection and schema for scened.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables
func initSchema(db *sql.DB) error {
	// Device prefs - per-device timeshift and asserted scenes,
	// restored on startup so a restart does not lose commands.
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS device_prefs (
			device_id TEXT PRIMARY KEY,
			timeshift INTEGER NOT NULL DEFAULT 0,
			active_scenes TEXT NOT NULL DEFAULT '[]',
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create device_prefs table: %w", err)
	}

	// Write audit - append-only history of applied device writes
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS write_audit (
			id TEXT PRIMARY KEY,
			device_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_write_audit_device_ts ON write_audit(device_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_write_audit_ts ON write_audit(created_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create write_audit table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
