package store

import (
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations contains all database migrations in order. A version bump runs
// an upgrade pass that must preserve all existing records.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
-- Cached item metadata, one row per downloaded item per user
CREATE TABLE IF NOT EXISTS cached_items (
    id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    title TEXT NOT NULL,
    attribution TEXT NOT NULL,
    collection_name TEXT,
    duration_label TEXT NOT NULL,
    artwork_locator TEXT,
    byte_size INTEGER NOT NULL DEFAULT 0,
    downloaded_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (id, owner_id)
);

CREATE INDEX IF NOT EXISTS idx_cached_owner ON cached_items(owner_id);
CREATE INDEX IF NOT EXISTS idx_cached_downloaded ON cached_items(downloaded_at);

-- Raw audio payloads keyed by item id
CREATE TABLE IF NOT EXISTS audio_blobs (
    id TEXT PRIMARY KEY,
    payload BLOB NOT NULL
);

-- Raw artwork payloads keyed by item id; optional
CREATE TABLE IF NOT EXISTS image_blobs (
    id TEXT PRIMARY KEY,
    payload BLOB NOT NULL
);

-- Migration tracking table
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`,
	},
	{
		Version: 2,
		Name:    "optimize_owner_listing",
		Up: `
-- Composite index for the per-owner insertion-order listing
CREATE INDEX IF NOT EXISTS idx_cached_owner_downloaded ON cached_items(owner_id, downloaded_at);
`,
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(db *sql.DB) error {
	// Create migrations table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := getCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}

		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// getCurrentVersion returns the current schema version
func getCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}
