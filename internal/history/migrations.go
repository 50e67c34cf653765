package history

import (
	"database/sql"
	"errors"
	"fmt"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: runs",
		SQL:         migration001SQL,
	},
}

const migration001SQL = `
CREATE TABLE runs (
    id            TEXT PRIMARY KEY,
    provider      TEXT NOT NULL,
    kind          TEXT NOT NULL,
    model         TEXT NOT NULL DEFAULT '',
    prompt        TEXT NOT NULL DEFAULT '',
    exit_code     INTEGER NOT NULL DEFAULT 0,
    input_tokens  INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost          REAL,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL
);

CREATE INDEX idx_runs_provider_time ON runs(provider, created_at DESC);
CREATE INDEX idx_runs_time ON runs(created_at DESC);
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
