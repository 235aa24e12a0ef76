package store

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// migration upgrades the schema to version.
type migration struct {
	version    int
	name       string
	statements []string
}

// migrations are applied in order; a database records the highest version
// it has reached in schema_version.
var migrations = []migration{
	{
		version: 1,
		name:    "create history tables",
		statements: []string{
			`CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				input TEXT NOT NULL,
				output TEXT,
				batch INTEGER NOT NULL DEFAULT 0,
				files INTEGER NOT NULL DEFAULT 0,
				failed INTEGER NOT NULL DEFAULT 0,
				items INTEGER NOT NULL DEFAULT 0,
				started_at TEXT NOT NULL,
				finished_at TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS files (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				position INTEGER NOT NULL,
				video_path TEXT NOT NULL,
				chunks INTEGER NOT NULL DEFAULT 0,
				error TEXT,
				summary TEXT
			)`,
			`CREATE TABLE IF NOT EXISTS items (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
				analyzer TEXT NOT NULL,
				frame INTEGER NOT NULL,
				chunk INTEGER NOT NULL DEFAULT 0,
				confidence REAL NOT NULL DEFAULT 0,
				timestamp TEXT NOT NULL,
				image TEXT NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
			`CREATE INDEX IF NOT EXISTS idx_files_run ON files(run_id, position)`,
		},
	},
	{
		version: 2,
		name:    "add run elapsed time and item lookup",
		statements: []string{
			`ALTER TABLE runs ADD COLUMN elapsed_ms INTEGER NOT NULL DEFAULT 0`,
			`CREATE INDEX IF NOT EXISTS idx_items_file ON items(file_id, id)`,
		},
	},
}

const schemaVersion = 2

// migrate brings db up to the last version of steps. It returns the version
// found before upgrading.
func migrate(db *sql.DB, steps []migration, log *slog.Logger) (int, error) {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL,
			applied_at TEXT DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_version table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return 0, err
	}

	for _, m := range steps {
		if m.version <= current {
			continue
		}
		if err := apply(db, m); err != nil {
			return current, err
		}
		log.Info("Applied schema migration", "version", m.version, "name", m.name)
	}
	return current, nil
}

func apply(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range m.statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("migration v%d (%s) failed: %w", m.version, m.name, err)
		}
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
		return fmt.Errorf("record schema version %d: %w", m.version, err)
	}
	return tx.Commit()
}

// currentVersion returns the highest applied version, 0 for a fresh database.
func currentVersion(db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("check schema version: %w", err)
	}
	return int(version.Int64), nil
}
