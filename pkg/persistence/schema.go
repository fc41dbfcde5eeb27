// Package persistence stores simulation records: gob files in the output
// directory and, optionally, a SQLite database of runs.
package persistence

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver
)

// CurrentSchemaVersion defines the current schema version for migration support.
const CurrentSchemaVersion = 2

// InitializeDatabase opens the SQLite database at dbPath and brings its schema up to date.
// This function is idempotent and safe to call multiple times.
func InitializeDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		dbPath,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; one connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initializeSchemaWithMigrations ensures the database schema is at the current version.
func initializeSchemaWithMigrations(db *sql.DB) error {
	currentVersion, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	// If database is empty (version 0), create fresh schema
	if currentVersion == 0 {
		return createSchema(db)
	}

	if currentVersion == CurrentSchemaVersion {
		return nil
	}
	if currentVersion > CurrentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", currentVersion, CurrentSchemaVersion)
	}

	return runMigrations(db, currentVersion, CurrentSchemaVersion)
}

// runMigrations applies database migrations from current version to target version.
func runMigrations(db *sql.DB, fromVersion, toVersion int) error {
	for version := fromVersion + 1; version <= toVersion; version++ {
		if err := runMigration(db, version); err != nil {
			return fmt.Errorf("migration to version %d failed: %w", version, err)
		}

		if err := setSchemaVersion(db, version); err != nil {
			return fmt.Errorf("failed to update schema version to %d: %w", version, err)
		}
	}
	return nil
}

// runMigration applies a specific version migration.
func runMigration(db *sql.DB, version int) error {
	switch version {
	case 2:
		return migrateToVersion2(db)
	default:
		return fmt.Errorf("unknown migration version: %d", version)
	}
}

// migrateToVersion2 adds per-agent token accounting and the placement seed.
func migrateToVersion2(db *sql.DB) error {
	migrations := []string{
		"ALTER TABLE runs ADD COLUMN seed INTEGER NOT NULL DEFAULT 0",
		"ALTER TABLE agents ADD COLUMN tokens INTEGER NOT NULL DEFAULT 0",
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("failed to execute migration: %s: %w", migration, err)
		}
	}

	return nil
}

// schemaV1 is the first released layout; migrations start from it.
//
//nolint:gochecknoglobals
var schemaV1 = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		variant TEXT NOT NULL CHECK (variant IN ('scalar','2d')),
		agents INTEGER NOT NULL,
		rounds INTEGER NOT NULL,
		instances INTEGER NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS entries (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		instance INTEGER NOT NULL,
		record_key TEXT NOT NULL,
		PRIMARY KEY (run_id, instance),
		UNIQUE (run_id, record_key)
	)`,

	`CREATE TABLE IF NOT EXISTS agents (
		run_id TEXT NOT NULL,
		instance INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		name TEXT NOT NULL,
		PRIMARY KEY (run_id, instance, agent),
		FOREIGN KEY (run_id, instance) REFERENCES entries(run_id, instance) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS turns (
		run_id TEXT NOT NULL,
		instance INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('system','user','assistant')),
		content TEXT NOT NULL,
		PRIMARY KEY (run_id, instance, agent, seq),
		FOREIGN KEY (run_id, instance, agent) REFERENCES agents(run_id, instance, agent) ON DELETE CASCADE
	)`,

	`CREATE TABLE IF NOT EXISTS trajectory_points (
		run_id TEXT NOT NULL,
		instance INTEGER NOT NULL,
		agent INTEGER NOT NULL,
		kind TEXT NOT NULL CHECK (kind IN ('position','target')),
		seq INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL,
		PRIMARY KEY (run_id, instance, agent, kind, seq),
		FOREIGN KEY (run_id, instance, agent) REFERENCES agents(run_id, instance, agent) ON DELETE CASCADE
	)`,

	"CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)",
	"CREATE INDEX IF NOT EXISTS idx_turns_agent ON turns(run_id, instance, agent)",
}

// createSchema creates all required tables at version 1 and migrates to the current version.
func createSchema(db *sql.DB) error {
	for _, table := range schemaV1 {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	if err := setSchemaVersion(db, 1); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return runMigrations(db, 1, CurrentSchemaVersion)
}

// setSchemaVersion records the schema version in the database.
func setSchemaVersion(db *sql.DB, version int) error {
	_, err := db.Exec(`
		INSERT OR REPLACE INTO schema_version (version) VALUES (?)
	`, version)
	if err != nil {
		return fmt.Errorf("database exec error: %w", err)
	}
	return nil
}

// GetSchemaVersion returns the current schema version from the database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	// First ensure the schema_version table exists
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
	)`)
	if err != nil {
		return 0, fmt.Errorf("failed to create schema_version table: %w", err)
	}

	var version int
	err = db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil // No version set yet
	}
	if err != nil {
		return 0, fmt.Errorf("schema version scan error: %w", err)
	}
	return version, nil
}
