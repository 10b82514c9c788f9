package store

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: images and derivatives tables",
		SQL: `
CREATE TABLE IF NOT EXISTS images (
  id TEXT PRIMARY KEY,
  original_key TEXT NOT NULL,
  filename TEXT,
  media_type TEXT NOT NULL,
  format TEXT NOT NULL,
  width INTEGER NOT NULL,
  height INTEGER NOT NULL,
  size_bytes INTEGER NOT NULL,
  sha256 TEXT NOT NULL,
  created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS derivatives (
  image_id TEXT NOT NULL,
  preset TEXT NOT NULL,
  fingerprint TEXT NOT NULL,
  blob_key TEXT NOT NULL,
  media_type TEXT NOT NULL,
  width INTEGER NOT NULL,
  height INTEGER NOT NULL,
  size_bytes INTEGER NOT NULL,
  generated_at TEXT NOT NULL,
  PRIMARY KEY (image_id, preset),
  FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_images_created_at ON images(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_images_sha256 ON images(sha256);
CREATE UNIQUE INDEX IF NOT EXISTS idx_derivatives_blob_key ON derivatives(blob_key);
`,
	},
	{
		Version:     2,
		Description: "add deleting_at for two-phase image deletes",
		SQL: `
ALTER TABLE images ADD COLUMN deleting_at TEXT;
CREATE INDEX IF NOT EXISTS idx_images_deleting_at ON images(deleting_at) WHERE deleting_at IS NOT NULL;
`,
	},
	{
		Version:     3,
		Description: "derivative lookup by preset for stale sweeps",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_derivatives_preset_fingerprint ON derivatives(preset, fingerprint);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

// ensureMigrationsTable creates the schema_migrations table if it doesn't exist.
func ensureMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(migrationsTableSQL)
	return err
}

// currentVersion returns the highest applied migration version, or 0 if none.
func currentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func sortedMigrations() []Migration {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return sorted
}

// runMigrations applies all pending migrations in order, one transaction each.
func runMigrations(db *sql.DB) error {
	if err := ensureMigrationsTable(db); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range sortedMigrations() {
		if m.Version <= current {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", m.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// MigrationPlan returns the current migration status without applying anything.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	if err := ensureMigrationsTable(db); err != nil {
		return nil, err
	}

	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}

	sorted := sortedMigrations()
	available := 0
	if len(sorted) > 0 {
		available = sorted[len(sorted)-1].Version
	}

	var pending []MigrationInfo
	for _, m := range sorted {
		if m.Version > current {
			pending = append(pending, MigrationInfo{Version: m.Version, Description: m.Description})
		}
	}

	return &MigrationStatus{
		CurrentVersion:   current,
		AvailableVersion: available,
		Pending:          pending,
	}, nil
}
