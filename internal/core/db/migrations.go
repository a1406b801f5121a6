package db

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	embeddedmigrations "github.com/solatis/formguard/migrations"
)

// MigrationStatus represents the state of a single migration.
type MigrationStatus struct {
	ID          string     `json:"id"`
	Checksum    string     `json:"checksum"`
	Applied     bool       `json:"applied"`
	AppliedAt   *time.Time `json:"appliedAt,omitempty"`
	ExecutionMs int64      `json:"executionMs"`
}

// migration represents a parsed migration file
type migration struct {
	ID       string
	Checksum string
	SQL      string
}

// MigrateUp runs all pending migrations against the database and returns the
// IDs it applied. Checksums of already-applied migrations are validated first.
func MigrateUp(ctx context.Context, db *sqlx.DB) ([]string, error) {
	migrations, err := prepare(ctx, db)
	if err != nil {
		return nil, err
	}

	// Validate checksums of already-applied migrations
	// SHA256 hash detects modification of applied migrations
	if err := validateChecksums(ctx, db, migrations); err != nil {
		return nil, fmt.Errorf("migration checksum validation failed: %w", err)
	}

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.ID] {
			continue
		}
		if err := runMigration(ctx, db, m); err != nil {
			return ran, err
		}
		ran = append(ran, m.ID)
	}
	return ran, nil
}

// runMigration applies m and records it in one transaction, so a failure
// leaves neither schema changes nor a tracking row behind.
func runMigration(ctx context.Context, db *sqlx.DB, m migration) error {
	start := time.Now()

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for migration %s: %w", m.ID, err)
	}
	defer tx.Rollback()

	if err := applyMigration(ctx, tx, m); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m.ID, err)
	}
	if err := recordMigration(ctx, tx, m.ID, m.Checksum, time.Since(start)); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.ID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.ID, err)
	}
	return nil
}

// MigrateStatus returns the status of all migrations (applied and pending).
func MigrateStatus(ctx context.Context, db *sqlx.DB) ([]MigrationStatus, error) {
	migrations, err := prepare(ctx, db)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryxContext(ctx, "SELECT migration_id, checksum, applied_at, execution_ms FROM migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]MigrationStatus)
	for rows.Next() {
		var (
			status    MigrationStatus
			appliedAt string
		)
		// applied_at is TEXT on SQLite and TIMESTAMP on PostgreSQL; both scan into a string.
		if err := rows.Scan(&status.ID, &status.Checksum, &appliedAt, &status.ExecutionMs); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339, appliedAt); err == nil {
			status.AppliedAt = &t
		}
		status.Applied = true
		applied[status.ID] = status
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	statuses := make([]MigrationStatus, 0, len(migrations))
	for _, m := range migrations {
		if s, ok := applied[m.ID]; ok {
			statuses = append(statuses, s)
			continue
		}
		statuses = append(statuses, MigrationStatus{ID: m.ID, Checksum: m.Checksum})
	}
	return statuses, nil
}

// prepare selects the driver's embedded migrations and ensures the tracking
// table exists.
func prepare(ctx context.Context, db *sqlx.DB) ([]migration, error) {
	var (
		fsys fs.FS
		dir  string
	)
	switch db.DriverName() {
	case "sqlite3":
		fsys, dir = embeddedmigrations.SqliteMigrations, "sqlite"
	case "postgres":
		fsys, dir = embeddedmigrations.PostgresMigrations, "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", db.DriverName())
	}

	if err := createMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := parseMigrationFiles(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to parse migrations: %w", err)
	}
	return migrations, nil
}

// parseMigrationFiles extracts ordered list of migrations from fsys
func parseMigrationFiles(fsys fs.FS, dir string) ([]migration, error) {
	var migrations []migration

	err := fs.WalkDir(fsys, dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".sql") {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		migrations = append(migrations, migration{
			ID:       path.Base(p),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			SQL:      string(content),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by filename for deterministic ordering
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
	return migrations, nil
}

// createMigrationsTable ensures migrations tracking table exists
func createMigrationsTable(ctx context.Context, db *sqlx.DB) error {
	createSQL := `
		CREATE TABLE IF NOT EXISTS migrations (
			migration_id TEXT PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at TIMESTAMP WITHOUT TIME ZONE NOT NULL,
			execution_ms INTEGER NOT NULL
		)
	`
	if db.DriverName() == "sqlite3" {
		createSQL = `
			CREATE TABLE IF NOT EXISTS migrations (
				migration_id TEXT PRIMARY KEY,
				checksum TEXT NOT NULL,
				applied_at TEXT NOT NULL,
				execution_ms INTEGER NOT NULL,
				CHECK (applied_at LIKE '____-__-__T__:__:__Z')
			)
		`
	}

	_, err := db.ExecContext(ctx, createSQL)
	return err
}

// getAppliedMigrations returns a set of applied migration IDs
func getAppliedMigrations(ctx context.Context, db *sqlx.DB) (map[string]bool, error) {
	var ids []string
	if err := db.SelectContext(ctx, &ids, "SELECT migration_id FROM migrations"); err != nil {
		return nil, err
	}

	applied := make(map[string]bool, len(ids))
	for _, id := range ids {
		applied[id] = true
	}
	return applied, nil
}

// validateChecksums verifies all applied migrations match embedded checksums
func validateChecksums(ctx context.Context, db *sqlx.DB, migrations []migration) error {
	var rows []struct {
		ID       string `db:"migration_id"`
		Checksum string `db:"checksum"`
	}
	if err := db.SelectContext(ctx, &rows, "SELECT migration_id, checksum FROM migrations"); err != nil {
		return err
	}

	expected := make(map[string]string, len(migrations))
	for _, m := range migrations {
		expected[m.ID] = m.Checksum
	}

	for _, r := range rows {
		want, ok := expected[r.ID]
		if !ok {
			return fmt.Errorf("migration %s exists in database but not in embedded files", r.ID)
		}
		if r.Checksum != want {
			return fmt.Errorf("checksum mismatch for migration %s: expected %s, got %s", r.ID, want, r.Checksum)
		}
	}
	return nil
}

// applyMigration executes a single migration's statements within tx.
// lib/pq doesn't support multiple statements in single Exec, so the file is
// split on semicolons after dropping comment lines.
func applyMigration(ctx context.Context, tx *sqlx.Tx, m migration) error {
	for _, stmt := range strings.Split(stripComments(m.SQL), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("statement failed: %w", err)
		}
	}
	return nil
}

func stripComments(sql string) string {
	lines := strings.Split(sql, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if !strings.HasPrefix(strings.TrimSpace(l), "--") {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

// recordMigration stores migration metadata within tx
func recordMigration(ctx context.Context, tx *sqlx.Tx, id, checksum string, duration time.Duration) error {
	now := time.Now().UTC()

	var appliedAt any = now
	if tx.DriverName() == "sqlite3" {
		appliedAt = now.Format(time.RFC3339)
	}
	_, err := tx.ExecContext(ctx, tx.Rebind(
		"INSERT INTO migrations (migration_id, checksum, applied_at, execution_ms) VALUES (?, ?, ?, ?)"),
		id, checksum, appliedAt, duration.Milliseconds(),
	)
	return err
}
