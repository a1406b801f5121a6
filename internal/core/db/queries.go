package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// Queries provides access to named SQL queries loaded from embedded .sql files.
// Uses dotsql for named query management and sqlx for database operations.
type Queries struct {
	dot *dotsql.DotSql
	db  *sqlx.DB
}

// LoadQueries loads all .sql files from embedded filesystem and returns Queries instance.
// Named queries accessible by name (e.g., "list-records", "upsert-record").
func LoadQueries(db *sqlx.DB) (*Queries, error) {
	var combined strings.Builder

	err := fs.WalkDir(queriesFS, "queries", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".sql" {
			return nil
		}

		content, err := queriesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		combined.Write(content)
		combined.WriteString("\n")
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load query files: %w", err)
	}

	dot, err := dotsql.LoadFromString(combined.String())
	if err != nil {
		return nil, fmt.Errorf("failed to parse queries: %w", err)
	}

	return &Queries{dot: dot, db: db}, nil
}

// raw returns the named query rebound to the driver's placeholder style.
// Uses sqlx Rebind to convert ? placeholders to $1, $2 for PostgreSQL.
func (q *Queries) raw(name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(query), nil
}

// Exec executes a named query.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, err := q.raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, args...)
}

// Get retrieves a single row into dest struct using named query.
func (q *Queries) Get(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return q.db.GetContext(ctx, dest, query, args...)
}

// Select retrieves multiple rows into dest slice using named query.
func (q *Queries) Select(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return q.db.SelectContext(ctx, dest, query, args...)
}
