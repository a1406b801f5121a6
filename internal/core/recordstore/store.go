// Package recordstore reads and writes form records in the SQL record store.
//
// Records are JSON documents keyed by (entity, id). Business rules such as
// overlap and uniqueness checks consume Snapshot; the engine itself never
// touches the store.
package recordstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/formguard/internal/core/db"
	"github.com/solatis/formguard/internal/types"
)

// IDField is the record field holding the record's identifier.
const IDField types.FieldName = "id"

// ErrNotFound indicates no record exists for the requested (entity, id).
var ErrNotFound = errors.New("record not found")

// SnapshotProvider supplies the existing records business rules compare against.
type SnapshotProvider interface {
	Snapshot(ctx context.Context, entity types.EntityType) ([]types.Record, error)
}

// Store is the SQL record store.
type Store struct {
	queries *db.Queries
	now     func() time.Time
}

type row struct {
	ID   string `db:"id"`
	Data string `db:"data"`
}

// New returns a store over database. Migrations must have been applied.
func New(database *sqlx.DB) (*Store, error) {
	queries, err := db.LoadQueries(database)
	if err != nil {
		return nil, err
	}
	return &Store{queries: queries, now: time.Now}, nil
}

// Snapshot returns every stored record of entity, ordered by id.
func (s *Store) Snapshot(ctx context.Context, entity types.EntityType) ([]types.Record, error) {
	var rows []row
	if err := s.queries.Select(ctx, "list-records", &rows, string(entity)); err != nil {
		return nil, fmt.Errorf("failed to list %s records: %w", entity, err)
	}

	out := make([]types.Record, 0, len(rows))
	for _, r := range rows {
		rec, err := decode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one record.
func (s *Store) Get(ctx context.Context, entity types.EntityType, id string) (types.Record, error) {
	var r row
	if err := s.queries.Get(ctx, "get-record", &r, string(entity), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s %s", ErrNotFound, entity, id)
		}
		return nil, fmt.Errorf("failed to get %s record %s: %w", entity, id, err)
	}
	return decode(r)
}

// Put inserts or replaces rec and returns its id. A record without an id is
// assigned a new one.
func (s *Store) Put(ctx context.Context, entity types.EntityType, rec types.Record) (string, error) {
	rec = rec.Clone()
	id := rec.String(IDField)
	if id == "" {
		id = types.NewInstanceID()
		rec[IDField] = id
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode %s record %s: %w", entity, id, err)
	}
	updatedAt := s.now().UTC().Format(time.RFC3339Nano)
	if _, err := s.queries.Exec(ctx, "upsert-record", string(entity), id, string(data), updatedAt); err != nil {
		return "", fmt.Errorf("failed to store %s record %s: %w", entity, id, err)
	}
	return id, nil
}

// Delete removes one record. Deleting a missing record is not an error.
func (s *Store) Delete(ctx context.Context, entity types.EntityType, id string) error {
	if _, err := s.queries.Exec(ctx, "delete-record", string(entity), id); err != nil {
		return fmt.Errorf("failed to delete %s record %s: %w", entity, id, err)
	}
	return nil
}

// Count returns the number of stored records of entity.
func (s *Store) Count(ctx context.Context, entity types.EntityType) (int, error) {
	var n int
	if err := s.queries.Get(ctx, "count-records", &n, string(entity)); err != nil {
		return 0, fmt.Errorf("failed to count %s records: %w", entity, err)
	}
	return n, nil
}

func decode(r row) (types.Record, error) {
	var rec types.Record
	if err := json.Unmarshal([]byte(r.Data), &rec); err != nil {
		return nil, fmt.Errorf("failed to decode record %s: %w", r.ID, err)
	}
	if rec == nil {
		rec = types.Record{}
	}
	rec[IDField] = r.ID
	return rec, nil
}
