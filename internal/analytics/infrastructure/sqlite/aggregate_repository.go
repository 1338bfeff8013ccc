// Package sqlite persists closed aggregate windows in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"blinkwatch/internal/analytics/domain/interval"
	events "blinkwatch/internal/events/domain"
)

const defaultAggregateTable = "blink_aggregates"

// AggregateRepository is a SQLite implementation of the aggregate store.
type AggregateRepository struct {
	db    *sql.DB
	table string
}

// NewAggregateRepository constructs a repository with the default table name.
func NewAggregateRepository(db *sql.DB, opts ...RepositoryOption) *AggregateRepository {
	repo := &AggregateRepository{db: db, table: defaultAggregateTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*AggregateRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *AggregateRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Migrate creates the aggregate table and its lookup index if missing.
func (r *AggregateRepository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("aggregate repo: nil db")
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	interval_type TEXT NOT NULL,
	interval_start TEXT NOT NULL,
	interval_end TEXT NOT NULL,
	blink_count INTEGER NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now')),
	UNIQUE(interval_type, interval_start)
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_type_start ON %[1]s(interval_type, interval_start)`, r.table)

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("aggregate repo: migrate: %w", err)
	}
	return nil
}

// Upsert inserts the record, overwriting blink_count and interval_end on a
// (interval_type, interval_start) conflict.
func (r *AggregateRepository) Upsert(ctx context.Context, rec interval.Record) error {
	if r == nil || r.db == nil {
		return errors.New("aggregate repo: nil db")
	}
	if err := rec.Validate(); err != nil {
		return err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (interval_type, interval_start, interval_end, blink_count)
VALUES (?, ?, ?, ?)
ON CONFLICT(interval_type, interval_start)
DO UPDATE SET blink_count = excluded.blink_count, interval_end = excluded.interval_end`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		string(rec.Kind),
		rec.Start.Format(events.TimeLayout),
		rec.End.Format(events.TimeLayout),
		rec.BlinkCount,
	)
	if err != nil {
		return fmt.Errorf("aggregate repo: upsert: %w", err)
	}
	return nil
}

// Latest returns the most recent record of the given kind, or nil.
func (r *AggregateRepository) Latest(ctx context.Context, kind interval.Granularity) (*interval.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("aggregate repo: nil db")
	}
	if !kind.IsValid() {
		return nil, interval.ErrInvalidGranularity
	}

	query := fmt.Sprintf(`
SELECT interval_type, interval_start, interval_end, blink_count
FROM %s
WHERE interval_type = ?
ORDER BY interval_start DESC
LIMIT 1`, r.table)

	rec, err := scanRecord(r.db.QueryRowContext(ctx, query, string(kind)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate repo: latest: %w", err)
	}
	return rec, nil
}

// List returns all records in insertion order.
func (r *AggregateRepository) List(ctx context.Context) ([]interval.Record, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("aggregate repo: nil db")
	}

	query := fmt.Sprintf(
		"SELECT interval_type, interval_start, interval_end, blink_count FROM %s ORDER BY id ASC",
		r.table,
	)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate repo: list: %w", err)
	}
	defer rows.Close()

	var result []interval.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("aggregate repo: scan: %w", err)
		}
		result = append(result, *rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*interval.Record, error) {
	var (
		rec   interval.Record
		kind  string
		start string
		end   string
	)
	if err := row.Scan(&kind, &start, &end, &rec.BlinkCount); err != nil {
		return nil, err
	}

	rec.Kind = interval.Granularity(kind)
	var err error
	if rec.Start, err = time.ParseInLocation(events.TimeLayout, start, time.Local); err != nil {
		return nil, err
	}
	if rec.End, err = time.ParseInLocation(events.TimeLayout, end, time.Local); err != nil {
		return nil, err
	}
	return &rec, nil
}
