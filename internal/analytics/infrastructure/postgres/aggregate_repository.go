// Package postgres persists closed aggregate windows in Postgres.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"blinkwatch/internal/analytics/domain/interval"
	events "blinkwatch/internal/events/domain"
)

const defaultAggregateTable = "blink_aggregates"

// AggregateRepository is a Postgres implementation of the aggregate store.
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

// Migrate creates the aggregate table if missing.
func (r *AggregateRepository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("aggregate repo: nil db")
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	interval_type TEXT NOT NULL,
	interval_start TIMESTAMPTZ NOT NULL,
	interval_end TIMESTAMPTZ NOT NULL,
	blink_count INTEGER NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE(interval_type, interval_start)
)`, r.table)

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
VALUES ($1, $2, $3, $4)
ON CONFLICT (interval_type, interval_start)
DO UPDATE SET blink_count = EXCLUDED.blink_count, interval_end = EXCLUDED.interval_end`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		string(rec.Kind),
		events.Truncate(rec.Start),
		events.Truncate(rec.End),
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
WHERE interval_type = $1
ORDER BY interval_start DESC
LIMIT 1`, r.table)

	var (
		rec  interval.Record
		kindStr string
	)
	err := r.db.QueryRowContext(ctx, query, string(kind)).
		Scan(&kindStr, &rec.Start, &rec.End, &rec.BlinkCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("aggregate repo: latest: %w", err)
	}
	rec.Kind = interval.Granularity(kindStr)
	return &rec, nil
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
		var (
			rec  interval.Record
			kind string
		)
		if err := rows.Scan(&kind, &rec.Start, &rec.End, &rec.BlinkCount); err != nil {
			return nil, fmt.Errorf("aggregate repo: scan: %w", err)
		}
		rec.Kind = interval.Granularity(kind)
		result = append(result, rec)
	}
	return result, rows.Err()
}
