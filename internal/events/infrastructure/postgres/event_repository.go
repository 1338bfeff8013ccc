// Package postgres persists the blink event log in Postgres, for deployments
// where the log is shared with an external reader (dashboards, exporters).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	events "blinkwatch/internal/events/domain"
)

const defaultEventTable = "blink_events"

// EventRepository is a Postgres implementation of the blink event log.
type EventRepository struct {
	db    *sql.DB
	table string
}

// NewEventRepository constructs a repository with the default table name.
func NewEventRepository(db *sql.DB, opts ...RepositoryOption) *EventRepository {
	repo := &EventRepository{db: db, table: defaultEventTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// RepositoryOption configures the repository.
type RepositoryOption func(*EventRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *EventRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// Migrate creates the event table and its timestamp index if missing.
func (r *EventRepository) Migrate(ctx context.Context) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}

	schema := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id BIGSERIAL PRIMARY KEY,
	event_time TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_time ON %[1]s(event_time)`, r.table)

	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("event repo: migrate: %w", err)
	}
	return nil
}

// Append records one event at second resolution.
func (r *EventRepository) Append(ctx context.Context, occurredAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	if occurredAt.IsZero() {
		return events.ErrInvalidEventTime
	}

	query := fmt.Sprintf("INSERT INTO %s (event_time) VALUES ($1)", r.table)
	if _, err := r.db.ExecContext(ctx, query, events.Truncate(occurredAt)); err != nil {
		return fmt.Errorf("event repo: append: %w", err)
	}
	return nil
}

// CountInRange counts events with start <= event_time <= end.
func (r *EventRepository) CountInRange(ctx context.Context, start, end time.Time) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("event repo: nil db")
	}
	if start.IsZero() || end.IsZero() {
		return 0, events.ErrInvalidRange
	}

	query := fmt.Sprintf(
		"SELECT COUNT(*) FROM %s WHERE event_time >= $1 AND event_time <= $2",
		r.table,
	)
	var count int
	err := r.db.QueryRowContext(ctx, query, events.Truncate(start), events.Truncate(end)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("event repo: count: %w", err)
	}
	return count, nil
}

// List returns all events in ascending id order.
func (r *EventRepository) List(ctx context.Context) ([]events.BlinkEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}

	query := fmt.Sprintf("SELECT id, event_time, created_at FROM %s ORDER BY id ASC", r.table)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("event repo: list: %w", err)
	}
	defer rows.Close()

	var result []events.BlinkEvent
	for rows.Next() {
		var evt events.BlinkEvent
		if err := rows.Scan(&evt.ID, &evt.OccurredAt, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("event repo: scan: %w", err)
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}
