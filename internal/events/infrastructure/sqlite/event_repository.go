// Package sqlite persists the blink event log in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	events "blinkwatch/internal/events/domain"
)

const defaultEventTable = "blink_events"

// EventRepository is a SQLite implementation of the blink event log.
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
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_time TEXT NOT NULL,
	created_at TEXT NOT NULL DEFAULT (datetime('now'))
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

	query := fmt.Sprintf("INSERT INTO %s (event_time) VALUES (?)", r.table)
	if _, err := r.db.ExecContext(ctx, query, occurredAt.Format(events.TimeLayout)); err != nil {
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
		"SELECT COUNT(*) FROM %s WHERE event_time >= ? AND event_time <= ?",
		r.table,
	)
	var count int
	err := r.db.QueryRowContext(ctx, query,
		start.Format(events.TimeLayout),
		end.Format(events.TimeLayout),
	).Scan(&count)
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
		var (
			evt        events.BlinkEvent
			occurredAt string
			createdAt  string
		)
		if err := rows.Scan(&evt.ID, &occurredAt, &createdAt); err != nil {
			return nil, fmt.Errorf("event repo: scan: %w", err)
		}
		if evt.OccurredAt, err = time.ParseInLocation(events.TimeLayout, occurredAt, time.Local); err != nil {
			return nil, fmt.Errorf("event repo: parse event_time: %w", err)
		}
		if evt.CreatedAt, err = time.ParseInLocation(events.TimeLayout, createdAt, time.Local); err != nil {
			return nil, fmt.Errorf("event repo: parse created_at: %w", err)
		}
		result = append(result, evt)
	}
	return result, rows.Err()
}
