// Package memory holds the blink event log in process memory, for tests and
// short-lived sessions that do not need durability.
package memory

import (
	"context"
	"sync"
	"time"

	events "blinkwatch/internal/events/domain"
)

// EventRepository is an in-memory blink event log.
type EventRepository struct {
	mu     sync.RWMutex
	nextID int64
	log    []events.BlinkEvent
}

// NewEventRepository constructs an empty log.
func NewEventRepository() *EventRepository {
	return &EventRepository{nextID: 1}
}

// Append records one event at second resolution.
func (r *EventRepository) Append(ctx context.Context, occurredAt time.Time) error {
	_ = ctx
	if occurredAt.IsZero() {
		return events.ErrInvalidEventTime
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.log = append(r.log, events.BlinkEvent{
		ID:         r.nextID,
		OccurredAt: events.Truncate(occurredAt),
		CreatedAt:  events.Truncate(time.Now()),
	})
	r.nextID++
	return nil
}

// CountInRange counts events with start <= occurred_at <= end.
func (r *EventRepository) CountInRange(ctx context.Context, start, end time.Time) (int, error) {
	_ = ctx
	if start.IsZero() || end.IsZero() {
		return 0, events.ErrInvalidRange
	}

	start = events.Truncate(start)
	end = events.Truncate(end)

	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, evt := range r.log {
		if !evt.OccurredAt.Before(start) && !evt.OccurredAt.After(end) {
			count++
		}
	}
	return count, nil
}

// List returns all events in ascending id order.
func (r *EventRepository) List(ctx context.Context) ([]events.BlinkEvent, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]events.BlinkEvent(nil), r.log...), nil
}
