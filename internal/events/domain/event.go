// Package events defines the append-only blink event log.
package events

import (
	"context"
	"errors"
	"time"
)

// TimeLayout is the second-resolution storage format for event timestamps.
// It matches the layout used by existing blinks.db files.
const TimeLayout = "2006-01-02 15:04:05"

// ErrInvalidRange is returned when a count range is malformed.
var ErrInvalidRange = errors.New("events: invalid time range")

// ErrInvalidEventTime is returned when an event timestamp is zero.
var ErrInvalidEventTime = errors.New("events: invalid event time")

// BlinkEvent is one confirmed blink. Events are immutable once appended and
// are never deleted by this process.
type BlinkEvent struct {
	ID         int64
	OccurredAt time.Time
	CreatedAt  time.Time
}

// Store is the append-only durable log of blink events. The aggregation
// engine only reads it; the detector side is the only writer.
type Store interface {
	// Append durably records one event at second resolution.
	Append(ctx context.Context, occurredAt time.Time) error
	// CountInRange counts events with start <= occurred_at <= end.
	// An empty range yields 0, not an error.
	CountInRange(ctx context.Context, start, end time.Time) (int, error)
	// List returns all events in ascending id order (export/debug surface).
	List(ctx context.Context) ([]BlinkEvent, error)
}

// Truncate drops sub-second precision, the resolution of the stored log.
func Truncate(t time.Time) time.Time {
	return t.Truncate(time.Second)
}
