// Package interval defines aggregate windows over the blink event log and
// the store that persists them.
package interval

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidGranularity is returned for an unknown granularity value.
var ErrInvalidGranularity = errors.New("interval: invalid granularity")

// ErrInvalidWindow is returned for a record with zero or inverted bounds.
var ErrInvalidWindow = errors.New("interval: invalid window bounds")

// Record is one closed aggregate window. The pair (Kind, Start) is unique in
// the store; a second write for the same window replaces BlinkCount and End.
// Records are only ever written for windows confirmed closed, never for a
// window still in progress.
type Record struct {
	Kind       Granularity
	Start      time.Time
	End        time.Time
	BlinkCount int
}

// Validate enforces basic window invariants.
func (r Record) Validate() error {
	if !r.Kind.IsValid() {
		return ErrInvalidGranularity
	}
	if r.Start.IsZero() || r.End.IsZero() || r.End.Before(r.Start) {
		return ErrInvalidWindow
	}
	if r.BlinkCount < 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Store persists closed aggregate windows.
type Store interface {
	// Upsert inserts the record or, on a (kind, start) conflict, overwrites
	// blink_count and interval_end.
	Upsert(ctx context.Context, rec Record) error
	// Latest returns the most recent record of the given kind, or nil when
	// none has been written yet.
	Latest(ctx context.Context, kind Granularity) (*Record, error)
	// List returns all records in insertion order (export/debug surface).
	List(ctx context.Context) ([]Record, error)
}
