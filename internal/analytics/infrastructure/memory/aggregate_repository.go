// Package memory holds closed aggregate windows in process memory, for tests
// and short-lived sessions.
package memory

import (
	"context"
	"sync"

	"blinkwatch/internal/analytics/domain/interval"
)

type key struct {
	kind  interval.Granularity
	start int64
}

// AggregateRepository is an in-memory aggregate store.
type AggregateRepository struct {
	mu    sync.RWMutex
	byKey map[key]int // index into order
	order []interval.Record
}

// NewAggregateRepository constructs an empty store.
func NewAggregateRepository() *AggregateRepository {
	return &AggregateRepository{byKey: make(map[key]int)}
}

// Upsert inserts the record or replaces the one with the same (kind, start).
func (r *AggregateRepository) Upsert(ctx context.Context, rec interval.Record) error {
	_ = ctx
	if err := rec.Validate(); err != nil {
		return err
	}

	k := key{kind: rec.Kind, start: rec.Start.Unix()}
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx, ok := r.byKey[k]; ok {
		r.order[idx] = rec
		return nil
	}
	r.byKey[k] = len(r.order)
	r.order = append(r.order, rec)
	return nil
}

// Latest returns the record with the greatest start of the given kind, or nil.
func (r *AggregateRepository) Latest(ctx context.Context, kind interval.Granularity) (*interval.Record, error) {
	_ = ctx
	if !kind.IsValid() {
		return nil, interval.ErrInvalidGranularity
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *interval.Record
	for i := range r.order {
		rec := r.order[i]
		if rec.Kind != kind {
			continue
		}
		if latest == nil || rec.Start.After(latest.Start) {
			copied := rec
			latest = &copied
		}
	}
	return latest, nil
}

// List returns all records in insertion order.
func (r *AggregateRepository) List(ctx context.Context) ([]interval.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]interval.Record(nil), r.order...), nil
}
