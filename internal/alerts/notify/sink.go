// Package notify delivers fired alerts to their sinks.
package notify

import (
	"context"

	"blinkwatch/internal/analytics/application/events"
)

// Sink receives a fired alert. Implementations must not block the caller;
// delivery is fire-and-forget with no ordering or success guarantee.
type Sink interface {
	Fire(ctx context.Context, event events.AlertFired)
}

// MultiSink fans one alert out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink constructs a sink that delivers to every non-nil sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	filtered := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return &MultiSink{sinks: filtered}
}

// Fire implements Sink.
func (m *MultiSink) Fire(ctx context.Context, event events.AlertFired) {
	if m == nil {
		return
	}
	for _, s := range m.sinks {
		s.Fire(ctx, event)
	}
}
