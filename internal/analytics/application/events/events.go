// Package events defines the application events published on the bus.
package events

import (
	"time"

	"blinkwatch/internal/analytics/domain/interval"
)

// BlinkDetected is published once per confirmed blink, after the event has
// been appended to the log.
type BlinkDetected struct {
	At      time.Time
	Ordinal int
}

// WindowClosed is published once per newly closed aggregate window, after
// the record has been upserted.
type WindowClosed struct {
	Record interval.Record
}

// DayTotalRefreshed is published when the current-day running total is
// recomputed. The day is still open; this is a live counter, not a closed
// window.
type DayTotalRefreshed struct {
	Date  time.Time
	Count int
	At    time.Time
}

// AlertFired is published when the no-blink alert fires.
type AlertFired struct {
	At      time.Time
	IdleFor time.Duration
}
