// Package detection turns the per-frame openness ratio into discrete blinks.
// It is pure business logic: no storage, no clock, time is always injected.
package detection

import (
	"errors"
	"time"
)

// Config tunes the debounce machine.
type Config struct {
	// Threshold is the openness ratio below which the eye counts as closing.
	Threshold float64
	// MinRunLength is the number of consecutive below-threshold samples
	// required before a return above threshold confirms a blink.
	MinRunLength int
}

// ErrInvalidConfig is returned for a non-positive threshold or run length.
var ErrInvalidConfig = errors.New("detection: invalid config")

// Blink is one confirmed blink, emitted at the sample where the eye reopened.
type Blink struct {
	// At is the timestamp of the confirming sample.
	At time.Time
	// Ordinal is the 1-based blink number within this session.
	Ordinal int
}

// Detector is a two-state debounce machine over the openness signal.
// A blink is a close-then-reopen cycle: a run of at least MinRunLength
// below-threshold samples followed by a sample at or above threshold.
// Closure alone never confirms; a single noisy dip never confirms.
//
// One detector instance owns its state and serves one monitored subject.
// On ticks where no face is tracked the caller must skip Observe entirely,
// so tracking loss cannot inflate the run length.
type Detector struct {
	cfg             Config
	run             int
	sessionCount    int
	lastConfirmedAt time.Time
}

// NewDetector validates the config and constructs a detector.
func NewDetector(cfg Config) (*Detector, error) {
	if cfg.Threshold <= 0 || cfg.MinRunLength < 1 {
		return nil, ErrInvalidConfig
	}
	return &Detector{cfg: cfg}, nil
}

// Observe consumes one sample. It returns a Blink when this sample confirms
// one, nil otherwise.
func (d *Detector) Observe(ratio float64, now time.Time) *Blink {
	if ratio < d.cfg.Threshold {
		d.run++
		return nil
	}

	var blink *Blink
	if d.run >= d.cfg.MinRunLength {
		d.sessionCount++
		d.lastConfirmedAt = now
		blink = &Blink{At: now, Ordinal: d.sessionCount}
	}
	d.run = 0
	return blink
}

// SessionCount returns the number of blinks confirmed by this detector.
func (d *Detector) SessionCount() int { return d.sessionCount }

// LastConfirmedAt returns the timestamp of the most recent confirmed blink,
// and false if none has been confirmed yet.
func (d *Detector) LastConfirmedAt() (time.Time, bool) {
	if d.lastConfirmedAt.IsZero() {
		return time.Time{}, false
	}
	return d.lastConfirmedAt, true
}
