// Package alerts decides when the no-blink alert should fire. Delivery is
// someone else's job; this package is a pure predicate so it stays
// independently testable.
package alerts

import "time"

// Config tunes the alert throttle.
type Config struct {
	// Enabled gates alerting entirely.
	Enabled bool
	// IdleThreshold is how long without a blink before an alert is due.
	IdleThreshold time.Duration
	// Cooldown is the minimum interval between fired alerts.
	Cooldown time.Duration
}

// ShouldAlert reports whether an alert is due. It fires when alerting is
// enabled, at least IdleThreshold has passed since the last blink, and at
// least Cooldown has passed since the last fired alert.
//
// The caller must set lastAlertAt to now after acting; until it does, every
// evaluation keeps returning true. Before any blink confirms, the caller
// seeds lastBlinkAt with the session start so a fresh session only becomes
// idle after a full IdleThreshold of real time. A zero lastAlertAt counts as
// "never alerted".
func ShouldAlert(now, lastBlinkAt, lastAlertAt time.Time, idleThreshold, cooldown time.Duration, enabled bool) bool {
	if !enabled {
		return false
	}
	return now.Sub(lastBlinkAt) >= idleThreshold && now.Sub(lastAlertAt) >= cooldown
}
