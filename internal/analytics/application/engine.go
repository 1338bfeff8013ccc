// Package application drives the multi-window aggregation over the blink
// event log.
//
// Correctness does not depend on call frequency: Tick is a function of the
// supplied wall-clock time and the store contents, so a driver calling it
// from an irregular frame loop gets the same windows as a real scheduler
// would. Known limitation, kept for output compatibility: after a long gap
// only the most recently elapsed window per granularity is closed; skipped
// windows are never backfilled (their counts remain recoverable from the
// event log).
package application

import (
	"context"
	"errors"
	"log"
	"time"

	"blinkwatch/internal/alerts"
	"blinkwatch/internal/alerts/notify"
	"blinkwatch/internal/analytics/application/events"
	"blinkwatch/internal/analytics/domain/interval"
	eventlog "blinkwatch/internal/events/domain"
	"blinkwatch/internal/eventing"
)

// LastBlinkFunc reports the most recent confirmed blink, if any.
type LastBlinkFunc func() (time.Time, bool)

// Snapshot is the engine's view after a tick: the counts of the most
// recently closed window per granularity, the live current-day total, and
// what this particular tick produced.
type Snapshot struct {
	LastMinute    int
	LastTenMinute int
	LastHour      int
	DayTotal      int

	// NewlyClosed lists the windows closed by this tick, if any.
	NewlyClosed []interval.Record
	// AlertFired reports whether the no-blink alert fired on this tick.
	AlertFired bool
}

// Engine decides which windows have just closed, recomputes their counts
// from the event log, and upserts them into the aggregate store. One engine
// instance serves one logical sample stream; it is not safe for concurrent
// Tick calls.
type Engine struct {
	events     eventlog.Store
	aggregates interval.Store
	bus        eventing.EventBus
	logger     *log.Logger

	alertCfg  alerts.Config
	alertSink notify.Sink
	lastBlink LastBlinkFunc

	lastTick             time.Time
	sessionStart         time.Time
	cursors              map[interval.Granularity]time.Time
	lastClosedDay        time.Time
	lastDayRefreshMinute time.Time
	lastAlertAt          time.Time
	snapshot             Snapshot
}

// Option configures the engine.
type Option func(*Engine)

// WithBus publishes WindowClosed/DayTotalRefreshed/AlertFired events.
func WithBus(bus eventing.EventBus) Option {
	return func(e *Engine) { e.bus = bus }
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAlerts enables no-blink alerting through the given sink.
func WithAlerts(cfg alerts.Config, sink notify.Sink, lastBlink LastBlinkFunc) Option {
	return func(e *Engine) {
		e.alertCfg = cfg
		e.alertSink = sink
		e.lastBlink = lastBlink
	}
}

// NewEngine constructs an engine over the two stores.
func NewEngine(eventStore eventlog.Store, aggregateStore interval.Store, opts ...Option) (*Engine, error) {
	if eventStore == nil {
		return nil, errors.New("engine: nil event store")
	}
	if aggregateStore == nil {
		return nil, errors.New("engine: nil aggregate store")
	}

	engine := &Engine{
		events:     eventStore,
		aggregates: aggregateStore,
		logger:     log.Default(),
		cursors:    make(map[interval.Granularity]time.Time),
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// Tick performs at most one unit of aggregation work per elapsed second.
// Callers may invoke it as often as they like; invocations landing inside
// the same second as the last successful tick return the current snapshot
// unchanged. A window whose upsert fails is retried on a later tick because
// its cursor is only advanced after a successful write.
func (e *Engine) Tick(ctx context.Context, now time.Time) (Snapshot, error) {
	if now.Before(e.lastTick) {
		// Clock moved backward. Don't wedge the throttle; window cursors
		// keep their != comparison semantics.
		e.lastTick = now
	}
	if !e.lastTick.IsZero() && now.Sub(e.lastTick) < time.Second {
		return e.currentSnapshot(), nil
	}
	e.lastTick = now

	e.snapshot.NewlyClosed = nil
	e.snapshot.AlertFired = false

	e.evaluateAlert(ctx, now)

	var errs []error
	for _, kind := range interval.RollingGranularities {
		if err := e.closeRollingWindow(ctx, kind, now); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.closePreviousDay(ctx, now); err != nil {
		errs = append(errs, err)
	}
	if err := e.refreshDayTotal(ctx, now); err != nil {
		errs = append(errs, err)
	}

	return e.currentSnapshot(), errors.Join(errs...)
}

// closeRollingWindow closes the most recently elapsed window of the given
// kind, once.
func (e *Engine) closeRollingWindow(ctx context.Context, kind interval.Granularity, now time.Time) error {
	candidate := kind.LastClosedStart(now)
	if cursor, ok := e.cursors[kind]; ok && cursor.Equal(candidate) {
		return nil
	}

	end := kind.WindowEnd(candidate)
	count, err := e.events.CountInRange(ctx, candidate, end)
	if err != nil {
		return err
	}

	rec := interval.Record{Kind: kind, Start: candidate, End: end, BlinkCount: count}
	if err := e.aggregates.Upsert(ctx, rec); err != nil {
		return err
	}
	e.cursors[kind] = candidate

	switch kind {
	case interval.GranularityMinute:
		e.snapshot.LastMinute = count
	case interval.GranularityTenMinute:
		e.snapshot.LastTenMinute = count
	case interval.GranularityHour:
		e.snapshot.LastHour = count
	}
	e.snapshot.NewlyClosed = append(e.snapshot.NewlyClosed, rec)
	e.publish(ctx, events.WindowClosed{Record: rec})
	return nil
}

// closePreviousDay rolls up the previous full calendar day, once per date
// change.
func (e *Engine) closePreviousDay(ctx context.Context, now time.Time) error {
	previousDayStart := interval.PreviousDayStart(now)
	if e.lastClosedDay.Equal(previousDayStart) {
		return nil
	}

	end := interval.GranularityDay.WindowEnd(previousDayStart)
	count, err := e.events.CountInRange(ctx, previousDayStart, end)
	if err != nil {
		return err
	}

	rec := interval.Record{Kind: interval.GranularityDay, Start: previousDayStart, End: end, BlinkCount: count}
	if err := e.aggregates.Upsert(ctx, rec); err != nil {
		return err
	}
	e.lastClosedDay = previousDayStart
	e.snapshot.NewlyClosed = append(e.snapshot.NewlyClosed, rec)
	e.publish(ctx, events.WindowClosed{Record: rec})
	return nil
}

// refreshDayTotal recomputes the current-day running total, at most once per
// elapsed minute to bound query cost. The day is still open, so this is
// never written as a closed record.
func (e *Engine) refreshDayTotal(ctx context.Context, now time.Time) error {
	minute := interval.GranularityMinute.Floor(now)
	if e.lastDayRefreshMinute.Equal(minute) {
		return nil
	}

	dayStart := interval.GranularityDay.Floor(now)
	count, err := e.events.CountInRange(ctx, dayStart, now)
	if err != nil {
		return err
	}
	e.snapshot.DayTotal = count
	e.lastDayRefreshMinute = minute
	e.publish(ctx, events.DayTotalRefreshed{Date: dayStart, Count: count, At: now})
	return nil
}

func (e *Engine) evaluateAlert(ctx context.Context, now time.Time) {
	if !e.alertCfg.Enabled {
		return
	}

	// Until the first blink confirms, the session start is the idle baseline.
	if e.sessionStart.IsZero() {
		e.sessionStart = now
	}
	lastBlinkAt := e.sessionStart
	if e.lastBlink != nil {
		if at, ok := e.lastBlink(); ok {
			lastBlinkAt = at
		}
	}

	if !alerts.ShouldAlert(now, lastBlinkAt, e.lastAlertAt, e.alertCfg.IdleThreshold, e.alertCfg.Cooldown, true) {
		return
	}

	idleFor := now.Sub(lastBlinkAt)
	e.logger.Printf("no blink detected for %ds, alerting", int(idleFor.Seconds()))
	if e.alertSink != nil {
		e.alertSink.Fire(ctx, events.AlertFired{At: now, IdleFor: idleFor})
	}
	e.lastAlertAt = now
	e.snapshot.AlertFired = true
	e.publish(ctx, events.AlertFired{At: now, IdleFor: idleFor})
}

// CurrentDayRunningTotal returns the live current-day counter as of the most
// recent per-minute refresh.
func (e *Engine) CurrentDayRunningTotal() int {
	return e.snapshot.DayTotal
}

func (e *Engine) currentSnapshot() Snapshot {
	snap := e.snapshot
	snap.NewlyClosed = append([]interval.Record(nil), e.snapshot.NewlyClosed...)
	return snap
}

func (e *Engine) publish(ctx context.Context, event any) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.logger.Printf("event publish failed: %v", err)
	}
}
