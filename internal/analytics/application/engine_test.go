package application

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"blinkwatch/internal/alerts"
	"blinkwatch/internal/analytics/application/events"
	"blinkwatch/internal/analytics/domain/interval"
	aggmemory "blinkwatch/internal/analytics/infrastructure/memory"
	"blinkwatch/internal/eventing"
	evmemory "blinkwatch/internal/events/infrastructure/memory"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *evmemory.EventRepository, *aggmemory.AggregateRepository) {
	t.Helper()
	eventRepo := evmemory.NewEventRepository()
	aggRepo := aggmemory.NewAggregateRepository()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	engine, err := NewEngine(eventRepo, aggRepo, opts...)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine, eventRepo, aggRepo
}

func findRecord(t *testing.T, recs []interval.Record, kind interval.Granularity) interval.Record {
	t.Helper()
	for _, rec := range recs {
		if rec.Kind == kind {
			return rec
		}
	}
	t.Fatalf("no %s record in %+v", kind, recs)
	return interval.Record{}
}

func TestTickClosesWindowBoundaries(t *testing.T) {
	ctx := context.Background()
	engine, eventRepo, _ := newTestEngine(t)

	// Two events inside the 12:33 minute, one the previous day.
	for _, at := range []time.Time{
		time.Date(2024, time.January, 2, 12, 33, 5, 0, time.Local),
		time.Date(2024, time.January, 2, 12, 33, 42, 0, time.Local),
		time.Date(2024, time.January, 1, 9, 0, 0, 0, time.Local),
	} {
		if err := eventRepo.Append(ctx, at); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	now := time.Date(2024, time.January, 2, 12, 34, 56, 0, time.Local)
	snap, err := engine.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	minute := findRecord(t, snap.NewlyClosed, interval.GranularityMinute)
	wantStart := time.Date(2024, time.January, 2, 12, 33, 0, 0, time.Local)
	wantEnd := time.Date(2024, time.January, 2, 12, 33, 59, 0, time.Local)
	if !minute.Start.Equal(wantStart) || !minute.End.Equal(wantEnd) {
		t.Fatalf("minute window = [%v, %v], want [%v, %v]", minute.Start, minute.End, wantStart, wantEnd)
	}
	if minute.BlinkCount != 2 {
		t.Fatalf("minute count = %d, want 2", minute.BlinkCount)
	}

	tenMinute := findRecord(t, snap.NewlyClosed, interval.GranularityTenMinute)
	if !tenMinute.Start.Equal(time.Date(2024, time.January, 2, 12, 20, 0, 0, time.Local)) {
		t.Fatalf("ten-minute window start = %v, want 12:20:00", tenMinute.Start)
	}

	hour := findRecord(t, snap.NewlyClosed, interval.GranularityHour)
	if !hour.Start.Equal(time.Date(2024, time.January, 2, 11, 0, 0, 0, time.Local)) {
		t.Fatalf("hour window start = %v, want 11:00:00", hour.Start)
	}
	if !hour.End.Equal(time.Date(2024, time.January, 2, 11, 59, 59, 0, time.Local)) {
		t.Fatalf("hour window end = %v, want 11:59:59", hour.End)
	}

	day := findRecord(t, snap.NewlyClosed, interval.GranularityDay)
	if !day.Start.Equal(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.Local)) {
		t.Fatalf("day rollup start = %v, want previous midnight", day.Start)
	}
	if day.BlinkCount != 1 {
		t.Fatalf("previous day count = %d, want 1", day.BlinkCount)
	}

	// Running total covers today's events only.
	if snap.DayTotal != 2 {
		t.Fatalf("day total = %d, want 2 (previous-day events excluded)", snap.DayTotal)
	}
}

func TestTickIdempotentForSameNow(t *testing.T) {
	ctx := context.Background()
	engine, _, aggRepo := newTestEngine(t)

	now := time.Date(2024, time.January, 2, 12, 34, 56, 0, time.Local)
	first, err := engine.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	rowsAfterFirst, err := aggRepo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	second, err := engine.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	rowsAfterSecond, err := aggRepo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	if len(rowsAfterSecond) != len(rowsAfterFirst) {
		t.Fatalf("row count changed %d -> %d on repeated tick", len(rowsAfterFirst), len(rowsAfterSecond))
	}
	if first.DayTotal != second.DayTotal || first.LastMinute != second.LastMinute {
		t.Fatalf("snapshot changed on repeated tick: %+v vs %+v", first, second)
	}
}

func TestTickSelfThrottleWithinSecond(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	now := time.Date(2024, time.January, 2, 12, 34, 56, 0, time.Local)
	first, err := engine.Tick(ctx, now)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	// First tick closes the three rolling windows plus the previous day.
	if len(first.NewlyClosed) != 4 {
		t.Fatalf("first tick closed %d windows, want 4", len(first.NewlyClosed))
	}

	// 500ms later the engine must decline to work and just report the
	// previous snapshot.
	throttled, err := engine.Tick(ctx, now.Add(500*time.Millisecond))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(throttled.NewlyClosed) != len(first.NewlyClosed) {
		t.Fatalf("throttled tick produced new work: %+v", throttled.NewlyClosed)
	}
}

func TestGapClosesOnlyMostRecentWindows(t *testing.T) {
	ctx := context.Background()
	engine, _, aggRepo := newTestEngine(t)

	start := time.Date(2024, time.January, 2, 12, 0, 30, 0, time.Local)
	if _, err := engine.Tick(ctx, start); err != nil {
		t.Fatalf("tick: %v", err)
	}
	before, err := aggRepo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	// Simulate a paused driver: the next tick lands two hours later.
	// Exactly one new window per granularity closes; the intervening
	// minute windows are never backfilled.
	snap, err := engine.Tick(ctx, start.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}

	counts := map[interval.Granularity]int{}
	for _, rec := range snap.NewlyClosed {
		counts[rec.Kind]++
	}
	for _, kind := range interval.RollingGranularities {
		if counts[kind] != 1 {
			t.Fatalf("%s windows closed by late tick = %d, want exactly 1", kind, counts[kind])
		}
	}

	after, err := aggRepo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	// 3 rolling windows, no new day rollup (same date).
	if len(after)-len(before) != 3 {
		t.Fatalf("late tick added %d rows, want 3", len(after)-len(before))
	}
}

func TestBackwardClockDoesNotWedge(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t)

	now := time.Date(2024, time.January, 2, 12, 34, 56, 0, time.Local)
	if _, err := engine.Tick(ctx, now); err != nil {
		t.Fatalf("tick: %v", err)
	}

	// NTP steps the clock back 10 minutes. The engine must not crash, and
	// later forward progress must resume ticking.
	if _, err := engine.Tick(ctx, now.Add(-10*time.Minute)); err != nil {
		t.Fatalf("tick after backward step: %v", err)
	}
	snap, err := engine.Tick(ctx, now.Add(-10*time.Minute).Add(2*time.Second))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	_ = snap
}

type failingAggregateStore struct {
	inner   interval.Store
	failing bool
}

func (f *failingAggregateStore) Upsert(ctx context.Context, rec interval.Record) error {
	if f.failing {
		return errors.New("disk full")
	}
	return f.inner.Upsert(ctx, rec)
}

func (f *failingAggregateStore) Latest(ctx context.Context, kind interval.Granularity) (*interval.Record, error) {
	return f.inner.Latest(ctx, kind)
}

func (f *failingAggregateStore) List(ctx context.Context) ([]interval.Record, error) {
	return f.inner.List(ctx)
}

func TestCursorNotAdvancedOnUpsertFailure(t *testing.T) {
	ctx := context.Background()
	eventRepo := evmemory.NewEventRepository()
	store := &failingAggregateStore{inner: aggmemory.NewAggregateRepository(), failing: true}
	engine, err := NewEngine(eventRepo, store, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	now := time.Date(2024, time.January, 2, 12, 34, 56, 0, time.Local)
	if _, err := engine.Tick(ctx, now); err == nil {
		t.Fatalf("tick succeeded despite failing store")
	}

	// Storage recovers; the same windows must be closed by the next tick
	// because no cursor advanced past them.
	store.failing = false
	snap, err := engine.Tick(ctx, now.Add(2*time.Second))
	if err != nil {
		t.Fatalf("tick after recovery: %v", err)
	}
	if len(snap.NewlyClosed) != 4 {
		t.Fatalf("windows closed after recovery = %d, want 4 (minute, ten_minute, hour, day)", len(snap.NewlyClosed))
	}
}

type recordingSink struct {
	fired []events.AlertFired
}

func (r *recordingSink) Fire(_ context.Context, event events.AlertFired) {
	r.fired = append(r.fired, event)
}

func TestAlertIntegration(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	lastBlink := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.Local)

	engine, _, _ := newTestEngine(t, WithAlerts(
		alerts.Config{Enabled: true, IdleThreshold: 30 * time.Second, Cooldown: 30 * time.Second},
		sink,
		func() (time.Time, bool) { return lastBlink, true },
	))

	// 31s idle: fires once.
	snap, err := engine.Tick(ctx, lastBlink.Add(31*time.Second))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !snap.AlertFired || len(sink.fired) != 1 {
		t.Fatalf("alert not fired: snapshot=%+v sink=%d", snap, len(sink.fired))
	}

	// 10s later: cooldown holds.
	snap, err = engine.Tick(ctx, lastBlink.Add(41*time.Second))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if snap.AlertFired || len(sink.fired) != 1 {
		t.Fatalf("alert fired inside cooldown")
	}

	// 62s after the blink: cooldown elapsed, fires again.
	snap, err = engine.Tick(ctx, lastBlink.Add(62*time.Second))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !snap.AlertFired || len(sink.fired) != 2 {
		t.Fatalf("alert not re-fired after cooldown")
	}
}

func TestAlertFreshSessionIdlesFromStartup(t *testing.T) {
	ctx := context.Background()
	sink := &recordingSink{}
	start := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.Local)

	engine, _, _ := newTestEngine(t, WithAlerts(
		alerts.Config{Enabled: true, IdleThreshold: 30 * time.Second, Cooldown: 30 * time.Second},
		sink,
		func() (time.Time, bool) { return time.Time{}, false },
	))

	// No blink has ever confirmed. The first tick establishes the idle
	// baseline, so nothing fires yet.
	snap, err := engine.Tick(ctx, start)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if snap.AlertFired || len(sink.fired) != 0 {
		t.Fatalf("alert fired on the first tick of a fresh session")
	}

	// 10s in: still under the idle threshold measured from startup.
	snap, err = engine.Tick(ctx, start.Add(10*time.Second))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if snap.AlertFired || len(sink.fired) != 0 {
		t.Fatalf("alert fired before the idle threshold elapsed from startup")
	}

	// 31s in: a full idle threshold since startup, fires.
	snap, err = engine.Tick(ctx, start.Add(31*time.Second))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if !snap.AlertFired || len(sink.fired) != 1 {
		t.Fatalf("no alert after idle threshold from startup: snapshot=%+v sink=%d", snap, len(sink.fired))
	}
	if got := sink.fired[0].IdleFor; got != 31*time.Second {
		t.Fatalf("idle duration = %s, want 31s", got)
	}
}

func TestWindowClosedEventsPublished(t *testing.T) {
	ctx := context.Background()
	bus := eventing.NewInMemoryBus()

	var closed []events.WindowClosed
	eventing.SubscribeTyped(bus, func(_ context.Context, evt events.WindowClosed) error {
		closed = append(closed, evt)
		return nil
	})

	engine, _, _ := newTestEngine(t, WithBus(bus))
	if _, err := engine.Tick(ctx, time.Date(2024, time.January, 2, 12, 34, 56, 0, time.Local)); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(closed) != 4 {
		t.Fatalf("WindowClosed events = %d, want 4", len(closed))
	}
}
