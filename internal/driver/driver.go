// Package driver owns the sample loop: it feeds landmark samples through the
// detector, appends confirmed blinks to the event log, and gives the
// aggregation engine a chance to run once per sample.
package driver

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"blinkwatch/internal/analytics/application"
	"blinkwatch/internal/analytics/application/events"
	"blinkwatch/internal/detection"
	eventlog "blinkwatch/internal/events/domain"
	"blinkwatch/internal/eventing"
	"blinkwatch/internal/geometry"
	"blinkwatch/internal/observability/metrics"
)

// Sample is one frame's worth of landmark data. When no face was tracked,
// FaceDetected is false and the contours are ignored: the detector is not
// consulted at all for that tick, so tracking loss never looks like a
// closed eye.
type Sample struct {
	At           time.Time
	FaceDetected bool
	Left         geometry.EyeContour
	Right        geometry.EyeContour
}

// LandmarkProvider yields one sample per frame. It returns io.EOF when the
// stream ends (camera closed, replay exhausted).
type LandmarkProvider interface {
	Next(ctx context.Context) (Sample, error)
}

// Loop wires one provider, one detector, and one engine into the
// single-threaded sample loop.
type Loop struct {
	provider LandmarkProvider
	detector *detection.Detector
	events   eventlog.Store
	engine   *application.Engine
	bus      eventing.EventBus
	logger   *log.Logger
}

// Option configures the loop.
type Option func(*Loop)

// WithBus publishes BlinkDetected events after each append.
func WithBus(bus eventing.EventBus) Option {
	return func(l *Loop) { l.bus = bus }
}

// WithLogger overrides the default logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoop constructs the sample loop.
func NewLoop(provider LandmarkProvider, detector *detection.Detector, eventStore eventlog.Store, engine *application.Engine, opts ...Option) (*Loop, error) {
	if provider == nil {
		return nil, errors.New("driver: nil provider")
	}
	if detector == nil {
		return nil, errors.New("driver: nil detector")
	}
	if eventStore == nil {
		return nil, errors.New("driver: nil event store")
	}
	if engine == nil {
		return nil, errors.New("driver: nil engine")
	}

	loop := &Loop{
		provider: provider,
		detector: detector,
		events:   eventStore,
		engine:   engine,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(loop)
	}
	return loop, nil
}

// Run consumes samples until the provider is exhausted or the context is
// cancelled. Storage failures are logged and the loop keeps running; the
// engine stalls rather than the process exiting.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sample, err := l.provider.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		l.Step(ctx, sample)
	}
}

// Step processes a single sample: detect, persist, aggregate.
func (l *Loop) Step(ctx context.Context, sample Sample) {
	if sample.FaceDetected {
		l.observe(ctx, sample)
	}

	started := time.Now()
	_, err := l.engine.Tick(ctx, sample.At)
	metrics.ObserveTick(err, time.Since(started))
	if err != nil {
		l.logger.Printf("aggregation stalled: %v", err)
	}
}

func (l *Loop) observe(ctx context.Context, sample Sample) {
	ratio, err := geometry.AverageOpenness(sample.Left, sample.Right)
	if err != nil {
		// Degenerate contour: skip the sample, never propagate garbage.
		return
	}

	blink := l.detector.Observe(ratio, sample.At)
	if blink == nil {
		return
	}

	if err := l.events.Append(ctx, blink.At); err != nil {
		l.logger.Printf("blink append failed: %v", err)
		return
	}
	metrics.IncBlink()
	l.logger.Printf("blink #%d", blink.Ordinal)
	if l.bus != nil {
		if err := l.bus.Publish(ctx, events.BlinkDetected{At: blink.At, Ordinal: blink.Ordinal}); err != nil {
			l.logger.Printf("event publish failed: %v", err)
		}
	}
}

// SessionBlinkCount reports blinks confirmed since the loop started.
func (l *Loop) SessionBlinkCount() int { return l.detector.SessionCount() }

// LastBlinkTimestamp reports the most recent confirmed blink, if any.
func (l *Loop) LastBlinkTimestamp() (time.Time, bool) { return l.detector.LastConfirmedAt() }
