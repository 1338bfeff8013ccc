package driver

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"blinkwatch/internal/analytics/application"
	aggmemory "blinkwatch/internal/analytics/infrastructure/memory"
	"blinkwatch/internal/detection"
	evmemory "blinkwatch/internal/events/infrastructure/memory"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestReplayProviderParsesStream(t *testing.T) {
	start := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.Local)
	stream := strings.Join([]string{
		`{"offset_ms":0,"ratio":0.3}`,
		``,
		`{"offset_ms":33,"gap":true}`,
		`{"offset_ms":66,"ratio":0.1}`,
	}, "\n")

	provider, err := NewReplayProvider(strings.NewReader(stream), start)
	if err != nil {
		t.Fatalf("new replay provider: %v", err)
	}
	ctx := context.Background()

	first, err := provider.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !first.FaceDetected || !first.At.Equal(start) {
		t.Fatalf("first sample = %+v", first)
	}

	gap, err := provider.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if gap.FaceDetected {
		t.Fatalf("gap sample reported a face")
	}

	closed, err := provider.Next(ctx)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if !closed.FaceDetected {
		t.Fatalf("closed-eye sample missing face")
	}

	if _, err := provider.Next(ctx); err != io.EOF {
		t.Fatalf("err = %v, want io.EOF at stream end", err)
	}
}

func TestLoopDetectsBlinksFromReplay(t *testing.T) {
	start := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.Local)

	// Open, two closed frames, reopen: one blink. A later single dip is
	// noise. A gap run does not count as closure.
	lines := []string{
		`{"offset_ms":0,"ratio":0.30}`,
		`{"offset_ms":33,"ratio":0.10}`,
		`{"offset_ms":66,"ratio":0.10}`,
		`{"offset_ms":99,"ratio":0.30}`,
		`{"offset_ms":132,"ratio":0.10}`,
		`{"offset_ms":165,"ratio":0.30}`,
		`{"offset_ms":198,"gap":true}`,
		`{"offset_ms":231,"gap":true}`,
		`{"offset_ms":264,"ratio":0.30}`,
	}

	provider, err := NewReplayProvider(strings.NewReader(strings.Join(lines, "\n")), start)
	if err != nil {
		t.Fatalf("new replay provider: %v", err)
	}

	detector, err := detection.NewDetector(detection.Config{Threshold: 0.21, MinRunLength: 2})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	eventRepo := evmemory.NewEventRepository()
	engine, err := application.NewEngine(eventRepo, aggmemory.NewAggregateRepository(), application.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	loop, err := NewLoop(provider, detector, eventRepo, engine, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}
	if err := loop.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := loop.SessionBlinkCount(); got != 1 {
		t.Fatalf("session blinks = %d, want 1", got)
	}

	count, err := eventRepo.CountInRange(context.Background(), start, start.Add(time.Minute))
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("persisted events = %d, want 1", count)
	}

	last, ok := loop.LastBlinkTimestamp()
	if !ok {
		t.Fatalf("last blink timestamp missing")
	}
	if !last.Equal(start.Add(99 * time.Millisecond)) {
		t.Fatalf("last blink at %v, want the reopening frame", last)
	}
}

func TestLoopHonorsContextCancellation(t *testing.T) {
	start := time.Date(2024, time.January, 2, 12, 0, 0, 0, time.Local)
	provider, err := NewReplayProvider(strings.NewReader(`{"offset_ms":0,"ratio":0.3}`), start)
	if err != nil {
		t.Fatalf("new replay provider: %v", err)
	}

	detector, err := detection.NewDetector(detection.Config{Threshold: 0.21, MinRunLength: 2})
	if err != nil {
		t.Fatalf("new detector: %v", err)
	}
	eventRepo := evmemory.NewEventRepository()
	engine, err := application.NewEngine(eventRepo, aggmemory.NewAggregateRepository(), application.WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	loop, err := NewLoop(provider, detector, eventRepo, engine, WithLogger(quietLogger()))
	if err != nil {
		t.Fatalf("new loop: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := loop.Run(ctx); err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
