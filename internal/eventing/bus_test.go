package eventing

import (
	"context"
	"errors"
	"testing"
)

type pingEvent struct {
	N int
}

func TestPublishReachesAllTypedSubscribers(t *testing.T) {
	bus := NewInMemoryBus()

	var got []int
	SubscribeTyped(bus, func(_ context.Context, evt pingEvent) error {
		got = append(got, evt.N)
		return nil
	})
	SubscribeTyped(bus, func(_ context.Context, evt pingEvent) error {
		got = append(got, evt.N*10)
		return nil
	})

	if err := bus.Publish(context.Background(), pingEvent{N: 3}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(got) != 2 || got[0] != 3 || got[1] != 30 {
		t.Fatalf("handlers saw %v, want [3 30]", got)
	}
}

func TestPublishContinuesPastFailingHandler(t *testing.T) {
	bus := NewInMemoryBus()
	boom := errors.New("boom")

	var reached bool
	SubscribeTyped(bus, func(_ context.Context, _ pingEvent) error { return boom })
	SubscribeTyped(bus, func(_ context.Context, _ pingEvent) error {
		reached = true
		return nil
	})

	err := bus.Publish(context.Background(), pingEvent{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the first handler error", err)
	}
	if !reached {
		t.Fatalf("second handler not reached after first failed")
	}
}

func TestPublishNilEvent(t *testing.T) {
	bus := NewInMemoryBus()
	if err := bus.Publish(context.Background(), nil); !errors.Is(err, ErrNilEvent) {
		t.Fatalf("err = %v, want ErrNilEvent", err)
	}
}

func TestEventTypeDereferencesPointers(t *testing.T) {
	if EventType(pingEvent{}) != EventType(&pingEvent{}) {
		t.Fatalf("pointer and value events map to different types")
	}
	if EventTypeOf[pingEvent]() != EventType(pingEvent{}) {
		t.Fatalf("EventTypeOf disagrees with EventType")
	}
}
