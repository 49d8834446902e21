package events

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEventBusDeliversToSubscribers(t *testing.T) {
	bus := NewEventBus()

	got := make(chan Event, 1)
	bus.Subscribe(EventConnected, "test", func(ctx context.Context, ev Event) error {
		got <- ev
		return nil
	})

	bus.Emit(context.Background(), Event{
		Type:    EventConnected,
		Source:  "test",
		Payload: ConnectedPayload{Address: "srv:64738", Session: 7},
	})

	select {
	case ev := <-got:
		payload := ev.Payload.(ConnectedPayload)
		assert.Equal(t, uint32(7), payload.Session)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	var calls atomic.Int32
	bus.Subscribe(EventUserJoined, "counter", func(ctx context.Context, ev Event) error {
		calls.Add(1)
		return nil
	})
	assert.Equal(t, 1, bus.HandlerCount(EventUserJoined))

	bus.Unsubscribe(EventUserJoined, "counter")
	assert.Equal(t, 0, bus.HandlerCount(EventUserJoined))

	bus.Emit(context.Background(), Event{Type: EventUserJoined})
	bus.Stop()
	assert.Equal(t, int32(0), calls.Load())
}

func TestEventBusStopRejectsNewEvents(t *testing.T) {
	bus := NewEventBus()

	var calls atomic.Int32
	bus.Subscribe(EventShutdown, "late", func(ctx context.Context, ev Event) error {
		calls.Add(1)
		return nil
	})

	bus.Stop()
	bus.Emit(context.Background(), Event{Type: EventShutdown})
	assert.Equal(t, int32(0), calls.Load())
}

func TestEventBusSurvivesHandlerErrors(t *testing.T) {
	bus := NewEventBus()

	done := make(chan struct{})
	bus.Subscribe(EventDisconnected, "bad", func(ctx context.Context, ev Event) error {
		return errors.New("boom")
	})
	bus.Subscribe(EventDisconnected, "good", func(ctx context.Context, ev Event) error {
		close(done)
		return nil
	})

	bus.Emit(context.Background(), Event{Type: EventDisconnected})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second handler starved by failing first handler")
	}
	bus.Stop()
}
