package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

func (s *captureSink) Consume(_ context.Context, events []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *captureSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.events...)
}

func TestBusDeliversToSinks(t *testing.T) {
	sink := &captureSink{}
	bus := NewBus(nil, sink)

	for i := 0; i < 10; i++ {
		bus.Emit(Event{Type: EventPageVisited, RunID: "run-1", Subject: "/pricing"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	got := sink.snapshot()
	require.Len(t, got, 10)
	require.Equal(t, EventPageVisited, got[0].Type)
	require.False(t, got[0].At.IsZero())
	require.True(t, sink.closed)
}

func TestBusDropsInvalidEvents(t *testing.T) {
	sink := &captureSink{}
	bus := NewBus(nil, sink)

	bus.Emit(Event{RunID: "run-1"})
	bus.Emit(Event{Type: EventRunFinished, RunID: "run-1", Detail: "succeeded"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	got := sink.snapshot()
	require.Len(t, got, 1)
	require.Equal(t, EventRunFinished, got[0].Type)
}

func TestBusEmitAfterCloseIsSafe(t *testing.T) {
	bus := NewBus(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, bus.Close(ctx))

	bus.Emit(Event{Type: EventPageVisited, RunID: "run-1"})
	require.NoError(t, bus.Close(ctx))
}

func TestBusNilReceiverIsSafe(t *testing.T) {
	var bus *Bus
	bus.Emit(Event{Type: EventPageVisited})
	require.NoError(t, bus.Close(context.Background()))
}

func TestEventValidate(t *testing.T) {
	require.Error(t, Event{}.Validate())
	require.NoError(t, Event{Type: EventJobClaimed}.Validate())
}
