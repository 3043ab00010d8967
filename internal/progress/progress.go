// Package progress provides an explicit, constructed-once event bus for crawl
// and pipeline progress. Emit never blocks: when the buffer is full the event
// is dropped and a rate-limited warning is logged.
package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType enumerates progress event kinds.
type EventType string

// Progress event kinds emitted by the engine.
const (
	EventPageVisited   EventType = "page_visited"
	EventPageSkipped   EventType = "page_skipped"
	EventStageStarted  EventType = "stage_started"
	EventStageFinished EventType = "stage_finished"
	EventRunFinished   EventType = "run_finished"
	EventJobClaimed    EventType = "job_claimed"
	EventJobFinished   EventType = "job_finished"
)

// Event is one progress notification.
type Event struct {
	Type    EventType
	RunID   string
	Subject string
	Detail  string
	At      time.Time
}

// Validate rejects events missing their type.
func (e Event) Validate() error {
	if e.Type == "" {
		return fmt.Errorf("progress event requires a type")
	}
	return nil
}

// Sink consumes batches of progress events.
type Sink interface {
	Consume(ctx context.Context, events []Event) error
	Close(ctx context.Context) error
}

const (
	defaultBufferSize = 1024
	dropLogInterval   = 5 * time.Second
)

// Bus fans events out to registered sinks from a single background goroutine.
type Bus struct {
	events  chan Event
	sinks   []Sink
	logger  *zap.Logger
	done    chan struct{}
	dropped atomic.Int64
	lastLog atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewBus starts the bus with the given sinks.
func NewBus(logger *zap.Logger, sinks ...Sink) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bus{
		events: make(chan Event, defaultBufferSize),
		sinks:  append([]Sink(nil), sinks...),
		logger: logger,
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Emit enqueues an event without blocking the caller.
func (b *Bus) Emit(evt Event) {
	if b == nil || b.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		b.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now()
	}
	select {
	case b.events <- evt:
	default:
		b.dropped.Add(1)
		now := time.Now().UnixNano()
		last := b.lastLog.Load()
		if now-last > int64(dropLogInterval) && b.lastLog.CompareAndSwap(last, now) {
			b.logger.Warn("progress events dropped due to backpressure",
				zap.Int64("dropped", b.dropped.Swap(0)))
		}
	}
}

// Close drains buffered events and shuts the sinks down.
func (b *Bus) Close(ctx context.Context) error {
	if b == nil {
		return nil
	}
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.events)
	})
	select {
	case <-b.done:
	case <-ctx.Done():
		return fmt.Errorf("progress bus close wait: %w", ctx.Err())
	}
	for _, sink := range b.sinks {
		if err := sink.Close(ctx); err != nil {
			b.logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
	return nil
}

func (b *Bus) run() {
	defer close(b.done)
	for evt := range b.events {
		batch := []Event{evt}
	drain:
		for len(batch) < 64 {
			select {
			case next, ok := <-b.events:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}
		for _, sink := range b.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := sink.Consume(ctx, batch); err != nil {
				b.logger.Warn("progress sink consume failed", zap.Error(err))
			}
			cancel()
		}
	}
}
