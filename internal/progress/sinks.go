package progress

import (
	"context"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/metrics"
)

// LogSink writes progress events to the structured log.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a sink logging at debug level.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event.
func (s *LogSink) Consume(_ context.Context, events []Event) error {
	for _, evt := range events {
		s.logger.Debug("progress",
			zap.String("type", string(evt.Type)),
			zap.String("run_id", evt.RunID),
			zap.String("subject", evt.Subject),
			zap.String("detail", evt.Detail),
		)
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error { return nil }

// MetricsSink updates Prometheus collectors from progress events.
type MetricsSink struct{}

// NewMetricsSink builds the Prometheus-backed sink.
func NewMetricsSink() *MetricsSink {
	metrics.Init()
	return &MetricsSink{}
}

// Consume translates events into collector updates. Run and job terminal
// counters are recorded at their source, so only page events map here.
func (s *MetricsSink) Consume(_ context.Context, events []Event) error {
	for _, evt := range events {
		switch evt.Type {
		case EventPageVisited:
			metrics.PageCrawled("visited")
		case EventPageSkipped:
			metrics.PageCrawled("skipped")
		}
	}
	return nil
}

// Close is a no-op.
func (s *MetricsSink) Close(context.Context) error { return nil }
