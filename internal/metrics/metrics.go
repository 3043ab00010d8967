// Package metrics exposes Prometheus collectors for the QA service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pagesCrawledTotal     *prometheus.CounterVec
	apiCallsCapturedTotal prometheus.Counter
	selectorHealsTotal    *prometheus.CounterVec
	stageDurationSeconds  *prometheus.HistogramVec
	pipelineRunsTotal     *prometheus.CounterVec
	jobsTotal             *prometheus.CounterVec
	casesTotal            *prometheus.CounterVec
	activeWorkers         prometheus.Gauge
	visualDiffRatio       prometheus.Histogram

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesCrawledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skyhook_pages_crawled_total",
				Help: "Total number of pages visited by the crawl engine, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		apiCallsCapturedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "skyhook_api_calls_captured_total",
				Help: "Total number of XHR/fetch calls captured by the network interceptor.",
			},
		)

		selectorHealsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skyhook_selector_heals_total",
				Help: "Total number of element lookups, labeled by result (found, healed, missed).",
			},
			[]string{"result"},
		)

		stageDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "skyhook_stage_duration_seconds",
				Help:    "Histogram of pipeline stage durations, labeled by stage and success.",
				Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600},
			},
			[]string{"stage", "success"},
		)

		pipelineRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skyhook_pipeline_runs_total",
				Help: "Total number of pipeline runs, labeled by terminal status.",
			},
			[]string{"status"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skyhook_jobs_total",
				Help: "Total number of queue jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		casesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "skyhook_test_cases_total",
				Help: "Total number of executed test cases, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "skyhook_active_workers",
				Help: "Number of workers currently executing a claimed job.",
			},
		)

		visualDiffRatio = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "skyhook_visual_diff_ratio",
				Help:    "Histogram of per-comparison differing pixel ratios.",
				Buckets: []float64{0, 0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
		)
	})
}

// PageCrawled records one visited page with its outcome label.
func PageCrawled(outcome string) {
	if pagesCrawledTotal == nil {
		return
	}
	pagesCrawledTotal.WithLabelValues(outcome).Inc()
}

// APICallCaptured records one captured network call.
func APICallCaptured() {
	if apiCallsCapturedTotal == nil {
		return
	}
	apiCallsCapturedTotal.Inc()
}

// SelectorLookup records the result of one healer lookup.
func SelectorLookup(result string) {
	if selectorHealsTotal == nil {
		return
	}
	selectorHealsTotal.WithLabelValues(result).Inc()
}

// StageCompleted records one pipeline stage execution.
func StageCompleted(stage string, success bool, d time.Duration) {
	if stageDurationSeconds == nil {
		return
	}
	stageDurationSeconds.WithLabelValues(stage, strconv.FormatBool(success)).Observe(d.Seconds())
}

// PipelineFinished records one terminal pipeline result.
func PipelineFinished(status string) {
	if pipelineRunsTotal == nil {
		return
	}
	pipelineRunsTotal.WithLabelValues(status).Inc()
}

// JobFinished records one terminal queue job.
func JobFinished(status string) {
	if jobsTotal == nil {
		return
	}
	jobsTotal.WithLabelValues(status).Inc()
}

// CaseFinished records one executed test case.
func CaseFinished(status string) {
	if casesTotal == nil {
		return
	}
	casesTotal.WithLabelValues(status).Inc()
}

// WorkerStarted increments the active-worker gauge.
func WorkerStarted() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Inc()
}

// WorkerStopped decrements the active-worker gauge.
func WorkerStopped() {
	if activeWorkers == nil {
		return
	}
	activeWorkers.Dec()
}

// VisualDiffObserved records one comparison's differing pixel ratio.
func VisualDiffObserved(ratio float64) {
	if visualDiffRatio == nil {
		return
	}
	visualDiffRatio.Observe(ratio)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
