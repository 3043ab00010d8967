// Package pipeline drives one QA run through the fixed stage sequence
// Crawl, Map, Generate, Run, Report, with per-stage retries steered by an
// optional adaptive planner.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/crawl"
	"github.com/skyhookqa/skyhook/internal/generate"
	"github.com/skyhookqa/skyhook/internal/metrics"
	"github.com/skyhookqa/skyhook/internal/progress"
	"github.com/skyhookqa/skyhook/internal/runner"
	"github.com/skyhookqa/skyhook/internal/schedule"
)

// Stage identifies one pipeline stage.
type Stage string

// The stage sequence, executed strictly in this order.
const (
	StageCrawl    Stage = "crawl"
	StageMap      Stage = "map"
	StageGenerate Stage = "generate"
	StageRun      Stage = "run"
	StageReport   Stage = "report"
)

// Stages lists the sequence in execution order.
var Stages = []Stage{StageCrawl, StageMap, StageGenerate, StageRun, StageReport}

// State is the run-state record threaded forward through the stages. Each
// stage fills its own output fields; Params carries planner adjustments.
type State struct {
	Project string
	RunID   string
	BaseURL string

	// Params holds planner-adjusted parameters, merged forward between
	// retry attempts. Handlers read the keys they understand.
	Params map[string]any

	CrawlResult *crawl.SiteMap
	SiteMap     *crawl.SiteMap
	Cases       []generate.TestCase
	Plan        *schedule.Plan
	Results     []runner.TestResult
	ReportURI   string
}

// MergeParams folds adjustments into the state's parameter map.
func (s *State) MergeParams(adjusted map[string]any) {
	if len(adjusted) == 0 {
		return
	}
	if s.Params == nil {
		s.Params = make(map[string]any, len(adjusted))
	}
	for k, v := range adjusted {
		s.Params[k] = v
	}
}

// Handler executes one stage against the shared run state.
type Handler func(ctx context.Context, st *State) error

// Result is the terminal, immutable outcome of one run.
type Result struct {
	RunID           string        `json:"run_id"`
	Success         bool          `json:"success"`
	CompletedStages []Stage       `json:"completed_stages"`
	FailedStage     Stage         `json:"failed_stage,omitempty"`
	ErrorMessage    string        `json:"error_message,omitempty"`
	Duration        time.Duration `json:"duration"`
}

// Decision is the planner's verdict on a stage failure.
type Decision struct {
	ShouldRetry    bool           `json:"should_retry"`
	Reason         string         `json:"reason"`
	AdjustedParams map[string]any `json:"adjusted_params,omitempty"`
}

// Planner analyzes a stage failure and decides whether another attempt is
// worth making.
type Planner interface {
	AnalyzeFailure(ctx context.Context, stage Stage, failure error, attempt int) (Decision, error)
}

// Orchestrator runs the stage sequence. It is stateless across runs; one
// instance may serve concurrent Execute calls.
type Orchestrator struct {
	handlers   map[Stage]Handler
	planner    Planner
	maxRetries int
	bus        *progress.Bus
	logger     *zap.Logger
}

// Options tunes the orchestrator.
type Options struct {
	// MaxRetries is the attempt budget per stage. Zero picks the default:
	// one attempt without a planner, three with one.
	MaxRetries int
	Planner    Planner
	Bus        *progress.Bus
	Logger     *zap.Logger
}

// NewOrchestrator wires the stage handlers.
func NewOrchestrator(handlers map[Stage]Handler, opts Options) *Orchestrator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
		if opts.Planner != nil {
			maxRetries = 3
		}
	}
	return &Orchestrator{
		handlers:   handlers,
		planner:    opts.Planner,
		maxRetries: maxRetries,
		bus:        opts.Bus,
		logger:     opts.Logger,
	}
}

// Execute runs all stages in order. A stage failure is terminal: the result
// names the failed stage and later stages never run. Handler panics are
// contained and reported like errors.
func (o *Orchestrator) Execute(ctx context.Context, st *State) Result {
	start := time.Now()
	result := Result{RunID: st.RunID}

	for _, stage := range Stages {
		err := o.runStage(ctx, stage, st)
		if err != nil {
			result.FailedStage = stage
			result.ErrorMessage = err.Error()
			result.Duration = time.Since(start)
			metrics.PipelineFinished("failed")
			o.emit(progress.EventRunFinished, st.RunID, string(stage), err.Error())
			o.logger.Error("pipeline failed",
				zap.String("run_id", st.RunID),
				zap.String("stage", string(stage)),
				zap.Error(err),
			)
			return result
		}
		result.CompletedStages = append(result.CompletedStages, stage)
	}

	result.Success = true
	result.Duration = time.Since(start)
	metrics.PipelineFinished("succeeded")
	o.emit(progress.EventRunFinished, st.RunID, "", "")
	o.logger.Info("pipeline succeeded",
		zap.String("run_id", st.RunID),
		zap.Duration("duration", result.Duration),
	)
	return result
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, st *State) error {
	handler, ok := o.handlers[stage]
	if !ok {
		return fmt.Errorf("no handler for stage %s", stage)
	}

	o.emit(progress.EventStageStarted, st.RunID, string(stage), "")
	stageStart := time.Now()

	var lastErr error
	for attempt := 1; attempt <= o.maxRetries; attempt++ {
		lastErr = o.attempt(ctx, handler, st)
		if lastErr == nil {
			break
		}
		o.logger.Warn("stage attempt failed",
			zap.String("run_id", st.RunID),
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)
		if attempt == o.maxRetries {
			break
		}
		if o.planner == nil {
			// No planner to consult; the remaining budget alone drives
			// the retry.
			continue
		}

		decision, err := o.planner.AnalyzeFailure(ctx, stage, lastErr, attempt)
		if err != nil {
			// A broken planner must not mask the stage failure.
			o.logger.Warn("planner analysis failed, not retrying", zap.Error(err))
			break
		}
		st.MergeParams(decision.AdjustedParams)
		if !decision.ShouldRetry {
			o.logger.Info("planner declined retry",
				zap.String("stage", string(stage)),
				zap.String("reason", decision.Reason),
			)
			break
		}
		o.logger.Info("planner requested retry",
			zap.String("stage", string(stage)),
			zap.String("reason", decision.Reason),
			zap.Int("next_attempt", attempt+1),
		)
		if delay := retryDelay(decision.AdjustedParams); delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return fmt.Errorf("retry wait canceled: %w", ctx.Err())
			}
		}
	}

	metrics.StageCompleted(string(stage), lastErr == nil, time.Since(stageStart))
	detail := ""
	if lastErr != nil {
		detail = lastErr.Error()
	}
	o.emit(progress.EventStageFinished, st.RunID, string(stage), detail)
	return lastErr
}

// retryDelay reads a planner-adjusted retry_delay_ms. There is no fixed
// backoff; the planner is the only source of delay between attempts.
func retryDelay(params map[string]any) time.Duration {
	switch v := params["retry_delay_ms"].(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	default:
		return 0
	}
}

// attempt invokes the handler with panic containment, so a crashing stage
// becomes an ordinary pipeline failure.
func (o *Orchestrator) attempt(ctx context.Context, handler Handler, st *State) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stage panicked: %v", r)
		}
	}()
	return handler(ctx, st)
}

func (o *Orchestrator) emit(typ progress.EventType, runID, subject, detail string) {
	if o.bus == nil {
		return
	}
	o.bus.Emit(progress.Event{
		Type:    typ,
		RunID:   runID,
		Subject: subject,
		Detail:  detail,
		At:      time.Now(),
	})
}
