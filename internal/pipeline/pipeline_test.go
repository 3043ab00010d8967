package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// flakyHandlers builds a full handler set where the named stage fails the
// first failures attempts, then succeeds. All other stages always succeed.
func flakyHandlers(flaky Stage, failures int, calls map[Stage]int) map[Stage]Handler {
	handlers := make(map[Stage]Handler, len(Stages))
	for _, stage := range Stages {
		stage := stage
		handlers[stage] = func(ctx context.Context, st *State) error {
			calls[stage]++
			if stage == flaky && calls[stage] <= failures {
				return fmt.Errorf("stage %s blew up on attempt %d", stage, calls[stage])
			}
			return nil
		}
	}
	return handlers
}

type stubPlanner struct {
	decision Decision
	err      error
	calls    int
}

func (p *stubPlanner) AnalyzeFailure(_ context.Context, _ Stage, _ error, _ int) (Decision, error) {
	p.calls++
	return p.decision, p.err
}

func TestExecuteAllStagesSucceed(t *testing.T) {
	calls := map[Stage]int{}
	o := NewOrchestrator(flakyHandlers("", 0, calls), Options{})

	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.True(t, res.Success)
	assert.Equal(t, Stages, res.CompletedStages)
	assert.Empty(t, res.FailedStage)
	assert.Greater(t, res.Duration.Nanoseconds(), int64(0))
	for _, stage := range Stages {
		assert.Equal(t, 1, calls[stage], "stage %s", stage)
	}
}

func TestExecuteRetrySucceedsWithBudget(t *testing.T) {
	calls := map[Stage]int{}
	planner := &stubPlanner{decision: Decision{ShouldRetry: true, Reason: "transient"}}
	o := NewOrchestrator(flakyHandlers(StageMap, 1, calls), Options{MaxRetries: 2, Planner: planner})

	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.True(t, res.Success)
	assert.Len(t, res.CompletedStages, 5)
	assert.Equal(t, 2, calls[StageMap])
	assert.Equal(t, 1, planner.calls)
}

func TestExecuteRetrySucceedsWithoutPlanner(t *testing.T) {
	calls := map[Stage]int{}
	o := NewOrchestrator(flakyHandlers(StageMap, 1, calls), Options{MaxRetries: 2})

	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.True(t, res.Success)
	assert.Len(t, res.CompletedStages, 5)
	// The budget alone drives the retry; no planner is needed.
	assert.Equal(t, 2, calls[StageMap])
}

func TestExecuteRetryExhaustedFails(t *testing.T) {
	calls := map[Stage]int{}
	o := NewOrchestrator(flakyHandlers(StageMap, 1, calls), Options{MaxRetries: 1})

	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.False(t, res.Success)
	assert.Equal(t, StageMap, res.FailedStage)
	assert.Contains(t, res.ErrorMessage, "blew up")
	// Only the stages before the failure completed; later stages never ran.
	assert.Equal(t, []Stage{StageCrawl}, res.CompletedStages)
	assert.Equal(t, 0, calls[StageGenerate])
	assert.Equal(t, 0, calls[StageRun])
}

func TestExecutePlannerDeclinesRetry(t *testing.T) {
	calls := map[Stage]int{}
	planner := &stubPlanner{decision: Decision{ShouldRetry: false, Reason: "permanent"}}
	o := NewOrchestrator(flakyHandlers(StageCrawl, 2, calls), Options{Planner: planner})

	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.False(t, res.Success)
	assert.Equal(t, StageCrawl, res.FailedStage)
	// Budget remained but the planner said stop.
	assert.Equal(t, 1, calls[StageCrawl])
	assert.Equal(t, 1, planner.calls)
}

func TestExecutePlannerErrorStopsRetrying(t *testing.T) {
	calls := map[Stage]int{}
	planner := &stubPlanner{err: errors.New("planner offline")}
	o := NewOrchestrator(flakyHandlers(StageCrawl, 2, calls), Options{Planner: planner})

	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.False(t, res.Success)
	assert.Equal(t, 1, calls[StageCrawl])
}

func TestExecuteMergesAdjustedParams(t *testing.T) {
	planner := &stubPlanner{decision: Decision{
		ShouldRetry:    true,
		AdjustedParams: map[string]any{"page_timeout_seconds": 60},
	}}

	var seen map[string]any
	calls := map[Stage]int{}
	handlers := flakyHandlers(StageGenerate, 1, calls)
	inner := handlers[StageGenerate]
	handlers[StageGenerate] = func(ctx context.Context, st *State) error {
		seen = st.Params
		return inner(ctx, st)
	}

	o := NewOrchestrator(handlers, Options{Planner: planner})
	res := o.Execute(context.Background(), &State{RunID: "r1"})
	require.True(t, res.Success)
	assert.Equal(t, 60, seen["page_timeout_seconds"])
}

func TestExecuteDefaultRetryBudget(t *testing.T) {
	// Without a planner a stage gets one attempt.
	calls := map[Stage]int{}
	o := NewOrchestrator(flakyHandlers(StageRun, 1, calls), Options{})
	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.False(t, res.Success)
	assert.Equal(t, 1, calls[StageRun])

	// With a planner the default budget is three attempts.
	calls = map[Stage]int{}
	planner := &stubPlanner{decision: Decision{ShouldRetry: true}}
	o = NewOrchestrator(flakyHandlers(StageRun, 2, calls), Options{Planner: planner})
	res = o.Execute(context.Background(), &State{RunID: "r1"})
	assert.True(t, res.Success)
	assert.Equal(t, 3, calls[StageRun])
}

func TestExecuteContainsPanics(t *testing.T) {
	calls := map[Stage]int{}
	handlers := flakyHandlers("", 0, calls)
	handlers[StageReport] = func(ctx context.Context, st *State) error {
		panic("report writer exploded")
	}

	o := NewOrchestrator(handlers, Options{})
	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.False(t, res.Success)
	assert.Equal(t, StageReport, res.FailedStage)
	assert.Contains(t, res.ErrorMessage, "report writer exploded")
}

func TestExecuteMissingHandler(t *testing.T) {
	o := NewOrchestrator(map[Stage]Handler{}, Options{})
	res := o.Execute(context.Background(), &State{RunID: "r1"})
	assert.False(t, res.Success)
	assert.Equal(t, StageCrawl, res.FailedStage)
}

func TestMergeParams(t *testing.T) {
	st := &State{}
	st.MergeParams(nil)
	assert.Nil(t, st.Params)

	st.MergeParams(map[string]any{"a": 1})
	st.MergeParams(map[string]any{"a": 2, "b": "x"})
	assert.Equal(t, 2, st.Params["a"])
	assert.Equal(t, "x", st.Params["b"])
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Duration(0), retryDelay(nil))
	assert.Equal(t, time.Duration(0), retryDelay(map[string]any{"retry_delay_ms": "soon"}))
	assert.Equal(t, 250*time.Millisecond, retryDelay(map[string]any{"retry_delay_ms": float64(250)}))
	assert.Equal(t, 100*time.Millisecond, retryDelay(map[string]any{"retry_delay_ms": 100}))
}
