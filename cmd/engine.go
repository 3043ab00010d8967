package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/artifact"
	artifactgcs "github.com/skyhookqa/skyhook/internal/artifact/gcs"
	artifactlocal "github.com/skyhookqa/skyhook/internal/artifact/local"
	artifactmemory "github.com/skyhookqa/skyhook/internal/artifact/memory"
	"github.com/skyhookqa/skyhook/internal/browser"
	"github.com/skyhookqa/skyhook/internal/config"
	"github.com/skyhookqa/skyhook/internal/crawl"
	"github.com/skyhookqa/skyhook/internal/generate"
	"github.com/skyhookqa/skyhook/internal/llm"
	"github.com/skyhookqa/skyhook/internal/notify"
	notifymemory "github.com/skyhookqa/skyhook/internal/notify/memory"
	notifypubsub "github.com/skyhookqa/skyhook/internal/notify/pubsub"
	"github.com/skyhookqa/skyhook/internal/pipeline"
	"github.com/skyhookqa/skyhook/internal/progress"
	"github.com/skyhookqa/skyhook/internal/runner"
	"github.com/skyhookqa/skyhook/internal/schedule"
	"github.com/skyhookqa/skyhook/internal/selector"
	"github.com/skyhookqa/skyhook/internal/visual"
)

// engine bundles the long-lived components one process shares across
// pipeline runs. Per-run pieces (crawler, scheduler, orchestrator) are built
// per execution so job-level rule overrides apply cleanly.
type engine struct {
	cfg       config.Config
	logger    *zap.Logger
	browser   browser.Browser
	store     artifact.Store
	bus       *progress.Bus
	generator *generate.Generator
	runner    *runner.Runner
	planner   pipeline.Planner
	publisher notify.Publisher
}

func buildEngine(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engine, func(), error) {
	store, err := buildStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	chrome := browser.NewChrome(browser.Config{
		UserAgent:      cfg.Browser.UserAgent,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		NavTimeout:     time.Duration(cfg.Browser.NavTimeoutSec) * time.Second,
	})

	bus := progress.NewBus(logger, progress.NewLogSink(logger), progress.NewMetricsSink())

	// The model client is optional: without credentials the pipeline still
	// runs with deterministic generation and default retry behavior.
	var planner pipeline.Planner
	client, err := llm.New(cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.MaxTokens)
	if err != nil {
		logger.Warn("text-generation disabled", zap.Error(err))
		client = nil
	} else {
		planner = pipeline.NewLLMPlanner(client, logger)
	}

	gen := generate.New(client, generate.Options{
		IgnoreAPIGlobs:      cfg.Crawl.APIIgnorePatterns,
		VisualExcludeRoutes: cfg.Visual.ExcludeRoutes,
	}, logger)

	run := runner.New(
		chrome,
		selector.NewHealer(logger),
		visual.NewDiffer(cfg.Visual.Threshold),
		runner.Options{
			BaselineDir: cfg.Visual.BaselineDir,
			CurrentDir:  filepath.Join(filepath.Dir(cfg.Visual.BaselineDir), "current"),
			DiffDir:     cfg.Visual.DiffDir,
		},
		logger,
	)

	e := &engine{
		cfg:       cfg,
		logger:    logger,
		browser:   chrome,
		store:     store,
		bus:       bus,
		generator: gen,
		runner:    run,
		planner:   planner,
		publisher: publisher,
	}
	cleanup := func() {
		chrome.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := bus.Close(shutdownCtx); err != nil {
			logger.Warn("progress bus close", zap.Error(err))
		}
		if err := publisher.Close(); err != nil {
			logger.Warn("notify publisher close", zap.Error(err))
		}
	}
	return e, cleanup, nil
}

func buildStore(ctx context.Context, cfg config.Config) (artifact.Store, error) {
	switch cfg.Storage.Provider {
	case "gcs":
		return artifactgcs.New(ctx, cfg.Storage.GCSBucket, cfg.Storage.Prefix)
	case "local":
		return artifactlocal.New(cfg.Storage.LocalDir, cfg.Storage.Prefix)
	case "memory":
		return artifactmemory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Storage.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (notify.Publisher, error) {
	switch cfg.Notify.Provider {
	case "pubsub":
		return notifypubsub.New(ctx, cfg.Notify.ProjectID, cfg.Notify.TopicName)
	case "memory":
		return notifymemory.New(), nil
	case "noop", "":
		return notify.Noop{}, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Notify.Provider)
	}
}

// ruleOverrides is the per-job rules payload. Absent fields fall back to the
// service configuration.
type ruleOverrides struct {
	MaxDepth         *int              `json:"max_depth,omitempty"`
	SkipURLs         []string          `json:"skip_urls,omitempty"`
	ExtraDomains     []string          `json:"extra_domains,omitempty"`
	RecordVideo      *bool             `json:"record_video,omitempty"`
	ExecutionMode    string            `json:"execution_mode,omitempty"`
	SuiteAssignments map[string]string `json:"suite_assignments,omitempty"`
}

func (e *engine) crawlRules(ov ruleOverrides) crawl.Rules {
	rules := crawl.Rules{
		MaxDepth:          e.cfg.Crawl.MaxDepth,
		SkipURLs:          e.cfg.Crawl.SkipURLs,
		ExtraDomains:      e.cfg.Crawl.ExtraDomains,
		MaxScrollAttempts: e.cfg.Crawl.MaxScrollAttempts,
		MaxNavClicks:      e.cfg.Crawl.MaxNavClicks,
		RecordVideo:       e.cfg.Browser.RecordVideo,
	}
	if ov.MaxDepth != nil {
		rules.MaxDepth = *ov.MaxDepth
	}
	if len(ov.SkipURLs) > 0 {
		rules.SkipURLs = append(rules.SkipURLs, ov.SkipURLs...)
	}
	if len(ov.ExtraDomains) > 0 {
		rules.ExtraDomains = append(rules.ExtraDomains, ov.ExtraDomains...)
	}
	if ov.RecordVideo != nil {
		rules.RecordVideo = *ov.RecordVideo
	}
	return rules
}

func (e *engine) scheduler(ov ruleOverrides) *schedule.Scheduler {
	mode := schedule.Mode(e.cfg.Execution.Mode)
	if ov.ExecutionMode != "" {
		if parsed, err := schedule.ParseMode(ov.ExecutionMode); err == nil {
			mode = parsed
		} else {
			e.logger.Warn("ignoring invalid execution mode override", zap.Error(err))
		}
	}
	suiteConfigs := make(map[string]schedule.SuiteConfig, len(e.cfg.Execution.Suites))
	for name, sc := range e.cfg.Execution.Suites {
		suiteConfigs[name] = schedule.SuiteConfig{
			Sequential:    sc.Mode == "sequential",
			Workers:       sc.Workers,
			SharedContext: sc.SharedContext,
		}
	}
	return schedule.New(schedule.Options{
		Mode:         mode,
		MaxWorkers:   e.cfg.Execution.Parallelism(),
		Assignments:  ov.SuiteAssignments,
		SuiteConfigs: suiteConfigs,
	})
}

// executePipeline runs one full pipeline for a target URL.
func (e *engine) executePipeline(ctx context.Context, project, runID, url string, rulesJSON []byte) pipeline.Result {
	var ov ruleOverrides
	if len(rulesJSON) > 0 {
		if err := json.Unmarshal(rulesJSON, &ov); err != nil {
			e.logger.Warn("ignoring malformed job rules", zap.Error(err))
		}
	}

	crawler := crawl.NewCrawler(e.browser, e.store, e.crawlRules(ov), e.bus, e.logger)
	handlers := pipeline.DefaultHandlers(pipeline.StageDeps{
		Crawler:   crawler,
		Generator: e.generator,
		Scheduler: e.scheduler(ov),
		Runner:    e.runner,
		Store:     e.store,
		Logger:    e.logger,
	})
	orch := pipeline.NewOrchestrator(handlers, pipeline.Options{
		Planner: e.planner,
		Bus:     e.bus,
		Logger:  e.logger,
	})

	return orch.Execute(ctx, &pipeline.State{
		Project: project,
		RunID:   runID,
		BaseURL: url,
	})
}
