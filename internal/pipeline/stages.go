package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/skyhookqa/skyhook/internal/artifact"
	"github.com/skyhookqa/skyhook/internal/crawl"
	"github.com/skyhookqa/skyhook/internal/generate"
	"github.com/skyhookqa/skyhook/internal/runner"
	"github.com/skyhookqa/skyhook/internal/schedule"
)

// StageDeps carries the components the default stage handlers delegate to.
type StageDeps struct {
	Crawler   *crawl.Crawler
	Generator *generate.Generator
	Scheduler *schedule.Scheduler
	Runner    *runner.Runner
	Store     artifact.Store
	Logger    *zap.Logger
}

// DefaultHandlers wires the standard five-stage pipeline.
func DefaultHandlers(deps StageDeps) map[Stage]Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return map[Stage]Handler{
		StageCrawl: func(ctx context.Context, st *State) error {
			site, err := deps.Crawler.Crawl(ctx, st.Project, st.RunID, st.BaseURL)
			if err != nil {
				return fmt.Errorf("crawl stage: %w", err)
			}
			st.CrawlResult = site
			return nil
		},
		StageMap: func(ctx context.Context, st *State) error {
			if st.CrawlResult == nil {
				return fmt.Errorf("map stage: no crawl result")
			}
			st.SiteMap = refineSiteMap(ctx, deps.Generator, st.CrawlResult, logger)
			return nil
		},
		StageGenerate: func(ctx context.Context, st *State) error {
			cases, err := deps.Generator.Generate(ctx, st.SiteMap)
			if err != nil {
				return fmt.Errorf("generate stage: %w", err)
			}
			st.Cases = cases
			return nil
		},
		StageRun: func(ctx context.Context, st *State) error {
			st.Plan = deps.Scheduler.Build(st.Cases)
			results, err := deps.Runner.Run(ctx, st.Plan)
			if err != nil {
				return fmt.Errorf("run stage: %w", err)
			}
			st.Results = results
			return nil
		},
		StageReport: func(ctx context.Context, st *State) error {
			uri, err := saveReport(ctx, deps.Store, st)
			if err != nil {
				return fmt.Errorf("report stage: %w", err)
			}
			st.ReportURI = uri
			return nil
		},
	}
}

// refineSiteMap upgrades extractor-assigned component types with model
// classifications. Classification is best effort; the raw model stands when
// it fails.
func refineSiteMap(ctx context.Context, gen *generate.Generator, raw *crawl.SiteMap, logger *zap.Logger) *crawl.SiteMap {
	refined := *raw
	refined.Pages = make([]crawl.PageData, len(raw.Pages))
	copy(refined.Pages, raw.Pages)

	for i := range refined.Pages {
		page := &refined.Pages[i]
		if len(page.Components) == 0 {
			continue
		}
		types, err := gen.ClassifyComponents(ctx, page.Components)
		if err != nil {
			logger.Warn("component classification failed",
				zap.String("path", page.Path),
				zap.Error(err),
			)
			continue
		}
		comps := make([]crawl.ComponentInfo, len(page.Components))
		copy(comps, page.Components)
		for j := range comps {
			comps[j].Type = types[j]
		}
		page.Components = comps
	}
	return &refined
}

// report is the persisted run report shape.
type report struct {
	RunID   string              `json:"run_id"`
	BaseURL string              `json:"base_url"`
	Pages   int                 `json:"pages"`
	Cases   int                 `json:"cases"`
	Summary runner.Summary      `json:"summary"`
	Results []runner.TestResult `json:"results"`
}

func saveReport(ctx context.Context, store artifact.Store, st *State) (string, error) {
	rep := report{
		RunID:   st.RunID,
		BaseURL: st.BaseURL,
		Summary: runner.Summarize(st.Results),
		Results: st.Results,
		Cases:   len(st.Cases),
	}
	if st.SiteMap != nil {
		rep.Pages = len(st.SiteMap.Pages)
	}
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	key := artifact.Key{Project: st.Project, Run: st.RunID, Name: "report.json"}
	uri, err := store.Save(ctx, key, "application/json", data)
	if err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return uri, nil
}
