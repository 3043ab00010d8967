// Package schedule partitions generated test cases into execution suites.
// A suite is an ordered batch of cases with a worker count; suites themselves
// run concurrently, cases within a suite run on the suite's worker pool.
package schedule

import (
	"fmt"
	"sort"

	"github.com/skyhookqa/skyhook/internal/generate"
)

// Mode selects the partitioning strategy.
type Mode string

// Partitioning strategies.
const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
	ModeSmart      Mode = "smart"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSequential, ModeParallel, ModeSmart:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown schedule mode %q", s)
}

// Suite is one batch of cases sharing a worker pool. SharedContext marks
// suites whose cases reuse one browser context instead of isolated ones.
type Suite struct {
	Name          string              `json:"name"`
	Workers       int                 `json:"workers"`
	SharedContext bool                `json:"shared_context,omitempty"`
	Cases         []generate.TestCase `json:"cases"`
}

// Plan is the full set of suites for one run.
type Plan struct {
	Mode   Mode    `json:"mode"`
	Suites []Suite `json:"suites"`
}

// TotalCases counts the cases across all suites.
func (p *Plan) TotalCases() int {
	n := 0
	for _, s := range p.Suites {
		n += len(s.Cases)
	}
	return n
}

// SuiteConfig carries per-suite overrides for explicit assignments. A
// sequential suite always runs one worker; otherwise Workers applies, with
// zero meaning the global maximum.
type SuiteConfig struct {
	Sequential    bool `json:"sequential"`
	Workers       int  `json:"workers"`
	SharedContext bool `json:"shared_context"`
}

// Options configures the scheduler.
type Options struct {
	Mode       Mode
	MaxWorkers int
	// Assignments maps case name to suite name. When non-empty it
	// overrides Mode entirely.
	Assignments map[string]string
	// SuiteConfigs carries per-suite worker counts for assigned suites.
	SuiteConfigs map[string]SuiteConfig
}

// Scheduler builds execution plans from test cases.
type Scheduler struct {
	opts Options
}

// New returns a scheduler. MaxWorkers below 1 is treated as 1.
func New(opts Options) *Scheduler {
	if opts.MaxWorkers < 1 {
		opts.MaxWorkers = 1
	}
	if opts.Mode == "" {
		opts.Mode = ModeSmart
	}
	return &Scheduler{opts: opts}
}

// Build partitions the cases into a plan. Case order within each suite
// preserves the input order.
func (s *Scheduler) Build(cases []generate.TestCase) *Plan {
	if len(s.opts.Assignments) > 0 {
		return s.buildAssigned(cases)
	}
	switch s.opts.Mode {
	case ModeSequential:
		return s.buildSequential(cases)
	case ModeParallel:
		return s.buildParallel(cases)
	default:
		return s.buildSmart(cases)
	}
}

func (s *Scheduler) buildSequential(cases []generate.TestCase) *Plan {
	plan := &Plan{Mode: ModeSequential}
	if len(cases) == 0 {
		return plan
	}
	plan.Suites = []Suite{{Name: "all-tests", Workers: 1, Cases: cases}}
	return plan
}

func (s *Scheduler) buildParallel(cases []generate.TestCase) *Plan {
	plan := &Plan{Mode: ModeParallel}
	if len(cases) == 0 {
		return plan
	}
	workers := s.opts.MaxWorkers
	if len(cases) < workers {
		workers = len(cases)
	}
	plan.Suites = []Suite{{Name: "all-tests", Workers: workers, Cases: cases}}
	return plan
}

// buildSmart groups API cases into one parallel suite and UI cases into one
// sequential suite per route, so cases mutating shared page state never race
// within a route.
func (s *Scheduler) buildSmart(cases []generate.TestCase) *Plan {
	plan := &Plan{Mode: ModeSmart}

	var apiCases []generate.TestCase
	byRoute := make(map[string][]generate.TestCase)
	var routeOrder []string

	for _, tc := range cases {
		if tc.Category == generate.CategoryAPI {
			apiCases = append(apiCases, tc)
			continue
		}
		route := tc.Route
		if route == "" {
			route = "/"
		}
		if _, seen := byRoute[route]; !seen {
			routeOrder = append(routeOrder, route)
		}
		byRoute[route] = append(byRoute[route], tc)
	}

	if len(apiCases) > 0 {
		workers := s.opts.MaxWorkers
		if len(apiCases) < workers {
			workers = len(apiCases)
		}
		plan.Suites = append(plan.Suites, Suite{
			Name:    "api-tests",
			Workers: workers,
			Cases:   apiCases,
		})
	}
	for _, route := range routeOrder {
		plan.Suites = append(plan.Suites, Suite{
			Name:    "ui-" + route,
			Workers: 1,
			Cases:   byRoute[route],
		})
	}
	return plan
}

// buildAssigned honors explicit case-to-suite assignments. Cases without an
// assignment land in a sequential "unassigned" suite.
func (s *Scheduler) buildAssigned(cases []generate.TestCase) *Plan {
	plan := &Plan{Mode: s.opts.Mode}

	bySuite := make(map[string][]generate.TestCase)
	var unassigned []generate.TestCase
	for _, tc := range cases {
		name, ok := s.opts.Assignments[tc.Name]
		if !ok {
			unassigned = append(unassigned, tc)
			continue
		}
		bySuite[name] = append(bySuite[name], tc)
	}

	names := make([]string, 0, len(bySuite))
	for name := range bySuite {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		// An unconfigured suite defaults to sequential and unshared.
		workers := 1
		shared := false
		if cfg, ok := s.opts.SuiteConfigs[name]; ok {
			shared = cfg.SharedContext
			switch {
			case cfg.Sequential:
				workers = 1
			case cfg.Workers > 0:
				workers = cfg.Workers
				if workers > s.opts.MaxWorkers {
					workers = s.opts.MaxWorkers
				}
			default:
				workers = s.opts.MaxWorkers
			}
		}
		plan.Suites = append(plan.Suites, Suite{
			Name:          name,
			Workers:       workers,
			SharedContext: shared,
			Cases:         bySuite[name],
		})
	}
	if len(unassigned) > 0 {
		plan.Suites = append(plan.Suites, Suite{
			Name:    "unassigned",
			Workers: 1,
			Cases:   unassigned,
		})
	}
	return plan
}
