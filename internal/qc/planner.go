package qc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rove-labs/rove-go/internal/platform/metrics"
)

// maxConcurrentFetches bounds how many connector fetches a single plan
// materializes in parallel.
const maxConcurrentFetches = 8

// Invocation is one unit of check work: a single check applied to a single
// target series, with whatever context series the step requires. It is the
// payload shipped to workers, so it carries everything needed to execute
// without further fetching.
type Invocation struct {
	ID        string   `json:"id"`
	Check     string   `json:"check"`
	StepIndex int      `json:"step_index"`
	StepName  string   `json:"step_name"`
	Params    Params   `json:"params,omitempty"`
	Target    Series   `json:"target"`
	Context   []Series `json:"context,omitempty"`
}

// Plan is a fully materialized request: data fetched, invocations built. The
// invocations are ordered step-major so the aggregator can reassemble
// pipeline order from StepIndex alone.
type Plan struct {
	Grid        TimeGrid
	Pipeline    *Pipeline
	Targets     []string
	Invocations []Invocation
}

type Planner struct {
	data    *DataSwitch
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewPlanner(data *DataSwitch, logger *slog.Logger, m *metrics.Metrics) *Planner {
	return &Planner{data: data, logger: logger, metrics: m}
}

type fetchKey struct {
	source string
	id     string
}

// Plan resolves the request's target series, fetches every distinct
// (source, series) pair exactly once, and builds one invocation per
// (step, target). A fetch that fails for reasons other than cancellation
// degrades that series to all-missing rather than failing the request.
func (p *Planner) Plan(ctx context.Context, req Request, pipeline *Pipeline, grid TimeGrid) (*Plan, error) {
	primary, err := p.data.Connector(req.DataSource)
	if err != nil {
		return nil, err
	}

	targets, err := p.resolveTargets(ctx, primary, req)
	if err != nil {
		return nil, err
	}

	window := Window{
		Start:      req.Start,
		End:        req.End,
		Resolution: req.Resolution,
		Leading:    pipeline.Leading,
		Trailing:   pipeline.Trailing,
	}

	keys := make([]fetchKey, 0, len(targets))
	seen := make(map[fetchKey]struct{})
	add := func(k fetchKey) {
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	for _, id := range targets {
		add(fetchKey{source: req.DataSource, id: id})
	}
	for _, step := range pipeline.Steps {
		if !step.RequiresBacking {
			continue
		}
		for _, backing := range req.BackingSources {
			for _, id := range targets {
				add(fetchKey{source: backing, id: id})
			}
		}
	}

	fetched, err := p.fetchAll(ctx, keys, window, req.ExtraSpec)
	if err != nil {
		return nil, err
	}

	invocations := make([]Invocation, 0, len(pipeline.Steps)*len(targets))
	for stepIndex, step := range pipeline.Steps {
		for _, id := range targets {
			inv := Invocation{
				ID:        uuid.NewString(),
				Check:     step.Check,
				StepIndex: stepIndex,
				StepName:  step.Name,
				Params:    step.Params,
				Target:    fetched[fetchKey{source: req.DataSource, id: id}],
			}
			if step.RequiresBacking {
				inv.Context = make([]Series, 0, len(req.BackingSources))
				for _, backing := range req.BackingSources {
					inv.Context = append(inv.Context, fetched[fetchKey{source: backing, id: id}])
				}
			}
			invocations = append(invocations, inv)
		}
	}

	return &Plan{Grid: grid, Pipeline: pipeline, Targets: targets, Invocations: invocations}, nil
}

func (p *Planner) resolveTargets(ctx context.Context, primary Connector, req Request) ([]string, error) {
	if one, ok := req.Space.(SpaceOne); ok {
		return []string{one.SeriesID}, nil
	}
	targets, err := primary.ListSeries(ctx, req.Space, req.ExtraSpec)
	if err != nil {
		return nil, &SourceError{Source: req.DataSource, Err: fmt.Errorf("list series: %w", err)}
	}
	return targets, nil
}

// fetchAll materializes every key concurrently. Besides the connectors it
// only touches per-key map slots behind the mutex, so a failed fetch can be
// replaced by an all-missing series without racing.
func (p *Planner) fetchAll(ctx context.Context, keys []fetchKey, window Window, extraSpec string) (map[fetchKey]Series, error) {
	stamps, err := window.Timestamps()
	if err != nil {
		return nil, err
	}
	coreLen := len(stamps) - window.Leading - window.Trailing

	var mu sync.Mutex
	fetched := make(map[fetchKey]Series, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			connector, err := p.data.Connector(key.source)
			if err == nil {
				var series Series
				series, err = connector.FetchSeries(gctx, key.id, window, extraSpec)
				if err == nil {
					p.metrics.FetchesTotal.WithLabelValues(key.source, "ok").Inc()
					mu.Lock()
					fetched[key] = series
					mu.Unlock()
					return nil
				}
			}
			if gctx.Err() != nil {
				return gctx.Err()
			}
			p.metrics.FetchesTotal.WithLabelValues(key.source, "error").Inc()
			p.logger.Warn("series fetch failed, degrading to missing",
				"source", key.source, "series_id", key.id, "error", err)
			mu.Lock()
			fetched[key] = AllMissingSeries(key.id, coreLen, window.Leading, window.Trailing)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
		}
		return nil, err
	}
	return fetched, nil
}
