package qc

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rove-labs/rove-go/internal/platform/metrics"
)

// Submitter executes a single invocation somewhere: in-process or on a
// remote worker.
type Submitter interface {
	Submit(ctx context.Context, inv Invocation) (FlagSeries, error)
}

// LocalSubmitter runs invocations in-process.
type LocalSubmitter struct {
	runner *Runner
}

func NewLocalSubmitter(runner *Runner) *LocalSubmitter {
	return &LocalSubmitter{runner: runner}
}

func (s *LocalSubmitter) Submit(ctx context.Context, inv Invocation) (FlagSeries, error) {
	return s.runner.Execute(ctx, inv)
}

// Result pairs an invocation with its outcome. Err is kept rather than
// swallowed so the aggregator can decide how a failed invocation appears in
// the response.
type Result struct {
	Invocation *Invocation
	Series     FlagSeries
	Err        error
}

type DispatcherConfig struct {
	// MaxInFlight bounds concurrent submissions.
	MaxInFlight int
	// Retries is how many times a transport failure is retried. Failures
	// inside check logic are never retried.
	Retries int
	// RetryBackoff is the initial backoff, doubled per attempt.
	RetryBackoff time.Duration
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 16
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 100 * time.Millisecond
	}
	return c
}

// Dispatcher fans a plan's invocations out over a submitter with bounded
// concurrency. Individual invocation failures are recorded in their Result;
// only the request deadline aborts the whole dispatch.
type Dispatcher struct {
	submitter Submitter
	cfg       DispatcherConfig
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

func NewDispatcher(submitter Submitter, cfg DispatcherConfig, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{submitter: submitter, cfg: cfg.withDefaults(), logger: logger, metrics: m}
}

// Run submits every invocation and returns results in invocation order.
func (d *Dispatcher) Run(ctx context.Context, plan *Plan) ([]Result, error) {
	results := make([]Result, len(plan.Invocations))

	var g errgroup.Group
	g.SetLimit(d.cfg.MaxInFlight)
	for i := range plan.Invocations {
		if ctx.Err() != nil {
			break
		}
		i := i
		inv := &plan.Invocations[i]
		g.Go(func() error {
			start := time.Now()
			series, err := d.submitOne(ctx, *inv)
			d.metrics.CheckSeconds.Observe(time.Since(start).Seconds())
			if err != nil {
				d.metrics.InvocationsTotal.WithLabelValues("error").Inc()
				d.logger.Warn("check invocation failed",
					"invocation_id", inv.ID, "check", inv.Check, "series_id", inv.Target.ID, "error", err)
			} else {
				d.metrics.InvocationsTotal.WithLabelValues("ok").Inc()
			}
			results[i] = Result{Invocation: inv, Series: series, Err: err}
			return nil
		})
	}
	g.Wait()

	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeadlineExceeded, ctx.Err())
	}
	return results, nil
}

// submitOne retries transport failures with exponential backoff. The retry
// loop runs on the request context, so retries spend the caller's deadline
// budget rather than extending it.
func (d *Dispatcher) submitOne(ctx context.Context, inv Invocation) (FlagSeries, error) {
	backoff := d.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; ; attempt++ {
		series, err := d.submitter.Submit(ctx, inv)
		if err == nil {
			return series, nil
		}
		lastErr = err
		if !IsTransport(err) || attempt >= d.cfg.Retries {
			return FlagSeries{}, lastErr
		}
		d.metrics.RetriesTotal.Inc()
		select {
		case <-ctx.Done():
			return FlagSeries{}, lastErr
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}
