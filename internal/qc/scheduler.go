package qc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rove-labs/rove-go/internal/platform/metrics"
)

// Scheduler is the engine's entry point: it validates a request, plans the
// fetches, dispatches the invocations and assembles the ordered response.
type Scheduler struct {
	resolver   *Resolver
	planner    *Planner
	dispatcher *Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewScheduler(resolver *Resolver, planner *Planner, dispatcher *Dispatcher, logger *slog.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{resolver: resolver, planner: planner, dispatcher: dispatcher, logger: logger, metrics: m}
}

// Validate runs one QC request end to end. Only request validation,
// pipeline/source resolution, target discovery and the deadline can fail
// the whole request; individual check failures degrade to INCONCLUSIVE
// series in the response.
func (s *Scheduler) Validate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := s.validate(ctx, req)
	s.metrics.RequestSeconds.Observe(time.Since(start).Seconds())
	s.metrics.RequestsTotal.WithLabelValues(outcomeLabel(err)).Inc()
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Scheduler) validate(ctx context.Context, req Request) (*Response, error) {
	grid, err := req.Validate()
	if err != nil {
		return nil, err
	}

	pipeline, err := s.resolver.Resolve(req.Pipeline)
	if err != nil {
		return nil, err
	}

	plan, err := s.planner.Plan(ctx, req, pipeline, grid)
	if err != nil {
		return nil, err
	}
	s.logger.Info("request planned",
		"pipeline", pipeline.Name,
		"targets", len(plan.Targets),
		"invocations", len(plan.Invocations),
		"grid_points", grid.N)

	results, err := s.dispatcher.Run(ctx, plan)
	if err != nil {
		return nil, err
	}

	return Assemble(pipeline, plan.Targets, results, grid.N), nil
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDeadlineExceeded):
		return "deadline"
	case isRejected(err):
		return "rejected"
	default:
		return "error"
	}
}

func isRejected(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) ||
		errors.Is(err, ErrUnknownPipeline) ||
		errors.Is(err, ErrUnknownSource)
}
