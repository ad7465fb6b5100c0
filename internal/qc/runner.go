package qc

import (
	"context"
	"fmt"
	"log/slog"
)

// Runner executes invocations against the local capability registry. It is
// the single execution path: the coordinator uses it directly in local mode
// and the worker exposes it over HTTP.
type Runner struct {
	registry CapabilityRegistry
	logger   *slog.Logger
}

func NewRunner(registry CapabilityRegistry, logger *slog.Logger) *Runner {
	return &Runner{registry: registry, logger: logger}
}

// Execute flags every central point of the invocation's target series. A
// missing target sample is flagged DATA_MISSING without consulting the
// check; a check that errors or panics on a point yields INVALID for that
// point only. A returned error means the whole invocation failed.
func (r *Runner) Execute(ctx context.Context, inv Invocation) (FlagSeries, error) {
	capability, ok := r.registry.Lookup(inv.Check)
	if !ok {
		return FlagSeries{}, &CheckError{Check: inv.Check, Err: fmt.Errorf("%w: %q", ErrUnknownCheck, inv.Check)}
	}

	n := inv.Target.CoreLen()
	if n <= 0 {
		return FlagSeries{}, &CheckError{Check: inv.Check, Err: fmt.Errorf("target series %q has no central points", inv.Target.ID)}
	}

	flags := make([]Flag, n)
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return FlagSeries{}, err
		}
		idx := inv.Target.Leading + i
		if inv.Target.Values[idx] == nil {
			flags[i] = FlagDataMissing
			continue
		}
		flag, err := evaluateIndex(capability, inv.Target.Values, idx, inv.Context, inv.Params)
		if err != nil {
			r.logger.Debug("check evaluation failed for point",
				"check", inv.Check, "series_id", inv.Target.ID, "index", i, "error", err)
			flags[i] = FlagInvalid
			continue
		}
		flags[i] = flag
	}
	return FlagSeries{SeriesID: inv.Target.ID, Flags: flags}, nil
}

// evaluateIndex shields the runner from misbehaving capabilities: a panic
// on one point becomes an error for that point.
func evaluateIndex(c Capability, values []*float64, idx int, context []Series, p Params) (flag Flag, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("check panicked: %v", rec)
		}
	}()
	return c.EvaluateIndex(values, idx, context, p)
}
