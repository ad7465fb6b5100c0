package qc

import (
	"fmt"
	"time"
)

// maxGridPoints bounds the number of timestamps a single request may span.
const maxGridPoints = 1_000_000

// TimeGrid is the fixed sequence of timestamps a request's flag sequences
// align to: timestamp(i) = start + i*step, for i in [0, N).
type TimeGrid struct {
	Start time.Time
	Step  Duration
	N     int
}

// NewTimeGrid derives the grid for an inclusive [start, end] range. The
// range must divide evenly by the step.
func NewTimeGrid(start, end time.Time, step Duration) (TimeGrid, error) {
	if step.IsZero() {
		return TimeGrid{}, &ValidationError{Field: "time_resolution", Reason: "must be non-zero"}
	}
	if end.Before(start) {
		return TimeGrid{}, &ValidationError{Field: "end_time", Reason: "must not precede start_time"}
	}

	n := 1
	for t := start; t.Before(end); n++ {
		t = step.AddTo(t)
		if t.After(end) {
			return TimeGrid{}, &ValidationError{
				Field:  "time_resolution",
				Reason: "time range does not divide evenly by resolution",
			}
		}
		if n >= maxGridPoints {
			return TimeGrid{}, &ValidationError{
				Field:  "time_resolution",
				Reason: fmt.Sprintf("time range spans more than %d grid points", maxGridPoints),
			}
		}
	}

	return TimeGrid{Start: start, Step: step, N: n}, nil
}

// Timestamps returns all N grid timestamps in order.
func (g TimeGrid) Timestamps() []time.Time {
	out := make([]time.Time, g.N)
	t := g.Start
	for i := 0; i < g.N; i++ {
		out[i] = t
		t = g.Step.AddTo(t)
	}
	return out
}

// Timestamp returns the i-th grid timestamp.
func (g TimeGrid) Timestamp(i int) time.Time {
	if g.Step.Months == 0 {
		return g.Start.Add(time.Duration(i) * g.Step.Fixed)
	}
	t := g.Start
	for ; i > 0; i-- {
		t = g.Step.AddTo(t)
	}
	return t
}
