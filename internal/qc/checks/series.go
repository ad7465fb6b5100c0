package checks

import (
	"fmt"
	"math"

	"github.com/rove-labs/rove-go/internal/qc"
)

// StepCheck fails observations that jump more than max from the previous
// point. A missing previous point makes the result INCONCLUSIVE.
type StepCheck struct{}

func (StepCheck) Name() string { return "step_check" }

func (StepCheck) Window(p qc.Params) (int, int) { return 1, 0 }

func (StepCheck) ValidateParams(p qc.Params) error {
	return requirePositive(p, "max")
}

func (StepCheck) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	max, err := p.Float("max")
	if err != nil {
		return 0, err
	}
	if idx < 1 || values[idx-1] == nil {
		return qc.FlagInconclusive, nil
	}
	if math.Abs(*values[idx]-*values[idx-1]) > max {
		return qc.FlagFail, nil
	}
	return qc.FlagPass, nil
}

// SpikeCheck fails observations that deviate more than max from both
// neighbours in the same direction, the signature of a one-point spike.
// A missing neighbour makes the result INCONCLUSIVE.
type SpikeCheck struct{}

func (SpikeCheck) Name() string { return "spike_check" }

func (SpikeCheck) Window(p qc.Params) (int, int) { return 1, 1 }

func (SpikeCheck) ValidateParams(p qc.Params) error {
	return requirePositive(p, "max")
}

func (SpikeCheck) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	max, err := p.Float("max")
	if err != nil {
		return 0, err
	}
	if idx < 1 || idx+1 >= len(values) || values[idx-1] == nil || values[idx+1] == nil {
		return qc.FlagInconclusive, nil
	}
	v := *values[idx]
	diffPrev := v - *values[idx-1]
	diffNext := v - *values[idx+1]
	if math.Abs(diffPrev) > max && math.Abs(diffNext) > max && diffPrev*diffNext > 0 {
		return qc.FlagFail, nil
	}
	return qc.FlagPass, nil
}

// FlatlineCheck fails observations that repeat the exact same value over the
// preceding max points, a symptom of a stuck sensor. The context window has
// to match the configured run length, so it is sized from the params.
type FlatlineCheck struct{}

func (FlatlineCheck) Name() string { return "flatline_check" }

func (FlatlineCheck) Window(p qc.Params) (int, int) {
	max, err := p.Int("max")
	if err != nil {
		return 0, 0
	}
	return max, 0
}

func (FlatlineCheck) ValidateParams(p qc.Params) error {
	max, err := p.Int("max")
	if err != nil {
		return err
	}
	if max < 1 {
		return fmt.Errorf("parameter %q must be at least 1", "max")
	}
	return nil
}

func (FlatlineCheck) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	max, err := p.Int("max")
	if err != nil {
		return 0, err
	}
	if idx < max {
		return qc.FlagInconclusive, nil
	}
	v := *values[idx]
	for i := idx - max; i < idx; i++ {
		if values[i] == nil {
			return qc.FlagInconclusive, nil
		}
		if *values[i] != v {
			return qc.FlagPass, nil
		}
	}
	return qc.FlagFail, nil
}

func requirePositive(p qc.Params, key string) error {
	v, err := p.Float(key)
	if err != nil {
		return err
	}
	if v <= 0 {
		return fmt.Errorf("parameter %q must be positive", key)
	}
	return nil
}
