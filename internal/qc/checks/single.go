package checks

import (
	"fmt"

	"github.com/rove-labs/rove-go/internal/qc"
)

// SpecialValuesCheck fails observations equal to any listed sentinel value,
// catching encodings like -999 that backends use for bad data.
type SpecialValuesCheck struct{}

func (SpecialValuesCheck) Name() string { return "special_values_check" }

func (SpecialValuesCheck) Window(p qc.Params) (int, int) { return 0, 0 }

func (SpecialValuesCheck) ValidateParams(p qc.Params) error {
	values, err := p.Floats("special_values")
	if err != nil {
		return err
	}
	if len(values) == 0 {
		return fmt.Errorf("parameter %q must not be empty", "special_values")
	}
	return nil
}

func (SpecialValuesCheck) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	special, err := p.Floats("special_values")
	if err != nil {
		return 0, err
	}
	v := *values[idx]
	for _, s := range special {
		if v == s {
			return qc.FlagFail, nil
		}
	}
	return qc.FlagPass, nil
}

// RangeCheck fails observations outside a closed [min, max] interval.
type RangeCheck struct{}

func (RangeCheck) Name() string { return "range_check" }

func (RangeCheck) Window(p qc.Params) (int, int) { return 0, 0 }

func (RangeCheck) ValidateParams(p qc.Params) error {
	min, err := p.Float("min")
	if err != nil {
		return err
	}
	max, err := p.Float("max")
	if err != nil {
		return err
	}
	if min > max {
		return fmt.Errorf("parameter %q (%v) must not exceed %q (%v)", "min", min, "max", max)
	}
	return nil
}

func (RangeCheck) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	min, err := p.Float("min")
	if err != nil {
		return 0, err
	}
	max, err := p.Float("max")
	if err != nil {
		return 0, err
	}
	v := *values[idx]
	if v < min || v > max {
		return qc.FlagFail, nil
	}
	return qc.FlagPass, nil
}
