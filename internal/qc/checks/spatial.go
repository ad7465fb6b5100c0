package checks

import (
	"github.com/rove-labs/rove-go/internal/qc"
)

// The spatial checks compare each observation against neighbouring stations
// from the backing sources. Running them properly needs station positions
// and elevations, which connectors do not expose yet, so both currently
// validate their configuration and flag every point INCONCLUSIVE.
// TODO: plumb station metadata through ListSeries so these can evaluate.

// BuddyCheck compares observations against nearby stations within a radius.
type BuddyCheck struct{}

func (BuddyCheck) Name() string { return "buddy_check" }

func (BuddyCheck) Window(p qc.Params) (int, int) { return 0, 0 }

func (BuddyCheck) ValidateParams(p qc.Params) error {
	for _, key := range []string{"radii", "threshold", "max_elev_diff", "elev_gradient", "min_std"} {
		if _, err := p.Float(key); err != nil {
			return err
		}
	}
	for _, key := range []string{"min_buddies", "num_iterations"} {
		if _, err := p.Int(key); err != nil {
			return err
		}
	}
	return nil
}

func (BuddyCheck) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	return qc.FlagInconclusive, nil
}

// SCT is the spatial consistency test, flagging observations inconsistent
// with an optimal interpolation of their neighbourhood.
type SCT struct{}

func (SCT) Name() string { return "sct" }

func (SCT) Window(p qc.Params) (int, int) { return 0, 0 }

func (SCT) ValidateParams(p qc.Params) error {
	for _, key := range []string{
		"inner_radius", "outer_radius", "min_elev_diff",
		"min_horizontal_scale", "vertical_scale", "pos", "neg", "eps2",
	} {
		if _, err := p.Float(key); err != nil {
			return err
		}
	}
	for _, key := range []string{"num_min", "num_max", "num_iterations", "num_min_prof"} {
		if _, err := p.Int(key); err != nil {
			return err
		}
	}
	return nil
}

func (SCT) EvaluateIndex(values []*float64, idx int, context []qc.Series, p qc.Params) (qc.Flag, error) {
	return qc.FlagInconclusive, nil
}
