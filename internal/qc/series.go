package qc

// Series is one observation series aligned to a request's time grid,
// optionally extended with leading/trailing context points required by
// series checks. A nil value is a missing observation, distinct from zero.
type Series struct {
	ID       string     `json:"id"`
	Values   []*float64 `json:"values"`
	Leading  int        `json:"leading,omitempty"`
	Trailing int        `json:"trailing,omitempty"`
}

// CoreLen is the number of grid-aligned points, excluding the context
// extension.
func (s Series) CoreLen() int {
	return len(s.Values) - s.Leading - s.Trailing
}

// AllMissingSeries builds a series of n grid points (plus context extension)
// with every sample absent.
func AllMissingSeries(id string, n, leading, trailing int) Series {
	return Series{
		ID:       id,
		Values:   make([]*float64, leading+n+trailing),
		Leading:  leading,
		Trailing: trailing,
	}
}

// FlagSeries is the per-series outcome of one check, index-aligned to the
// owning request's time grid.
type FlagSeries struct {
	SeriesID string `json:"series_id"`
	Flags    []Flag `json:"flags"`
}

// InconclusiveSeries marks a whole series as not evaluable, used when an
// invocation failed after exhausting retries.
func InconclusiveSeries(id string, n int) FlagSeries {
	flags := make([]Flag, n)
	for i := range flags {
		flags[i] = FlagInconclusive
	}
	return FlagSeries{SeriesID: id, Flags: flags}
}

// CheckResult groups the flag series of one pipeline step.
type CheckResult struct {
	Check  string       `json:"check"`
	Series []FlagSeries `json:"flag_series"`
}

// Response is the ordered outcome of a Validate request, one CheckResult
// per pipeline step, in pipeline order.
type Response struct {
	Results []CheckResult `json:"results"`
}
