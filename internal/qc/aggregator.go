package qc

type resultKey struct {
	stepIndex int
	targetID  string
}

// Assemble restores pipeline order from dispatch results: one CheckResult
// per step, one FlagSeries per target in discovery order. A target whose
// invocation failed appears as all-INCONCLUSIVE rather than being dropped,
// so consumers always see the full grid for every requested series.
func Assemble(pipeline *Pipeline, targets []string, results []Result, n int) *Response {
	byKey := make(map[resultKey]Result, len(results))
	for _, res := range results {
		if res.Invocation == nil {
			continue
		}
		byKey[resultKey{stepIndex: res.Invocation.StepIndex, targetID: res.Invocation.Target.ID}] = res
	}

	out := &Response{Results: make([]CheckResult, 0, len(pipeline.Steps))}
	for stepIndex, step := range pipeline.Steps {
		checkResult := CheckResult{Check: step.Name, Series: make([]FlagSeries, 0, len(targets))}
		for _, target := range targets {
			res, ok := byKey[resultKey{stepIndex: stepIndex, targetID: target}]
			if !ok || res.Err != nil {
				checkResult.Series = append(checkResult.Series, InconclusiveSeries(target, n))
				continue
			}
			checkResult.Series = append(checkResult.Series, res.Series)
		}
		out.Results = append(out.Results, checkResult)
	}
	return out
}
