package qc

import "fmt"

// Params carries check configuration as parsed from a pipeline definition.
// Values are YAML/JSON scalars or lists; capabilities pull what they need
// through the typed accessors.
type Params map[string]any

func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok {
		return 0, fmt.Errorf("parameter %q is required", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("parameter %q must be a number, got %T", key, v)
	}
}

func (p Params) Int(key string) (int, error) {
	f, err := p.Float(key)
	if err != nil {
		return 0, err
	}
	n := int(f)
	if float64(n) != f {
		return 0, fmt.Errorf("parameter %q must be an integer", key)
	}
	return n, nil
}

func (p Params) Floats(key string) ([]float64, error) {
	v, ok := p[key]
	if !ok {
		return nil, fmt.Errorf("parameter %q is required", key)
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("parameter %q must be a list of numbers, got %T", key, v)
	}
	out := make([]float64, 0, len(list))
	for i, item := range list {
		switch n := item.(type) {
		case float64:
			out = append(out, n)
		case int:
			out = append(out, float64(n))
		case int64:
			out = append(out, float64(n))
		default:
			return nil, fmt.Errorf("parameter %q[%d] must be a number, got %T", key, i, item)
		}
	}
	return out, nil
}

// Capability is one named statistical check. The engine treats it as
// opaque: it declares how many context points it needs around each sample
// and evaluates one grid index at a time.
type Capability interface {
	Name() string
	// Window reports how many extra points before and after the requested
	// range the check needs per evaluated sample. Some checks size their
	// window from configuration, so the step params are passed in.
	Window(p Params) (leading, trailing int)
	// ValidateParams rejects malformed step configuration at pipeline load
	// time, before any request is served.
	ValidateParams(p Params) error
	// EvaluateIndex flags the sample at idx. values spans the whole
	// fetched window including context extension; idx points at a present
	// sample. context holds backing series aligned to the same window.
	EvaluateIndex(values []*float64, idx int, context []Series, p Params) (Flag, error)
}

// CapabilityRegistry resolves check names to capabilities. Implemented in
// the checks package; new checks are added by registering an implementer.
type CapabilityRegistry interface {
	Lookup(name string) (Capability, bool)
}
