// Package checks implements the built-in QC check capabilities and the
// registry that resolves check names for the engine.
package checks

import (
	"fmt"
	"sort"

	"github.com/rove-labs/rove-go/internal/qc"
)

// Registry maps check names to capabilities. It is populated at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	caps map[string]qc.Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]qc.Capability)}
}

func (r *Registry) Register(c qc.Capability) error {
	name := c.Name()
	if _, exists := r.caps[name]; exists {
		return fmt.Errorf("check %q registered twice", name)
	}
	r.caps[name] = c
	return nil
}

func (r *Registry) Lookup(name string) (qc.Capability, bool) {
	c, ok := r.caps[name]
	return c, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry with every built-in check.
func Default() *Registry {
	r := NewRegistry()
	for _, c := range []qc.Capability{
		SpecialValuesCheck{},
		RangeCheck{},
		StepCheck{},
		SpikeCheck{},
		FlatlineCheck{},
		BuddyCheck{},
		SCT{},
	} {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
	return r
}
