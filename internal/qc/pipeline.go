package qc

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one entry in a pipeline: a check capability plus its
// configuration. Step names are distinct from check names so one check can
// appear several times in a pipeline with different parameters.
type Step struct {
	Name            string `yaml:"name" json:"name"`
	Check           string `yaml:"check" json:"check"`
	RequiresBacking bool   `yaml:"backing" json:"backing,omitempty"`
	Params          Params `yaml:"params" json:"params,omitempty"`
}

// Pipeline is a named, ordered sequence of check steps. Leading/Trailing
// are derived at load time as the max context extension any step needs.
type Pipeline struct {
	Name     string
	Steps    []Step
	Leading  int
	Trailing int
}

type pipelineFile struct {
	Steps []Step `yaml:"steps"`
}

// NewPipeline validates steps against the registry and derives the context
// window. It fails fast, naming the offending step.
func NewPipeline(name string, steps []Step, registry CapabilityRegistry) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, &ValidationError{Field: fmt.Sprintf("pipeline %q", name), Reason: "has no steps"}
	}

	seen := make(map[string]struct{}, len(steps))
	p := &Pipeline{Name: name, Steps: steps}
	for i, step := range steps {
		where := fmt.Sprintf("pipeline %q step %d (%s)", name, i, step.Name)

		if strings.TrimSpace(step.Name) == "" {
			return nil, &ValidationError{Field: fmt.Sprintf("pipeline %q step %d", name, i), Reason: "name is required"}
		}
		if _, dup := seen[step.Name]; dup {
			return nil, &ValidationError{Field: where, Reason: "duplicate step name"}
		}
		seen[step.Name] = struct{}{}

		capability, ok := registry.Lookup(step.Check)
		if !ok {
			return nil, &ValidationError{Field: where, Reason: fmt.Sprintf("%v: %q", ErrUnknownCheck, step.Check)}
		}
		if err := capability.ValidateParams(step.Params); err != nil {
			return nil, &ValidationError{Field: where, Reason: err.Error()}
		}

		leading, trailing := capability.Window(step.Params)
		if leading > p.Leading {
			p.Leading = leading
		}
		if trailing > p.Trailing {
			p.Trailing = trailing
		}
	}
	return p, nil
}

// LoadPipelines reads every .yaml/.yml file in dir as one pipeline; the
// filename without extension is the pipeline name.
func LoadPipelines(dir string, registry CapabilityRegistry) (map[string]*Pipeline, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read pipeline dir: %w", err)
	}

	pipelines := make(map[string]*Pipeline)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), ext)

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read pipeline %q: %w", name, err)
		}
		var file pipelineFile
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return nil, fmt.Errorf("parse pipeline %q: %w", name, err)
		}

		pipeline, err := NewPipeline(name, file.Steps, registry)
		if err != nil {
			return nil, err
		}
		pipelines[name] = pipeline
	}
	return pipelines, nil
}

// Resolver hands out loaded pipeline definitions. Definitions are read-only
// configuration, shared across requests.
type Resolver struct {
	pipelines map[string]*Pipeline
}

func NewResolver(pipelines map[string]*Pipeline) *Resolver {
	return &Resolver{pipelines: pipelines}
}

func (r *Resolver) Resolve(name string) (*Pipeline, error) {
	p, ok := r.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPipeline, name)
	}
	return p, nil
}

func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.pipelines))
	for name := range r.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
