// Package catalog defines the read-only success-factor catalog entries that
// catalog-derived tasks are materialized from.
package catalog

import "github.com/Strob0t/tcof/internal/domain/task"

// Factor is a canonical success factor with per-stage task texts.
type Factor struct {
	ID          string                  `json:"id" yaml:"id"`
	Title       string                  `json:"title" yaml:"title"`
	Description string                  `json:"description,omitempty" yaml:"description"`
	Tasks       map[task.Stage][]string `json:"tasks" yaml:"tasks"`
}

// Triple is the minimal data needed to materialize one task from a factor.
type Triple struct {
	FactorID string
	Stage    task.Stage
	Text     string
}

// Triples yields the factor's tasks in stage order, then list order.
func (f *Factor) Triples() []Triple {
	var out []Triple
	for _, stage := range task.Stages {
		for _, text := range f.Tasks[stage] {
			out = append(out, Triple{FactorID: f.ID, Stage: stage, Text: text})
		}
	}
	return out
}

// First returns the first triple for stage, or the first triple overall when
// stage is empty or has no tasks.
func (f *Factor) First(stage task.Stage) (Triple, bool) {
	triples := f.Triples()
	for _, tr := range triples {
		if stage == "" || tr.Stage == stage {
			return tr, true
		}
	}
	if len(triples) > 0 {
		return triples[0], true
	}
	return Triple{}, false
}

// Find returns the factor with the given id.
func Find(factors []Factor, id string) (*Factor, bool) {
	for i := range factors {
		if factors[i].ID == id {
			return &factors[i], true
		}
	}
	return nil, false
}
