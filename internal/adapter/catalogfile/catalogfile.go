// Package catalogfile implements the catalog provider port over a YAML file.
package catalogfile

import (
	"context"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Strob0t/tcof/internal/domain/catalog"
)

//go:embed factors.yaml
var builtin []byte

type document struct {
	Factors []catalog.Factor `yaml:"factors"`
}

// Provider reads success factors from a YAML file, or from the built-in
// catalog when no path is set. The file is re-read on every call.
type Provider struct {
	path string
}

// New returns a Provider for path ("" selects the built-in catalog).
func New(path string) *Provider {
	return &Provider{path: path}
}

// Factors implements catalogprovider.Provider.
func (p *Provider) Factors(ctx context.Context) ([]catalog.Factor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data := builtin
	source := "built-in catalog"
	if p.path != "" {
		var err error
		data, err = os.ReadFile(p.path)
		if err != nil {
			return nil, fmt.Errorf("read catalog: %w", err)
		}
		source = p.path
	}
	factors, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return factors, nil
}

// Parse decodes and checks a catalog document.
func Parse(data []byte) ([]catalog.Factor, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	seen := make(map[string]bool, len(doc.Factors))
	for i := range doc.Factors {
		f := &doc.Factors[i]
		if f.ID == "" {
			return nil, fmt.Errorf("factor %d: id is required", i)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("factor %s: duplicate id", f.ID)
		}
		seen[f.ID] = true
		for stage := range f.Tasks {
			if !stage.Valid() {
				return nil, fmt.Errorf("factor %s: unknown stage %q", f.ID, stage)
			}
		}
	}
	return doc.Factors, nil
}
