// Package catalogprovider defines the port for reading the success-factor catalog.
package catalogprovider

import (
	"context"

	"github.com/Strob0t/tcof/internal/domain/catalog"
)

// Provider returns the canonical catalog. Implementations are read-only.
type Provider interface {
	Factors(ctx context.Context) ([]catalog.Factor, error)
}
