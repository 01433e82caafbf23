package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "tcof"

// Metrics holds all TCOF metric instruments.
type Metrics struct {
	TasksResolved     metric.Int64Counter
	TasksMaterialized metric.Int64Counter
	TaskUpdateErrors  metric.Int64Counter
	PrefixScans       metric.Int64Counter
	CatalogLoads      metric.Int64Counter
	UpdateDuration    metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TasksResolved, err = meter.Int64Counter("tcof.tasks.resolved",
		metric.WithDescription("Task lookups by resolution strategy"))
	if err != nil {
		return nil, err
	}

	m.TasksMaterialized, err = meter.Int64Counter("tcof.tasks.materialized",
		metric.WithDescription("Catalog tasks created on first update"))
	if err != nil {
		return nil, err
	}

	m.TaskUpdateErrors, err = meter.Int64Counter("tcof.tasks.update_errors",
		metric.WithDescription("Failed task updates by error code"))
	if err != nil {
		return nil, err
	}

	m.PrefixScans, err = meter.Int64Counter("tcof.resolver.prefix_scans",
		metric.WithDescription("Task lookups that fell back to a prefix scan"))
	if err != nil {
		return nil, err
	}

	m.CatalogLoads, err = meter.Int64Counter("tcof.catalog.loads",
		metric.WithDescription("Success-factor catalog loads from the provider"))
	if err != nil {
		return nil, err
	}

	m.UpdateDuration, err = meter.Float64Histogram("tcof.tasks.update.duration_seconds",
		metric.WithDescription("Task update duration in seconds"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
