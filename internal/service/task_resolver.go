package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/tcof/internal/adapter/otel"
	"github.com/Strob0t/tcof/internal/config"
	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/task"
	"github.com/Strob0t/tcof/internal/port/database"
)

// Strategy names the lookup that located a task.
type Strategy string

const (
	StrategyID             Strategy = "id"
	StrategySourceID       Strategy = "source_id"
	StrategyPrefixSourceID Strategy = "prefix_source_id"
	StrategyPrefixID       Strategy = "prefix_id"
	StrategyScanID         Strategy = "scan_id"
	StrategyScanSourceID   Strategy = "scan_source_id"
	StrategyMiss           Strategy = "miss"
)

// Resolution is the outcome of resolving an external task id. A miss has a
// nil Task and is not an error.
type Resolution struct {
	Task     *task.Task
	Strategy Strategy
}

// Found reports whether a task was located.
func (r Resolution) Found() bool { return r.Task != nil }

// ViaSource reports whether the task was matched on its source id.
func (r Resolution) ViaSource() bool {
	switch r.Strategy {
	case StrategySourceID, StrategyPrefixSourceID, StrategyScanSourceID:
		return true
	default:
		return false
	}
}

var miss = Resolution{Strategy: StrategyMiss}

// uuidPrefix matches a leading UUID-shaped segment.
var uuidPrefix = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)

// Resolver maps caller-supplied task identifiers onto stored tasks. It only
// reads from the store.
type Resolver struct {
	store   database.Store
	cfg     config.Resolver
	metrics *cfotel.Metrics
}

// NewResolver creates a Resolver. metrics may be nil.
func NewResolver(store database.Store, cfg config.Resolver, metrics *cfotel.Metrics) *Resolver {
	return &Resolver{store: store, cfg: cfg, metrics: metrics}
}

// Resolve locates the task of projectID that externalID refers to. Exact
// matches are tried before prefix matches; the first hit wins.
func (r *Resolver) Resolve(ctx context.Context, projectID, externalID string) (Resolution, error) {
	ctx, span := cfotel.StartResolveSpan(ctx, projectID, externalID)
	defer span.End()

	res, err := r.resolve(ctx, projectID, externalID)
	if err != nil {
		return miss, err
	}
	span.SetAttributes(attribute.String("task.strategy", string(res.Strategy)))
	if r.metrics != nil {
		r.metrics.TasksResolved.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", string(res.Strategy)),
		))
	}
	return res, nil
}

// ResolveExact matches externalID only against the task id and then the
// source id. Prefix strategies are never consulted.
func (r *Resolver) ResolveExact(ctx context.Context, projectID, externalID string) (Resolution, error) {
	ctx, span := cfotel.StartResolveSpan(ctx, projectID, externalID)
	defer span.End()

	res, err := r.exact(ctx, projectID, externalID)
	if err != nil {
		return miss, err
	}
	span.SetAttributes(attribute.String("task.strategy", string(res.Strategy)))
	return res, nil
}

func (r *Resolver) exact(ctx context.Context, projectID, externalID string) (Resolution, error) {
	if externalID == "" {
		return miss, nil
	}

	t, err := found(r.store.GetTask(ctx, projectID, externalID))
	if err != nil || t != nil {
		return hit(t, StrategyID), err
	}

	t, err = found(r.store.FindTaskBySourceID(ctx, projectID, externalID))
	return hit(t, StrategySourceID), err
}

func (r *Resolver) resolve(ctx context.Context, projectID, externalID string) (Resolution, error) {
	res, err := r.exact(ctx, projectID, externalID)
	if err != nil || res.Found() || externalID == "" {
		return res, err
	}

	if prefix := uuidPrefix.FindString(externalID); prefix != "" && prefix != externalID {
		res, err := r.resolvePrefix(ctx, projectID, prefix)
		if err != nil || res.Found() {
			return res, err
		}
	}

	return r.scan(ctx, projectID, externalID)
}

// resolvePrefix matches a compound id's UUID segment, catalog tasks first.
func (r *Resolver) resolvePrefix(ctx context.Context, projectID, prefix string) (Resolution, error) {
	t, err := found(r.store.FindTaskBySourceID(ctx, projectID, prefix, task.CatalogOrigins...))
	if err != nil || t != nil {
		return hit(t, StrategyPrefixSourceID), err
	}

	byID, err := found(r.store.GetTask(ctx, projectID, prefix))
	if err != nil {
		return miss, err
	}
	if byID != nil && byID.Origin.IsCatalog() {
		return hit(byID, StrategyPrefixID), nil
	}

	t, err = found(r.store.FindTaskBySourceID(ctx, projectID, prefix))
	if err != nil || t != nil {
		return hit(t, StrategyPrefixSourceID), err
	}
	if byID != nil {
		return hit(byID, StrategyPrefixID), nil
	}
	return miss, nil
}

// scan is the bounded last resort: an indexed prefix lookup, skipped for
// large projects or when disabled.
func (r *Resolver) scan(ctx context.Context, projectID, externalID string) (Resolution, error) {
	if !r.cfg.PrefixScan {
		return miss, nil
	}
	n, err := r.store.CountTasks(ctx, projectID)
	if err != nil {
		return miss, fmt.Errorf("count tasks: %w", err)
	}
	if n == 0 {
		return miss, nil
	}
	if n > r.cfg.PrefixScanMaxTasks {
		slog.DebugContext(ctx, "prefix scan skipped", "project_id", projectID, "tasks", n)
		return miss, nil
	}

	tasks, err := r.store.ListTasksByIDPrefix(ctx, projectID, externalID, r.cfg.PrefixScanLimit)
	if err != nil {
		return miss, fmt.Errorf("prefix scan: %w", err)
	}
	if len(tasks) == 0 {
		return miss, nil
	}

	t := &tasks[0]
	strategy := StrategyScanSourceID
	if strings.HasPrefix(t.ID, externalID) {
		strategy = StrategyScanID
	}
	slog.WarnContext(ctx, "task resolved by prefix scan",
		"project_id", projectID, "external_id", externalID,
		"task_id", t.ID, "strategy", strategy, "candidates", len(tasks))
	if r.metrics != nil {
		r.metrics.PrefixScans.Add(ctx, 1, metric.WithAttributes(
			attribute.String("strategy", string(strategy)),
		))
	}
	return hit(t, strategy), nil
}

// found turns ErrNotFound into a nil task.
func found(t *task.Task, err error) (*task.Task, error) {
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve task: %w", err)
	}
	return t, nil
}

func hit(t *task.Task, s Strategy) Resolution {
	if t == nil {
		return miss
	}
	return Resolution{Task: t, Strategy: s}
}
