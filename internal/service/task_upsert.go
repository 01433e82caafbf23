package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/catalog"
	"github.com/Strob0t/tcof/internal/domain/task"
)

const untitledTask = "Untitled task"

// FactorLookup finds success factors by id.
type FactorLookup interface {
	Factor(ctx context.Context, id string) (*catalog.Factor, bool, error)
}

// upsertOnMiss materializes a catalog-derived task that an update referenced
// before it existed. It inserts a baseline row keyed by externalID (as both id
// and source id) unless one already exists, then re-resolves. Misses that are
// not catalog-derived yield ErrNotFound.
func (s *TaskService) upsertOnMiss(ctx context.Context, projectID, externalID string, payload task.Payload) (Resolution, bool, error) {
	factor, eligible, err := s.eligible(ctx, externalID, payload)
	if err != nil {
		return miss, false, err
	}
	if !eligible {
		return miss, false, fmt.Errorf("task %s: %w", externalID, domain.ErrNotFound)
	}
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return miss, false, err
	}

	baseline := newBaseline(projectID, externalID, payload, factor)
	created, err := s.store.InsertTask(ctx, baseline)
	if err != nil {
		return miss, false, fmt.Errorf("materialize task %s: %w", externalID, err)
	}

	res, err := s.resolver.Resolve(ctx, projectID, externalID)
	if err != nil {
		return miss, false, err
	}
	if !res.Found() {
		return miss, false, fmt.Errorf("materialized task %s not resolvable: %w", externalID, domain.ErrUpdateFailed)
	}
	if created {
		slog.InfoContext(ctx, "catalog task materialized",
			"project_id", projectID, "task_id", externalID, "stage", baseline.Stage)
	}
	return res, created, nil
}

// eligible reports whether a miss may be materialized. A declared origin
// decides on its own; without one the catalog must know externalID.
func (s *TaskService) eligible(ctx context.Context, externalID string, payload task.Payload) (*catalog.Factor, bool, error) {
	declared := payload.Origin()
	if declared != "" && !declared.IsCatalog() {
		return nil, false, nil
	}
	if s.factors == nil {
		return nil, declared.IsCatalog(), nil
	}

	f, ok, err := s.factors.Factor(ctx, externalID)
	if err != nil {
		if !declared.IsCatalog() {
			return nil, false, fmt.Errorf("catalog lookup: %w", err)
		}
		// Declared catalog tasks only use the catalog for default text.
		slog.WarnContext(ctx, "catalog unavailable, using default task text", "error", err)
		return nil, true, nil
	}
	if !ok {
		return nil, declared.IsCatalog(), nil
	}
	return f, true, nil
}

func newBaseline(projectID, externalID string, payload task.Payload, factor *catalog.Factor) *task.Task {
	origin := payload.Origin()
	if !origin.IsCatalog() {
		origin = task.OriginFactor
	}

	text, _ := payload.String("text")
	text = strings.TrimSpace(text)
	stage := payload.Stage()
	if !stage.Valid() {
		stage = ""
	}

	var factorID *string
	if factor != nil {
		id := factor.ID
		factorID = &id
		if tr, ok := factor.First(stage); ok {
			if text == "" {
				text = tr.Text
			}
			if stage == "" {
				stage = tr.Stage
			}
		}
	}
	if text == "" {
		text = untitledTask
	}
	if stage == "" {
		stage = task.StageIdentification
	}

	return &task.Task{
		ID:        externalID,
		ProjectID: projectID,
		Text:      text,
		Stage:     stage,
		Origin:    origin,
		SourceID:  externalID,
		Status:    task.DefaultStatus,
		FactorID:  factorID,
	}
}

// isNotFound reports whether err is a domain not-found error.
func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}
