package service

import (
	"context"
	"fmt"
	"time"

	"github.com/Strob0t/tcof/internal/domain/task"
	"github.com/Strob0t/tcof/internal/port/database"
)

// Applier writes sparse payloads onto resolved tasks.
type Applier struct {
	store database.Store
	now   func() time.Time
}

// NewApplier creates an Applier.
func NewApplier(store database.Store) *Applier {
	return &Applier{store: store, now: time.Now}
}

// Apply writes payload onto the resolved task and returns its view. Only the
// fields named in payload change; updatedAt always moves. The write targets
// the resolved internal id.
func (a *Applier) Apply(ctx context.Context, res Resolution, payload task.Payload) (*task.View, error) {
	if !res.Found() {
		return nil, fmt.Errorf("apply: no resolved task")
	}
	patch, err := payload.BuildPatch()
	if err != nil {
		return nil, err
	}
	carryProvenance(res.Task, payload, patch)

	updated, err := a.store.UpdateTask(ctx, res.Task.ProjectID, res.Task.ID, patch, a.now().UTC())
	if err != nil {
		return nil, err
	}
	return viewFor(updated, res), nil
}

// carryProvenance keeps origin and source id of catalog tasks when the
// payload names neither.
func carryProvenance(t *task.Task, payload task.Payload, patch task.Patch) {
	if !t.Origin.IsCatalog() || payload.Has("origin") || payload.Has("sourceId") {
		return
	}
	patch[task.ColOrigin] = string(t.Origin)
	if t.SourceID != "" {
		patch[task.ColSourceID] = t.SourceID
	}
}

// viewFor reports catalog tasks that were matched on their source id under
// that id, so clients using catalog ids see a stable id.
func viewFor(t *task.Task, res Resolution) *task.View {
	v := task.NewView(t)
	if res.ViaSource() && t.CatalogDerived() {
		v.ID = t.SourceID
	}
	return &v
}
