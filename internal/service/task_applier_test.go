package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/task"
)

func mustPayload(t testing.TB, s string) task.Payload {
	t.Helper()
	p, err := task.ParsePayload([]byte(s))
	if err != nil {
		t.Fatalf("ParsePayload(%s): %v", s, err)
	}
	return p
}

func resolveOrFail(t *testing.T, store *mockStore, externalID string) Resolution {
	t.Helper()
	res, err := NewResolver(store, scanConfig, nil).Resolve(context.Background(), testProject, externalID)
	if err != nil || !res.Found() {
		t.Fatalf("Resolve(%s) = %+v, %v", externalID, res, err)
	}
	return res
}

func TestApplyPreservesProvenance(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("t-7", "cat-7", task.OriginFactor)}}
	res := resolveOrFail(t, store, "t-7")

	v, err := NewApplier(store).Apply(context.Background(), res, mustPayload(t, `{"completed":true}`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.Origin != task.OriginFactor || v.SourceID != "cat-7" || !v.Completed {
		t.Fatalf("unexpected view: %+v", v)
	}
	stored, _ := store.GetTask(context.Background(), testProject, "t-7")
	if stored.Origin != task.OriginFactor || stored.SourceID != "cat-7" {
		t.Fatalf("provenance lost in store: origin=%s source=%s", stored.Origin, stored.SourceID)
	}
}

func TestApplyExplicitProvenanceChange(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("t-7", "cat-7", task.OriginFactor)}}
	res := resolveOrFail(t, store, "t-7")

	v, err := NewApplier(store).Apply(context.Background(), res, mustPayload(t, `{"origin":"custom","sourceId":""}`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.Origin != task.OriginCustom || v.SourceID != "" || v.Source != task.OriginCustom {
		t.Fatalf("explicit provenance change not applied: %+v", v)
	}
}

func TestApplyEmptyStringNormalization(t *testing.T) {
	old := "old"
	seed := seedTask("t-1", "", task.OriginCustom)
	seed.Notes = &old
	store := &mockStore{tasks: []task.Task{seed}}
	res := resolveOrFail(t, store, "t-1")

	v, err := NewApplier(store).Apply(context.Background(), res, mustPayload(t, `{"notes":""}`))
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.Notes != "" {
		t.Fatalf("view notes = %q, want empty", v.Notes)
	}
	stored, _ := store.GetTask(context.Background(), testProject, "t-1")
	if stored.Notes != nil {
		t.Fatalf("stored notes = %q, want nil", *stored.Notes)
	}
}

func TestApplyRefreshesUpdatedAt(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("t-1", "", task.OriginCustom)}}
	res := resolveOrFail(t, store, "t-1")
	now := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	a := NewApplier(store)
	a.now = func() time.Time { return now }

	v, err := a.Apply(context.Background(), res, task.Payload{})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if v.UpdatedAt != "2026-02-03T04:05:06.000Z" {
		t.Fatalf("updatedAt = %s", v.UpdatedAt)
	}
}

func TestApplyLostRaceIsUpdateFailed(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("t-1", "", task.OriginCustom)}}
	res := resolveOrFail(t, store, "t-1")
	store.vanishOnUpdate = true

	_, err := NewApplier(store).Apply(context.Background(), res, mustPayload(t, `{"completed":true}`))
	if !errors.Is(err, domain.ErrUpdateFailed) {
		t.Fatalf("err = %v, want ErrUpdateFailed", err)
	}
	if domain.Code(err) != domain.CodeUpdateFailed {
		t.Fatalf("code = %s", domain.Code(err))
	}
}

func TestApplyInvalidPayloadWritesNothing(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("t-1", "", task.OriginCustom)}}
	res := resolveOrFail(t, store, "t-1")

	_, err := NewApplier(store).Apply(context.Background(), res, mustPayload(t, `{"completed":true,"stage":"launch"}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	stored, _ := store.GetTask(context.Background(), testProject, "t-1")
	if stored.Completed {
		t.Fatal("task changed despite invalid payload")
	}
}

func TestApplyReportedID(t *testing.T) {
	tests := []struct {
		name       string
		seed       task.Task
		externalID string
		wantID     string
	}{
		{"catalog task via source id", seedTask("uuid-1", "sf-3", task.OriginFactor), "sf-3", "sf-3"},
		{"catalog task via id", seedTask("uuid-1", "sf-3", task.OriginFactor), "uuid-1", "uuid-1"},
		{"custom-prefixed id via source id", seedTask("custom-1", "sf-3", task.OriginFactor), "sf-3", "custom-1"},
		{"custom origin via source id", seedTask("uuid-2", "ext-9", task.OriginCustom), "ext-9", "uuid-2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{tasks: []task.Task{tt.seed}}
			res := resolveOrFail(t, store, tt.externalID)
			v, err := NewApplier(store).Apply(context.Background(), res, task.Payload{})
			if err != nil {
				t.Fatalf("Apply: %v", err)
			}
			if v.ID != tt.wantID {
				t.Fatalf("id = %s, want %s", v.ID, tt.wantID)
			}
		})
	}
}

// TestPropertyApplyRoundTrip checks that re-reading a task after an update
// shows exactly the payload's fields changed.
func TestPropertyApplyRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		owner := "ann"
		seed := seedTask("t-1", "sf-1", task.OriginFactor)
		seed.Owner = &owner
		seed.SortOrder = 2
		store := &mockStore{tasks: []task.Task{seed}}

		payload := map[string]any{}
		if rapid.Bool().Draw(rt, "has_text") {
			payload["text"] = rapid.StringMatching(`[A-Za-z][a-z ]{0,20}`).Draw(rt, "text")
		}
		if rapid.Bool().Draw(rt, "has_completed") {
			payload["completed"] = rapid.Bool().Draw(rt, "completed")
		}
		if rapid.Bool().Draw(rt, "has_stage") {
			payload["stage"] = rapid.SampledFrom(task.Stages).Draw(rt, "stage")
		}
		if rapid.Bool().Draw(rt, "has_notes") {
			payload["notes"] = rapid.SampledFrom([]string{"", "n1", "later"}).Draw(rt, "notes")
		}
		if rapid.Bool().Draw(rt, "has_status") {
			payload["status"] = rapid.SampledFrom([]string{"In Progress", "Done", ""}).Draw(rt, "status")
		}
		data, _ := json.Marshal(payload)
		p, err := task.ParsePayload(data)
		if err != nil {
			rt.Fatalf("ParsePayload: %v", err)
		}

		res, err := NewResolver(store, scanConfig, nil).Resolve(context.Background(), testProject, "sf-1")
		if err != nil || !res.Found() {
			rt.Fatalf("Resolve: %+v %v", res, err)
		}
		if _, err := NewApplier(store).Apply(context.Background(), res, p); err != nil {
			rt.Fatalf("Apply: %v", err)
		}
		got, _ := store.GetTask(context.Background(), testProject, "t-1")

		want := seed
		patch, _ := p.BuildPatch()
		patch.ApplyTo(&want)
		want.UpdatedAt = got.UpdatedAt

		if got.Text != want.Text || got.Completed != want.Completed || got.Stage != want.Stage ||
			got.Status != want.Status || got.SortOrder != want.SortOrder ||
			got.Origin != seed.Origin || got.SourceID != seed.SourceID {
			rt.Fatalf("got %+v, want %+v", got, want)
		}
		if (got.Notes == nil) != (want.Notes == nil) || (got.Notes != nil && *got.Notes != *want.Notes) {
			rt.Fatalf("notes = %v, want %v", got.Notes, want.Notes)
		}
		if got.Owner == nil || *got.Owner != owner {
			rt.Fatal("owner changed without being sent")
		}
	})
}
