package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/tcof/internal/adapter/sqlite"
	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/project"
	"github.com/Strob0t/tcof/internal/domain/task"
)

// Scenario tests run the update path against a real (in-memory) SQLite store
// so transactions and uniqueness constraints are exercised.

func setupSQLite(t *testing.T) (*sqlite.Store, string) {
	t.Helper()
	ctx := context.Background()
	db, err := sqlite.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := sqlite.RunMigrations(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store := sqlite.NewStore(db)
	p, err := store.CreateProject(ctx, &project.CreateRequest{Name: "P1"})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return store, p.ID
}

func TestScenarioSuccessFactorFirstTouch(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	v, err := svc.Update(ctx, p1, "sf-42", mustPayload(t,
		`{"origin":"factor","sourceId":"sf-42","text":"Ask why","stage":"identification","completed":true}`))
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if v.ID != "sf-42" || !v.Completed || v.Origin != task.OriginFactor || v.Text != "Ask why" {
		t.Fatalf("first update view: %+v", v)
	}

	// The side effect: the task now exists.
	stored, err := store.GetTask(ctx, p1, "sf-42")
	if err != nil {
		t.Fatalf("materialized task missing: %v", err)
	}
	if stored.SourceID != "sf-42" || stored.Origin != task.OriginFactor {
		t.Fatalf("stored provenance: origin=%s source=%s", stored.Origin, stored.SourceID)
	}

	v, err = svc.Update(ctx, p1, "sf-42", mustPayload(t, `{"completed":false}`))
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if v.ID != "sf-42" || v.Completed {
		t.Fatalf("second update view: %+v", v)
	}
	if v.Origin != task.OriginFactor || v.SourceID != "sf-42" {
		t.Fatalf("provenance lost: %+v", v)
	}

	n, err := store.CountTasks(ctx, p1)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("task count = %d, want 1", n)
	}
}

func TestScenarioUnknownCustomIDNotFound(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	if _, err := store.InsertTask(ctx, &task.Task{ID: "T1", ProjectID: p1, Text: "Own task", Stage: task.StageIdentification, Origin: task.OriginCustom}); err != nil {
		t.Fatal(err)
	}

	_, err := svc.Update(ctx, p1, "unknown-id", mustPayload(t, `{"completed":true}`))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if domain.Code(err) != domain.CodeNotFound {
		t.Fatalf("code = %s", domain.Code(err))
	}

	t1, err := store.GetTask(ctx, p1, "T1")
	if err != nil {
		t.Fatal(err)
	}
	if t1.Completed {
		t.Fatal("T1 was modified")
	}
}

func TestScenarioIdempotentUpsert(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Update(ctx, p1, "cat-123", mustPayload(t, `{"origin":"factor","completed":true}`)); err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
	}

	tasks, err := store.ListTasks(ctx, p1, task.ListFilter{})
	if err != nil {
		t.Fatal(err)
	}
	matches := 0
	for i := range tasks {
		if tasks[i].SourceID == "cat-123" {
			matches++
		}
	}
	if matches != 1 {
		t.Fatalf("tasks with sourceId cat-123 = %d, want 1", matches)
	}
}

func TestScenarioInvalidPayloadRollsBackMaterialization(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Update(ctx, p1, "sf-9", mustPayload(t, `{"origin":"factor","sortOrder":"high"}`))
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
	if _, err := store.GetTask(ctx, p1, "sf-9"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("baseline survived a failed update: %v", err)
	}
}

func TestScenarioProvenanceAndNormalization(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	old := "old"
	if _, err := store.InsertTask(ctx, &task.Task{
		ID: "0b7d1f52-6f0e-4a53-9d8b-1c2e3f4a5b6c", ProjectID: p1, Text: "Materialized",
		Stage: task.StageDelivery, Origin: task.OriginFactor, SourceID: "cat-7", Notes: &old,
	}); err != nil {
		t.Fatal(err)
	}

	v, err := svc.Update(ctx, p1, "cat-7", mustPayload(t, `{"completed":true,"notes":""}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.ID != "cat-7" {
		t.Fatalf("reported id = %s, want the source id", v.ID)
	}
	if v.Origin != task.OriginFactor || v.SourceID != "cat-7" || v.Notes != "" {
		t.Fatalf("view = %+v", v)
	}

	stored, err := store.FindTaskBySourceID(ctx, p1, "cat-7")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Notes != nil {
		t.Fatalf("notes stored as %q, want NULL", *stored.Notes)
	}
	if stored.UpdatedAt.Before(stored.CreatedAt) {
		t.Fatal("updatedAt before createdAt")
	}
}

func TestScenarioResolutionPrecedence(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	// Task B's source id coincides with task A's internal id.
	for _, tk := range []*task.Task{
		{ID: "B", ProjectID: p1, Text: "B", Stage: task.StageIdentification, Origin: task.OriginFactor, SourceID: "A"},
		{ID: "A", ProjectID: p1, Text: "A", Stage: task.StageIdentification, Origin: task.OriginCustom},
	} {
		if _, err := store.InsertTask(ctx, tk); err != nil {
			t.Fatal(err)
		}
	}

	v, err := svc.Update(ctx, p1, "A", mustPayload(t, `{"text":"renamed"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.ID != "A" || v.Text != "renamed" {
		t.Fatalf("updated %+v, want task A", v)
	}
	b, _ := store.GetTask(ctx, p1, "B")
	if b.Text != "B" {
		t.Fatal("task B was modified")
	}
}

// TestScenarioLastWriteWins documents that concurrent updates of the same
// task are not versioned: a caller holding a stale view still overwrites.
func TestScenarioLastWriteWins(t *testing.T) {
	store, p1 := setupSQLite(t)
	svc := NewTaskService(store, scanConfig, nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Create(ctx, p1, mustPayload(t, `{"id":"custom-1","text":"Shared"}`)); err != nil {
		t.Fatal(err)
	}

	stale, err := svc.Get(ctx, p1, "custom-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Update(ctx, p1, "custom-1", mustPayload(t, `{"owner":"alice"}`)); err != nil {
		t.Fatalf("first writer: %v", err)
	}
	if _, err := svc.Update(ctx, p1, stale.ID, mustPayload(t, `{"owner":"bob"}`)); err != nil {
		t.Fatalf("second writer: %v", err)
	}

	got, err := svc.Get(ctx, p1, "custom-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner != "bob" {
		t.Fatalf("owner = %q, want the last write (bob)", got.Owner)
	}
}
