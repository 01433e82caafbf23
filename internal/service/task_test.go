package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/catalog"
	"github.com/Strob0t/tcof/internal/domain/project"
	"github.com/Strob0t/tcof/internal/domain/task"
	"github.com/Strob0t/tcof/internal/port/broadcast"
	"github.com/Strob0t/tcof/internal/port/messagequeue"
)

// staticFactors is a FactorLookup over a fixed list.
type staticFactors struct {
	factors []catalog.Factor
	err     error
}

func (f staticFactors) Factor(_ context.Context, id string) (*catalog.Factor, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}
	fac, ok := catalog.Find(f.factors, id)
	return fac, ok, nil
}

var testCatalog = staticFactors{factors: []catalog.Factor{{
	ID:    "sf-3",
	Title: "Get the right support",
	Tasks: map[task.Stage][]string{
		task.StageDefinition: {"Agree how decisions are escalated"},
		task.StageDelivery:   {"Keep the sponsor briefed"},
	},
}}}

func newTestTaskService(store *mockStore, factors FactorLookup) (*TaskService, *recordingQueue, *recordingHub) {
	if len(store.projects) == 0 {
		store.projects = []project.Project{{ID: testProject, Name: "P1", Version: 1}}
	}
	q := &recordingQueue{}
	h := &recordingHub{}
	return NewTaskService(store, scanConfig, factors, q, h), q, h
}

func TestUpdateMaterializesDeclaredCatalogTask(t *testing.T) {
	store := &mockStore{}
	svc, q, h := newTestTaskService(store, nil)

	v, err := svc.Update(context.Background(), testProject, "cat-1",
		mustPayload(t, `{"origin":"success-factor","completed":true}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.ID != "cat-1" || v.SourceID != "cat-1" || !v.Completed {
		t.Fatalf("unexpected view: %+v", v)
	}
	if v.Origin != task.OriginSuccessFactor || v.Source != task.OriginFactor {
		t.Fatalf("origin = %s source = %s", v.Origin, v.Source)
	}
	if v.Text != untitledTask || v.Stage != task.StageIdentification || v.Status != task.DefaultStatus {
		t.Fatalf("unexpected baseline: %+v", v)
	}

	want := []string{messagequeue.SubjectTaskMaterialized, messagequeue.SubjectTaskUpdated}
	if got := q.subjects(); !reflect.DeepEqual(got, want) {
		t.Fatalf("published %v, want %v", got, want)
	}
	if len(h.events) != 2 || h.events[0] != broadcast.EventTaskMaterialized {
		t.Fatalf("broadcast %v", h.events)
	}
}

func TestUpdateInfersCatalogTaskFromCatalog(t *testing.T) {
	store := &mockStore{}
	svc, _, _ := newTestTaskService(store, testCatalog)

	v, err := svc.Update(context.Background(), testProject, "sf-3", mustPayload(t, `{"notes":"call Tuesday"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.Origin != task.OriginFactor || v.FactorID != "sf-3" {
		t.Fatalf("unexpected provenance: %+v", v)
	}
	if v.Text != "Agree how decisions are escalated" || v.Stage != task.StageDefinition {
		t.Fatalf("baseline not taken from catalog: text=%q stage=%s", v.Text, v.Stage)
	}
	if v.Notes != "call Tuesday" {
		t.Fatalf("notes = %q", v.Notes)
	}
}

func TestUpdateBaselineUsesPayloadStageForCatalogText(t *testing.T) {
	store := &mockStore{}
	svc, _, _ := newTestTaskService(store, testCatalog)

	v, err := svc.Update(context.Background(), testProject, "sf-3", mustPayload(t, `{"stage":"delivery"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.Text != "Keep the sponsor briefed" || v.Stage != task.StageDelivery {
		t.Fatalf("text=%q stage=%s", v.Text, v.Stage)
	}
}

func TestUpdateNotEligible(t *testing.T) {
	tests := []struct {
		name    string
		factors FactorLookup
		ext     string
		payload string
	}{
		{"custom origin declared", testCatalog, "sf-3", `{"origin":"custom","completed":true}`},
		{"unknown id without catalog", nil, "unknown-id", `{"completed":true}`},
		{"unknown to catalog", testCatalog, "unknown-id", `{"completed":true}`},
		{"policy origin", nil, "pol-1", `{"origin":"policy"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			svc, q, _ := newTestTaskService(store, tt.factors)

			_, err := svc.Update(context.Background(), testProject, tt.ext, mustPayload(t, tt.payload))
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
			if store.count(testProject) != 0 {
				t.Fatal("task inserted for ineligible miss")
			}
			if len(q.subjects()) != 0 {
				t.Fatalf("events published on failure: %v", q.subjects())
			}
		})
	}
}

func TestUpdateCatalogErrorOnInference(t *testing.T) {
	boom := errors.New("catalog down")
	svc, _, _ := newTestTaskService(&mockStore{}, staticFactors{err: boom})

	if _, err := svc.Update(context.Background(), testProject, "sf-3", task.Payload{}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	// A declared catalog origin does not need the catalog.
	v, err := svc.Update(context.Background(), testProject, "sf-3", mustPayload(t, `{"origin":"factor"}`))
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if v.Text != untitledTask {
		t.Fatalf("text = %q", v.Text)
	}
}

func TestUpdateUnknownProject(t *testing.T) {
	svc, _, _ := newTestTaskService(&mockStore{}, nil)

	_, err := svc.Update(context.Background(), "missing", "sf-1", mustPayload(t, `{"origin":"factor"}`))
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateExistingPublishesUpdatedOnly(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("t-1", "", task.OriginCustom)}}
	svc, q, _ := newTestTaskService(store, nil)

	if _, err := svc.Update(context.Background(), testProject, "t-1", mustPayload(t, `{"completed":true}`)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	want := []string{messagequeue.SubjectTaskUpdated}
	if got := q.subjects(); !reflect.DeepEqual(got, want) {
		t.Fatalf("published %v, want %v", got, want)
	}
}

func TestGetResolvesLikeUpdate(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("uuid-1", "sf-5", task.OriginFactor)}}
	svc, _, _ := newTestTaskService(store, nil)

	v, err := svc.Get(context.Background(), testProject, "sf-5")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if v.ID != "sf-5" {
		t.Fatalf("id = %s, want sf-5", v.ID)
	}
	if _, err := svc.Get(context.Background(), testProject, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateTask(t *testing.T) {
	store := &mockStore{}
	svc, q, _ := newTestTaskService(store, nil)

	v, err := svc.Create(context.Background(), testProject, mustPayload(t, `{"text":"Write charter","stage":"definition","owner":""}`))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if v.ID == "" || v.Origin != task.OriginCustom || v.Stage != task.StageDefinition || v.Status != task.DefaultStatus {
		t.Fatalf("unexpected view: %+v", v)
	}
	if got := q.subjects(); len(got) != 1 || got[0] != messagequeue.SubjectTaskCreated {
		t.Fatalf("published %v", got)
	}

	v2, err := svc.Create(context.Background(), testProject, mustPayload(t, `{"id":"custom-7","text":"Other"}`))
	if err != nil {
		t.Fatalf("Create with id: %v", err)
	}
	if v2.ID != "custom-7" {
		t.Fatalf("id = %s", v2.ID)
	}

	if _, err := svc.Create(context.Background(), testProject, mustPayload(t, `{"id":"custom-7","text":"Again"}`)); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("duplicate id: err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	svc, _, _ := newTestTaskService(&mockStore{}, nil)

	for _, payload := range []string{`{}`, `{"text":""}`, `{"text":"x","stage":"launch"}`} {
		if _, err := svc.Create(context.Background(), testProject, mustPayload(t, payload)); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("Create(%s): err = %v, want ErrValidation", payload, err)
		}
	}
	if _, err := svc.Create(context.Background(), "missing", mustPayload(t, `{"text":"x"}`)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown project: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteTask(t *testing.T) {
	store := &mockStore{tasks: []task.Task{seedTask("uuid-1", "sf-5", task.OriginFactor)}}
	svc, q, _ := newTestTaskService(store, nil)

	if err := svc.Delete(context.Background(), testProject, "sf-5"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if store.count(testProject) != 0 {
		t.Fatal("task not deleted")
	}
	if got := q.subjects(); len(got) != 1 || got[0] != messagequeue.SubjectTaskDeleted {
		t.Fatalf("published %v", got)
	}
	if err := svc.Delete(context.Background(), testProject, "sf-5"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: err = %v, want ErrNotFound", err)
	}
}

func TestDeleteRequiresExactID(t *testing.T) {
	tests := []struct {
		name       string
		externalID string
	}{
		{"id prefix", "s"},
		{"source id prefix", "sf-4"},
		{"compound uuid id", "6f1c2a9e-3b4d-4c5e-8f70-112233445566-delivery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{tasks: []task.Task{
				seedTask("sf-42", "sf-42", task.OriginFactor),
				seedTask("6f1c2a9e-3b4d-4c5e-8f70-112233445566", "", task.OriginFactor),
			}}
			svc, q, _ := newTestTaskService(store, nil)

			err := svc.Delete(context.Background(), testProject, tt.externalID)
			if !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("err = %v, want ErrNotFound", err)
			}
			if store.count(testProject) != 2 {
				t.Fatalf("tasks = %d, want 2", store.count(testProject))
			}
			if got := q.subjects(); len(got) != 0 {
				t.Fatalf("published %v", got)
			}
		})
	}
}

func TestListTasks(t *testing.T) {
	done := seedTask("t-2", "sf-1", task.OriginSuccessFactor)
	done.Completed = true
	store := &mockStore{tasks: []task.Task{seedTask("t-1", "", task.OriginCustom), done}}
	svc, _, _ := newTestTaskService(store, nil)

	all, err := svc.List(context.Background(), testProject, task.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("len = %d, want 2", len(all))
	}

	completed := true
	got, err := svc.List(context.Background(), testProject, task.ListFilter{Origin: task.OriginFactor, Completed: &completed})
	if err != nil {
		t.Fatalf("List filtered: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t-2" || got[0].Source != task.OriginFactor {
		t.Fatalf("filtered = %+v", got)
	}

	if _, err := svc.List(context.Background(), "missing", task.ListFilter{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
