// Package service implements business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/tcof/internal/adapter/otel"
	"github.com/Strob0t/tcof/internal/config"
	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/task"
	"github.com/Strob0t/tcof/internal/logger"
	"github.com/Strob0t/tcof/internal/port/broadcast"
	"github.com/Strob0t/tcof/internal/port/database"
	"github.com/Strob0t/tcof/internal/port/messagequeue"
)

// TaskService handles checklist tasks: identity resolution, sparse updates
// with upsert-on-miss, and event fan-out.
type TaskService struct {
	store    database.Store
	resolver *Resolver
	applier  *Applier
	factors  FactorLookup
	queue    messagequeue.Queue
	hub      broadcast.Broadcaster
	metrics  *cfotel.Metrics
}

// NewTaskService creates a new TaskService. factors may be nil, in which
// case only payloads that declare a catalog origin are materialized on miss.
func NewTaskService(store database.Store, cfg config.Resolver, factors FactorLookup, queue messagequeue.Queue, hub broadcast.Broadcaster) *TaskService {
	if queue == nil {
		queue = messagequeue.Discard{}
	}
	if hub == nil {
		hub = broadcast.Discard{}
	}
	return &TaskService{
		store:    store,
		resolver: NewResolver(store, cfg, nil),
		applier:  NewApplier(store),
		factors:  factors,
		queue:    queue,
		hub:      hub,
	}
}

// SetMetrics enables metric recording.
func (s *TaskService) SetMetrics(m *cfotel.Metrics) {
	s.metrics = m
	s.resolver.metrics = m
}

// List returns the tasks of a project matching filter.
func (s *TaskService) List(ctx context.Context, projectID string, filter task.ListFilter) ([]task.View, error) {
	if _, err := s.store.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.ListTasks(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	return task.NewViews(tasks), nil
}

// Get resolves externalID the same way updates do.
func (s *TaskService) Get(ctx context.Context, projectID, externalID string) (*task.View, error) {
	res, err := s.resolver.Resolve(ctx, projectID, externalID)
	if err != nil {
		return nil, err
	}
	if !res.Found() {
		return nil, fmt.Errorf("task %s: %w", externalID, domain.ErrNotFound)
	}
	return viewFor(res.Task, res), nil
}

// Create adds a task to a project. The id is taken from the payload when
// given, otherwise a UUID is assigned; text is required.
func (s *TaskService) Create(ctx context.Context, projectID string, payload task.Payload) (*task.View, error) {
	if !payload.Has("text") {
		return nil, fmt.Errorf("text is required: %w", domain.ErrValidation)
	}
	patch, err := payload.BuildPatch()
	if err != nil {
		return nil, err
	}

	id, _ := payload.String("id")
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	t := &task.Task{
		ID:        id,
		ProjectID: projectID,
		Stage:     task.StageIdentification,
		Origin:    task.OriginCustom,
		Status:    task.DefaultStatus,
	}
	patch.ApplyTo(t)

	err = s.store.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.GetProject(ctx, projectID); err != nil {
			return err
		}
		created, err := s.store.InsertTask(ctx, t)
		if err != nil {
			return err
		}
		if !created {
			return fmt.Errorf("task %s: %w", id, domain.ErrAlreadyExists)
		}
		stored, err := s.store.GetTask(ctx, projectID, id)
		if err != nil {
			return err
		}
		t = stored
		return nil
	})
	if err != nil {
		return nil, err
	}

	v := task.NewView(t)
	s.publish(ctx, messagequeue.SubjectTaskCreated, broadcast.EventTaskCreated, t, &v, "")
	return &v, nil
}

// Update is the single entry point for task updates. It resolves
// externalID, materializes catalog tasks on a miss, and applies the sparse
// payload, all in one transaction.
func (s *TaskService) Update(ctx context.Context, projectID, externalID string, payload task.Payload) (*task.View, error) {
	start := time.Now()
	ctx, span := cfotel.StartTaskUpdateSpan(ctx, projectID, externalID)
	defer span.End()

	var (
		view         *task.View
		res          Resolution
		materialized bool
	)
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.resolver.Resolve(ctx, projectID, externalID)
		if err != nil {
			return err
		}
		if !res.Found() {
			res, materialized, err = s.upsertOnMiss(ctx, projectID, externalID, payload)
			if err != nil {
				return err
			}
		}
		view, err = s.applier.Apply(ctx, res, payload)
		return err
	})
	s.recordUpdate(ctx, start, res, materialized, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, domain.Code(err))
		if isNotFound(err) {
			slog.InfoContext(ctx, "task not found", "project_id", projectID, "external_id", externalID)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("task.strategy", string(res.Strategy)))

	if materialized {
		s.publish(ctx, messagequeue.SubjectTaskMaterialized, broadcast.EventTaskMaterialized, res.Task, view, res.Strategy)
	}
	s.publish(ctx, messagequeue.SubjectTaskUpdated, broadcast.EventTaskUpdated, res.Task, view, res.Strategy)
	return view, nil
}

// Delete removes the task whose id or source id equals externalID.
// Prefix matches never select a task for deletion.
func (s *TaskService) Delete(ctx context.Context, projectID, externalID string) error {
	var deleted *task.Task
	err := s.store.InTx(ctx, func(ctx context.Context) error {
		res, err := s.resolver.ResolveExact(ctx, projectID, externalID)
		if err != nil {
			return err
		}
		if !res.Found() {
			return fmt.Errorf("task %s: %w", externalID, domain.ErrNotFound)
		}
		deleted = res.Task
		return s.store.DeleteTask(ctx, projectID, res.Task.ID)
	})
	if err != nil {
		return err
	}

	v := task.NewView(deleted)
	s.publish(ctx, messagequeue.SubjectTaskDeleted, broadcast.EventTaskDeleted, deleted, &v, "")
	return nil
}

func (s *TaskService) recordUpdate(ctx context.Context, start time.Time, res Resolution, materialized bool, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.UpdateDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("strategy", string(res.Strategy)),
	))
	if err != nil {
		s.metrics.TaskUpdateErrors.Add(ctx, 1, metric.WithAttributes(
			attribute.String("code", domain.Code(err)),
		))
		return
	}
	if materialized {
		s.metrics.TasksMaterialized.Add(ctx, 1)
	}
}

// publish fans a committed change out to the queue and WebSocket clients.
// Failures are logged; the change is already stored.
func (s *TaskService) publish(ctx context.Context, subject, event string, t *task.Task, v *task.View, strategy Strategy) {
	payload := messagequeue.TaskEventPayload{
		ProjectID: v.ProjectID,
		TaskID:    t.ID,
		SourceID:  v.SourceID,
		Origin:    string(v.Origin),
		Stage:     string(v.Stage),
		Completed: v.Completed,
		Status:    v.Status,
		Strategy:  string(strategy),
		RequestID: logger.RequestID(ctx),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal task event", "subject", subject, "error", err)
	} else if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.ErrorContext(ctx, "failed to publish task event", "subject", subject, "task_id", t.ID, "error", err)
	}

	s.hub.BroadcastEvent(ctx, event, broadcast.TaskEvent{
		ProjectID: v.ProjectID,
		TaskID:    v.ID,
		Strategy:  string(strategy),
		Task:      v,
	})
}
