package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/project"
	"github.com/Strob0t/tcof/internal/domain/task"
	"github.com/Strob0t/tcof/internal/port/database"
	"github.com/Strob0t/tcof/internal/port/messagequeue"
)

var _ messagequeue.Queue = (*recordingQueue)(nil)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory implementation of database.Store for testing.
type mockStore struct {
	mu       sync.Mutex
	projects []project.Project
	tasks    []task.Task

	// Error hooks; set these to inject failures.
	getTaskErr    error
	countTasksErr error
	// vanishOnUpdate deletes the target row right before an update, as a
	// concurrent delete would.
	vanishOnUpdate bool
	prefixScans    int
}

func (m *mockStore) ListProjects(_ context.Context) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]project.Project(nil), m.projects...), nil
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == id {
			p := m.projects[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) CreateProject(_ context.Context, req *project.CreateRequest) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := project.Project{
		ID:           fmt.Sprintf("proj-%d", len(m.projects)+1),
		Name:         req.Name,
		Description:  req.Description,
		CurrentStage: req.CurrentStage,
		Version:      1,
	}
	m.projects = append(m.projects, p)
	return &p, nil
}

func (m *mockStore) UpdateProject(_ context.Context, p *project.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == p.ID {
			if m.projects[i].Version != p.Version {
				return domain.ErrConflict
			}
			p.Version++
			m.projects[i] = *p
			return nil
		}
	}
	return domain.ErrConflict
}

func (m *mockStore) DeleteProject(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == id {
			m.projects = append(m.projects[:i], m.projects[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ListTasks(_ context.Context, projectID string, filter task.ListFilter) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []task.Task
	for i := range m.tasks {
		if m.tasks[i].ProjectID == projectID && filter.Matches(&m.tasks[i]) {
			out = append(out, m.tasks[i])
		}
	}
	return out, nil
}

func (m *mockStore) GetTask(_ context.Context, projectID, id string) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getTaskErr != nil {
		return nil, m.getTaskErr
	}
	if i := m.index(projectID, id); i >= 0 {
		t := m.tasks[i]
		return &t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) FindTaskBySourceID(_ context.Context, projectID, sourceID string, origins ...task.Origin) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		t := m.tasks[i]
		if t.ProjectID != projectID || t.SourceID == "" || t.SourceID != sourceID {
			continue
		}
		if len(origins) > 0 && !containsOrigin(origins, t.Origin) {
			continue
		}
		return &t, nil
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTasksByIDPrefix(_ context.Context, projectID, prefix string, limit int) ([]task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefixScans++
	var out []task.Task
	for i := range m.tasks {
		t := m.tasks[i]
		if t.ProjectID != projectID {
			continue
		}
		if strings.HasPrefix(t.ID, prefix) || (t.SourceID != "" && strings.HasPrefix(t.SourceID, prefix)) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) CountTasks(_ context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countTasksErr != nil {
		return 0, m.countTasksErr
	}
	n := 0
	for i := range m.tasks {
		if m.tasks[i].ProjectID == projectID {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) InsertTask(_ context.Context, t *task.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index(t.ProjectID, t.ID) >= 0 {
		return false, nil
	}
	if t.Origin != task.OriginCustom && t.SourceID != "" {
		for i := range m.tasks {
			o := m.tasks[i]
			if o.ProjectID == t.ProjectID && o.Origin != task.OriginCustom && o.Stage == t.Stage && o.SourceID == t.SourceID {
				return false, nil
			}
		}
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
		t.UpdatedAt = t.CreatedAt
	}
	m.tasks = append(m.tasks, *t)
	return true, nil
}

func (m *mockStore) UpdateTask(_ context.Context, projectID, id string, patch task.Patch, updatedAt time.Time) (*task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(projectID, id)
	if m.vanishOnUpdate && i >= 0 {
		m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
		i = -1
	}
	if i < 0 {
		return nil, fmt.Errorf("update task %s: %w", id, domain.ErrUpdateFailed)
	}
	patch.ApplyTo(&m.tasks[i])
	m.tasks[i].UpdatedAt = updatedAt
	t := m.tasks[i]
	return &t, nil
}

func (m *mockStore) DeleteTask(_ context.Context, projectID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.index(projectID, id)
	if i < 0 {
		return domain.ErrNotFound
	}
	m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
	return nil
}

func (m *mockStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *mockStore) index(projectID, id string) int {
	for i := range m.tasks {
		if m.tasks[i].ProjectID == projectID && m.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *mockStore) count(projectID string) int {
	n, _ := m.CountTasks(context.Background(), projectID)
	return n
}

func containsOrigin(origins []task.Origin, o task.Origin) bool {
	for _, v := range origins {
		if v == o {
			return true
		}
	}
	return false
}

// recordingQueue captures published subjects.
type recordingQueue struct {
	mu        sync.Mutex
	published []string
	data      [][]byte
	handlers  map[string]messagequeue.Handler
}

func (q *recordingQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, subject)
	q.data = append(q.data, data)
	return nil
}

func (q *recordingQueue) Subscribe(_ context.Context, subject string, h messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]messagequeue.Handler{}
	}
	q.handlers[subject] = h
	return func() {}, nil
}

func (q *recordingQueue) Drain() error      { return nil }
func (q *recordingQueue) Close() error      { return nil }
func (q *recordingQueue) IsConnected() bool { return true }

func (q *recordingQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.published...)
}

// recordingHub captures broadcast event types.
type recordingHub struct {
	mu     sync.Mutex
	events []string
}

func (h *recordingHub) BroadcastEvent(_ context.Context, eventType string, _ any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, eventType)
}
