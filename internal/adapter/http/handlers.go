package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/project"
	"github.com/Strob0t/tcof/internal/domain/task"
	"github.com/Strob0t/tcof/internal/service"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// QueueStatus reports the message queue connection state.
type QueueStatus interface {
	IsConnected() bool
}

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Projects *service.ProjectService
	Tasks    *service.TaskService
	Catalog  *service.CatalogService
	Store    Pinger
	Queue    QueueStatus
	Version  string
}

// --- Health ---

type healthStatus struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Queue    string `json:"queue"`
}

// Health handles GET /health. A failing database makes the instance
// unhealthy; a disconnected queue only degrades it.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := healthStatus{Status: "ok", Database: "ok", Queue: "disabled"}
	code := http.StatusOK
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			status.Status = "unavailable"
			status.Database = "error"
			code = http.StatusServiceUnavailable
		}
	}
	if h.Queue != nil {
		if h.Queue.IsConnected() {
			status.Queue = "connected"
		} else {
			status.Queue = "disconnected"
			if code == http.StatusOK {
				status.Status = "degraded"
			}
		}
	}
	writeJSON(w, code, status)
}

// Root handles GET /api/v1/.
func (h *Handlers) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": h.Version})
}

// --- Projects ---

// ListProjects handles GET /api/v1/projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Projects.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "projects not found")
		return
	}
	if projects == nil {
		projects = []project.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProject handles GET /api/v1/projects/{id}.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	p, err := h.Projects.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProject handles POST /api/v1/projects.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.CreateRequest](w, r)
	if !ok {
		return
	}
	p, err := h.Projects.Create(r.Context(), &req)
	if err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProject handles PUT /api/v1/projects/{id}.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[project.UpdateRequest](w, r)
	if !ok {
		return
	}
	p, err := h.Projects.Update(r.Context(), urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProject handles DELETE /api/v1/projects/{id}.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.Projects.Delete(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Tasks ---

// ListTasks handles GET /api/v1/projects/{id}/tasks.
// Query filters: stage, source (alias origin), completed.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	filter, err := parseTaskFilter(r)
	if err != nil {
		writeDomainError(w, r, err, "")
		return
	}
	tasks, err := h.Tasks.List(r.Context(), urlParam(r, "id"), filter)
	if err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	if tasks == nil {
		tasks = []task.View{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func parseTaskFilter(r *http.Request) (task.ListFilter, error) {
	q := r.URL.Query()
	var f task.ListFilter

	if s := q.Get("stage"); s != "" {
		f.Stage = task.Stage(s)
		if !f.Stage.Valid() {
			return f, validationError("unknown stage " + strconv.Quote(s))
		}
	}
	src := q.Get("source")
	if src == "" {
		src = q.Get("origin")
	}
	if src != "" {
		f.Origin = task.Origin(src)
		if !f.Origin.Valid() {
			return f, validationError("unknown source " + strconv.Quote(src))
		}
	}
	if c := q.Get("completed"); c != "" {
		b, err := strconv.ParseBool(c)
		if err != nil {
			return f, validationError("completed must be true or false")
		}
		f.Completed = &b
	}
	return f, nil
}

// GetTask handles GET /api/v1/projects/{id}/tasks/{taskId}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	v, err := h.Tasks.Get(r.Context(), urlParam(r, "id"), urlParam(r, "taskId"))
	if err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// CreateTask handles POST /api/v1/projects/{id}/tasks.
func (h *Handlers) CreateTask(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	v, err := h.Tasks.Create(r.Context(), urlParam(r, "id"), payload)
	if errors.Is(err, domain.ErrAlreadyExists) {
		writeError(w, http.StatusConflict, domain.CodeConflict, "task already exists")
		return
	}
	if err != nil {
		writeDomainError(w, r, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// UpdateTask handles PUT and PATCH /api/v1/projects/{id}/tasks/{taskId}.
// Both verbs apply a sparse update.
func (h *Handlers) UpdateTask(w http.ResponseWriter, r *http.Request) {
	payload, ok := readPayload(w, r)
	if !ok {
		return
	}
	v, err := h.Tasks.Update(r.Context(), urlParam(r, "id"), urlParam(r, "taskId"), payload)
	if err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// DeleteTask handles DELETE /api/v1/projects/{id}/tasks/{taskId}.
func (h *Handlers) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Delete(r.Context(), urlParam(r, "id"), urlParam(r, "taskId")); err != nil {
		writeDomainError(w, r, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func readPayload(w http.ResponseWriter, r *http.Request) (task.Payload, bool) {
	data, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	payload, err := task.ParsePayload(data)
	if err != nil {
		writeDomainError(w, r, err, "")
		return nil, false
	}
	return payload, true
}

// --- Success factors ---

// ListSuccessFactors handles GET /api/v1/success-factors.
func (h *Handlers) ListSuccessFactors(w http.ResponseWriter, r *http.Request) {
	factors, err := h.Catalog.List(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "catalog not found")
		return
	}
	writeJSON(w, http.StatusOK, factors)
}

// GetSuccessFactor handles GET /api/v1/success-factors/{id}.
func (h *Handlers) GetSuccessFactor(w http.ResponseWriter, r *http.Request) {
	f, err := h.Catalog.Get(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, r, err, "success factor not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

// RefreshSuccessFactors handles POST /api/v1/success-factors/refresh.
func (h *Handlers) RefreshSuccessFactors(w http.ResponseWriter, r *http.Request) {
	factors, err := h.Catalog.Refresh(r.Context())
	if err != nil {
		writeDomainError(w, r, err, "catalog not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": len(factors)})
}

func validationError(msg string) error {
	return fmt.Errorf("%s: %w", msg, domain.ErrValidation)
}
