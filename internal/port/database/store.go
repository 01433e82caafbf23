// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/Strob0t/tcof/internal/domain/project"
	"github.com/Strob0t/tcof/internal/domain/task"
)

// Store is the port interface for database operations. Every method runs
// inside the transaction carried by ctx when there is one.
type Store interface {
	// Projects
	ListProjects(ctx context.Context) ([]project.Project, error)
	GetProject(ctx context.Context, id string) (*project.Project, error)
	CreateProject(ctx context.Context, req *project.CreateRequest) (*project.Project, error)
	// UpdateProject writes p when p.Version matches the stored version and
	// returns ErrConflict otherwise.
	UpdateProject(ctx context.Context, p *project.Project) error
	DeleteProject(ctx context.Context, id string) error

	// Tasks
	ListTasks(ctx context.Context, projectID string, filter task.ListFilter) ([]task.Task, error)
	// GetTask returns ErrNotFound when no task has the given internal id.
	GetTask(ctx context.Context, projectID, id string) (*task.Task, error)
	// FindTaskBySourceID returns the oldest task whose source_id equals
	// sourceID, optionally restricted to the given origins. Returns
	// ErrNotFound on a miss.
	FindTaskBySourceID(ctx context.Context, projectID, sourceID string, origins ...task.Origin) (*task.Task, error)
	// ListTasksByIDPrefix returns up to limit tasks whose id or source_id
	// starts with prefix, oldest first.
	ListTasksByIDPrefix(ctx context.Context, projectID, prefix string, limit int) ([]task.Task, error)
	CountTasks(ctx context.Context, projectID string) (int, error)
	// InsertTask inserts t unless a task with the same (project, id) or the
	// same non-custom (project, stage, source_id) exists. created reports
	// whether a row was written.
	InsertTask(ctx context.Context, t *task.Task) (created bool, err error)
	// UpdateTask applies patch to the task with internal id and returns the
	// stored row. A missing row yields ErrUpdateFailed.
	UpdateTask(ctx context.Context, projectID, id string, patch task.Patch, updatedAt time.Time) (*task.Task, error)
	DeleteTask(ctx context.Context, projectID, id string) error

	// InTx runs fn in a transaction. Calls nested inside fn join the outer
	// transaction.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
