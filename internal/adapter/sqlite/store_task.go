package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/task"
)

const taskColumns = `id, project_id, text, stage, origin, COALESCE(source_id, ''), completed, status,
	notes, priority, due_date, owner, task_type, factor_id, sort_order, assigned_to, task_notes,
	created_at, updated_at`

func (s *Store) ListTasks(ctx context.Context, projectID string, filter task.ListFilter) ([]task.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ?`
	args := []any{projectID}
	if filter.Stage != "" {
		query += ` AND stage = ?`
		args = append(args, string(filter.Stage))
	}
	if filter.Origin != "" {
		aliases := filter.Origin.Aliases()
		query += ` AND origin IN (` + placeholders(len(aliases)) + `)`
		for _, o := range aliases {
			args = append(args, string(o))
		}
	}
	if filter.Completed != nil {
		query += ` AND completed = ?`
		args = append(args, *filter.Completed)
	}
	query += ` ORDER BY sort_order, created_at, id`
	return s.queryTasks(ctx, "list tasks", query, args...)
}

func (s *Store) GetTask(ctx context.Context, projectID, id string) (*task.Task, error) {
	t, err := scanTask(s.conn(ctx).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = ? AND id = ?`, projectID, id))
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) FindTaskBySourceID(ctx context.Context, projectID, sourceID string, origins ...task.Origin) (*task.Task, error) {
	if sourceID == "" {
		return nil, fmt.Errorf("find task by source: %w", domain.ErrNotFound)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = ? AND source_id = ?`
	args := []any{projectID, sourceID}
	if len(origins) > 0 {
		query += ` AND origin IN (` + placeholders(len(origins)) + `)`
		for _, o := range origins {
			args = append(args, string(o))
		}
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	t, err := scanTask(s.conn(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, notFoundWrap(err, "find task by source %s", sourceID)
	}
	return &t, nil
}

// ListTasksByIDPrefix compares with substr rather than LIKE, which is
// case-insensitive in SQLite.
func (s *Store) ListTasksByIDPrefix(ctx context.Context, projectID, prefix string, limit int) ([]task.Task, error) {
	if prefix == "" || limit <= 0 {
		return []task.Task{}, nil
	}
	n := utf8.RuneCountInString(prefix)
	return s.queryTasks(ctx, "list tasks by prefix",
		`SELECT `+taskColumns+` FROM tasks
		 WHERE project_id = ? AND (substr(id, 1, ?) = ? OR substr(source_id, 1, ?) = ?)
		 ORDER BY created_at, id LIMIT ?`,
		projectID, n, prefix, n, prefix, limit)
}

func (s *Store) CountTasks(ctx context.Context, projectID string) (int, error) {
	var n int
	if err := s.conn(ctx).QueryRowContext(ctx,
		`SELECT count(*) FROM tasks WHERE project_id = ?`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (s *Store) InsertTask(ctx context.Context, t *task.Task) (bool, error) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now().UTC()
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	if t.Status == "" {
		t.Status = task.DefaultStatus
	}
	if t.Origin == "" {
		t.Origin = task.OriginCustom
	}
	res, err := s.conn(ctx).ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, text, stage, origin, source_id, completed, status,
		                    notes, priority, due_date, owner, task_type, factor_id, sort_order,
		                    assigned_to, task_notes, created_at, updated_at)
		 VALUES (`+placeholders(19)+`)
		 ON CONFLICT DO NOTHING`,
		t.ID, t.ProjectID, t.Text, string(t.Stage), string(t.Origin), nullIfEmpty(t.SourceID),
		t.Completed, t.Status, t.Notes, t.Priority, t.DueDate, t.Owner, t.TaskType, t.FactorID,
		t.SortOrder, t.AssignedTo, t.TaskNotes, formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
			return false, fmt.Errorf("insert task %s: project %s: %w", t.ID, t.ProjectID, domain.ErrNotFound)
		}
		return false, fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return n == 1, nil
}

func (s *Store) UpdateTask(ctx context.Context, projectID, id string, patch task.Patch, updatedAt time.Time) (*task.Task, error) {
	var (
		sets []string
		args []any
	)
	for _, col := range patch.Columns() {
		f, ok := task.FieldByColumn(col)
		if !ok || !f.Writable() {
			return nil, fmt.Errorf("update task %s: column %q is not writable: %w", id, col, domain.ErrValidation)
		}
		sets = append(sets, col+" = ?")
		args = append(args, patch[col])
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(updatedAt), projectID, id)

	t, err := scanTask(s.conn(ctx).QueryRowContext(ctx,
		`UPDATE tasks SET `+strings.Join(sets, ", ")+` WHERE project_id = ? AND id = ? RETURNING `+taskColumns,
		args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("update task %s: %w", id, domain.ErrUpdateFailed)
	}
	if err != nil {
		return nil, notFoundWrap(err, "update task %s", id)
	}
	return &t, nil
}

func (s *Store) DeleteTask(ctx context.Context, projectID, id string) error {
	res, err := s.conn(ctx).ExecContext(ctx,
		`DELETE FROM tasks WHERE project_id = ? AND id = ?`, projectID, id)
	return expectOne(res, err, "delete task %s", id)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]task.Task, error) {
	rows, err := s.conn(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() { _ = rows.Close() }()

	tasks := []task.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func scanTask(row scannable) (task.Task, error) {
	var (
		t                task.Task
		stage, origin    string
		created, updated string
	)
	if err := row.Scan(&t.ID, &t.ProjectID, &t.Text, &stage, &origin, &t.SourceID, &t.Completed, &t.Status,
		&t.Notes, &t.Priority, &t.DueDate, &t.Owner, &t.TaskType, &t.FactorID, &t.SortOrder,
		&t.AssignedTo, &t.TaskNotes, &created, &updated); err != nil {
		return t, err
	}
	t.Stage = task.Stage(stage)
	t.Origin = task.Origin(origin)
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	return t, nil
}
