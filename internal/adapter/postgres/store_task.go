package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/task"
)

const taskColumns = `id, project_id, text, stage, origin, COALESCE(source_id, ''), completed, status,
	notes, priority, due_date, owner, task_type, factor_id, sort_order, assigned_to, task_notes,
	created_at, updated_at`

func (s *Store) ListTasks(ctx context.Context, projectID string, filter task.ListFilter) ([]task.Task, error) {
	if !validProjectID(projectID) {
		return []task.Task{}, nil
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1`
	args := []any{projectID}
	if filter.Stage != "" {
		args = append(args, string(filter.Stage))
		query += fmt.Sprintf(" AND stage = $%d", len(args))
	}
	if filter.Origin != "" {
		args = append(args, originStrings(filter.Origin.Aliases()))
		query += fmt.Sprintf(" AND origin = ANY($%d)", len(args))
	}
	if filter.Completed != nil {
		args = append(args, *filter.Completed)
		query += fmt.Sprintf(" AND completed = $%d", len(args))
	}
	query += ` ORDER BY sort_order, created_at, id`

	return s.queryTasks(ctx, "list tasks", query, args...)
}

func (s *Store) GetTask(ctx context.Context, projectID, id string) (*task.Task, error) {
	if !validProjectID(projectID) {
		return nil, fmt.Errorf("get task %s: %w", id, domain.ErrNotFound)
	}
	row := conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 AND id = $2`, projectID, id)
	t, err := scanTask(row)
	if err != nil {
		return nil, notFoundWrap(err, "get task %s", id)
	}
	return &t, nil
}

func (s *Store) FindTaskBySourceID(ctx context.Context, projectID, sourceID string, origins ...task.Origin) (*task.Task, error) {
	if !validProjectID(projectID) || sourceID == "" {
		return nil, fmt.Errorf("find task by source %s: %w", sourceID, domain.ErrNotFound)
	}
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1 AND source_id = $2`
	args := []any{projectID, sourceID}
	if len(origins) > 0 {
		args = append(args, originStrings(origins))
		query += ` AND origin = ANY($3)`
	}
	query += ` ORDER BY created_at, id LIMIT 1`

	t, err := scanTask(conn(ctx, s.pool).QueryRow(ctx, query, args...))
	if err != nil {
		return nil, notFoundWrap(err, "find task by source %s", sourceID)
	}
	return &t, nil
}

func (s *Store) ListTasksByIDPrefix(ctx context.Context, projectID, prefix string, limit int) ([]task.Task, error) {
	if !validProjectID(projectID) || prefix == "" || limit <= 0 {
		return []task.Task{}, nil
	}
	return s.queryTasks(ctx, "list tasks by prefix",
		`SELECT `+taskColumns+` FROM tasks
		 WHERE project_id = $1 AND (id LIKE $2 ESCAPE '\' OR source_id LIKE $2 ESCAPE '\')
		 ORDER BY created_at, id LIMIT $3`,
		projectID, likePrefix(prefix), limit)
}

func (s *Store) CountTasks(ctx context.Context, projectID string) (int, error) {
	if !validProjectID(projectID) {
		return 0, nil
	}
	var n int
	if err := conn(ctx, s.pool).QueryRow(ctx,
		`SELECT count(*) FROM tasks WHERE project_id = $1`, projectID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

func (s *Store) InsertTask(ctx context.Context, t *task.Task) (bool, error) {
	if !validProjectID(t.ProjectID) {
		return false, fmt.Errorf("insert task %s: project %s: %w", t.ID, t.ProjectID, domain.ErrNotFound)
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
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
	tag, err := conn(ctx, s.pool).Exec(ctx,
		`INSERT INTO tasks (id, project_id, text, stage, origin, source_id, completed, status,
		                    notes, priority, due_date, owner, task_type, factor_id, sort_order,
		                    assigned_to, task_notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		 ON CONFLICT DO NOTHING`,
		t.ID, t.ProjectID, t.Text, string(t.Stage), string(t.Origin), nullIfEmpty(t.SourceID),
		t.Completed, t.Status, t.Notes, t.Priority, t.DueDate, t.Owner, t.TaskType, t.FactorID,
		t.SortOrder, t.AssignedTo, t.TaskNotes, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("insert task %s: %w", t.ID, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) UpdateTask(ctx context.Context, projectID, id string, patch task.Patch, updatedAt time.Time) (*task.Task, error) {
	if !validProjectID(projectID) {
		return nil, fmt.Errorf("update task %s: %w", id, domain.ErrUpdateFailed)
	}
	sets, args, err := buildSet(patch)
	if err != nil {
		return nil, fmt.Errorf("update task %s: %w", id, err)
	}
	args = append(args, updatedAt.UTC())
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(args)))
	args = append(args, projectID, id)

	query := `UPDATE tasks SET ` + strings.Join(sets, ", ") +
		fmt.Sprintf(` WHERE project_id = $%d AND id = $%d RETURNING `, len(args)-1, len(args)) + taskColumns

	t, err := scanTask(conn(ctx, s.pool).QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("update task %s: %w", id, domain.ErrUpdateFailed)
	}
	if err != nil {
		return nil, notFoundWrap(err, "update task %s", id)
	}
	return &t, nil
}

func (s *Store) DeleteTask(ctx context.Context, projectID, id string) error {
	if !validProjectID(projectID) {
		return fmt.Errorf("delete task %s: %w", id, domain.ErrNotFound)
	}
	tag, err := conn(ctx, s.pool).Exec(ctx,
		`DELETE FROM tasks WHERE project_id = $1 AND id = $2`, projectID, id)
	return execExpectOne(tag, err, "delete task %s", id)
}

func (s *Store) queryTasks(ctx context.Context, op, query string, args ...any) ([]task.Task, error) {
	rows, err := conn(ctx, s.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var tasks []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		tasks = append(tasks, t)
	}
	return orEmpty(tasks), rows.Err()
}

// buildSet renders patch as "col = $n" assignments. Only writable mapped
// columns are accepted, so column names never come from user input.
func buildSet(patch task.Patch) (sets []string, args []any, err error) {
	for _, col := range patch.Columns() {
		f, ok := task.FieldByColumn(col)
		if !ok || !f.Writable() {
			return nil, nil, fmt.Errorf("column %q is not writable: %w", col, domain.ErrValidation)
		}
		args = append(args, patch[col])
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	return sets, args, nil
}

func scanTask(row scannable) (task.Task, error) {
	var (
		t             task.Task
		stage, origin string
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Text, &stage, &origin, &t.SourceID, &t.Completed, &t.Status,
		&t.Notes, &t.Priority, &t.DueDate, &t.Owner, &t.TaskType, &t.FactorID, &t.SortOrder,
		&t.AssignedTo, &t.TaskNotes, &t.CreatedAt, &t.UpdatedAt)
	t.Stage = task.Stage(stage)
	t.Origin = task.Origin(origin)
	return t, err
}

func originStrings(origins []task.Origin) []string {
	out := make([]string, len(origins))
	for i, o := range origins {
		out[i] = string(o)
	}
	return out
}
