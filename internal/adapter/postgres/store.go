package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/tcof/internal/domain"
	"github.com/Strob0t/tcof/internal/domain/project"
	"github.com/Strob0t/tcof/internal/domain/task"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx runs fn inside a transaction. When ctx already carries one, fn joins
// it and the outermost caller commits.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(withTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// --- Projects ---

const projectColumns = `id, name, description, sector, organisation_type, current_stage, version, created_at, updated_at`

func (s *Store) ListProjects(ctx context.Context) ([]project.Project, error) {
	rows, err := conn(ctx, s.pool).Query(ctx,
		`SELECT `+projectColumns+` FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return orEmpty(projects), rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	if !validProjectID(id) {
		return nil, fmt.Errorf("get project %s: %w", id, domain.ErrNotFound)
	}
	row := conn(ctx, s.pool).QueryRow(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)

	p, err := scanProject(row)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, req *project.CreateRequest) (*project.Project, error) {
	stage := req.CurrentStage
	if stage == "" {
		stage = string(task.StageIdentification)
	}
	row := conn(ctx, s.pool).QueryRow(ctx,
		`INSERT INTO projects (name, description, sector, organisation_type, current_stage)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+projectColumns,
		req.Name, req.Description, req.Sector, req.OrganisationType, stage)

	p, err := scanProject(row)
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &p, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *project.Project) error {
	if !validProjectID(p.ID) {
		return fmt.Errorf("update project %s: %w", p.ID, domain.ErrNotFound)
	}
	row := conn(ctx, s.pool).QueryRow(ctx,
		`UPDATE projects SET name = $2, description = $3, sector = $4, organisation_type = $5,
		        current_stage = $6, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $7
		 RETURNING version, updated_at`,
		p.ID, p.Name, p.Description, p.Sector, p.OrganisationType, p.CurrentStage, p.Version)
	if err := row.Scan(&p.Version, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("update project %s: %w", p.ID, domain.ErrConflict)
		}
		return fmt.Errorf("update project %s: %w", p.ID, err)
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if !validProjectID(id) {
		return fmt.Errorf("delete project %s: %w", id, domain.ErrNotFound)
	}
	tag, err := conn(ctx, s.pool).Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete project %s", id)
}

func scanProject(row scannable) (project.Project, error) {
	var p project.Project
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Sector, &p.OrganisationType,
		&p.CurrentStage, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
