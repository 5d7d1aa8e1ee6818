package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/domain"
)

const projectSelectColumns = `id, name, slug, created_at`

// ProjectRepository handles database operations for projects and their members.
type ProjectRepository struct {
	db *sqlx.DB
}

// NewProjectRepository creates a new project repository.
func NewProjectRepository(db *sqlx.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// GetBySlug returns the project with the given slug.
func (r *ProjectRepository) GetBySlug(ctx context.Context, slug string) (*domain.Project, error) {
	query := `SELECT ` + projectSelectColumns + ` FROM projects WHERE slug = $1`

	var project domain.Project
	err := r.db.GetContext(ctx, &project, query, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", slug, err)
	}
	return &project, nil
}

// GetByID returns the project with the given id.
func (r *ProjectRepository) GetByID(ctx context.Context, id int64) (*domain.Project, error) {
	query := `SELECT ` + projectSelectColumns + ` FROM projects WHERE id = $1`

	var project domain.Project
	err := r.db.GetContext(ctx, &project, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get project %d: %w", id, err)
	}
	return &project, nil
}

// Members returns all members of a project.
func (r *ProjectRepository) Members(ctx context.Context, projectID int64) ([]domain.ProjectMember, error) {
	query := `
		SELECT id, project_id, user_name, state, mail, user_mail
		FROM project_members
		WHERE project_id = $1
		ORDER BY user_name
	`

	var members []domain.ProjectMember
	if err := r.db.SelectContext(ctx, &members, query, projectID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}
