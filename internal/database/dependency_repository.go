package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/domain"
)

// dependencySelectColumns joins the package name for rendering.
const dependencySelectColumns = `d.id, d.project_id, d.package_id, d.version, d.update_id,
	p.name AS package_name`

// DependencyRepository handles database operations for project dependencies.
type DependencyRepository struct {
	db *sqlx.DB
}

// NewDependencyRepository creates a new dependency repository.
func NewDependencyRepository(db *sqlx.DB) *DependencyRepository {
	return &DependencyRepository{db: db}
}

// ListByProject returns all dependencies of a project ordered by package name.
func (r *DependencyRepository) ListByProject(ctx context.Context, projectID int64) ([]domain.ProjectDependency, error) {
	query := `
		SELECT ` + dependencySelectColumns + `
		FROM project_dependencies d
		JOIN packages p ON p.id = d.package_id
		WHERE d.project_id = $1
		ORDER BY p.name
	`

	var deps []domain.ProjectDependency
	if err := r.db.SelectContext(ctx, &deps, query, projectID); err != nil {
		return nil, fmt.Errorf("list dependencies for project %d: %w", projectID, err)
	}
	return deps, nil
}

// ListByPackage returns every dependency pinning the given package,
// across all projects. This is the "affected projects" lookup.
func (r *DependencyRepository) ListByPackage(ctx context.Context, packageID int64) ([]domain.ProjectDependency, error) {
	query := `
		SELECT ` + dependencySelectColumns + `
		FROM project_dependencies d
		JOIN packages p ON p.id = d.package_id
		WHERE d.package_id = $1
		ORDER BY d.project_id
	`

	var deps []domain.ProjectDependency
	if err := r.db.SelectContext(ctx, &deps, query, packageID); err != nil {
		return nil, fmt.Errorf("list dependencies for package %d: %w", packageID, err)
	}
	return deps, nil
}

// SetUpdate points the dependency's update pointer at a version row, or
// clears it when updateID is nil. Writing the value already stored is a
// harmless no-op, which keeps concurrent resyncs idempotent.
func (r *DependencyRepository) SetUpdate(ctx context.Context, dependencyID int64, updateID *int64) error {
	query := `
		UPDATE project_dependencies
		SET update_id = $2
		WHERE id = $1 AND update_id IS DISTINCT FROM $2
	`

	if _, err := r.db.ExecContext(ctx, query, dependencyID, updateID); err != nil {
		return fmt.Errorf("set update pointer on dependency %d: %w", dependencyID, err)
	}
	return nil
}

// SetPinned changes the pinned version of a dependency.
func (r *DependencyRepository) SetPinned(ctx context.Context, dependencyID int64, version string) error {
	query := `UPDATE project_dependencies SET version = $2 WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, dependencyID, version)
	return execRequireRows(result, err, fmt.Errorf("dependency %d: %w", dependencyID, ErrNotFound))
}

// Insert bulk-inserts new dependencies.
func (r *DependencyRepository) Insert(ctx context.Context, deps []domain.ProjectDependency) error {
	if len(deps) == 0 {
		return nil
	}

	query := `
		INSERT INTO project_dependencies (project_id, package_id, version)
		VALUES (:project_id, :package_id, :version)
		ON CONFLICT (project_id, package_id) DO NOTHING
	`

	if _, err := r.db.NamedExecContext(ctx, query, deps); err != nil {
		return fmt.Errorf("insert dependencies: %w", err)
	}
	return nil
}

// Delete removes dependencies by id.
func (r *DependencyRepository) Delete(ctx context.Context, dependencyIDs []int64) error {
	if len(dependencyIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(`DELETE FROM project_dependencies WHERE id IN (?)`, dependencyIDs)
	if err != nil {
		return fmt.Errorf("delete dependencies: %w", err)
	}

	if _, execErr := r.db.ExecContext(ctx, r.db.Rebind(query), args...); execErr != nil {
		return fmt.Errorf("delete dependencies: %w", execErr)
	}
	return nil
}
