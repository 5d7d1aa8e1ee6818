package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/domain"
)

const packageSelectColumns = `id, name, provider, url, initial_sync_done, created_at`

// PackageRepository handles database operations for packages.
type PackageRepository struct {
	db *sqlx.DB
}

// NewPackageRepository creates a new package repository.
func NewPackageRepository(db *sqlx.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// GetByName returns the package with the given (name, provider) identity.
func (r *PackageRepository) GetByName(ctx context.Context, name, provider string) (*domain.Package, error) {
	query := `SELECT ` + packageSelectColumns + ` FROM packages WHERE name = $1 AND provider = $2`

	var pkg domain.Package
	err := r.db.GetContext(ctx, &pkg, query, name, provider)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get package %s: %w", name, err)
	}
	return &pkg, nil
}

// Ensure returns the package for (name, provider), creating it if
// unseen. Uses INSERT ... ON CONFLICT DO NOTHING then SELECT so that
// concurrent callers converge on the same row.
func (r *PackageRepository) Ensure(ctx context.Context, name, provider, url string) (*domain.Package, error) {
	insertQuery := `
		INSERT INTO packages (name, provider, url)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, provider) DO NOTHING
	`

	if _, err := r.db.ExecContext(ctx, insertQuery, name, provider, url); err != nil {
		return nil, fmt.Errorf("ensure package %s: %w", name, err)
	}

	return r.GetByName(ctx, name, provider)
}

// MarkSynced sets initial_sync_done after a completed version backfill.
func (r *PackageRepository) MarkSynced(ctx context.Context, packageID int64) error {
	query := `UPDATE packages SET initial_sync_done = TRUE WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, packageID)
	return execRequireRows(result, err, fmt.Errorf("package %d: %w", packageID, ErrNotFound))
}

// BulkInsert inserts packages in one statement, skipping names that
// already exist. Returns the number of rows actually inserted. Used by
// the bootstrap import.
func (r *PackageRepository) BulkInsert(ctx context.Context, packages []domain.Package) (int64, error) {
	if len(packages) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO packages (name, provider, url)
		VALUES (:name, :provider, :url)
		ON CONFLICT (name, provider) DO NOTHING
	`

	result, err := r.db.NamedExecContext(ctx, query, packages)
	if err != nil {
		return 0, fmt.Errorf("bulk insert packages: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bulk insert packages: %w", err)
	}
	return inserted, nil
}
