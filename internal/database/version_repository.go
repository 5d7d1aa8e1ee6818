package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/domain"
)

const versionSelectColumns = `id, package_id, version, released`

// VersionRepository handles database operations for package versions.
type VersionRepository struct {
	db *sqlx.DB
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sqlx.DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Record inserts a version unless it already exists. Re-observing a
// known (package, version) is a no-op, never an update. Returns whether
// a row was inserted.
func (r *VersionRepository) Record(ctx context.Context, packageID int64, version string, released time.Time) (bool, error) {
	query := `
		INSERT INTO package_versions (package_id, version, released)
		VALUES ($1, $2, $3)
		ON CONFLICT (package_id, version) DO NOTHING
	`

	result, err := r.db.ExecContext(ctx, query, packageID, version, released)
	if err != nil {
		return false, fmt.Errorf("record version %s: %w", version, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("record version %s: %w", version, err)
	}
	return n > 0, nil
}

// Get returns one recorded version of a package.
func (r *VersionRepository) Get(ctx context.Context, packageID int64, version string) (*domain.PackageVersion, error) {
	query := `SELECT ` + versionSelectColumns + ` FROM package_versions WHERE package_id = $1 AND version = $2`

	var pv domain.PackageVersion
	err := r.db.GetContext(ctx, &pv, query, packageID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get version %s: %w", version, err)
	}
	return &pv, nil
}

// ListByPackage returns all recorded versions of a package.
func (r *VersionRepository) ListByPackage(ctx context.Context, packageID int64) ([]domain.PackageVersion, error) {
	query := `SELECT ` + versionSelectColumns + ` FROM package_versions WHERE package_id = $1`

	var versions []domain.PackageVersion
	if err := r.db.SelectContext(ctx, &versions, query, packageID); err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return versions, nil
}

// DeleteByPackage removes every recorded version of a package. Used on
// index "remove" events; the package row itself is preserved.
func (r *VersionRepository) DeleteByPackage(ctx context.Context, packageID int64) (int64, error) {
	query := `DELETE FROM package_versions WHERE package_id = $1`

	result, err := r.db.ExecContext(ctx, query, packageID)
	if err != nil {
		return 0, fmt.Errorf("delete versions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete versions: %w", err)
	}
	return n, nil
}
