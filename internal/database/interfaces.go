package database

import (
	"context"
	"errors"
	"time"

	"github.com/rocketDuck/folivora/internal/domain"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrCheckpointConflict is returned when a checkpoint compare-and-swap
// loses against a concurrent writer.
var ErrCheckpointConflict = errors.New("sync checkpoint moved concurrently")

// PackageStore handles Package rows.
type PackageStore interface {
	GetByName(ctx context.Context, name, provider string) (*domain.Package, error)
	Ensure(ctx context.Context, name, provider, url string) (*domain.Package, error)
	MarkSynced(ctx context.Context, packageID int64) error
	BulkInsert(ctx context.Context, packages []domain.Package) (int64, error)
}

// VersionStore handles PackageVersion rows. Versions are immutable;
// Record is insert-or-ignore keyed on (package_id, version).
type VersionStore interface {
	Record(ctx context.Context, packageID int64, version string, released time.Time) (bool, error)
	Get(ctx context.Context, packageID int64, version string) (*domain.PackageVersion, error)
	ListByPackage(ctx context.Context, packageID int64) ([]domain.PackageVersion, error)
	DeleteByPackage(ctx context.Context, packageID int64) (int64, error)
}

// ProjectStore handles Project rows and membership.
type ProjectStore interface {
	GetBySlug(ctx context.Context, slug string) (*domain.Project, error)
	GetByID(ctx context.Context, id int64) (*domain.Project, error)
	Members(ctx context.Context, projectID int64) ([]domain.ProjectMember, error)
}

// DependencyStore handles ProjectDependency rows. SetUpdate is the only
// mutation path for the update pointer.
type DependencyStore interface {
	ListByProject(ctx context.Context, projectID int64) ([]domain.ProjectDependency, error)
	ListByPackage(ctx context.Context, packageID int64) ([]domain.ProjectDependency, error)
	SetUpdate(ctx context.Context, dependencyID int64, updateID *int64) error
	SetPinned(ctx context.Context, dependencyID int64, version string) error
	Insert(ctx context.Context, deps []domain.ProjectDependency) error
	Delete(ctx context.Context, dependencyIDs []int64) error
}

// LogStore appends audit log entries. Entries are never mutated.
type LogStore interface {
	BulkInsert(ctx context.Context, entries []domain.LogEntry) error
	ListByProject(ctx context.Context, projectID int64, limit int) ([]domain.LogEntry, error)
}

// SyncStateStore handles feed checkpoints.
type SyncStateStore interface {
	// GetOrCreate returns the checkpoint for a feed type, initializing
	// it to def on first use.
	GetOrCreate(ctx context.Context, feedType string, def time.Time) (*domain.SyncState, error)
	// Advance moves the checkpoint from expected to next atomically and
	// returns ErrCheckpointConflict if another writer got there first.
	Advance(ctx context.Context, feedType string, expected, next time.Time) error
	// Reset forces the checkpoint to the given time, creating it if needed.
	Reset(ctx context.Context, feedType string, to time.Time) error
}
