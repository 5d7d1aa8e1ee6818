// Package resync recomputes per-project dependency state against the
// package catalog.
package resync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rocketDuck/folivora/internal/catalog"
	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/pypi"
	"github.com/rocketDuck/folivora/internal/version"
)

// DefaultResyncDelay gives a dependency-set write time to become
// visible before the scheduled resync reads it.
const DefaultResyncDelay = time.Second

// TaskScheduler schedules background resync work. Dependency-set edits
// never wait for the resync itself.
type TaskScheduler interface {
	ScheduleResync(ctx context.Context, projectID int64, delay time.Duration) error
}

// Router delivers a batch of log entries as notifications. Log rows are
// durable before Route is called; a delivery error propagates so the
// caller can retry the batch.
type Router interface {
	Route(ctx context.Context, projectID int64, entries []domain.LogEntry) error
}

// Engine recomputes update pointers and applies dependency-set edits.
type Engine struct {
	catalog *catalog.Catalog
	deps    database.DependencyStore
	logs    database.LogStore
	router  Router
	tasks   TaskScheduler
	delay   time.Duration
	log     logger.Logger
}

// New creates a resync engine.
func New(
	cat *catalog.Catalog,
	deps database.DependencyStore,
	logs database.LogStore,
	router Router,
	tasks TaskScheduler,
	log logger.Logger,
) *Engine {
	return &Engine{
		catalog: cat,
		deps:    deps,
		logs:    logs,
		router:  router,
		tasks:   tasks,
		delay:   DefaultResyncDelay,
		log:     log,
	}
}

// ResyncProject re-evaluates every dependency of a project: backfills
// missing version history, recomputes update pointers, and sends one
// digest for all newly discovered updates. Safe to invoke redundantly.
func (e *Engine) ResyncProject(ctx context.Context, project *domain.Project) error {
	deps, err := e.deps.ListByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("resync project %s: %w", project.Slug, err)
	}

	var entries []domain.LogEntry
	now := time.Now().UTC()

	for i := range deps {
		dep := &deps[i]

		pkg, lookupErr := e.catalog.LookupPackage(ctx, dep.PackageName)
		if lookupErr != nil {
			return fmt.Errorf("resync project %s: package %s: %w", project.Slug, dep.PackageName, lookupErr)
		}

		if backfillErr := e.catalog.BackfillVersions(ctx, pkg); backfillErr != nil {
			if errors.Is(backfillErr, pypi.ErrUnavailable) {
				// Transient index failure: skip this package, keep going.
				e.log.Warn("Backfill unavailable during resync",
					logger.String("project", project.Slug),
					logger.String("package", pkg.Name),
					logger.Error(backfillErr))
				continue
			}
			return fmt.Errorf("resync project %s: %w", project.Slug, backfillErr)
		}

		latest, latestErr := e.catalog.LatestVersion(ctx, pkg.ID)
		if latestErr != nil {
			return fmt.Errorf("resync project %s: %w", project.Slug, latestErr)
		}
		if latest == nil {
			// Unknown history is not "up to date": leave the pointer alone.
			continue
		}

		if version.Compare(dep.Version, latest.Version) >= 0 {
			if dep.UpdateID != nil {
				if clearErr := e.deps.SetUpdate(ctx, dep.ID, nil); clearErr != nil {
					return fmt.Errorf("resync project %s: %w", project.Slug, clearErr)
				}
				dep.UpdateID = nil
			}
			continue
		}

		if dep.UpdateID != nil && *dep.UpdateID == latest.ID {
			continue
		}

		updateID := latest.ID
		if setErr := e.deps.SetUpdate(ctx, dep.ID, &updateID); setErr != nil {
			return fmt.Errorf("resync project %s: %w", project.Slug, setErr)
		}
		dep.UpdateID = &updateID

		projectID := project.ID
		packageID := pkg.ID
		entries = append(entries, domain.LogEntry{
			ProjectID: &projectID,
			PackageID: &packageID,
			Action:    domain.ActionUpdateAvailable,
			Data: domain.JSONBMap{
				"name":    dep.PackageName,
				"version": latest.Version,
				"since":   latest.Released.Format(time.RFC3339),
			},
			When: now,
		})
	}

	if len(entries) == 0 {
		return nil
	}

	// Log first, notify second: the audit trail must be durable before
	// delivery is attempted.
	if err := e.logs.BulkInsert(ctx, entries); err != nil {
		return fmt.Errorf("resync project %s: %w", project.Slug, err)
	}
	if err := e.router.Route(ctx, project.ID, entries); err != nil {
		return fmt.Errorf("resync project %s: notify: %w", project.Slug, err)
	}

	e.log.Info("Project resync found updates",
		logger.String("project", project.Slug),
		logger.Int("updates", len(entries)))
	return nil
}

// RefreshPackagePointers recomputes the update pointer of every
// dependency pinning the given package. Used by the changelog
// reconciler after catalog state changed; pointers are recomputed, not
// blindly cleared, so an existing update never flickers away. Returns
// the affected dependencies.
func (e *Engine) RefreshPackagePointers(ctx context.Context, pkg *domain.Package) ([]domain.ProjectDependency, error) {
	deps, err := e.deps.ListByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh pointers for %s: %w", pkg.Name, err)
	}
	if len(deps) == 0 {
		return nil, nil
	}

	latest, err := e.catalog.LatestVersion(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("refresh pointers for %s: %w", pkg.Name, err)
	}

	for i := range deps {
		dep := &deps[i]

		var want *int64
		if latest != nil && version.Compare(dep.Version, latest.Version) < 0 {
			id := latest.ID
			want = &id
		}
		if latest == nil {
			// History is unknown; only an explicit remove clears pointers.
			continue
		}

		if equalPointer(dep.UpdateID, want) {
			continue
		}
		if setErr := e.deps.SetUpdate(ctx, dep.ID, want); setErr != nil {
			return nil, fmt.Errorf("refresh pointers for %s: %w", pkg.Name, setErr)
		}
		dep.UpdateID = want
	}

	return deps, nil
}

// ClearPackagePointers clears the update pointer of every dependency
// pinning the package. Used on index "remove" events. Returns the
// affected dependencies.
func (e *Engine) ClearPackagePointers(ctx context.Context, pkg *domain.Package) ([]domain.ProjectDependency, error) {
	deps, err := e.deps.ListByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("clear pointers for %s: %w", pkg.Name, err)
	}

	for i := range deps {
		dep := &deps[i]
		if dep.UpdateID == nil {
			continue
		}
		if clearErr := e.deps.SetUpdate(ctx, dep.ID, nil); clearErr != nil {
			return nil, fmt.Errorf("clear pointers for %s: %w", pkg.Name, clearErr)
		}
		dep.UpdateID = nil
	}

	return deps, nil
}

// ChangeResult reports the outcome of a dependency-set edit.
type ChangeResult struct {
	Added   int      `json:"added"`
	Removed int      `json:"removed"`
	Changed int      `json:"changed"`
	Missing []string `json:"missing,omitempty"`
}

// ApplyDependencySetChange diffs the desired pinned map against the
// project's current dependency set and applies the difference.
// Names that cannot be resolved in the catalog are dropped from
// additions and reported in the missing list; the rest of the set
// always succeeds. A delayed resync of the project is scheduled so the
// write is visible before it runs.
func (e *Engine) ApplyDependencySetChange(ctx context.Context, project *domain.Project, pinned map[string]string, actor string) (*ChangeResult, error) {
	current, err := e.deps.ListByProject(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("change dependencies of %s: %w", project.Slug, err)
	}

	currentByName := make(map[string]domain.ProjectDependency, len(current))
	for _, dep := range current {
		currentByName[dep.PackageName] = dep
	}

	desired := make(map[string]string, len(pinned))
	for name, ver := range pinned {
		desired[pypi.NormalizeName(name)] = ver
	}

	result := &ChangeResult{}
	var additions []domain.ProjectDependency
	var removalIDs []int64
	var entries []domain.LogEntry
	now := time.Now().UTC()

	newEntry := func(action string, packageID int64, data domain.JSONBMap) domain.LogEntry {
		projectID := project.ID
		pkgID := packageID
		act := actor
		return domain.LogEntry{
			ProjectID: &projectID,
			PackageID: &pkgID,
			Actor:     &act,
			Action:    action,
			Data:      data,
			When:      now,
		}
	}

	// Deterministic order keeps the log readable and tests stable.
	names := make([]string, 0, len(desired))
	for name := range desired {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ver := desired[name]
		if existing, ok := currentByName[name]; ok {
			if existing.Version == ver {
				continue
			}
			if pinErr := e.deps.SetPinned(ctx, existing.ID, ver); pinErr != nil {
				return nil, fmt.Errorf("change dependencies of %s: %w", project.Slug, pinErr)
			}
			result.Changed++
			entries = append(entries, newEntry(domain.ActionDependencyUpdate, existing.PackageID, domain.JSONBMap{
				"version":     ver,
				"old_version": existing.Version,
			}))
			continue
		}

		pkg, lookupErr := e.catalog.LookupPackage(ctx, name)
		if errors.Is(lookupErr, database.ErrNotFound) {
			// Never create a dependency on an unresolvable package.
			result.Missing = append(result.Missing, name)
			continue
		}
		if lookupErr != nil {
			return nil, fmt.Errorf("change dependencies of %s: %w", project.Slug, lookupErr)
		}

		additions = append(additions, domain.ProjectDependency{
			ProjectID:   project.ID,
			PackageID:   pkg.ID,
			Version:     ver,
			PackageName: pkg.Name,
		})
		result.Added++
		entries = append(entries, newEntry(domain.ActionDependencyAdd, pkg.ID, domain.JSONBMap{
			"version": ver,
		}))
	}

	for name, dep := range currentByName {
		if _, keep := desired[name]; keep {
			continue
		}
		removalIDs = append(removalIDs, dep.ID)
		result.Removed++
		entries = append(entries, newEntry(domain.ActionDependencyRemove, dep.PackageID, domain.JSONBMap{
			"version": dep.Version,
		}))
	}

	// Removals, then changes (already applied above), then additions.
	if err := e.deps.Delete(ctx, removalIDs); err != nil {
		return nil, fmt.Errorf("change dependencies of %s: %w", project.Slug, err)
	}
	if err := e.deps.Insert(ctx, additions); err != nil {
		return nil, fmt.Errorf("change dependencies of %s: %w", project.Slug, err)
	}

	if err := e.logs.BulkInsert(ctx, entries); err != nil {
		return nil, fmt.Errorf("change dependencies of %s: %w", project.Slug, err)
	}

	if len(entries) > 0 && e.tasks != nil {
		if err := e.tasks.ScheduleResync(ctx, project.ID, e.delay); err != nil {
			return nil, fmt.Errorf("change dependencies of %s: schedule resync: %w", project.Slug, err)
		}
	}

	return result, nil
}

func equalPointer(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
