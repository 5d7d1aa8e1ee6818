// Package catalog maintains the authoritative store of known packages
// and their discovered versions.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/pypi"
	"github.com/rocketDuck/folivora/internal/version"
)

// Catalog owns package and version state. It distinguishes the one-time
// full backfill of a package's version history from the incremental
// updates that arrive via the changelog feed.
type Catalog struct {
	packages database.PackageStore
	versions database.VersionStore
	index    pypi.Client
	server   string
	log      logger.Logger
}

// Config holds catalog configuration.
type Config struct {
	// Server is the index base URL used to derive package URLs.
	Server string
}

// New creates a catalog over the given stores and index client.
func New(packages database.PackageStore, versions database.VersionStore, index pypi.Client, cfg Config, log logger.Logger) *Catalog {
	server := cfg.Server
	if server == "" {
		server = pypi.DefaultServer
	}
	return &Catalog{
		packages: packages,
		versions: versions,
		index:    index,
		server:   server,
		log:      log,
	}
}

// EnsurePackage returns the package for a name, creating it with a
// derived index URL if unseen. The name is normalized first, so all
// spellings of one upstream package converge on a single row.
func (c *Catalog) EnsurePackage(ctx context.Context, name string) (*domain.Package, error) {
	normalized := pypi.NormalizeName(name)
	if normalized == "" {
		return nil, fmt.Errorf("package name %q normalizes to nothing", name)
	}
	return c.packages.Ensure(ctx, normalized, domain.ProviderPyPI, pypi.PackageURL(c.server, normalized))
}

// LookupPackage returns a known package or database.ErrNotFound. It
// never creates rows.
func (c *Catalog) LookupPackage(ctx context.Context, name string) (*domain.Package, error) {
	return c.packages.GetByName(ctx, pypi.NormalizeName(name), domain.ProviderPyPI)
}

// BackfillVersions imports the full version history of a package once.
// After initial_sync_done is set the call returns without touching the
// network. Versions whose artifacts are transiently unavailable are
// skipped; the flag is still set, since the changelog feed covers
// everything from here on.
func (c *Catalog) BackfillVersions(ctx context.Context, pkg *domain.Package) error {
	if pkg.InitialSyncDone {
		return nil
	}

	versions, err := c.index.ListVersions(ctx, pkg.Name)
	if err != nil {
		return fmt.Errorf("backfill %s: %w", pkg.Name, err)
	}

	for _, v := range versions {
		artifacts, artErr := c.index.ReleaseArtifacts(ctx, pkg.Name, v)
		if artErr != nil {
			if errors.Is(artErr, pypi.ErrUnavailable) {
				c.log.Warn("Skipping version during backfill",
					logger.String("package", pkg.Name),
					logger.String("version", v),
					logger.Error(artErr))
				continue
			}
			return fmt.Errorf("backfill %s %s: %w", pkg.Name, v, artErr)
		}
		if len(artifacts) == 0 {
			continue
		}

		if _, recErr := c.versions.Record(ctx, pkg.ID, v, artifacts[0].UploadTime); recErr != nil {
			return fmt.Errorf("backfill %s %s: %w", pkg.Name, v, recErr)
		}
	}

	if err := c.packages.MarkSynced(ctx, pkg.ID); err != nil {
		return fmt.Errorf("backfill %s: %w", pkg.Name, err)
	}
	pkg.InitialSyncDone = true

	c.log.Info("Package backfill complete",
		logger.String("package", pkg.Name),
		logger.Int("versions", len(versions)))
	return nil
}

// RecordVersion registers a release observed on the changelog feed.
// Returns whether the version was new; re-observations are no-ops.
func (c *Catalog) RecordVersion(ctx context.Context, pkg *domain.Package, ver string, released time.Time) (bool, error) {
	return c.versions.Record(ctx, pkg.ID, ver, released)
}

// RemoveAllVersions deletes every recorded version of a package in
// response to an index "remove" event. Version history becomes unknown,
// not "zero versions confirmed"; the package row is preserved.
func (c *Catalog) RemoveAllVersions(ctx context.Context, pkg *domain.Package) (int64, error) {
	return c.versions.DeleteByPackage(ctx, pkg.ID)
}

// LatestVersion returns the newest recorded version of a package by the
// lenient ordering, or nil when no versions are known.
func (c *Catalog) LatestVersion(ctx context.Context, packageID int64) (*domain.PackageVersion, error) {
	versions, err := c.versions.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}

	best := versions[0]
	for _, v := range versions[1:] {
		if version.Less(best.Version, v.Version) {
			best = v
		}
	}
	return &best, nil
}

// Version returns a specific recorded version row.
func (c *Catalog) Version(ctx context.Context, packageID int64, ver string) (*domain.PackageVersion, error) {
	return c.versions.Get(ctx, packageID, ver)
}
