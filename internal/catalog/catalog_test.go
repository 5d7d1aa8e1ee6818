package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketDuck/folivora/internal/catalog"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/testhelpers"
)

func newCatalog(db *testhelpers.MemDB, index *testhelpers.FakeIndex) *catalog.Catalog {
	return catalog.New(
		&testhelpers.MemPackages{DB: db},
		&testhelpers.MemVersions{DB: db},
		index,
		catalog.Config{Server: "https://pypi.org/pypi"},
		logger.NewNop(),
	)
}

func TestEnsurePackage_CreatesWithDerivedURL(t *testing.T) {
	db := testhelpers.NewMemDB()
	cat := newCatalog(db, testhelpers.NewFakeIndex())
	ctx := context.Background()

	pkg, err := cat.EnsurePackage(ctx, "Django")
	require.NoError(t, err)
	assert.Equal(t, "django", pkg.Name)
	assert.Equal(t, "https://pypi.org/pypi/django", pkg.URL)
	assert.False(t, pkg.InitialSyncDone)

	// Same name again resolves to the same row.
	again, err := cat.EnsurePackage(ctx, "django")
	require.NoError(t, err)
	assert.Equal(t, pkg.ID, again.ID)
	assert.Len(t, db.Packages, 1)
}

func TestBackfillVersions(t *testing.T) {
	db := testhelpers.NewMemDB()
	index := testhelpers.NewFakeIndex()
	now := time.Now().UTC()
	index.AddRelease("pmxbot", "1101.7.0", now.Add(-48*time.Hour))
	index.AddRelease("pmxbot", "1101.8.0", now.Add(-24*time.Hour))

	cat := newCatalog(db, index)
	ctx := context.Background()

	pkg, err := cat.EnsurePackage(ctx, "pmxbot")
	require.NoError(t, err)

	require.NoError(t, cat.BackfillVersions(ctx, pkg))
	assert.True(t, pkg.InitialSyncDone)
	assert.Len(t, db.Versions, 2)

	latest, err := cat.LatestVersion(ctx, pkg.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1101.8.0", latest.Version)
}

func TestBackfillVersions_SecondCallIsZeroNetwork(t *testing.T) {
	db := testhelpers.NewMemDB()
	index := testhelpers.NewFakeIndex()
	index.AddRelease("pmxbot", "1101.8.0", time.Now().UTC())

	cat := newCatalog(db, index)
	ctx := context.Background()

	pkg, err := cat.EnsurePackage(ctx, "pmxbot")
	require.NoError(t, err)
	require.NoError(t, cat.BackfillVersions(ctx, pkg))

	listCalls := index.ListVersionsCalls
	artifactCalls := index.ReleaseArtifactsCalls
	versionCount := len(db.Versions)

	require.NoError(t, cat.BackfillVersions(ctx, pkg))

	assert.Equal(t, listCalls, index.ListVersionsCalls, "second backfill must not hit the network")
	assert.Equal(t, artifactCalls, index.ReleaseArtifactsCalls)
	assert.Len(t, db.Versions, versionCount, "second backfill must not change version rows")
}

func TestBackfillVersions_FlagPersistsAcrossReload(t *testing.T) {
	db := testhelpers.NewMemDB()
	index := testhelpers.NewFakeIndex()
	index.AddRelease("pmxbot", "1101.8.0", time.Now().UTC())

	cat := newCatalog(db, index)
	ctx := context.Background()

	pkg, err := cat.EnsurePackage(ctx, "pmxbot")
	require.NoError(t, err)
	require.NoError(t, cat.BackfillVersions(ctx, pkg))

	// A freshly loaded row carries the persisted flag.
	reloaded, err := cat.LookupPackage(ctx, "pmxbot")
	require.NoError(t, err)
	assert.True(t, reloaded.InitialSyncDone)

	require.NoError(t, cat.BackfillVersions(ctx, reloaded))
	assert.Equal(t, 1, index.ListVersionsCalls)
}

func TestBackfillVersions_SkipsVersionsWithoutArtifacts(t *testing.T) {
	db := testhelpers.NewMemDB()
	index := testhelpers.NewFakeIndex()
	now := time.Now().UTC()
	index.AddRelease("gunicorn", "0.14.6", now)
	// A version listed by the index but with no artifacts left.
	index.VersionsByName["gunicorn"] = append(index.VersionsByName["gunicorn"], "0.14.7")

	cat := newCatalog(db, index)
	ctx := context.Background()

	pkg, err := cat.EnsurePackage(ctx, "gunicorn")
	require.NoError(t, err)
	require.NoError(t, cat.BackfillVersions(ctx, pkg))

	assert.Len(t, db.Versions, 1)
	assert.Equal(t, "0.14.6", db.Versions[0].Version)
}

func TestRecordVersion_Idempotent(t *testing.T) {
	db := testhelpers.NewMemDB()
	cat := newCatalog(db, testhelpers.NewFakeIndex())
	ctx := context.Background()
	now := time.Now().UTC()

	pkg, err := cat.EnsurePackage(ctx, "pmxbot")
	require.NoError(t, err)

	inserted, err := cat.RecordVersion(ctx, pkg, "1101.8.1", now)
	require.NoError(t, err)
	assert.True(t, inserted)

	// Re-observing the same version is a no-op, never an update.
	inserted, err = cat.RecordVersion(ctx, pkg, "1101.8.1", now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, inserted)
	require.Len(t, db.Versions, 1)
	assert.Equal(t, now, db.Versions[0].Released)
}

func TestRemoveAllVersions_PreservesPackageRow(t *testing.T) {
	db := testhelpers.NewMemDB()
	cat := newCatalog(db, testhelpers.NewFakeIndex())
	ctx := context.Background()

	pkg, err := cat.EnsurePackage(ctx, "gunicorn")
	require.NoError(t, err)
	_, err = cat.RecordVersion(ctx, pkg, "0.14.6", time.Now().UTC())
	require.NoError(t, err)

	deleted, err := cat.RemoveAllVersions(ctx, pkg)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.Empty(t, db.Versions)
	assert.Len(t, db.Packages, 1, "remove must never delete the package row")

	latest, err := cat.LatestVersion(ctx, pkg.ID)
	require.NoError(t, err)
	assert.Nil(t, latest, "history is unknown after a remove")
}

func TestLatestVersion_LenientOrdering(t *testing.T) {
	db := testhelpers.NewMemDB()
	cat := newCatalog(db, testhelpers.NewFakeIndex())
	ctx := context.Background()
	now := time.Now().UTC()

	pkg, err := cat.EnsurePackage(ctx, "demo")
	require.NoError(t, err)
	for _, v := range []string{"1.9", "1.10", "1.2"} {
		_, err = cat.RecordVersion(ctx, pkg, v, now)
		require.NoError(t, err)
	}

	latest, err := cat.LatestVersion(ctx, pkg.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "1.10", latest.Version, "1.10 is newer than 1.9 numerically")
}
