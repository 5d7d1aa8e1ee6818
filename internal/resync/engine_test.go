package resync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketDuck/folivora/internal/catalog"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/pypi"
	"github.com/rocketDuck/folivora/internal/resync"
	"github.com/rocketDuck/folivora/internal/testhelpers"
)

type recordingRouter struct {
	calls   int
	batches [][]domain.LogEntry
	err     error
}

func (r *recordingRouter) Route(_ context.Context, _ int64, entries []domain.LogEntry) error {
	r.calls++
	r.batches = append(r.batches, entries)
	return r.err
}

type recordingScheduler struct {
	projectIDs []int64
	delays     []time.Duration
}

func (s *recordingScheduler) ScheduleResync(_ context.Context, projectID int64, delay time.Duration) error {
	s.projectIDs = append(s.projectIDs, projectID)
	s.delays = append(s.delays, delay)
	return nil
}

type fixture struct {
	db     *testhelpers.MemDB
	index  *testhelpers.FakeIndex
	router *recordingRouter
	tasks  *recordingScheduler
	engine *resync.Engine
}

func newFixture() *fixture {
	db := testhelpers.NewMemDB()
	index := testhelpers.NewFakeIndex()
	cat := catalog.New(
		&testhelpers.MemPackages{DB: db},
		&testhelpers.MemVersions{DB: db},
		index,
		catalog.Config{},
		logger.NewNop(),
	)
	router := &recordingRouter{}
	tasks := &recordingScheduler{}
	engine := resync.New(
		cat,
		&testhelpers.MemDependencies{DB: db},
		&testhelpers.MemLogs{DB: db},
		router,
		tasks,
		logger.NewNop(),
	)
	return &fixture{db: db, index: index, router: router, tasks: tasks, engine: engine}
}

func TestResyncProject_SetsUpdatePointer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("django", true)
	f.db.AddVersion(pkg.ID, "1.4.1", now.Add(-90*24*time.Hour))
	newer := f.db.AddVersion(pkg.ID, "1.5.1", now.Add(-24*time.Hour))
	dep := f.db.AddDependency(project.ID, pkg.ID, "1.4.1")

	require.NoError(t, f.engine.ResyncProject(ctx, &project))

	got, ok := f.db.Dependency(dep.ID)
	require.True(t, ok)
	require.NotNil(t, got.UpdateID)
	assert.Equal(t, newer.ID, *got.UpdateID)

	entries := f.db.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionUpdateAvailable, entries[0].Action)
	assert.Equal(t, "1.5.1", entries[0].Data["version"])
	require.NotNil(t, entries[0].ProjectID)
	assert.Equal(t, project.ID, *entries[0].ProjectID)

	require.Equal(t, 1, f.router.calls)
	assert.Len(t, f.router.batches[0], 1)
}

func TestResyncProject_UnknownHistoryLeavesPointerUnchanged(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("unknownpkg", true)
	f.db.AddDependency(project.ID, pkg.ID, "0.1")

	require.NoError(t, f.engine.ResyncProject(ctx, &project))

	assert.Empty(t, f.db.LogEntries())
	assert.Zero(t, f.router.calls)
}

func TestResyncProject_UpToDateClearsStalePointer(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("gunicorn", true)
	old := f.db.AddVersion(pkg.ID, "0.14.5", now.Add(-48*time.Hour))
	f.db.AddVersion(pkg.ID, "0.14.6", now)
	dep := f.db.AddDependency(project.ID, pkg.ID, "0.14.6")
	staleID := old.ID
	require.NoError(t, (&testhelpers.MemDependencies{DB: f.db}).SetUpdate(ctx, dep.ID, &staleID))

	require.NoError(t, f.engine.ResyncProject(ctx, &project))

	got, ok := f.db.Dependency(dep.ID)
	require.True(t, ok)
	assert.Nil(t, got.UpdateID)
	assert.Empty(t, f.db.LogEntries())
}

func TestResyncProject_Idempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("django", true)
	f.db.AddVersion(pkg.ID, "1.4.1", now.Add(-90*24*time.Hour))
	f.db.AddVersion(pkg.ID, "1.5.1", now)
	f.db.AddDependency(project.ID, pkg.ID, "1.4.1")

	require.NoError(t, f.engine.ResyncProject(ctx, &project))
	require.NoError(t, f.engine.ResyncProject(ctx, &project))

	assert.Len(t, f.db.LogEntries(), 1)
	assert.Equal(t, 1, f.router.calls)
}

func TestResyncProject_IndexUnavailableSkipsPackage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	healthy := f.db.AddPackage("django", true)
	f.db.AddVersion(healthy.ID, "1.4.1", now.Add(-48*time.Hour))
	f.db.AddVersion(healthy.ID, "1.5.1", now)
	broken := f.db.AddPackage("pmxbot", false)
	depHealthy := f.db.AddDependency(project.ID, healthy.ID, "1.4.1")
	f.db.AddDependency(project.ID, broken.ID, "1101.8.0")

	f.index.Err = pypi.ErrUnavailable

	require.NoError(t, f.engine.ResyncProject(ctx, &project))

	got, ok := f.db.Dependency(depHealthy.ID)
	require.True(t, ok)
	assert.NotNil(t, got.UpdateID)
}

func TestResyncProject_LogsBeforeNotifyFailurePropagates(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("django", true)
	f.db.AddVersion(pkg.ID, "1.4.1", now.Add(-48*time.Hour))
	f.db.AddVersion(pkg.ID, "1.5.1", now)
	f.db.AddDependency(project.ID, pkg.ID, "1.4.1")
	f.router.err = assert.AnError

	err := f.engine.ResyncProject(ctx, &project)
	require.Error(t, err)

	// The entry is durable even though delivery failed.
	assert.Len(t, f.db.LogEntries(), 1)
}

func TestApplyDependencySetChange_Diff(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	project := f.db.AddProject("folivora", "folivora")
	django := f.db.AddPackage("django", true)
	gunicorn := f.db.AddPackage("gunicorn", true)
	f.db.AddPackage("redis", true)
	f.db.AddDependency(project.ID, django.ID, "1.4.1")
	f.db.AddDependency(project.ID, gunicorn.ID, "0.14.6")

	result, err := f.engine.ApplyDependencySetChange(ctx, &project, map[string]string{
		"Django": "1.5.1",
		"redis":  "2.7.2",
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Added)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, result.Changed)
	assert.Empty(t, result.Missing)

	deps, err := (&testhelpers.MemDependencies{DB: f.db}).ListByProject(ctx, project.ID)
	require.NoError(t, err)
	byName := map[string]string{}
	for _, d := range deps {
		byName[d.PackageName] = d.Version
	}
	assert.Equal(t, map[string]string{"django": "1.5.1", "redis": "2.7.2"}, byName)

	actions := map[string]int{}
	for _, e := range f.db.LogEntries() {
		actions[e.Action]++
		require.NotNil(t, e.Actor)
		assert.Equal(t, "admin", *e.Actor)
	}
	assert.Equal(t, map[string]int{
		domain.ActionDependencyAdd:    1,
		domain.ActionDependencyRemove: 1,
		domain.ActionDependencyUpdate: 1,
	}, actions)

	require.Len(t, f.tasks.projectIDs, 1)
	assert.Equal(t, project.ID, f.tasks.projectIDs[0])
	assert.Equal(t, resync.DefaultResyncDelay, f.tasks.delays[0])
}

func TestApplyDependencySetChange_UpdateKeepsOldVersionInLog(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("django", true)
	f.db.AddDependency(project.ID, pkg.ID, "1.4.1")

	_, err := f.engine.ApplyDependencySetChange(ctx, &project, map[string]string{"django": "1.5.1"}, "admin")
	require.NoError(t, err)

	entries := f.db.LogEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ActionDependencyUpdate, entries[0].Action)
	assert.Equal(t, "1.5.1", entries[0].Data["version"])
	assert.Equal(t, "1.4.1", entries[0].Data["old_version"])
}

func TestApplyDependencySetChange_MissingPackagesReported(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("django", true)

	result, err := f.engine.ApplyDependencySetChange(ctx, &project, map[string]string{
		"django":      "1.5.1",
		"no-such-pkg": "0.1",
	}, "admin")
	require.NoError(t, err)

	assert.Equal(t, []string{"no-such-pkg"}, result.Missing)
	assert.Equal(t, 1, result.Added)

	deps, err := (&testhelpers.MemDependencies{DB: f.db}).ListByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, pkg.ID, deps[0].PackageID)
}

func TestApplyDependencySetChange_NoChangesNoResync(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("django", true)
	f.db.AddDependency(project.ID, pkg.ID, "1.4.1")

	result, err := f.engine.ApplyDependencySetChange(ctx, &project, map[string]string{"django": "1.4.1"}, "admin")
	require.NoError(t, err)

	assert.Zero(t, result.Added+result.Removed+result.Changed)
	assert.Empty(t, f.db.LogEntries())
	assert.Empty(t, f.tasks.projectIDs)
}

func TestRefreshPackagePointers_SetsAndKeeps(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	other := f.db.AddProject("other", "other")
	pkg := f.db.AddPackage("pmxbot", true)
	f.db.AddVersion(pkg.ID, "1101.8.0", now.Add(-24*time.Hour))
	newer := f.db.AddVersion(pkg.ID, "1101.8.1", now)
	behind := f.db.AddDependency(project.ID, pkg.ID, "1101.8.0")
	current := f.db.AddDependency(other.ID, pkg.ID, "1101.8.1")

	deps, err := f.engine.RefreshPackagePointers(ctx, &pkg)
	require.NoError(t, err)
	assert.Len(t, deps, 2)

	got, _ := f.db.Dependency(behind.ID)
	require.NotNil(t, got.UpdateID)
	assert.Equal(t, newer.ID, *got.UpdateID)

	got, _ = f.db.Dependency(current.ID)
	assert.Nil(t, got.UpdateID)
}

func TestClearPackagePointers(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	now := time.Now().UTC()

	project := f.db.AddProject("folivora", "folivora")
	pkg := f.db.AddPackage("gunicorn", true)
	v := f.db.AddVersion(pkg.ID, "0.14.6", now)
	dep := f.db.AddDependency(project.ID, pkg.ID, "0.14.5")
	id := v.ID
	require.NoError(t, (&testhelpers.MemDependencies{DB: f.db}).SetUpdate(ctx, dep.ID, &id))

	deps, err := f.engine.ClearPackagePointers(ctx, &pkg)
	require.NoError(t, err)
	require.Len(t, deps, 1)

	got, _ := f.db.Dependency(dep.ID)
	assert.Nil(t, got.UpdateID)
}
