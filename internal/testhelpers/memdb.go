// Package testhelpers provides in-memory store and index fakes for
// service-level tests.
package testhelpers

import (
	"context"
	"sync"
	"time"

	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
)

// MemDB is an in-memory backing store shared by the Mem* repositories.
// It enforces the same uniqueness constraints as the real schema.
type MemDB struct {
	mu sync.Mutex

	nextID       int64
	Packages     []domain.Package
	Versions     []domain.PackageVersion
	Projects     []domain.Project
	Members      []domain.ProjectMember
	Dependencies []domain.ProjectDependency
	Logs         []domain.LogEntry
	SyncStates   []domain.SyncState
}

// NewMemDB creates an empty in-memory database.
func NewMemDB() *MemDB {
	return &MemDB{}
}

func (m *MemDB) id() int64 {
	m.nextID++
	return m.nextID
}

// AddProject seeds a project row.
func (m *MemDB) AddProject(name, slug string) domain.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Project{ID: m.id(), Name: name, Slug: slug, CreatedAt: time.Now()}
	m.Projects = append(m.Projects, p)
	return p
}

// AddMember seeds a project member row.
func (m *MemDB) AddMember(projectID int64, userName string, state int, mail, userMail string) domain.ProjectMember {
	m.mu.Lock()
	defer m.mu.Unlock()
	mem := domain.ProjectMember{
		ID: m.id(), ProjectID: projectID, UserName: userName,
		State: state, Mail: mail, UserMail: userMail,
	}
	m.Members = append(m.Members, mem)
	return mem
}

// AddPackage seeds a package row.
func (m *MemDB) AddPackage(name string, synced bool) domain.Package {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := domain.Package{
		ID: m.id(), Name: name, Provider: domain.ProviderPyPI,
		URL: "https://pypi.org/pypi/" + name, InitialSyncDone: synced, CreatedAt: time.Now(),
	}
	m.Packages = append(m.Packages, p)
	return p
}

// AddVersion seeds a version row.
func (m *MemDB) AddVersion(packageID int64, version string, released time.Time) domain.PackageVersion {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := domain.PackageVersion{ID: m.id(), PackageID: packageID, Version: version, Released: released}
	m.Versions = append(m.Versions, v)
	return v
}

// AddDependency seeds a dependency row.
func (m *MemDB) AddDependency(projectID, packageID int64, version string) domain.ProjectDependency {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := domain.ProjectDependency{ID: m.id(), ProjectID: projectID, PackageID: packageID, Version: version}
	for _, p := range m.Packages {
		if p.ID == packageID {
			d.PackageName = p.Name
		}
	}
	m.Dependencies = append(m.Dependencies, d)
	return d
}

// Dependency returns a dependency row by id.
func (m *MemDB) Dependency(id int64) (domain.ProjectDependency, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.Dependencies {
		if d.ID == id {
			return d, true
		}
	}
	return domain.ProjectDependency{}, false
}

// LogEntries returns a copy of all appended log entries.
func (m *MemDB) LogEntries() []domain.LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.LogEntry(nil), m.Logs...)
}

// MemPackages implements database.PackageStore.
type MemPackages struct{ DB *MemDB }

// GetByName returns the package with the given identity.
func (s *MemPackages) GetByName(_ context.Context, name, provider string) (*domain.Package, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Packages {
		if s.DB.Packages[i].Name == name && s.DB.Packages[i].Provider == provider {
			pkg := s.DB.Packages[i]
			return &pkg, nil
		}
	}
	return nil, database.ErrNotFound
}

// Ensure gets or creates a package row.
func (s *MemPackages) Ensure(ctx context.Context, name, provider, url string) (*domain.Package, error) {
	if pkg, err := s.GetByName(ctx, name, provider); err == nil {
		return pkg, nil
	}
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	pkg := domain.Package{ID: s.DB.id(), Name: name, Provider: provider, URL: url, CreatedAt: time.Now()}
	s.DB.Packages = append(s.DB.Packages, pkg)
	return &pkg, nil
}

// MarkSynced sets initial_sync_done.
func (s *MemPackages) MarkSynced(_ context.Context, packageID int64) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Packages {
		if s.DB.Packages[i].ID == packageID {
			s.DB.Packages[i].InitialSyncDone = true
			return nil
		}
	}
	return database.ErrNotFound
}

// BulkInsert inserts packages, skipping existing names.
func (s *MemPackages) BulkInsert(ctx context.Context, packages []domain.Package) (int64, error) {
	var inserted int64
	for _, pkg := range packages {
		if _, err := s.GetByName(ctx, pkg.Name, pkg.Provider); err == nil {
			continue
		}
		s.DB.mu.Lock()
		pkg.ID = s.DB.id()
		s.DB.Packages = append(s.DB.Packages, pkg)
		s.DB.mu.Unlock()
		inserted++
	}
	return inserted, nil
}

// MemVersions implements database.VersionStore.
type MemVersions struct {
	DB *MemDB

	// RecordErr, when set, is returned by Record for RecordErrVersion.
	RecordErr        error
	RecordErrVersion string
}

// Record inserts a version unless it exists.
func (s *MemVersions) Record(_ context.Context, packageID int64, version string, released time.Time) (bool, error) {
	if s.RecordErr != nil && version == s.RecordErrVersion {
		return false, s.RecordErr
	}
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for _, v := range s.DB.Versions {
		if v.PackageID == packageID && v.Version == version {
			return false, nil
		}
	}
	s.DB.Versions = append(s.DB.Versions, domain.PackageVersion{
		ID: s.DB.id(), PackageID: packageID, Version: version, Released: released,
	})
	return true, nil
}

// Get returns one version row.
func (s *MemVersions) Get(_ context.Context, packageID int64, version string) (*domain.PackageVersion, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Versions {
		if s.DB.Versions[i].PackageID == packageID && s.DB.Versions[i].Version == version {
			v := s.DB.Versions[i]
			return &v, nil
		}
	}
	return nil, database.ErrNotFound
}

// ListByPackage returns all versions of a package.
func (s *MemVersions) ListByPackage(_ context.Context, packageID int64) ([]domain.PackageVersion, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	var out []domain.PackageVersion
	for _, v := range s.DB.Versions {
		if v.PackageID == packageID {
			out = append(out, v)
		}
	}
	return out, nil
}

// DeleteByPackage removes all versions of a package.
func (s *MemVersions) DeleteByPackage(_ context.Context, packageID int64) (int64, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	var kept []domain.PackageVersion
	var deleted int64
	for _, v := range s.DB.Versions {
		if v.PackageID == packageID {
			deleted++
			continue
		}
		kept = append(kept, v)
	}
	s.DB.Versions = kept
	return deleted, nil
}

// MemProjects implements database.ProjectStore.
type MemProjects struct{ DB *MemDB }

// GetBySlug returns a project by slug.
func (s *MemProjects) GetBySlug(_ context.Context, slug string) (*domain.Project, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Projects {
		if s.DB.Projects[i].Slug == slug {
			p := s.DB.Projects[i]
			return &p, nil
		}
	}
	return nil, database.ErrNotFound
}

// GetByID returns a project by id.
func (s *MemProjects) GetByID(_ context.Context, id int64) (*domain.Project, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Projects {
		if s.DB.Projects[i].ID == id {
			p := s.DB.Projects[i]
			return &p, nil
		}
	}
	return nil, database.ErrNotFound
}

// Members returns all members of a project.
func (s *MemProjects) Members(_ context.Context, projectID int64) ([]domain.ProjectMember, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	var out []domain.ProjectMember
	for _, m := range s.DB.Members {
		if m.ProjectID == projectID {
			out = append(out, m)
		}
	}
	return out, nil
}

// MemDependencies implements database.DependencyStore.
type MemDependencies struct{ DB *MemDB }

// ListByProject returns all dependencies of a project.
func (s *MemDependencies) ListByProject(_ context.Context, projectID int64) ([]domain.ProjectDependency, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	var out []domain.ProjectDependency
	for _, d := range s.DB.Dependencies {
		if d.ProjectID == projectID {
			out = append(out, d)
		}
	}
	return out, nil
}

// ListByPackage returns all dependencies pinning a package.
func (s *MemDependencies) ListByPackage(_ context.Context, packageID int64) ([]domain.ProjectDependency, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	var out []domain.ProjectDependency
	for _, d := range s.DB.Dependencies {
		if d.PackageID == packageID {
			out = append(out, d)
		}
	}
	return out, nil
}

// SetUpdate sets or clears the update pointer.
func (s *MemDependencies) SetUpdate(_ context.Context, dependencyID int64, updateID *int64) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Dependencies {
		if s.DB.Dependencies[i].ID == dependencyID {
			s.DB.Dependencies[i].UpdateID = updateID
			return nil
		}
	}
	return database.ErrNotFound
}

// SetPinned changes a pinned version.
func (s *MemDependencies) SetPinned(_ context.Context, dependencyID int64, version string) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.Dependencies {
		if s.DB.Dependencies[i].ID == dependencyID {
			s.DB.Dependencies[i].Version = version
			return nil
		}
	}
	return database.ErrNotFound
}

// Insert bulk-inserts dependencies.
func (s *MemDependencies) Insert(_ context.Context, deps []domain.ProjectDependency) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
outer:
	for _, d := range deps {
		for _, existing := range s.DB.Dependencies {
			if existing.ProjectID == d.ProjectID && existing.PackageID == d.PackageID {
				continue outer
			}
		}
		d.ID = s.DB.id()
		s.DB.Dependencies = append(s.DB.Dependencies, d)
	}
	return nil
}

// Delete removes dependencies by id.
func (s *MemDependencies) Delete(_ context.Context, dependencyIDs []int64) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	drop := make(map[int64]bool, len(dependencyIDs))
	for _, id := range dependencyIDs {
		drop[id] = true
	}
	var kept []domain.ProjectDependency
	for _, d := range s.DB.Dependencies {
		if !drop[d.ID] {
			kept = append(kept, d)
		}
	}
	s.DB.Dependencies = kept
	return nil
}

// MemLogs implements database.LogStore.
type MemLogs struct{ DB *MemDB }

// BulkInsert appends log entries.
func (s *MemLogs) BulkInsert(_ context.Context, entries []domain.LogEntry) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for _, e := range entries {
		e.ID = s.DB.id()
		s.DB.Logs = append(s.DB.Logs, e)
	}
	return nil
}

// ListByProject returns the newest entries of a project.
func (s *MemLogs) ListByProject(_ context.Context, projectID int64, limit int) ([]domain.LogEntry, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	var out []domain.LogEntry
	for i := len(s.DB.Logs) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.DB.Logs[i]
		if e.ProjectID != nil && *e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

// MemSyncState implements database.SyncStateStore.
type MemSyncState struct{ DB *MemDB }

// GetOrCreate returns the checkpoint, initializing it on first use.
func (s *MemSyncState) GetOrCreate(_ context.Context, feedType string, def time.Time) (*domain.SyncState, error) {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.SyncStates {
		if s.DB.SyncStates[i].Type == feedType {
			st := s.DB.SyncStates[i]
			return &st, nil
		}
	}
	st := domain.SyncState{ID: s.DB.id(), Type: feedType, LastSync: def}
	s.DB.SyncStates = append(s.DB.SyncStates, st)
	return &st, nil
}

// Advance performs the checkpoint compare-and-swap.
func (s *MemSyncState) Advance(_ context.Context, feedType string, expected, next time.Time) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.SyncStates {
		if s.DB.SyncStates[i].Type == feedType && s.DB.SyncStates[i].LastSync.Equal(expected) {
			s.DB.SyncStates[i].LastSync = next
			return nil
		}
	}
	return database.ErrCheckpointConflict
}

// Reset forces the checkpoint to a given time.
func (s *MemSyncState) Reset(_ context.Context, feedType string, to time.Time) error {
	s.DB.mu.Lock()
	defer s.DB.mu.Unlock()
	for i := range s.DB.SyncStates {
		if s.DB.SyncStates[i].Type == feedType {
			s.DB.SyncStates[i].LastSync = to
			return nil
		}
	}
	s.DB.SyncStates = append(s.DB.SyncStates, domain.SyncState{ID: s.DB.id(), Type: feedType, LastSync: to})
	return nil
}
