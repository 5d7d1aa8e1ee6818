package testhelpers

import (
	"context"
	"sync"
	"time"

	"github.com/rocketDuck/folivora/internal/pypi"
)

// FakeIndex is an in-memory pypi.Client with per-method call counters.
type FakeIndex struct {
	mu sync.Mutex

	// PackageNames is returned by ListPackages.
	PackageNames []string
	// VersionsByName maps package name to its release versions.
	VersionsByName map[string][]string
	// ArtifactsByRelease maps "name version" to artifact descriptors.
	ArtifactsByRelease map[string][]pypi.ReleaseArtifact
	// Events is returned by Changelog.
	Events []pypi.ChangeEvent

	// Err, when set, is returned by every call.
	Err error

	ListPackagesCalls     int
	ListVersionsCalls     int
	ReleaseArtifactsCalls int
	ChangelogCalls        int

	// ChangelogSince records the since argument of each Changelog call.
	ChangelogSince []time.Time
}

// NewFakeIndex creates an empty fake index.
func NewFakeIndex() *FakeIndex {
	return &FakeIndex{
		VersionsByName:     map[string][]string{},
		ArtifactsByRelease: map[string][]pypi.ReleaseArtifact{},
	}
}

// AddRelease registers a version with one artifact uploaded at the given time.
func (f *FakeIndex) AddRelease(name, version string, uploaded time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VersionsByName[name] = append(f.VersionsByName[name], version)
	f.ArtifactsByRelease[name+" "+version] = []pypi.ReleaseArtifact{
		{URL: "https://files.example.org/" + name + "-" + version + ".tar.gz", UploadTime: uploaded},
	}
}

// ListPackages implements pypi.Client.
func (f *FakeIndex) ListPackages(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListPackagesCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]string(nil), f.PackageNames...), nil
}

// ListVersions implements pypi.Client.
func (f *FakeIndex) ListVersions(_ context.Context, name string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ListVersionsCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]string(nil), f.VersionsByName[name]...), nil
}

// ReleaseArtifacts implements pypi.Client.
func (f *FakeIndex) ReleaseArtifacts(_ context.Context, name, version string) ([]pypi.ReleaseArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ReleaseArtifactsCalls++
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]pypi.ReleaseArtifact(nil), f.ArtifactsByRelease[name+" "+version]...), nil
}

// Changelog implements pypi.Client.
func (f *FakeIndex) Changelog(_ context.Context, since time.Time) ([]pypi.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ChangelogCalls++
	f.ChangelogSince = append(f.ChangelogSince, since)
	if f.Err != nil {
		return nil, f.Err
	}
	return append([]pypi.ChangeEvent(nil), f.Events...), nil
}
