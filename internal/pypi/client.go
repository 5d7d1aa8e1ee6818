// Package pypi provides access to PyPI-compatible package indexes over
// their XML-RPC interface.
package pypi

import (
	"context"
	"errors"
	"time"
)

// DefaultServer is the canonical package index endpoint.
const DefaultServer = "https://pypi.org/pypi"

// ErrUnavailable marks transient index failures: timeouts, rate limits,
// or a package/version that vanished between list and fetch. Callers
// skip the affected unit of work and continue.
var ErrUnavailable = errors.New("package index unavailable")

// ReleaseArtifact describes one downloadable file of a release.
type ReleaseArtifact struct {
	URL        string    `xmlrpc:"url"`
	Filename   string    `xmlrpc:"filename"`
	UploadTime time.Time `xmlrpc:"upload_time"`
}

// ChangeEvent is one entry of the index changelog feed. Version is
// empty for package-level events such as "remove" and "create".
type ChangeEvent struct {
	Name      string
	Version   string
	Timestamp time.Time
	Action    string
}

// Changelog action tags the sync engine reacts to. The upstream feed
// emits many more (docupdate, add file, update classifiers); those are
// ignored.
const (
	ActionNewRelease = "new release"
	ActionRemove     = "remove"
	ActionCreate     = "create"
)

// Client is the package index contract consumed by the sync engine.
type Client interface {
	// ListPackages fetches the master list of package names.
	ListPackages(ctx context.Context) ([]string, error)
	// ListVersions fetches the known release versions of a package.
	// A missing package yields an empty list, not an error.
	ListVersions(ctx context.Context, name string) ([]string, error)
	// ReleaseArtifacts fetches the artifacts of one (name, version).
	ReleaseArtifacts(ctx context.Context, name, version string) ([]ReleaseArtifact, error)
	// Changelog fetches all feed events at or after since, in feed order.
	Changelog(ctx context.Context, since time.Time) ([]ChangeEvent, error)
}
