// Package domain provides domain models used across the application.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ProviderPyPI identifies the PyPI package index provider.
const ProviderPyPI = "pypi"

// Package is a package known to the catalog, identified by its
// normalized name and provider.
type Package struct {
	ID              int64     `db:"id" json:"id"`
	Name            string    `db:"name" json:"name"`
	Provider        string    `db:"provider" json:"provider"`
	URL             string    `db:"url" json:"url"`
	InitialSyncDone bool      `db:"initial_sync_done" json:"initial_sync_done"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// PackageVersion is a single discovered release of a package.
// Versions are immutable once recorded.
type PackageVersion struct {
	ID        int64     `db:"id" json:"id"`
	PackageID int64     `db:"package_id" json:"package_id"`
	Version   string    `db:"version" json:"version"`
	Released  time.Time `db:"released" json:"released"`
}

// Project is a named, slugged collection of pinned dependencies.
type Project struct {
	ID        int64     `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Slug      string    `db:"slug" json:"slug"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Member states.
const (
	MemberStateOwner  = 0
	MemberStateMember = 1
)

// ProjectMember links a user to a project with an optional
// notification address override.
type ProjectMember struct {
	ID        int64  `db:"id" json:"id"`
	ProjectID int64  `db:"project_id" json:"project_id"`
	UserName  string `db:"user_name" json:"user_name"`
	State     int    `db:"state" json:"state"`
	Mail      string `db:"mail" json:"mail"`
	UserMail  string `db:"user_mail" json:"user_mail"`
}

// NotifyAddress returns the address notifications for this member go to.
// The per-project override wins over the account address.
func (m ProjectMember) NotifyAddress() string {
	if m.Mail != "" {
		return m.Mail
	}
	return m.UserMail
}

// ProjectDependency pins a project to an exact version of a package.
// UpdateID points at the newest known PackageVersion strictly newer
// than the pinned version, or is nil when the pin is current.
type ProjectDependency struct {
	ID        int64  `db:"id" json:"id"`
	ProjectID int64  `db:"project_id" json:"project_id"`
	PackageID int64  `db:"package_id" json:"package_id"`
	Version   string `db:"version" json:"version"`
	UpdateID  *int64 `db:"update_id" json:"update_id,omitempty"`

	// PackageName is populated by joined queries for rendering.
	PackageName string `db:"package_name" json:"package_name,omitempty"`
}

// UpdateAvailable reports whether a newer version is known for this pin.
func (d ProjectDependency) UpdateAvailable() bool {
	return d.UpdateID != nil
}

// DependencyString renders the dependency in requirements syntax.
func (d ProjectDependency) DependencyString() string {
	return fmt.Sprintf("%s==%s", d.PackageName, d.Version)
}

// RenderRequirements renders a dependency set as requirements lines,
// sorted by package name.
func RenderRequirements(deps []ProjectDependency) string {
	sorted := make([]ProjectDependency, len(deps))
	copy(sorted, deps)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].PackageName < sorted[j].PackageName
	})

	var b strings.Builder
	for _, d := range sorted {
		b.WriteString(d.DependencyString())
		b.WriteByte('\n')
	}
	return b.String()
}

// Log entry actions recorded by the sync engine.
const (
	ActionNewRelease       = "new_release"
	ActionRemovePackage    = "remove_package"
	ActionUpdateAvailable  = "update_available"
	ActionDependencyAdd    = "add"
	ActionDependencyRemove = "remove"
	ActionDependencyUpdate = "update"
)

// LogEntry is one append-only audit record. Entries are never mutated
// or deleted; ProjectID is nil for global events.
type LogEntry struct {
	ID        int64     `db:"id" json:"id"`
	ProjectID *int64    `db:"project_id" json:"project_id,omitempty"`
	PackageID *int64    `db:"package_id" json:"package_id,omitempty"`
	Actor     *string   `db:"actor" json:"actor,omitempty"`
	Action    string    `db:"action" json:"action"`
	Data      JSONBMap  `db:"data" json:"data"`
	When      time.Time `db:"at" json:"at"`
}

// Sync state types.
const (
	SyncTypeChangelog = "changelog"
)

// SyncState holds the high-water mark of a consumed feed. LastSync is
// monotonically non-decreasing and advanced only after a batch has been
// fully applied.
type SyncState struct {
	ID       int64     `db:"id" json:"id"`
	Type     string    `db:"type" json:"type"`
	LastSync time.Time `db:"last_sync" json:"last_sync"`
}
