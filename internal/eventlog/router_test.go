package eventlog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/eventlog"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/testhelpers"
)

type delivery struct {
	project *domain.Project
	members []domain.ProjectMember
	entries []domain.LogEntry
}

func entry(projectID int64, action string) domain.LogEntry {
	id := projectID
	return domain.LogEntry{ProjectID: &id, Action: action}
}

func TestRoute_DispatchesToRegisteredHandler(t *testing.T) {
	db := testhelpers.NewMemDB()
	project := db.AddProject("folivora", "folivora")
	db.AddMember(project.ID, "alice", domain.MemberStateOwner, "", "alice@example.org")

	var got []delivery
	router := eventlog.NewRouter(&testhelpers.MemProjects{DB: db}, map[string]eventlog.Handler{
		domain.ActionUpdateAvailable: func(_ context.Context, p *domain.Project, members []domain.ProjectMember, entries []domain.LogEntry) error {
			got = append(got, delivery{project: p, members: members, entries: entries})
			return nil
		},
	}, logger.NewNop())

	entries := []domain.LogEntry{
		entry(project.ID, domain.ActionUpdateAvailable),
		entry(project.ID, domain.ActionUpdateAvailable),
	}
	require.NoError(t, router.Route(context.Background(), project.ID, entries))

	require.Len(t, got, 1)
	assert.Equal(t, "folivora", got[0].project.Slug)
	require.Len(t, got[0].members, 1)
	assert.Equal(t, "alice@example.org", got[0].members[0].NotifyAddress())
	assert.Len(t, got[0].entries, 2)
}

func TestRoute_UnmappedActionIsNoOp(t *testing.T) {
	db := testhelpers.NewMemDB()
	project := db.AddProject("folivora", "folivora")

	router := eventlog.NewRouter(&testhelpers.MemProjects{DB: db}, nil, logger.NewNop())

	err := router.Route(context.Background(), project.ID, []domain.LogEntry{
		entry(project.ID, domain.ActionNewRelease),
	})
	require.NoError(t, err)
}

func TestRoute_GroupsByActionAndSkipsUnmapped(t *testing.T) {
	db := testhelpers.NewMemDB()
	project := db.AddProject("folivora", "folivora")

	var actions []string
	handler := func(_ context.Context, _ *domain.Project, _ []domain.ProjectMember, entries []domain.LogEntry) error {
		actions = append(actions, entries[0].Action)
		return nil
	}
	router := eventlog.NewRouter(&testhelpers.MemProjects{DB: db}, map[string]eventlog.Handler{
		domain.ActionUpdateAvailable: handler,
		domain.ActionRemovePackage:   handler,
	}, logger.NewNop())

	entries := []domain.LogEntry{
		entry(project.ID, domain.ActionUpdateAvailable),
		entry(project.ID, domain.ActionNewRelease),
		entry(project.ID, domain.ActionRemovePackage),
		entry(project.ID, domain.ActionUpdateAvailable),
	}
	require.NoError(t, router.Route(context.Background(), project.ID, entries))

	assert.Equal(t, []string{domain.ActionUpdateAvailable, domain.ActionRemovePackage}, actions)
}

func TestRoute_DeliveryFailurePropagates(t *testing.T) {
	db := testhelpers.NewMemDB()
	project := db.AddProject("folivora", "folivora")

	router := eventlog.NewRouter(&testhelpers.MemProjects{DB: db}, map[string]eventlog.Handler{
		domain.ActionUpdateAvailable: func(context.Context, *domain.Project, []domain.ProjectMember, []domain.LogEntry) error {
			return assert.AnError
		},
	}, logger.NewNop())

	err := router.Route(context.Background(), project.ID, []domain.LogEntry{
		entry(project.ID, domain.ActionUpdateAvailable),
	})
	require.Error(t, err)
}

func TestRoute_UnknownProjectFailsOnlyWhenHandlerMatches(t *testing.T) {
	db := testhelpers.NewMemDB()

	router := eventlog.NewRouter(&testhelpers.MemProjects{DB: db}, map[string]eventlog.Handler{
		domain.ActionUpdateAvailable: func(context.Context, *domain.Project, []domain.ProjectMember, []domain.LogEntry) error {
			return nil
		},
	}, logger.NewNop())

	// No handler matches: the missing project is never loaded.
	require.NoError(t, router.Route(context.Background(), 42, []domain.LogEntry{
		entry(42, domain.ActionNewRelease),
	}))

	// A matching handler forces the lookup, which fails.
	require.Error(t, router.Route(context.Background(), 42, []domain.LogEntry{
		entry(42, domain.ActionUpdateAvailable),
	}))
}
