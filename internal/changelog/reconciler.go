// Package changelog consumes the package index changelog feed and
// applies its events to the local catalog.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rocketDuck/folivora/internal/catalog"
	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/pypi"
	"github.com/rocketDuck/folivora/internal/resync"
)

// Reconciler replays the changelog window since the stored checkpoint
// and brings the catalog and update pointers in line with it.
//
// Event application is idempotent per event: the checkpoint only
// advances after the whole window applied, so a failed run replays the
// same window and must converge to the same state without duplicate
// log entries.
type Reconciler struct {
	index   pypi.Client
	catalog *catalog.Catalog
	engine  *resync.Engine
	state   database.SyncStateStore
	logs    database.LogStore
	router  resync.Router
	log     logger.Logger

	// now is swapped out in tests.
	now func() time.Time

	// observe, when set, is called once per processed event with its
	// outcome ("applied" or "skipped").
	observe func(result string)
}

// Event outcomes reported through ObserveEvents.
const (
	EventApplied = "applied"
	EventSkipped = "skipped"
)

// ObserveEvents registers a per-event outcome callback, used to feed
// counters without coupling the reconciler to a metrics registry.
func (r *Reconciler) ObserveEvents(fn func(result string)) {
	r.observe = fn
}

func (r *Reconciler) observeEvent(result string) {
	if r.observe != nil {
		r.observe(result)
	}
}

// New creates a changelog reconciler.
func New(
	index pypi.Client,
	cat *catalog.Catalog,
	engine *resync.Engine,
	state database.SyncStateStore,
	logs database.LogStore,
	router resync.Router,
	log logger.Logger,
) *Reconciler {
	return &Reconciler{
		index:   index,
		catalog: cat,
		engine:  engine,
		state:   state,
		logs:    logs,
		router:  router,
		log:     log,
		now:     time.Now,
	}
}

// Sync runs one changelog pass: fetch the window since the checkpoint,
// apply every event in feed order, then advance the checkpoint.
// Idempotent and safe to invoke on a timer.
func (r *Reconciler) Sync(ctx context.Context) error {
	// A fresh install starts from "now"; replaying the full upstream
	// history is the bootstrap command's job, not the feed's.
	state, err := r.state.GetOrCreate(ctx, domain.SyncTypeChangelog, r.now().UTC())
	if err != nil {
		return fmt.Errorf("changelog sync: %w", err)
	}

	// Captured before the fetch so events arriving while we apply the
	// batch land in the next window instead of being lost.
	tentative := r.now().UTC()

	events, err := r.index.Changelog(ctx, state.LastSync)
	if err != nil {
		return fmt.Errorf("changelog sync: fetch since %s: %w", state.LastSync.Format(time.RFC3339), err)
	}

	var entries []domain.LogEntry
	applied := 0
	skipped := 0

	for _, event := range events {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("changelog sync: %w", err)
		}

		eventEntries, applyErr := r.apply(ctx, event)
		if applyErr != nil {
			if errors.Is(applyErr, pypi.ErrUnavailable) {
				// The feed is a hint, not a ledger: a transiently
				// failing event is consumed and its side-effect dropped.
				skipped++
				r.observeEvent(EventSkipped)
				r.log.Warn("Skipping changelog event",
					logger.String("package", event.Name),
					logger.String("version", event.Version),
					logger.String("action", event.Action),
					logger.Error(applyErr))
				continue
			}
			return fmt.Errorf("changelog sync: apply %s %s: %w", event.Action, event.Name, applyErr)
		}
		applied++
		r.observeEvent(EventApplied)
		entries = append(entries, eventEntries...)
	}

	if len(entries) > 0 {
		if err := r.logs.BulkInsert(ctx, entries); err != nil {
			return fmt.Errorf("changelog sync: %w", err)
		}
		if err := r.route(ctx, entries); err != nil {
			return fmt.Errorf("changelog sync: notify: %w", err)
		}
	}

	err = r.state.Advance(ctx, domain.SyncTypeChangelog, state.LastSync, tentative)
	if errors.Is(err, database.ErrCheckpointConflict) {
		// A concurrent run won the checkpoint race. Our application
		// was idempotent, so losing is harmless.
		r.log.Warn("Changelog checkpoint already advanced by another run",
			logger.Time("expected", state.LastSync))
		return nil
	}
	if err != nil {
		return fmt.Errorf("changelog sync: %w", err)
	}

	r.log.Info("Changelog window applied",
		logger.Time("since", state.LastSync),
		logger.Time("until", tentative),
		logger.Int("events", len(events)),
		logger.Int("applied", applied),
		logger.Int("skipped", skipped))
	return nil
}

func (r *Reconciler) apply(ctx context.Context, event pypi.ChangeEvent) ([]domain.LogEntry, error) {
	switch event.Action {
	case pypi.ActionNewRelease:
		return r.applyNewRelease(ctx, event)
	case pypi.ActionRemove:
		return r.applyRemove(ctx, event)
	case pypi.ActionCreate:
		_, err := r.catalog.EnsurePackage(ctx, event.Name)
		return nil, err
	default:
		// The upstream feed carries many event kinds we do not model.
		return nil, nil
	}
}

func (r *Reconciler) applyNewRelease(ctx context.Context, event pypi.ChangeEvent) ([]domain.LogEntry, error) {
	pkg, err := r.catalog.EnsurePackage(ctx, event.Name)
	if err != nil {
		return nil, err
	}

	inserted, err := r.catalog.RecordVersion(ctx, pkg, event.Version, event.Timestamp)
	if err != nil {
		return nil, err
	}

	// Pointers are recomputed rather than blindly cleared so an update
	// that is still outstanding never flickers away. Runs even on
	// replay, in case an earlier attempt failed between record and
	// refresh.
	deps, err := r.engine.RefreshPackagePointers(ctx, pkg)
	if err != nil {
		return nil, err
	}

	if !inserted {
		// Replay of an already-recorded version: state converged, no
		// duplicate log entries. This makes digest delivery at most
		// once: when a run fails after persisting the log but before
		// the mail goes out, the replayed window regenerates nothing
		// and the digest stays unsent. The log row remains the
		// authoritative record.
		return nil, nil
	}

	entries := make([]domain.LogEntry, 0, len(deps))
	for _, dep := range deps {
		projectID := dep.ProjectID
		packageID := pkg.ID
		entries = append(entries, domain.LogEntry{
			ProjectID: &projectID,
			PackageID: &packageID,
			Action:    domain.ActionNewRelease,
			Data:      domain.JSONBMap{"name": pkg.Name, "version": event.Version},
			When:      event.Timestamp,
		})
	}
	return entries, nil
}

func (r *Reconciler) applyRemove(ctx context.Context, event pypi.ChangeEvent) ([]domain.LogEntry, error) {
	if event.Version != "" {
		// Single-release removals are not modelled; only a whole
		// package removal severs state.
		return nil, nil
	}

	pkg, err := r.catalog.LookupPackage(ctx, event.Name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	deps, err := r.engine.ClearPackagePointers(ctx, pkg)
	if err != nil {
		return nil, err
	}

	deleted, err := r.catalog.RemoveAllVersions(ctx, pkg)
	if err != nil {
		return nil, err
	}
	if deleted == 0 {
		// Replay: versions already gone, pointers already clear.
		return nil, nil
	}

	entries := make([]domain.LogEntry, 0, len(deps))
	for _, dep := range deps {
		projectID := dep.ProjectID
		packageID := pkg.ID
		entries = append(entries, domain.LogEntry{
			ProjectID: &projectID,
			PackageID: &packageID,
			Action:    domain.ActionRemovePackage,
			Data:      domain.JSONBMap{"name": pkg.Name},
			When:      event.Timestamp,
		})
	}
	return entries, nil
}

// route groups a batch of entries by owning project and delivers one
// digest per project. Entries without a project are audit-only.
func (r *Reconciler) route(ctx context.Context, entries []domain.LogEntry) error {
	byProject := make(map[int64][]domain.LogEntry)
	var order []int64
	for _, e := range entries {
		if e.ProjectID == nil {
			continue
		}
		if _, seen := byProject[*e.ProjectID]; !seen {
			order = append(order, *e.ProjectID)
		}
		byProject[*e.ProjectID] = append(byProject[*e.ProjectID], e)
	}
	for _, projectID := range order {
		if err := r.router.Route(ctx, projectID, byProject[projectID]); err != nil {
			return err
		}
	}
	return nil
}
