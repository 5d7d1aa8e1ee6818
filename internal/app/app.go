// Package app wires configuration, storage, queue and services into a
// runnable application.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rocketDuck/folivora/internal/api"
	"github.com/rocketDuck/folivora/internal/catalog"
	"github.com/rocketDuck/folivora/internal/changelog"
	"github.com/rocketDuck/folivora/internal/config"
	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/eventlog"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/metrics"
	"github.com/rocketDuck/folivora/internal/notify"
	"github.com/rocketDuck/folivora/internal/pypi"
	"github.com/rocketDuck/folivora/internal/queue"
	"github.com/rocketDuck/folivora/internal/resync"
	"github.com/rocketDuck/folivora/internal/scheduler"
)

// Options selects which subsystems to wire. One-shot commands skip the
// queue and admin server.
type Options struct {
	WithQueue bool
}

// App holds the wired application.
type App struct {
	Config *config.Config
	Log    logger.Logger

	DB      *sqlx.DB
	Streams *queue.StreamsClient

	Packages     database.PackageStore
	Versions     database.VersionStore
	Projects     database.ProjectStore
	Dependencies database.DependencyStore
	Logs         database.LogStore
	SyncState    database.SyncStateStore

	Index      pypi.Client
	Catalog    *catalog.Catalog
	Engine     *resync.Engine
	Reconciler *changelog.Reconciler
	Router     *eventlog.Router
	Metrics    *metrics.Metrics

	Scheduler *scheduler.Scheduler
	Server    *api.Server
}

// New wires the application from configuration.
func New(cfg *config.Config, opts Options) (*App, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	db, err := database.NewPostgresConnection(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := database.Migrate(context.Background(), db); err != nil {
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	index, err := pypi.NewXMLRPCClient(cfg.Index)
	if err != nil {
		return nil, fmt.Errorf("create index client: %w", err)
	}

	a := &App{
		Config:       cfg,
		Log:          log,
		DB:           db,
		Packages:     database.NewPackageRepository(db),
		Versions:     database.NewVersionRepository(db),
		Projects:     database.NewProjectRepository(db),
		Dependencies: database.NewDependencyRepository(db),
		Logs:         database.NewLogRepository(db),
		SyncState:    database.NewSyncStateRepository(db),
		Index:        index,
		Metrics:      metrics.New(nil),
	}

	a.Catalog = catalog.New(a.Packages, a.Versions, a.Index, catalog.Config{Server: cfg.Index.URL}, log)

	handlers := map[string]eventlog.Handler{}
	if cfg.Mail.Host != "" {
		mailer, mailErr := notify.New(cfg.Mail, log)
		if mailErr != nil {
			return nil, fmt.Errorf("create mailer: %w", mailErr)
		}
		digest := mailer.DigestHandler()
		handlers[domain.ActionUpdateAvailable] = func(ctx context.Context, project *domain.Project, members []domain.ProjectMember, entries []domain.LogEntry) error {
			if err := digest(ctx, project, members, entries); err != nil {
				return err
			}
			a.Metrics.DigestsSentTotal.Inc()
			return nil
		}
	} else {
		log.Warn("SMTP host not configured, update digests disabled")
	}
	a.Router = eventlog.NewRouter(a.Projects, handlers, log)

	var tasks resync.TaskScheduler
	if opts.WithQueue {
		streams, streamsErr := queue.NewStreamsClient(cfg.Redis)
		if streamsErr != nil {
			return nil, fmt.Errorf("connect to redis: %w", streamsErr)
		}
		a.Streams = streams

		producer := queue.NewProducer(streams, queue.ProducerConfig{})
		consumer, consumerErr := queue.NewConsumer(streams, queue.ConsumerConfig{
			ConsumerID: consumerID(),
		})
		if consumerErr != nil {
			return nil, fmt.Errorf("create queue consumer: %w", consumerErr)
		}
		tasks = producer

		a.Engine = resync.New(a.Catalog, a.Dependencies, a.Logs, a.Router, tasks, log)
		a.Reconciler = changelog.New(a.Index, a.Catalog, a.Engine, a.SyncState, a.Logs, a.Router, log)
		a.Reconciler.ObserveEvents(a.countSyncEvent)
		a.Scheduler = scheduler.New(
			cfg.Scheduler, streams, producer, consumer,
			a.Reconciler, a.Engine, a.Projects, a.Metrics, log,
		)

		handler := api.NewHandler(a.Projects, a.Dependencies, a.Logs, a.Engine, a.Scheduler, log)
		a.Server = api.NewServer(cfg.Server, api.SetupRouter(handler, log), log)
		return a, nil
	}

	a.Engine = resync.New(a.Catalog, a.Dependencies, a.Logs, a.Router, nil, log)
	a.Reconciler = changelog.New(a.Index, a.Catalog, a.Engine, a.SyncState, a.Logs, a.Router, log)
	a.Reconciler.ObserveEvents(a.countSyncEvent)
	return a, nil
}

func (a *App) countSyncEvent(result string) {
	a.Metrics.SyncEventsTotal.WithLabelValues(result).Inc()
}

// Close releases storage and queue connections.
func (a *App) Close() {
	if a.Streams != nil {
		if err := a.Streams.Close(); err != nil {
			a.Log.Warn("Failed to close redis client", logger.Error(err))
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("Failed to close database", logger.Error(err))
		}
	}
	_ = a.Log.Sync()
}

// RunSync runs one changelog sync pass.
func (a *App) RunSync(ctx context.Context) error {
	return a.Reconciler.Sync(ctx)
}

// RunResync resyncs a single project by slug.
func (a *App) RunResync(ctx context.Context, slug string) error {
	project, err := a.Projects.GetBySlug(ctx, slug)
	if err != nil {
		return fmt.Errorf("resync %s: %w", slug, err)
	}
	return a.Engine.ResyncProject(ctx, project)
}

// RunBootstrap performs the initial import: the changelog checkpoint is
// set to now and the full upstream package name list is inserted as
// bare rows. Version history arrives lazily through backfill.
func (a *App) RunBootstrap(ctx context.Context) error {
	start := time.Now().UTC()

	if err := a.SyncState.Reset(ctx, domain.SyncTypeChangelog, start); err != nil {
		return fmt.Errorf("bootstrap: reset checkpoint: %w", err)
	}

	names, err := a.Index.ListPackages(ctx)
	if err != nil {
		return fmt.Errorf("bootstrap: list packages: %w", err)
	}

	packages := make([]domain.Package, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalized := pypi.NormalizeName(name)
		if normalized == "" {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		packages = append(packages, domain.Package{
			Name:     normalized,
			Provider: domain.ProviderPyPI,
			URL:      pypi.PackageURL(a.Config.Index.URL, normalized),
		})
	}

	inserted, err := a.Packages.BulkInsert(ctx, packages)
	if err != nil {
		return fmt.Errorf("bootstrap: insert packages: %w", err)
	}

	a.Log.Info("Bootstrap complete",
		logger.Int("listed", len(names)),
		logger.Int64("inserted", inserted),
		logger.Duration("took", time.Since(start)))
	return nil
}

func consumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return host + "-" + uuid.NewString()[:8]
}
