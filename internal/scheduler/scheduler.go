// Package scheduler runs the background task loop: a cron trigger
// enqueues changelog syncs, a worker pool drains the task stream.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/rocketDuck/folivora/internal/changelog"
	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/metrics"
	"github.com/rocketDuck/folivora/internal/queue"
	"github.com/rocketDuck/folivora/internal/resync"
)

const (
	defaultSyncSchedule = "*/5 * * * *"
	defaultWorkers      = 4
	defaultLeaseTTL     = 10 * time.Minute

	// syncLease is the lease name serializing changelog syncs.
	syncLease = "changelog-sync"
)

// Config holds scheduler settings.
type Config struct {
	SyncSchedule string        `yaml:"sync_schedule" env:"SYNC_SCHEDULE"`
	Workers      int           `yaml:"workers" env:"WORKERS"`
	LeaseTTL     time.Duration `yaml:"lease_ttl" env:"LEASE_TTL"`
}

// Scheduler owns the cron trigger and the worker pool.
type Scheduler struct {
	cfg        Config
	cron       *cron.Cron
	streams    *queue.StreamsClient
	producer   *queue.Producer
	consumer   *queue.Consumer
	reconciler *changelog.Reconciler
	engine     *resync.Engine
	projects   database.ProjectStore
	metrics    *metrics.Metrics
	log        logger.Logger

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New creates a scheduler.
func New(
	cfg Config,
	streams *queue.StreamsClient,
	producer *queue.Producer,
	consumer *queue.Consumer,
	reconciler *changelog.Reconciler,
	engine *resync.Engine,
	projects database.ProjectStore,
	m *metrics.Metrics,
	log logger.Logger,
) *Scheduler {
	if cfg.SyncSchedule == "" {
		cfg.SyncSchedule = defaultSyncSchedule
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	return &Scheduler{
		cfg:        cfg,
		cron:       cron.New(),
		streams:    streams,
		producer:   producer,
		consumer:   consumer,
		reconciler: reconciler,
		engine:     engine,
		projects:   projects,
		metrics:    m,
		log:        log,
	}
}

// Start initializes the consumer group, starts the cron trigger and
// spawns the worker pool. Non-blocking.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.consumer.Initialize(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	ctx, s.cancel = context.WithCancel(ctx)

	if _, err := s.cron.AddFunc(s.cfg.SyncSchedule, func() {
		s.enqueueSync(ctx)
	}); err != nil {
		return fmt.Errorf("start scheduler: invalid schedule %q: %w", s.cfg.SyncSchedule, err)
	}
	s.cron.Start()

	for i := 0; i < s.cfg.Workers; i++ {
		s.wg.Add(1)
		go s.workerLoop(ctx, i)
	}

	s.log.Info("Scheduler started",
		logger.String("schedule", s.cfg.SyncSchedule),
		logger.Int("workers", s.cfg.Workers))
	return nil
}

// Stop halts the cron trigger and waits for the workers to drain.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

// TriggerSync enqueues a changelog sync task immediately.
func (s *Scheduler) TriggerSync(ctx context.Context) error {
	_, err := s.producer.Enqueue(ctx, queue.NewChangelogSyncTask())
	if err == nil {
		s.metrics.TasksEnqueuedTotal.WithLabelValues(queue.TaskChangelogSync).Inc()
	}
	return err
}

// TriggerResync enqueues a resync task for one project immediately.
func (s *Scheduler) TriggerResync(ctx context.Context, projectID int64) error {
	_, err := s.producer.Enqueue(ctx, queue.NewProjectResyncTask(projectID, time.Now().UTC()))
	if err == nil {
		s.metrics.TasksEnqueuedTotal.WithLabelValues(queue.TaskProjectResync).Inc()
	}
	return err
}

func (s *Scheduler) enqueueSync(ctx context.Context) {
	if err := s.TriggerSync(ctx); err != nil {
		s.log.Error("Failed to enqueue changelog sync", logger.Error(err))
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, id int) {
	defer s.wg.Done()

	consumerName := fmt.Sprintf("%s-%d", s.consumer.ConsumerID(), id)
	s.log.Debug("Worker started", logger.String("consumer", consumerName))

	for {
		if ctx.Err() != nil {
			return
		}

		tasks, err := s.consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.log.Error("Failed to read tasks", logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, task := range tasks {
			if ctx.Err() != nil {
				return
			}
			s.handle(ctx, task)
		}

		if depth, depthErr := s.producer.QueueDepth(ctx); depthErr == nil {
			s.metrics.QueueDepth.Set(float64(depth))
		}
	}
}

func (s *Scheduler) handle(ctx context.Context, consumed *queue.ConsumedTask) {
	task := consumed.Task

	// Delayed tasks wait out their grace period so the write that
	// scheduled them is visible.
	if wait := time.Until(task.NotBefore); wait > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}

	var err error
	switch task.Kind {
	case queue.TaskChangelogSync:
		err = s.runChangelogSync(ctx)
	case queue.TaskProjectResync:
		err = s.runProjectResync(ctx, task.ProjectID)
	default:
		s.log.Warn("Dropping task of unknown kind", logger.String("kind", task.Kind))
	}

	if err != nil {
		s.metrics.TasksProcessedTotal.WithLabelValues(task.Kind, "error").Inc()
		s.log.Error("Task failed",
			logger.String("kind", task.Kind),
			logger.Int64("project_id", task.ProjectID),
			logger.Error(err))
		// Left unacknowledged: the pending reclaim retries it later.
		return
	}

	s.metrics.TasksProcessedTotal.WithLabelValues(task.Kind, "ok").Inc()
	if ackErr := s.consumer.Acknowledge(ctx, consumed); ackErr != nil {
		s.log.Error("Failed to acknowledge task", logger.Error(ackErr))
	}
}

// runChangelogSync runs one changelog pass under the global lease so
// only one sync is in flight at a time.
func (s *Scheduler) runChangelogSync(ctx context.Context) error {
	holder := s.consumer.ConsumerID()
	acquired, err := s.streams.AcquireLease(ctx, syncLease, holder, s.cfg.LeaseTTL)
	if err != nil {
		return err
	}
	if !acquired {
		s.log.Debug("Changelog sync already in flight, dropping trigger")
		return nil
	}
	defer func() {
		if releaseErr := s.streams.ReleaseLease(context.WithoutCancel(ctx), syncLease, holder); releaseErr != nil {
			s.log.Warn("Failed to release sync lease", logger.Error(releaseErr))
		}
	}()

	start := time.Now()
	err = s.reconciler.Sync(ctx)
	s.metrics.SyncDurationSecs.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.SyncRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.SyncRunsTotal.WithLabelValues("ok").Inc()
	return nil
}

func (s *Scheduler) runProjectResync(ctx context.Context, projectID int64) error {
	project, err := s.projects.GetByID(ctx, projectID)
	if errors.Is(err, database.ErrNotFound) {
		// The project was deleted after the task was enqueued.
		s.log.Warn("Dropping resync for unknown project", logger.Int64("project_id", projectID))
		return nil
	}
	if err != nil {
		return err
	}

	start := time.Now()
	err = s.engine.ResyncProject(ctx, project)
	s.metrics.ResyncDurationSecs.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ResyncRunsTotal.WithLabelValues("error").Inc()
		return err
	}
	s.metrics.ResyncRunsTotal.WithLabelValues("ok").Inc()
	return nil
}
