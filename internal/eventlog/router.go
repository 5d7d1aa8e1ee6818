// Package eventlog routes appended log entries to notification
// handlers.
package eventlog

import (
	"context"
	"fmt"

	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/logger"
)

// Handler delivers one batch of same-action entries for a project.
type Handler func(ctx context.Context, project *domain.Project, members []domain.ProjectMember, entries []domain.LogEntry) error

// Router fans appended log entries out to per-action handlers. Actions
// without a registered handler are recorded in the log only; routing
// them is a no-op, not an error.
type Router struct {
	projects database.ProjectStore
	handlers map[string]Handler
	log      logger.Logger
}

// NewRouter creates a router with the given action handler map.
func NewRouter(projects database.ProjectStore, handlers map[string]Handler, log logger.Logger) *Router {
	if handlers == nil {
		handlers = map[string]Handler{}
	}
	return &Router{projects: projects, handlers: handlers, log: log}
}

// Register binds a handler to an action tag, replacing any previous one.
func (r *Router) Register(action string, h Handler) {
	r.handlers[action] = h
}

// Route delivers a batch of entries belonging to one project. Entries
// are grouped by action and dispatched in first-seen order; a delivery
// failure propagates so the caller can retry the batch. The entries
// are already durable in the log when Route is called.
func (r *Router) Route(ctx context.Context, projectID int64, entries []domain.LogEntry) error {
	byAction := make(map[string][]domain.LogEntry)
	var order []string
	for _, e := range entries {
		if _, seen := byAction[e.Action]; !seen {
			order = append(order, e.Action)
		}
		byAction[e.Action] = append(byAction[e.Action], e)
	}

	var project *domain.Project
	var members []domain.ProjectMember

	for _, action := range order {
		handler, ok := r.handlers[action]
		if !ok {
			continue
		}

		if project == nil {
			var err error
			project, err = r.projects.GetByID(ctx, projectID)
			if err != nil {
				return fmt.Errorf("route notifications for project %d: %w", projectID, err)
			}
			members, err = r.projects.Members(ctx, project.ID)
			if err != nil {
				return fmt.Errorf("route notifications for %s: %w", project.Slug, err)
			}
		}

		if err := handler(ctx, project, members, byAction[action]); err != nil {
			return fmt.Errorf("deliver %s notifications for %s: %w", action, project.Slug, err)
		}
		r.log.Debug("Notifications delivered",
			logger.String("project", project.Slug),
			logger.String("action", action),
			logger.Int("entries", len(byAction[action])))
	}

	return nil
}
