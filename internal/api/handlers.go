package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/rocketDuck/folivora/internal/database"
	"github.com/rocketDuck/folivora/internal/domain"
	"github.com/rocketDuck/folivora/internal/logger"
	"github.com/rocketDuck/folivora/internal/parsers"
	"github.com/rocketDuck/folivora/internal/resync"
)

const defaultLogLimit = 50

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	projects database.ProjectStore
	deps     database.DependencyStore
	logs     database.LogStore
	engine   *resync.Engine
	triggers Triggers
	log      logger.Logger
}

// NewHandler creates the handler set.
func NewHandler(
	projects database.ProjectStore,
	deps database.DependencyStore,
	logs database.LogStore,
	engine *resync.Engine,
	triggers Triggers,
	log logger.Logger,
) *Handler {
	return &Handler{
		projects: projects,
		deps:     deps,
		logs:     logs,
		engine:   engine,
		triggers: triggers,
		log:      log,
	}
}

// TriggerSync handles POST /api/v1/sync.
func (h *Handler) TriggerSync(c *gin.Context) {
	if err := h.triggers.TriggerSync(c.Request.Context()); err != nil {
		h.log.Error("Failed to enqueue changelog sync", logger.Error(err))
		respondInternalError(c, "failed to enqueue sync")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "enqueued"})
}

// ListParsers handles GET /api/v1/parsers.
func (h *Handler) ListParsers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"parsers": parsers.Choices()})
}

// GetProject handles GET /api/v1/projects/:slug.
func (h *Handler) GetProject(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, project)
}

// ListDependencies handles GET /api/v1/projects/:slug/dependencies.
func (h *Handler) ListDependencies(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	deps, err := h.deps.ListByProject(c.Request.Context(), project.ID)
	if err != nil {
		h.log.Error("Failed to list dependencies", logger.Error(err))
		respondInternalError(c, "failed to list dependencies")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project":      project.Slug,
		"dependencies": deps,
	})
}

// UpdateDependenciesRequest is the body of PUT dependencies. Either a
// pinned map or parser+lines must be given.
type UpdateDependenciesRequest struct {
	Pinned map[string]string `json:"pinned"`
	Parser string            `json:"parser"`
	Lines  []string          `json:"lines"`
	Actor  string            `json:"actor" binding:"required"`
}

// UpdateDependencies handles PUT /api/v1/projects/:slug/dependencies.
func (h *Handler) UpdateDependencies(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	var req UpdateDependenciesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	pinned := req.Pinned
	var unparsed []string
	if pinned == nil {
		if req.Parser == "" {
			respondBadRequest(c, "either pinned or parser+lines is required")
			return
		}
		parser, err := parsers.Get(req.Parser)
		if err != nil {
			respondBadRequest(c, err.Error())
			return
		}
		pinned, unparsed = parser.Parse(req.Lines)
	}

	result, err := h.engine.ApplyDependencySetChange(c.Request.Context(), project, pinned, req.Actor)
	if err != nil {
		h.log.Error("Failed to apply dependency change",
			logger.String("project", project.Slug),
			logger.Error(err))
		respondInternalError(c, "failed to apply dependency change")
		return
	}
	result.Missing = append(result.Missing, unparsed...)

	c.JSON(http.StatusOK, result)
}

// Requirements handles GET /api/v1/projects/:slug/requirements.
func (h *Handler) Requirements(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	deps, err := h.deps.ListByProject(c.Request.Context(), project.ID)
	if err != nil {
		h.log.Error("Failed to list dependencies", logger.Error(err))
		respondInternalError(c, "failed to render requirements")
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.String(http.StatusOK, domain.RenderRequirements(deps))
}

// ProjectLog handles GET /api/v1/projects/:slug/log.
func (h *Handler) ProjectLog(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	limitStr := c.DefaultQuery("limit", strconv.Itoa(defaultLogLimit))
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 {
		limit = defaultLogLimit
	}

	entries, err := h.logs.ListByProject(c.Request.Context(), project.ID, limit)
	if err != nil {
		h.log.Error("Failed to list log entries", logger.Error(err))
		respondInternalError(c, "failed to list log entries")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"project": project.Slug,
		"entries": entries,
	})
}

// TriggerResync handles POST /api/v1/projects/:slug/resync.
func (h *Handler) TriggerResync(c *gin.Context) {
	project, ok := h.loadProject(c)
	if !ok {
		return
	}

	if err := h.triggers.TriggerResync(c.Request.Context(), project.ID); err != nil {
		h.log.Error("Failed to enqueue resync",
			logger.String("project", project.Slug),
			logger.Error(err))
		respondInternalError(c, "failed to enqueue resync")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "enqueued", "project": project.Slug})
}

func (h *Handler) loadProject(c *gin.Context) (*domain.Project, bool) {
	slug := c.Param("slug")
	if slug == "" {
		respondBadRequest(c, "project slug is required")
		return nil, false
	}

	project, err := h.projects.GetBySlug(c.Request.Context(), slug)
	if errors.Is(err, database.ErrNotFound) {
		respondNotFound(c, "project")
		return nil, false
	}
	if err != nil {
		h.log.Error("Failed to load project", logger.String("slug", slug), logger.Error(err))
		respondInternalError(c, "failed to load project")
		return nil, false
	}
	return project, true
}
