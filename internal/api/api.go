// Package api implements the admin HTTP surface: health, sync
// triggers, project views and Prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rocketDuck/folivora/internal/logger"
)

// Triggers enqueues background work on behalf of HTTP handlers.
// Handlers never block on index I/O; they only enqueue.
type Triggers interface {
	TriggerSync(ctx context.Context) error
	TriggerResync(ctx context.Context, projectID int64) error
}

// SetupRouter creates the Gin router with all routes.
func SetupRouter(h *Handler, log logger.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.POST("/sync", h.TriggerSync)
	v1.GET("/parsers", h.ListParsers)
	v1.GET("/projects/:slug", h.GetProject)
	v1.GET("/projects/:slug/dependencies", h.ListDependencies)
	v1.PUT("/projects/:slug/dependencies", h.UpdateDependencies)
	v1.GET("/projects/:slug/requirements", h.Requirements)
	v1.GET("/projects/:slug/log", h.ProjectLog)
	v1.POST("/projects/:slug/resync", h.TriggerResync)

	return router
}

// loggingMiddleware logs each request with latency and status.
func loggingMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		log.Debug("HTTP request",
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)))
	}
}
