// Package httpapi exposes the job controller over HTTP: start, stop and
// status per tenant, plus health and prometheus endpoints.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamim/catalogseo/internal/jobs"
	"github.com/lamim/catalogseo/pkg/models"
)

// JobService is the subset of the job controller the handlers use
type JobService interface {
	Start(ctx context.Context, req jobs.StartRequest) (string, error)
	Stop(ctx context.Context, tenantID string) error
	Status(ctx context.Context, tenantID string) (models.JobStatus, error)
}

// NewRouter builds the gin engine serving the job surface
func NewRouter(svc JobService, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	h := &Handler{jobs: svc, logger: logger.With("component", "httpapi")}

	router.GET("/health", HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/tenants/:tenant")
	{
		api.POST("/start", h.Start)
		api.POST("/stop", h.Stop)
		api.GET("/status", h.Status)
	}

	return router
}

// HealthCheck reports liveness
func HealthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		logger.Debug("Handled request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	}
}
