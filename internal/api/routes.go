package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kurihiro0119/classroom-sync/internal/observability"
)

// SetupRoutes sets up the API routes. logger and metrics may be nil.
func SetupRoutes(handler *Handler, logger *zap.Logger, metrics *observability.Metrics) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(Recovery())
	router.Use(CORS())
	router.Use(Logger(logger))
	router.Use(Metrics(metrics))

	// Health check
	router.GET("/health", handler.HealthCheck)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	// API v1
	v1 := router.Group("/api/v1")
	{
		orgs := v1.Group("/orgs/:org")
		{
			orgs.GET("/runs", handler.ListRuns)
			orgs.GET("/runs/latest", handler.GetLatestRun)
		}

		runs := v1.Group("/runs/:id")
		{
			runs.GET("", handler.GetRun)
			runs.GET("/submissions", handler.GetRunSubmissions)
			runs.GET("/invalid", handler.GetRunInvalid)
			runs.GET("/stats", handler.GetRunStats)
			runs.GET("/compare/:base", handler.CompareRuns)
		}
	}

	return router
}
