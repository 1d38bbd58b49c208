package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// Options tunes the router
type Options struct {
	ServiceName    string
	AllowedOrigins []string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(opts.AllowedOrigins))

	r.GET("/health", healthHandler(deps, opts.ServiceName))

	countingHandler := handler.NewCountingHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/assignments - Bind a team to one round of several jobs
		v1.POST("/assignments", countingHandler.AssignTeams)

		escalations := v1.Group("/escalations")
		{
			// POST /api/v1/escalations - Open the next round for one location
			escalations.POST("", countingHandler.LaunchCounting)

			// POST /api/v1/escalations/batch - Escalate every unresolved location of jobs
			escalations.POST("/batch", countingHandler.LaunchCountingBatch)
		}

		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs/reset - Return jobs to PENDING
			jobs.POST("/reset", countingHandler.ResetJobs)

			// GET /api/v1/jobs/:job_id/discrepancy - Compare rounds 1 and 2
			jobs.GET("/:job_id/discrepancy", countingHandler.GetJobDiscrepancy)

			// GET /api/v1/jobs/:job_id/unresolved-locations
			jobs.GET("/:job_id/unresolved-locations", countingHandler.GetUnresolvedLocations)
		}

		// GET /api/v1/inventories/:inventory_id/warehouses/:warehouse_id/unresolved-discrepancies
		v1.GET("/inventories/:inventory_id/warehouses/:warehouse_id/unresolved-discrepancies",
			countingHandler.GetUnresolvedDiscrepancyGroups)
	}

	return r
}

func healthHandler(deps *handler.Dependencies, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if deps.Database != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
			defer cancel()

			if err := deps.Database.HealthCheck(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": serviceName,
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	}
}
