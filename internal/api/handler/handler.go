package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/inventory-counting/internal/counting/service"
)

// CountingService is the orchestrator surface served over HTTP
type CountingService interface {
	AssignTeams(ctx context.Context, in service.AssignTeamsInput) (*service.AssignmentResult, error)
	LaunchCounting(ctx context.Context, jobID, locationID, teamID int64) (*service.EscalationResult, error)
	LaunchCountingForJobs(ctx context.Context, jobIDs []int64, teamID int64) (*service.BatchEscalationResult, error)
	ComputeJobDiscrepancy(ctx context.Context, jobID int64) (*service.DiscrepancyReport, error)
	UnresolvedLocationsForJob(ctx context.Context, jobID int64) ([]int64, error)
	GroupJobsByCountingWithUnresolvedDiscrepancy(ctx context.Context, inventoryID, warehouseID int64) ([]service.CountingGroup, error)
	ResetJobs(ctx context.Context, jobIDs []int64) (*service.ResetResult, error)
}

// Publisher sends messages to the worker queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Service   CountingService
	Publisher Publisher
	Database  HealthChecker
}

// CountingHandler handles counting-related HTTP requests
type CountingHandler struct {
	logger    *slog.Logger
	service   CountingService
	publisher Publisher
}

// NewCountingHandler creates a new CountingHandler instance
func NewCountingHandler(deps *Dependencies) *CountingHandler {
	return &CountingHandler{
		logger:    deps.Logger,
		service:   deps.Service,
		publisher: deps.Publisher,
	}
}
