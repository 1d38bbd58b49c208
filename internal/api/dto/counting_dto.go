package dto

import (
	"time"

	"github.com/cuongbtq/inventory-counting/internal/counting/service"
)

type AssignTeamsRequest struct {
	JobIDs        []int64    `json:"job_ids" binding:"required,min=1,dive,gt=0"`
	CountingOrder int        `json:"counting_order" binding:"required,gt=0"`
	TeamID        *int64     `json:"team_id" binding:"omitempty,gt=0"`
	StartTime     *time.Time `json:"start_time"`
}

type LaunchCountingRequest struct {
	JobID      int64 `json:"job_id" binding:"required,gt=0"`
	LocationID int64 `json:"location_id" binding:"required,gt=0"`
	TeamID     int64 `json:"team_id" binding:"required,gt=0"`
}

type LaunchBatchRequest struct {
	JobIDs []int64 `json:"job_ids" binding:"required,min=1,dive,gt=0"`
	TeamID int64   `json:"team_id" binding:"required,gt=0"`
}

type LaunchBatchQuery struct {
	Async bool `form:"async"`
}

type LaunchBatchAccepted struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
}

type ResetJobsRequest struct {
	JobIDs []int64 `json:"job_ids" binding:"required,min=1,dive,gt=0"`
}

type JobURI struct {
	JobID int64 `uri:"job_id" binding:"required,gt=0"`
}

type WarehouseURI struct {
	InventoryID int64 `uri:"inventory_id" binding:"required,gt=0"`
	WarehouseID int64 `uri:"warehouse_id" binding:"required,gt=0"`
}

type DiscrepancyResponse struct {
	JobID         int64  `json:"job_id"`
	MismatchCount int    `json:"mismatch_count"`
	Rate          string `json:"rate"`
	TotalRound1   int    `json:"total_round_1"`
	TotalRound2   int    `json:"total_round_2"`
	CommonLines   int    `json:"common_lines"`
}

// NewDiscrepancyResponse renders the rate with two decimals.
func NewDiscrepancyResponse(r *service.DiscrepancyReport) DiscrepancyResponse {
	return DiscrepancyResponse{
		JobID:         r.JobID,
		MismatchCount: r.MismatchCount,
		Rate:          r.Rate.StringFixed(2),
		TotalRound1:   r.TotalRound1,
		TotalRound2:   r.TotalRound2,
		CommonLines:   r.CommonLines,
	}
}

type UnresolvedLocationsResponse struct {
	JobID       int64   `json:"job_id"`
	LocationIDs []int64 `json:"location_ids"`
}

type CountingGroupsResponse struct {
	InventoryID int64                   `json:"inventory_id"`
	WarehouseID int64                   `json:"warehouse_id"`
	Groups      []service.CountingGroup `json:"groups"`
}

type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}
