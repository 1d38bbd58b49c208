package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/inventory-counting/internal/api/dto"
	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// LaunchCounting handles POST /api/v1/escalations
func (h *CountingHandler) LaunchCounting(c *gin.Context) {
	var req dto.LaunchCountingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	result, err := h.service.LaunchCounting(c.Request.Context(), req.JobID, req.LocationID, req.TeamID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.AssignmentCreated {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

// LaunchCountingBatch handles POST /api/v1/escalations/batch.
// With ?async=true the batch is queued for the worker and 202 is returned.
func (h *CountingHandler) LaunchCountingBatch(c *gin.Context) {
	var query dto.LaunchBatchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondBindError(c, err)
		return
	}

	var req dto.LaunchBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	if query.Async {
		h.enqueueBatch(c, req)
		return
	}

	result, err := h.service.LaunchCountingForJobs(c.Request.Context(), req.JobIDs, req.TeamID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *CountingHandler) enqueueBatch(c *gin.Context, req dto.LaunchBatchRequest) {
	if h.publisher == nil {
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "unavailable",
			Message: "asynchronous escalation is not configured",
		})
		return
	}

	cmd := domain.EscalationCommand{
		CommandID:   uuid.New().String(),
		JobIDs:      req.JobIDs,
		TeamID:      req.TeamID,
		RequestedAt: time.Now().UTC(),
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to enqueue escalation batch",
			slog.String("command_id", cmd.CommandID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{
			Error:   "unavailable",
			Message: "failed to enqueue escalation batch",
		})
		return
	}

	h.logger.Info("Escalation batch enqueued",
		slog.String("command_id", cmd.CommandID),
		slog.Int("job_count", len(cmd.JobIDs)),
		slog.Int64("team_id", cmd.TeamID),
	)

	c.JSON(http.StatusAccepted, dto.LaunchBatchAccepted{
		CommandID: cmd.CommandID,
		Status:    "queued",
	})
}
