package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/inventory-counting/internal/api/dto"
	"github.com/cuongbtq/inventory-counting/internal/counting/service"
	"github.com/gin-gonic/gin"
)

// AssignTeams handles POST /api/v1/assignments
func (h *CountingHandler) AssignTeams(c *gin.Context) {
	var req dto.AssignTeamsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	h.logger.Info("AssignTeams called",
		slog.Int("job_count", len(req.JobIDs)),
		slog.Int("counting_order", req.CountingOrder),
	)

	result, err := h.service.AssignTeams(c.Request.Context(), service.AssignTeamsInput{
		JobIDs:        req.JobIDs,
		CountingOrder: req.CountingOrder,
		TeamID:        req.TeamID,
		StartTime:     req.StartTime,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ResetJobs handles POST /api/v1/jobs/reset
func (h *CountingHandler) ResetJobs(c *gin.Context) {
	var req dto.ResetJobsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondBindError(c, err)
		return
	}

	h.logger.Info("ResetJobs called",
		slog.Int("job_count", len(req.JobIDs)),
	)

	result, err := h.service.ResetJobs(c.Request.Context(), req.JobIDs)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
