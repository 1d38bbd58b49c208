package handler

import (
	"net/http"

	"github.com/cuongbtq/inventory-counting/internal/api/dto"
	"github.com/gin-gonic/gin"
)

// GetJobDiscrepancy handles GET /api/v1/jobs/:job_id/discrepancy
func (h *CountingHandler) GetJobDiscrepancy(c *gin.Context) {
	var uri dto.JobURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.respondBindError(c, err)
		return
	}

	report, err := h.service.ComputeJobDiscrepancy(c.Request.Context(), uri.JobID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewDiscrepancyResponse(report))
}

// GetUnresolvedLocations handles GET /api/v1/jobs/:job_id/unresolved-locations
func (h *CountingHandler) GetUnresolvedLocations(c *gin.Context) {
	var uri dto.JobURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.respondBindError(c, err)
		return
	}

	locations, err := h.service.UnresolvedLocationsForJob(c.Request.Context(), uri.JobID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if locations == nil {
		locations = []int64{}
	}

	c.JSON(http.StatusOK, dto.UnresolvedLocationsResponse{
		JobID:       uri.JobID,
		LocationIDs: locations,
	})
}

// GetUnresolvedDiscrepancyGroups handles
// GET /api/v1/inventories/:inventory_id/warehouses/:warehouse_id/unresolved-discrepancies
func (h *CountingHandler) GetUnresolvedDiscrepancyGroups(c *gin.Context) {
	var uri dto.WarehouseURI
	if err := c.ShouldBindUri(&uri); err != nil {
		h.respondBindError(c, err)
		return
	}

	groups, err := h.service.GroupJobsByCountingWithUnresolvedDiscrepancy(c.Request.Context(), uri.InventoryID, uri.WarehouseID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.CountingGroupsResponse{
		InventoryID: uri.InventoryID,
		WarehouseID: uri.WarehouseID,
		Groups:      groups,
	})
}
