package handler

import (
	"net/http"

	"cryptothreads/internal/job"
	"cryptothreads/internal/ratebudget"

	"github.com/gin-gonic/gin"
)

type rateResponse struct {
	Budgets        []ratebudget.Status `json:"budgets"`
	QuotaRemaining int                 `json:"quota_remaining"`
	CycleRunning   bool                `json:"cycle_running"`
	LastCycle      *job.LastRun        `json:"last_cycle,omitempty"`
}

// GetRate godoc
// @Summary      Rate budget and scheduler status
// @Description  Returns per-service request windows, the monthly post quota left (-1 when unlimited) and the last cycle outcome
// @Tags         status
// @Produce      json
// @Success      200  {object}  rateResponse
// @Failure      500  {object}  map[string]string
// @Router       /api/rate [get]
func (h *Handler) GetRate(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-rate")
	defer span.End()

	resp := rateResponse{Budgets: []ratebudget.Status{}, QuotaRemaining: -1}
	if h.rates != nil {
		if s := h.rates.Snapshot(); s != nil {
			resp.Budgets = s
		}
	}
	if h.threads != nil {
		left, err := h.threads.QuotaRemaining(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		resp.QuotaRemaining = left
	}
	if h.cycles != nil {
		resp.CycleRunning = h.cycles.Running()
		if last, ok := h.cycles.Last(); ok {
			resp.LastCycle = &last
		}
	}
	c.JSON(http.StatusOK, resp)
}
