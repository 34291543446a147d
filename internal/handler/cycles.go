package handler

import (
	"errors"
	"net/http"

	"cryptothreads/internal/job"

	"github.com/gin-gonic/gin"
)

// TriggerCycle godoc
// @Summary      Run a thread cycle now
// @Description  Starts one gather/compose/publish cycle in the background; refused while a cycle is running
// @Tags         cycles
// @Produce      json
// @Security     ApiKeyAuth
// @Success      202  {object}  map[string]string
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/cycles [post]
func (h *Handler) TriggerCycle(c *gin.Context) {
	if h.cycles == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "scheduler unavailable"})
		return
	}

	_, span := h.tracer.Start(c.Request.Context(), "handler.trigger-cycle")
	defer span.End()

	if err := h.cycles.Trigger(); err != nil {
		if errors.Is(err, job.ErrCycleInFlight) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}
