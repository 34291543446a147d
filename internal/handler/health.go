package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status       string     `json:"status"`
	CycleRunning bool       `json:"cycle_running"`
	LastCycle    *time.Time `json:"last_cycle,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

// Health godoc
// @Summary      Health check
// @Description  Liveness plus the outcome of the most recent thread cycle; "degraded" when that cycle failed
// @Tags         health
// @Produce      json
// @Success      200  {object}  healthResponse
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	resp := healthResponse{Status: "ok"}
	if h.cycles != nil {
		resp.CycleRunning = h.cycles.Running()
		if last, ok := h.cycles.Last(); ok {
			finished := last.Finished
			resp.LastCycle = &finished
			if last.Error != "" {
				resp.Status = "degraded"
				resp.LastError = last.Error
			}
		}
	}
	c.JSON(http.StatusOK, resp)
}
