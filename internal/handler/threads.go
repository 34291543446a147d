package handler

import (
	"net/http"
	"strconv"
	"time"

	"cryptothreads/internal/ledger"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

const (
	defaultHistoryHours = 48
	maxHistoryHours     = 24 * 30
)

type threadHistoryResponse struct {
	Hours   int            `json:"hours"`
	Count   int            `json:"count"`
	Threads []ledger.Entry `json:"threads"`
}

// GetThreads godoc
// @Summary      List published threads
// @Description  Returns thread history entries (timestamp, post fingerprints, influencers), newest first
// @Tags         threads
// @Produce      json
// @Param        hours  query  int  false  "Look-back window in hours (max 720)"  default(48)
// @Success      200  {object}  threadHistoryResponse
// @Failure      400  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/threads [get]
func (h *Handler) GetThreads(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-threads")
	defer span.End()

	hours := defaultHistoryHours
	if v := c.Query("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryHours {
			c.JSON(http.StatusBadRequest, gin.H{"error": "hours must be between 1 and 720"})
			return
		}
		hours = n
	}
	span.SetAttributes(attribute.Int("hours", hours))

	entries, err := h.threads.History(ctx, time.Duration(hours)*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	c.JSON(http.StatusOK, threadHistoryResponse{Hours: hours, Count: len(entries), Threads: entries})
}

// PreviewThread godoc
// @Summary      Preview the next thread
// @Description  Gathers data and composes the micro-blog thread and chat digest without publishing
// @Tags         threads
// @Produce      json
// @Security     ApiKeyAuth
// @Success      200  {object}  service.Preview
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/threads/preview [get]
func (h *Handler) PreviewThread(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.preview-thread")
	defer span.End()

	preview, err := h.threads.Preview(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, preview)
}
