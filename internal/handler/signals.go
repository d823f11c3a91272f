package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ListSignals godoc
// @Summary      List recent signals
// @Tags         signals
// @Produce      json
// @Param        limit  query  int  false  "Number of signals (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /api/signals [get]
func (h *Handler) ListSignals(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-signals")
	defer span.End()

	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	signals, err := h.signals.Recent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// GetSignal godoc
// @Summary      Get a signal and its per-subscriber outcomes
// @Tags         signals
// @Produce      json
// @Param        id  path  int  true  "Signal id"
// @Success      200  {object}  map[string]interface{}
// @Failure      404  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/signals/{id} [get]
func (h *Handler) GetSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-signal")
	defer span.End()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signal id"})
		return
	}
	span.SetAttributes(attribute.Int64("signal.id", id))

	sig, err := h.signals.GetByID(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if sig == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "signal not found"})
		return
	}

	operations, err := h.operations.ListBySignal(ctx, id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signal": sig, "operations": operations})
}
