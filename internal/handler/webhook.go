package handler

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"tradepilot/internal/signal"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ReceiveSignal godoc
// @Summary      Receive a trading signal
// @Description  Accepts an alert-source webhook, deduplicates it, and queues dispatch
// @Tags         signals
// @Accept       json
// @Produce      json
// @Param        token    query  string                 false  "Webhook token (alternative to X-Webhook-Token header)"
// @Param        payload  body   signal.WebhookPayload  true   "Signal payload"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /webhook/signal [post]
func (h *Handler) ReceiveSignal(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.receive-signal")
	defer span.End()

	if !h.webhookAuthorized(c) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid webhook token"})
		return
	}

	var payload signal.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	span.SetAttributes(attribute.String("symbol", payload.Symbol))

	sig, err := h.ingestor.Ingest(ctx, payload)
	if errors.Is(err, signal.ErrDuplicate) {
		// Answer 200 so the source stops re-delivering.
		c.JSON(http.StatusOK, gin.H{"signal_id": sig.ID, "duplicate": true})
		return
	}
	if errors.Is(err, signal.ErrInvalidPayload) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		// Persistence trouble, not the source's fault; it should retry.
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signal_id": sig.ID, "status": sig.Status})
}

// webhookAuthorized accepts the shared token from either the query string or
// the X-Webhook-Token header. An empty configured token disables intake.
func (h *Handler) webhookAuthorized(c *gin.Context) bool {
	if h.webhookToken == "" {
		return false
	}
	provided := c.Query("token")
	if provided == "" {
		provided = strings.TrimSpace(c.GetHeader("X-Webhook-Token"))
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.webhookToken)) == 1
}
