package handler

import (
	"errors"
	"net/http"
	"strconv"

	"tradepilot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// ListOperations godoc
// @Summary      List a subscriber's operations, newest first
// @Tags         operations
// @Produce      json
// @Param        id     path   int  true   "Subscriber id"
// @Param        limit  query  int  false  "Number of operations (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /api/subscribers/{id}/operations [get]
func (h *Handler) ListOperations(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.list-operations")
	defer span.End()

	subscriberID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscriber id"})
		return
	}
	span.SetAttributes(attribute.Int64("subscriber.id", subscriberID))

	limit := 50
	if l := c.Query("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	operations, err := h.operations.ListBySubscriber(ctx, subscriberID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations})
}

// GetRiskProfile godoc
// @Summary      Get a subscriber's risk profile
// @Tags         risk
// @Produce      json
// @Param        id  path  int  true  "Subscriber id"
// @Success      200  {object}  domain.RiskProfile
// @Security     ApiKeyAuth
// @Router       /api/subscribers/{id}/risk [get]
func (h *Handler) GetRiskProfile(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-risk-profile")
	defer span.End()

	subscriberID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscriber id"})
		return
	}

	profile, err := h.risks.Get(ctx, subscriberID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateRiskProfile godoc
// @Summary      Set a subscriber's risk profile
// @Description  Parameters outside platform bounds are rejected
// @Tags         risk
// @Accept       json
// @Produce      json
// @Param        id       path  int                 true  "Subscriber id"
// @Param        profile  body  domain.RiskProfile  true  "Risk parameters"
// @Success      200  {object}  domain.RiskProfile
// @Failure      422  {object}  map[string]string
// @Security     ApiKeyAuth
// @Router       /api/subscribers/{id}/risk [put]
func (h *Handler) UpdateRiskProfile(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.update-risk-profile")
	defer span.End()

	subscriberID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscriber id"})
		return
	}

	var profile domain.RiskProfile
	if err := c.ShouldBindJSON(&profile); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	profile.SubscriberID = subscriberID

	if err := h.risks.Upsert(ctx, profile); err != nil {
		if errors.Is(err, domain.ErrInvalidRiskParameters) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, profile)
}
