package handler

import (
	"net/http"
	"strconv"

	"tradepilot/internal/domain"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

type enrollCredentialsRequest struct {
	Exchange  string `json:"exchange" binding:"required"`
	APIKey    string `json:"api_key" binding:"required"`
	APISecret string `json:"api_secret" binding:"required"`
	Testnet   bool   `json:"testnet"`
}

// EnrollCredentials godoc
// @Summary      Register exchange credentials for a subscriber
// @Description  The secret is encrypted before it is stored and never echoed back
// @Tags         credentials
// @Accept       json
// @Produce      json
// @Param        id           path  int                       true  "Subscriber id"
// @Param        credentials  body  enrollCredentialsRequest  true  "Key pair"
// @Success      201  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /api/subscribers/{id}/credentials [post]
func (h *Handler) EnrollCredentials(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.enroll-credentials")
	defer span.End()

	subscriberID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscriber id"})
		return
	}
	span.SetAttributes(attribute.Int64("subscriber.id", subscriberID))

	var req enrollCredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	env := domain.EnvironmentLive
	if req.Testnet {
		env = domain.EnvironmentTest
	}
	set, err := h.enroller.Enroll(ctx, subscriberID, req.Exchange, env, req.APIKey, req.APISecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"credential_id": set.ID,
		"exchange":      set.Exchange,
		"environment":   set.Environment,
		"api_key":       set.APIKey,
	})
}
