package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetRegime godoc
// @Summary      Current market regime
// @Description  Returns the sentiment score and which direction may open positions
// @Tags         regime
// @Produce      json
// @Success      200  {object}  domain.MarketRegime
// @Security     ApiKeyAuth
// @Router       /api/regime [get]
func (h *Handler) GetRegime(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "handler.get-regime")
	defer span.End()

	c.JSON(http.StatusOK, h.regime.Current())
}

// RefreshRegime godoc
// @Summary      Force a market regime refresh
// @Description  Polls the sentiment sources immediately instead of waiting for the next tick
// @Tags         regime
// @Produce      json
// @Success      200  {object}  domain.MarketRegime
// @Failure      502  {object}  map[string]interface{}
// @Security     ApiKeyAuth
// @Router       /api/regime/refresh [post]
func (h *Handler) RefreshRegime(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.refresh-regime")
	defer span.End()

	regime, err := h.regime.Refresh(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "regime": regime})
		return
	}
	c.JSON(http.StatusOK, regime)
}
