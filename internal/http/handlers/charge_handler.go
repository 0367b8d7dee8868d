package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
)

type ChargeHandler struct {
	charges *service.ChargeService
}

func NewChargeHandler(charges *service.ChargeService) *ChargeHandler {
	return &ChargeHandler{charges: charges}
}

// GetCharge GET /charge
func (h *ChargeHandler) GetCharge(c *gin.Context) {
	charge, err := h.charges.GetCharge(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, charge)
}

// UpdateCharge PUT /charge
func (h *ChargeHandler) UpdateCharge(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	// rate принимается и числом, и строкой: 12.5 или "12.5".
	var req struct {
		Rate *decimal.Decimal `json:"rate" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	charge, err := h.charges.UpdateCharge(c.Request.Context(), actor, *req.Rate)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, charge)
}
