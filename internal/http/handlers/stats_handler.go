package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
	"github.com/ignatzorin/freelance-marketplace/internal/settlement"
)

// SettlementRunner ручной запуск расчёта.
type SettlementRunner interface {
	RunOnce(ctx context.Context) (settlement.Report, error)
}

// AdminHandler статистика и служебные операции администратора.
type AdminHandler struct {
	stats      *service.StatsService
	settlement SettlementRunner
}

func NewAdminHandler(stats *service.StatsService, runner SettlementRunner) *AdminHandler {
	return &AdminHandler{stats: stats, settlement: runner}
}

// GetStats GET /admin/stats
func (h *AdminHandler) GetStats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	stats, err := h.stats.GetStats(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, stats)
}

// RunSettlement POST /admin/settlements/run
func (h *AdminHandler) RunSettlement(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !actor.IsAdmin() {
		response.Forbidden(c, "недостаточно прав")
		return
	}

	report, err := h.settlement.RunOnce(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, report)
}
