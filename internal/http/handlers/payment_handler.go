package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
)

type PaymentHandler struct {
	payments *service.PaymentService
}

func NewPaymentHandler(payments *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// ConnectAccount POST /payments/account
func (h *PaymentHandler) ConnectAccount(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	account, err := h.payments.ConnectAccount(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, account)
}

// CreateJobIntent POST /payments/jobs/:id/intent
func (h *PaymentHandler) CreateJobIntent(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	intent, err := h.payments.CreateJobPaymentIntent(c.Request.Context(), actor, jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, intent)
}

// GetBalance GET /payments/balance
func (h *PaymentHandler) GetBalance(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	balance, err := h.payments.Balance(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, balance)
}

// CreateAccountLink POST /payments/account/link
func (h *PaymentHandler) CreateAccountLink(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	link, err := h.payments.CreateAccountLink(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, link)
}

// GetAccountStatus GET /payments/account
func (h *PaymentHandler) GetAccountStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	status, err := h.payments.AccountStatus(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}
