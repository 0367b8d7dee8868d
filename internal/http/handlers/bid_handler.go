package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/service"
)

type BidHandler struct {
	bids *service.BidService
}

func NewBidHandler(bids *service.BidService) *BidHandler {
	return &BidHandler{bids: bids}
}

// CreateBid POST /jobs/:id/bids
func (h *BidHandler) CreateBid(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	var req service.CreateBidInput
	if !bindJSON(c, &req) {
		return
	}

	bid, err := h.bids.CreateBid(c.Request.Context(), actor, jobID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, bid)
}

// ListJobBids GET /jobs/:id/bids
func (h *BidHandler) ListJobBids(c *gin.Context) {
	actor, jobID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	bids, err := h.bids.ListForJob(c.Request.Context(), actor, jobID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, bids)
}

// ListMyBids GET /bids/my
func (h *BidHandler) ListMyBids(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	bids, err := h.bids.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, bids)
}

// DecideBid PATCH /bids/:id/status
func (h *BidHandler) DecideBid(c *gin.Context) {
	actor, bidID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}

	bid, err := h.bids.DecideBid(c.Request.Context(), actor, bidID, req.Status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, bid)
}

// DeleteBid DELETE /bids/:id
func (h *BidHandler) DeleteBid(c *gin.Context) {
	actor, bidID, ok := actorAndID(c, "id")
	if !ok {
		return
	}

	if err := h.bids.DeleteBid(c.Request.Context(), actor, bidID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"id": bidID})
}
