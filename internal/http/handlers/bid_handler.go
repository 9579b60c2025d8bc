package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskhub-backend/internal/dto"
	"github.com/ignatzorin/taskhub-backend/internal/http/handlers/common"
	"github.com/ignatzorin/taskhub-backend/internal/service"
)

// BidHandler обслуживает ставки исполнителей.
type BidHandler struct {
	bids *service.BidService
}

// NewBidHandler создаёт новый хэндлер.
func NewBidHandler(bids *service.BidService) *BidHandler {
	return &BidHandler{bids: bids}
}

// CreateBid POST /tasks/:id/bids
func (h *BidHandler) CreateBid(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор задачи")
		return
	}

	var req dto.CreateBidRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	bid, err := h.bids.CreateBid(c.Request.Context(), service.CreateBidInput{
		TaskID:   taskID,
		TaskerID: userID,
		Amount:   req.Amount,
		Message:  req.Message,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bid)
}

// ListTaskBids GET /tasks/:id/bids
func (h *BidHandler) ListTaskBids(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	taskID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор задачи")
		return
	}

	bids, err := h.bids.ListTaskBids(c.Request.Context(), taskID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, bids)
}

// UpdateBid PUT /bids/:bidId
func (h *BidHandler) UpdateBid(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	bidID, err := common.ParseUUIDParam(c, "bidId")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор ставки")
		return
	}

	var req dto.UpdateBidRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	bid, err := h.bids.UpdateBid(c.Request.Context(), bidID, userID, req.Amount, req.Message)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, bid)
}

// DeleteBid DELETE /bids/:bidId
func (h *BidHandler) DeleteBid(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	bidID, err := common.ParseUUIDParam(c, "bidId")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор ставки")
		return
	}

	if err := h.bids.DeleteBid(c.Request.Context(), bidID, userID); err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// AcceptBid POST /bids/:bidId/accept
// Возвращает client_secret, которым клиент подтверждает блокировку средств.
func (h *BidHandler) AcceptBid(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	bidID, err := common.ParseUUIDParam(c, "bidId")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор ставки")
		return
	}

	result, err := h.bids.AcceptBid(c.Request.Context(), bidID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
