package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskhub-backend/internal/http/handlers/common"
	"github.com/ignatzorin/taskhub-backend/internal/service"
)

type PaymentHandler struct {
	payments *service.EscrowService
}

func NewPaymentHandler(payments *service.EscrowService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// GetPayment GET /payments/:paymentId
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	paymentID, err := common.ParseUUIDParam(c, "paymentId")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор платежа")
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), paymentID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}

// ListTaskPayments GET /tasks/:id/payments
func (h *PaymentHandler) ListTaskPayments(c *gin.Context) {
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

	payments, err := h.payments.ListTaskPayments(c.Request.Context(), taskID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payments)
}

// SyncPayment POST /payments/:paymentId/sync
// Сверяет статус платежа с провайдером, если webhook не дошёл.
func (h *PaymentHandler) SyncPayment(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	paymentID, err := common.ParseUUIDParam(c, "paymentId")
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор платежа")
		return
	}

	payment, err := h.payments.SyncPaymentStatus(c.Request.Context(), paymentID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, payment)
}
