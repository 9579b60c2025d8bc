package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskhub-backend/internal/dto"
	"github.com/ignatzorin/taskhub-backend/internal/gateway"
	"github.com/ignatzorin/taskhub-backend/internal/http/handlers/common"
)

// maxWebhookBody ограничение тела события, Stripe присылает заметно меньше.
const maxWebhookBody = 64 * 1024

// WebhookProcessor проверяет и применяет события платёжного провайдера.
type WebhookProcessor interface {
	Verify(payload []byte, signature string) (*gateway.Event, error)
	Process(ctx context.Context, event *gateway.Event) error
}

// WebhookHandler принимает webhook Stripe. Маршрут без авторизации, доверие даёт подпись.
type WebhookHandler struct {
	webhooks WebhookProcessor
}

func NewWebhookHandler(webhooks WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// Stripe POST /webhooks/stripe
// 400 на неверную подпись, 500 если событие не применилось и Stripe должен повторить доставку.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		common.RespondBadRequest(c, "не удалось прочитать тело запроса")
		return
	}

	event, err := h.webhooks.Verify(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	if err := h.webhooks.Process(c.Request.Context(), event); err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.WebhookAck{Received: true})
}
