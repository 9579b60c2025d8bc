package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskhub-backend/internal/http/handlers/common"
	"github.com/ignatzorin/taskhub-backend/internal/service"
)

// DisputeHandler отдаёт участникам задачи сведения о споре.
type DisputeHandler struct {
	disputes *service.DisputeService
}

func NewDisputeHandler(disputes *service.DisputeService) *DisputeHandler {
	return &DisputeHandler{disputes: disputes}
}

// GetTaskDispute GET /tasks/:id/dispute
func (h *DisputeHandler) GetTaskDispute(c *gin.Context) {
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

	dispute, err := h.disputes.GetTaskDispute(c.Request.Context(), taskID, userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dispute)
}
