package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/taskhub-backend/internal/dto"
	"github.com/ignatzorin/taskhub-backend/internal/http/handlers/common"
	"github.com/ignatzorin/taskhub-backend/internal/service"
)

// StripeAccountHandler подключает платёжные аккаунты исполнителей.
type StripeAccountHandler struct {
	accounts *service.StripeAccountService
}

func NewStripeAccountHandler(accounts *service.StripeAccountService) *StripeAccountHandler {
	return &StripeAccountHandler{accounts: accounts}
}

// CreateAccount POST /stripe/account
func (h *StripeAccountHandler) CreateAccount(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req dto.CreateStripeAccountRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	onboarding, err := h.accounts.CreateStripeAccount(c.Request.Context(), userID, req.Email)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, onboarding)
}

// RefreshLink POST /stripe/account/link
func (h *StripeAccountHandler) RefreshLink(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	onboarding, err := h.accounts.RefreshOnboardingLink(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, onboarding)
}

// GetStatus GET /stripe/account/status
func (h *StripeAccountHandler) GetStatus(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	account, err := h.accounts.CheckStripeAccountStatus(c.Request.Context(), userID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, account)
}
