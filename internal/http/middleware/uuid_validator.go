package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/taskhub-backend/internal/dto"
	"github.com/ignatzorin/taskhub-backend/internal/pkg/apperror"
)

// UUIDValidator проверяет, что все перечисленные параметры пути являются валидными UUID.
// Использование: router.POST("/bids/:bidId/accept", UUIDValidator("bidId"), handler.AcceptBid)
func UUIDValidator(paramNames ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, name := range paramNames {
			if _, err := uuid.Parse(c.Param(name)); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
					Error: "параметр " + name + " должен быть валидным UUID",
					Code:  string(apperror.ErrCodeBadRequest),
				})
				return
			}
		}
		c.Next()
	}
}
