package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
)

// UUIDValidator проверяет, что параметр с указанным именем является валидным UUID.
// Использование: router.GET("/jobs/:id", UUIDValidator("id"), handler.GetJob)
func UUIDValidator(paramName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idStr := c.Param(paramName)
		if idStr == "" {
			response.BadRequest(c, "параметр "+paramName+" обязателен")
			return
		}

		if _, err := uuid.Parse(idStr); err != nil {
			response.BadRequest(c, "параметр "+paramName+" должен быть валидным UUID")
			return
		}

		c.Next()
	}
}
