package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
)

// ErrorHandler отвечает за ошибки, добавленные через c.Error, если обработчик
// сам не записал ответ. Внутренние ошибки маскируются в response.Error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}

		response.Error(c, c.Errors.Last().Err)
	}
}
