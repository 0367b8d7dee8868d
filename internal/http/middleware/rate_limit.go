package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/ignatzorin/freelance-marketplace/internal/http/response"
	"github.com/ignatzorin/freelance-marketplace/internal/logger"
)

// RateLimitMiddleware создаёт middleware для ограничения количества запросов с одного IP.
// По умолчанию: 10 запросов в минуту. С rdb счётчики общие для всех реплик.
func RateLimitMiddleware(limit int64, period time.Duration, rdb redis.UniversalClient) gin.HandlerFunc {
	if limit <= 0 {
		limit = 10
	}
	if period <= 0 {
		period = 1 * time.Minute
	}

	rate := limiter.Rate{
		Period: period,
		Limit:  limit,
	}
	instance := limiter.New(newLimiterStore(rdb), rate)

	return func(c *gin.Context) {
		key := c.ClientIP()
		context, err := instance.Get(c, key)
		if err != nil {
			logger.Log.WithError(err).Error("rate limit: не удалось прочитать счётчик")
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", context.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", context.Remaining))
		c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", context.Reset))

		if context.Reached {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Response{
				Success: false,
				Error: &response.ErrorInfo{
					Code:    "RATE_LIMITED",
					Message: "слишком много запросов, попробуйте позже",
				},
			})
			return
		}

		c.Next()
	}
}

func newLimiterStore(rdb redis.UniversalClient) limiter.Store {
	if rdb == nil {
		return memory.NewStore()
	}

	store, err := sredis.NewStoreWithOptions(rdb, limiter.StoreOptions{
		Prefix:   "rate_limit",
		MaxRetry: 3,
	})
	if err != nil {
		logger.Log.WithError(err).Warn("rate limit: redis недоступен, счётчики в памяти")
		return memory.NewStore()
	}
	return store
}
