package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ignatzorin/freelance-marketplace/internal/config"
	"github.com/ignatzorin/freelance-marketplace/internal/http/handlers"
	"github.com/ignatzorin/freelance-marketplace/internal/http/middleware"
	"github.com/ignatzorin/freelance-marketplace/internal/models"
)

// Handlers набор обработчиков, которые монтирует SetupRouter.
type Handlers struct {
	Jobs     *handlers.JobHandler
	Bids     *handlers.BidHandler
	Charge   *handlers.ChargeHandler
	Payments *handlers.PaymentHandler
	Admin    *handlers.AdminHandler
	WS       *handlers.WSHandler
	Health   *handlers.HealthHandler
}

// SetupRouter собирает gin.Engine. rdb может быть nil, тогда лимиты считаются в памяти.
func SetupRouter(cfg *config.Config, h Handlers, tokens middleware.TokenParser, rdb redis.UniversalClient) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("/")
	protected.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod, rdb))
	protected.Use(middleware.AuthMiddleware(tokens))
	{
		protected.POST("/jobs", h.Jobs.CreateJob)
		protected.GET("/jobs", h.Jobs.ListJobs)
		protected.GET("/jobs/my", h.Jobs.ListMyJobs)
		protected.GET("/jobs/:id", middleware.UUIDValidator("id"), h.Jobs.GetJob)
		protected.PATCH("/jobs/:id/publish", middleware.UUIDValidator("id"), h.Jobs.PublishJob)
		protected.DELETE("/jobs/:id", middleware.UUIDValidator("id"), h.Jobs.DeleteJob)
		protected.PATCH("/jobs/:id/deliver", middleware.UUIDValidator("id"), h.Jobs.DeliverJob)
		protected.PATCH("/jobs/:id/status", middleware.UUIDValidator("id"), h.Jobs.UpdateStatus)
		protected.POST("/jobs/:id/dispute", middleware.UUIDValidator("id"), h.Jobs.CreateDispute)
		protected.POST("/jobs/:id/review", middleware.UUIDValidator("id"), h.Jobs.CreateReview)

		protected.POST("/jobs/:id/bids", middleware.UUIDValidator("id"), h.Bids.CreateBid)
		protected.GET("/jobs/:id/bids", middleware.UUIDValidator("id"), h.Bids.ListJobBids)
		protected.GET("/bids/my", h.Bids.ListMyBids)
		protected.PATCH("/bids/:id/status", middleware.UUIDValidator("id"), h.Bids.DecideBid)
		protected.DELETE("/bids/:id", middleware.UUIDValidator("id"), h.Bids.DeleteBid)

		protected.GET("/charge", h.Charge.GetCharge)
		protected.PUT("/charge", middleware.RequireRole(models.RoleAdmin), h.Charge.UpdateCharge)

		protected.POST("/payments/account", h.Payments.ConnectAccount)
		protected.GET("/payments/account", h.Payments.GetAccountStatus)
		protected.POST("/payments/account/link", h.Payments.CreateAccountLink)
		protected.POST("/payments/jobs/:id/intent", middleware.UUIDValidator("id"), h.Payments.CreateJobIntent)
		protected.GET("/payments/balance", h.Payments.GetBalance)
	}

	admin := protected.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/stats", h.Admin.GetStats)
		admin.POST("/settlements/run", h.Admin.RunSettlement)
	}

	return r
}
