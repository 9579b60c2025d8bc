package router

import (
	"github.com/gin-gonic/gin"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/taskhub-backend/internal/config"
	"github.com/ignatzorin/taskhub-backend/internal/http/handlers"
	"github.com/ignatzorin/taskhub-backend/internal/http/middleware"
	"github.com/ignatzorin/taskhub-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	taskHandler *handlers.TaskHandler,
	bidHandler *handlers.BidHandler,
	paymentHandler *handlers.PaymentHandler,
	disputeHandler *handlers.DisputeHandler,
	stripeAccountHandler *handlers.StripeAccountHandler,
	webhookHandler *handlers.WebhookHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	tokenManager *service.TokenManager,
	rateStore limiter.Store,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Webhook без авторизации: подлинность проверяется подписью
	api.POST("/webhooks/stripe",
		middleware.RateLimitMiddleware(rateStore, cfg.RateLimitLimit*10, cfg.RateLimitPeriod),
		webhookHandler.Stripe,
	)
	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/tasks", taskHandler.CreateTask)
		protected.GET("/tasks/my", taskHandler.ListMyTasks)
		protected.GET("/tasks/:id", middleware.UUIDValidator("id"), taskHandler.GetTask)
		protected.POST("/tasks/:id/deliver", middleware.UUIDValidator("id"), taskHandler.SubmitDelivery)
		protected.POST("/tasks/:id/complete", middleware.UUIDValidator("id"), taskHandler.CompleteTask)
		protected.POST("/tasks/:id/cancel", middleware.UUIDValidator("id"), taskHandler.CancelTask)
		protected.GET("/tasks/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.GetTaskDispute)
		protected.GET("/tasks/:id/payments", middleware.UUIDValidator("id"), paymentHandler.ListTaskPayments)

		protected.POST("/tasks/:id/bids", middleware.UUIDValidator("id"), bidHandler.CreateBid)
		protected.GET("/tasks/:id/bids", middleware.UUIDValidator("id"), bidHandler.ListTaskBids)
		protected.PUT("/bids/:bidId", middleware.UUIDValidator("bidId"), bidHandler.UpdateBid)
		protected.DELETE("/bids/:bidId", middleware.UUIDValidator("bidId"), bidHandler.DeleteBid)
		protected.POST("/bids/:bidId/accept",
			middleware.UUIDValidator("bidId"),
			middleware.RateLimitMiddleware(rateStore, cfg.RateLimitLimit, cfg.RateLimitPeriod),
			bidHandler.AcceptBid,
		)

		protected.GET("/payments/:paymentId", middleware.UUIDValidator("paymentId"), paymentHandler.GetPayment)
		protected.POST("/payments/:paymentId/sync", middleware.UUIDValidator("paymentId"), paymentHandler.SyncPayment)

		protected.POST("/stripe/account", stripeAccountHandler.CreateAccount)
		protected.POST("/stripe/account/link", stripeAccountHandler.RefreshLink)
		protected.GET("/stripe/account/status", stripeAccountHandler.GetStatus)

		protected.GET("/notifications", notificationHandler.ListNotifications)
		protected.GET("/notifications/unread/count", notificationHandler.UnreadCount)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
		protected.PUT("/notifications/:id/read", middleware.UUIDValidator("id"), notificationHandler.MarkAsRead)
	}

	return r
}
