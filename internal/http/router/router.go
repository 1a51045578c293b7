package router

import (
	"github.com/gin-gonic/gin"

	"github.com/festmatch/festmatch-backend/internal/config"
	"github.com/festmatch/festmatch-backend/internal/http/handlers"
	"github.com/festmatch/festmatch-backend/internal/http/middleware"
	"github.com/festmatch/festmatch-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	walletHandler *handlers.WalletHandler,
	matchHandler *handlers.MatchHandler,
	disputeHandler *handlers.DisputeHandler,
	adminHandler *handlers.AdminHandler,
	notificationHandler *handlers.NotificationHandler,
	wsHandler *handlers.WSHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		wallet := protected.Group("/wallet")
		wallet.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
		{
			wallet.POST("/topup", walletHandler.TopUp)
			wallet.GET("/balance", walletHandler.GetBalance)
			wallet.GET("/transactions", walletHandler.ListTransactions)
		}

		protected.POST("/matches", matchHandler.Create)
		protected.GET("/matches", matchHandler.List)
		protected.GET("/matches/:id", middleware.UUIDValidator("id"), matchHandler.Get)
		protected.POST("/matches/:id/accept", middleware.UUIDValidator("id"), matchHandler.Accept)
		protected.POST("/matches/:id/reject", middleware.UUIDValidator("id"), matchHandler.Reject)
		protected.POST("/matches/:id/cancel", middleware.UUIDValidator("id"), matchHandler.Cancel)
		protected.POST("/matches/:id/complete", middleware.UUIDValidator("id"), matchHandler.Complete)
		protected.POST("/matches/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.Open)
		protected.GET("/matches/:id/dispute", middleware.UUIDValidator("id"), disputeHandler.GetForMatch)

		protected.GET("/disputes", disputeHandler.List)
		protected.GET("/disputes/:id", middleware.UUIDValidator("id"), disputeHandler.Get)
		protected.POST("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.AddMessage)
		protected.GET("/disputes/:id/messages", middleware.UUIDValidator("id"), disputeHandler.ListMessages)

		protected.GET("/notifications", notificationHandler.List)
		protected.GET("/notifications/unread/count", notificationHandler.CountUnread)
		protected.PUT("/notifications/read-all", notificationHandler.MarkAllAsRead)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.AdminOnly())
	{
		admin.GET("/disputes", adminHandler.ListDisputes)
		admin.POST("/disputes/:id/review", middleware.UUIDValidator("id"), adminHandler.ReviewDispute)
		admin.POST("/disputes/:id/resolve", middleware.UUIDValidator("id"), adminHandler.ResolveDispute)
		admin.GET("/matches", adminHandler.ListMatches)
		admin.GET("/users/:id/transactions", middleware.UUIDValidator("id"), adminHandler.ListUserTransactions)
		admin.POST("/users/:id/strike", middleware.UUIDValidator("id"), adminHandler.StrikeUser)
		admin.POST("/users/:id/ban", middleware.UUIDValidator("id"), adminHandler.BanUser)
		admin.POST("/wallet/:id/reconcile", middleware.UUIDValidator("id"), adminHandler.ReconcileWallet)
		admin.POST("/wallet/:id/release-hold", middleware.UUIDValidator("id"), adminHandler.ReleaseHold)
	}

	return r
}
