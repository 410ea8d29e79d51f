package routes

import (
	"os"
	"time"

	"atlas-backend/handlers"
	"atlas-backend/loyalty"
	"atlas-backend/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func SetupRoutes(r *gin.Engine, db *gorm.DB, service *loyalty.Service) {
	// Initialize handlers
	loyaltyHandler := &handlers.LoyaltyHandler{DB: db, Service: service}
	catalogHandler := &handlers.CatalogHandler{DB: db}
	webhookHandler := &handlers.WebhookHandler{DB: db, Service: service, Secret: os.Getenv("SHOPIFY_WEBHOOK_SECRET")}
	cronHandler := &handlers.CronHandler{Service: service, Secret: os.Getenv("CRON_SECRET")}

	publicLimiter := middleware.NewRateLimiter(60, time.Minute)

	// Public routes
	api := r.Group("/api")
	{
		public := api.Group("/loyalty")
		public.Use(publicLimiter.Middleware())
		{
			public.GET("/rewards", catalogHandler.GetRewards)
			public.GET("/tiers", catalogHandler.GetTiers)
			public.GET("/destinations", catalogHandler.GetDestinations)
		}

		// Commerce platform webhooks (HMAC-verified in the handler)
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("/orders/paid", webhookHandler.OrderPaid)
			webhooks.POST("/orders/fulfilled", webhookHandler.OrderFulfilled)
			webhooks.POST("/orders/refunded", webhookHandler.OrderRefunded)
			webhooks.POST("/customers/created", webhookHandler.CustomerCreated)
		}

		// Scheduler entry point (bearer CRON_SECRET)
		api.GET("/cron/loyalty", cronHandler.Run)
	}

	// Member routes (require a customer session)
	member := api.Group("/loyalty")
	member.Use(middleware.AuthMiddleware())
	{
		member.POST("/enroll", loyaltyHandler.Enroll)
		member.GET("/status", loyaltyHandler.Status)
		member.POST("/redeem", loyaltyHandler.Redeem)
		member.POST("/referral", loyaltyHandler.Referral)
		member.GET("/redemptions", loyaltyHandler.Redemptions)
	}

	// Admin routes (require admin role)
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware())
	admin.Use(middleware.AdminMiddleware())
	{
		// Manual accrual / backfill
		admin.POST("/loyalty/earn", loyaltyHandler.Earn)

		// Reward catalog management
		admin.POST("/rewards", catalogHandler.CreateReward)
		admin.PUT("/rewards/:id", catalogHandler.UpdateReward)
		admin.DELETE("/rewards/:id", catalogHandler.DeleteReward)

		// Destination management
		admin.POST("/destinations", catalogHandler.CreateDestination)
		admin.PUT("/destinations/:id", catalogHandler.UpdateDestination)

		// Redemption operations
		admin.GET("/redemptions", catalogHandler.ListRedemptions)
		admin.POST("/redemptions/:id/used", catalogHandler.MarkRedemptionUsed)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
}
