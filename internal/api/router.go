package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/safar/rain-market/internal/api/handlers"
	"github.com/safar/rain-market/internal/api/middleware"
	"github.com/safar/rain-market/internal/models"
	"github.com/safar/rain-market/internal/service"
)

// Services bundles the application services the router exposes.
type Services struct {
	Orders       *service.OrderService
	Checkout     *service.CheckoutService
	Reconciler   *service.Reconciler
	Offers       *service.OfferService
	Applications *service.ApplicationService
	Reports      *service.ReportService
}

// NewRouter creates and configures the Gin router
func NewRouter(environment string, svc Services, logger *zap.Logger) *gin.Engine {
	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Gateway callbacks are authenticated by signature, not by actor.
	router.POST("/webhooks/payments", handlers.HandlePaymentWebhook(svc.Reconciler, logger))

	v1 := router.Group("/v1")
	v1.Use(middleware.ActorMiddleware(logger))
	{
		v1.GET("/offers/:id/quote", handlers.HandleQuote(svc.Orders, logger))

		orders := v1.Group("/orders")
		{
			orders.POST("", handlers.HandleCreateOrder(svc.Orders, logger))
			orders.GET("", handlers.HandleListBuyerOrders(svc.Orders, logger))
			orders.GET("/:id", handlers.HandleGetOrder(svc.Orders, logger))
			orders.POST("/:id/accept", handlers.HandleTransitionOrder(svc.Orders, models.ActionAccept, logger))
			orders.POST("/:id/ship", handlers.HandleTransitionOrder(svc.Orders, models.ActionShip, logger))
			orders.POST("/:id/confirm-delivery", handlers.HandleTransitionOrder(svc.Orders, models.ActionConfirmDelivery, logger))
			orders.POST("/:id/cancel", handlers.HandleTransitionOrder(svc.Orders, models.ActionCancel, logger))
			orders.POST("/:id/checkout", handlers.HandleCheckout(svc.Checkout, logger))
			orders.POST("/:id/payment/verify", handlers.HandleVerifyPayment(svc.Checkout, logger))
		}

		supplier := v1.Group("/supplier")
		{
			supplier.GET("/orders", handlers.HandleListSupplierOrders(svc.Orders, logger))
			supplier.POST("/offers", handlers.HandleCreateOffer(svc.Offers, logger))
			supplier.PATCH("/offers/:id", handlers.HandleUpdateOffer(svc.Offers, logger))
			supplier.GET("/earnings", handlers.HandleEarnings(svc.Reports, logger))
			supplier.GET("/earnings.csv", handlers.HandleEarningsCSV(svc.Reports, logger))
			supplier.POST("/applications", handlers.HandleSubmitApplication(svc.Applications, logger))
		}

		admin := v1.Group("/admin")
		{
			admin.GET("/applications", handlers.HandleListApplications(svc.Applications, logger))
			admin.POST("/applications/:id/approve", handlers.HandleReviewApplication(svc.Applications, true, logger))
			admin.POST("/applications/:id/reject", handlers.HandleReviewApplication(svc.Applications, false, logger))
		}
	}

	return router
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
