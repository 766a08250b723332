package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/tradewire/tradewire/internal/handlers"
)

// SetupRoutes configures all the routes for the application
func SetupRoutes(r *gin.Engine, webhook *handlers.WebhookHandler, management *handlers.ManagementHandler) {
	// Inbound alert endpoints. The single-segment form carries the token in
	// the first wildcard; the two-segment form prefixes it with a source label.
	r.POST("/w/:source", webhook.Receive)
	r.POST("/w/:source/:token", webhook.Receive)
	r.POST("/receive/:token", webhook.Receive)
	r.POST("/execute", webhook.Execute)

	// Management API
	api := r.Group("/api/v1")
	{
		webhooks := api.Group("/webhooks")
		{
			webhooks.POST("", management.CreateWebhook)
			webhooks.GET("", management.ListWebhooks)
			webhooks.GET("/:id", management.GetWebhook)
			webhooks.PUT("/:id", management.UpdateWebhook)
			webhooks.DELETE("/:id", management.DeleteWebhook)
			webhooks.POST("/:id/test", management.TestWebhook)
			webhooks.GET("/:id/metrics", management.WebhookMetrics)
			webhooks.GET("/:id/heatmap", management.WebhookHeatmap)
			webhooks.GET("/:id/insights", management.WebhookInsights)
		}

		api.GET("/executions", management.ListExecutions)
		api.POST("/brokers/:broker/test", management.TestBroker)
	}

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "ok",
			"service": "tradewire",
		})
	})

	// Root endpoint
	r.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"message": "TradeWire Signal Relay",
			"version": "1.0.0",
			"endpoints": gin.H{
				"webhook":    "/w/:token",
				"execute":    "/execute",
				"management": "/api/v1/webhooks",
				"health":     "/health",
			},
		})
	})
}
