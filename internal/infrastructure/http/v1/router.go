// Package v1 provides HTTP API version 1.
package v1

import (
	"github.com/gin-gonic/gin"

	"fulfil/internal/domain/allocation"
	"fulfil/internal/infrastructure/http/v1/handlers"
	"fulfil/internal/infrastructure/http/v1/middleware"
	"fulfil/internal/infrastructure/storage/postgres"
	"fulfil/pkg/logger"
)

// RouterConfig holds router dependencies.
type RouterConfig struct {
	// Pool is the database connection pool (for health checks)
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// Allocation is the engine behind every delivery endpoint
	Allocation *allocation.Service
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	deliveryHandler := handlers.NewDeliveryHandler(cfg.Allocation)
	orderHandler := handlers.NewOrderHandler(cfg.Allocation)

	// API v1
	v1 := router.Group("/api/v1")
	{
		orders := v1.Group("/orders/:orderId")
		{
			orders.GET("/plan", orderHandler.Plan)
			orders.GET("/lines/:lineId/remaining", orderHandler.Remaining)
			orders.POST("/deliveries", deliveryHandler.Plan)
			orders.POST("/deliveries/plan-all", deliveryHandler.PlanAll)
		}

		deliveries := v1.Group("/deliveries/:id")
		{
			deliveries.GET("", deliveryHandler.Get)
			deliveries.GET("/history", deliveryHandler.History)
			deliveries.PUT("", deliveryHandler.Update)
			deliveries.POST("/cancel", deliveryHandler.Cancel)
			deliveries.POST("/advance", deliveryHandler.Advance)
		}
	}

	return router
}
