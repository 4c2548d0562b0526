package http

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/SIRP996/cao-du-lieu-sub000/config"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(cfg *config.Config, handler *Handler, log zerolog.Logger) *gin.Engine {
	// Set Gin mode based on environment
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.Server.AllowedOrigins))

	// Health check endpoint
	router.GET("/health", handler.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(NewRateLimiter(cfg.RateLimit.PerIP).Handler())
	{
		v1.GET("/sources", handler.GetSources)
		v1.PUT("/sources", handler.UpdateSources)
		v1.PUT("/credentials", handler.SetCredentials)

		v1.GET("/records", handler.GetRecords)
		v1.DELETE("/records", handler.ClearRecords)

		v1.POST("/extract", handler.Extract)
		v1.POST("/extension", handler.ExtensionCapture)
		v1.POST("/classify", handler.Classify)

		run := v1.Group("/run")
		{
			run.POST("/stop", handler.StopRun)
			run.GET("/status", handler.RunStatus)
		}

		v1.GET("/report", handler.Report)
		v1.POST("/stores/search", handler.SearchStores)
	}

	return router
}
