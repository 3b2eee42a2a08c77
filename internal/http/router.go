package http

import (
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter creates and configures the Gin router.
func SetupRouter(handler *Handler, allowedOrigins []string) *gin.Engine {

	router := gin.Default()

	// Setup CORS middleware.
	// "*" or an empty list allows all origins.
	corsConfig := cors.DefaultConfig()
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = allowedOrigins
	}

	router.Use(cors.New(corsConfig))

	// API v1 routes.
	v1 := router.Group("/v1")
	v1.GET("/fields", handler.GetFields)
	v1.GET("/available-dates", handler.GetAvailableDates)
	v1.GET("/runs", handler.GetRuns)

	// Health, readiness and metrics.
	router.GET("/healthz", handler.HealthCheck)
	router.GET("/readyz", handler.ReadyCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
