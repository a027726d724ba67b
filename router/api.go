// Package router wires the HTTP surface: the OpenAI-compatible relay edge,
// the public catalog, billing webhooks, MCP, and the operational endpoints.
package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/shinmentakezo07/shinway-sub001/common/config"
	"github.com/shinmentakezo07/shinway-sub001/controller"
	"github.com/shinmentakezo07/shinway-sub001/mcp"
	"github.com/shinmentakezo07/shinway-sub001/middleware"
	"github.com/shinmentakezo07/shinway-sub001/monitor"
)

// SetRouter attaches every route to the engine.
func SetRouter(engine *gin.Engine) {
	engine.Use(middleware.RequestId())
	engine.Use(corsMiddleware())
	// Relay responses stream; compress only the static surfaces.
	engine.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{
		"/v1/chat/completions", "/v1/images/generations", "/mcp",
	})))
	if config.OpenTelemetryEnabled {
		engine.Use(otelgin.Middleware(config.OpenTelemetryServiceName))
	}

	engine.GET("/health", controller.Health)
	engine.GET("/healthz", controller.Health)
	if config.EnablePrometheusMetrics {
		engine.GET("/metrics", monitor.MetricsHandler())
	}

	engine.POST("/webhooks/stripe", controller.StripeWebhook)

	v1 := engine.Group("/v1")
	{
		v1.GET("/models", middleware.PublicRateLimit(), controller.ListModels)

		relay := v1.Group("",
			middleware.TokenAuth(),
			middleware.RateLimit(),
			middleware.Distribute(),
		)
		relay.POST("/chat/completions", controller.Relay)
		relay.POST("/images/generations", controller.Relay)
	}

	mcpHandler := mcp.Handler()
	mcpGroup := engine.Group("/mcp", middleware.TokenAuth())
	mcpGroup.GET("", mcpHandler)
	mcpGroup.POST("", mcpHandler)
	mcpGroup.DELETE("", mcpHandler)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"message": "not found",
				"type":    "invalid_request",
			},
		})
	})
}

// corsMiddleware allows the configured UI origins, or everything when none
// are configured (self-hosted default).
func corsMiddleware() gin.HandlerFunc {
	conf := cors.DefaultConfig()
	conf.AllowCredentials = true
	conf.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type",
		"Authorization", "x-api-key", "x-no-fallback", "x-github-token", "Mcp-Session-Id"}

	var origins []string
	for _, origin := range config.OriginURLs {
		if origin != "" {
			origins = append(origins, origin)
		}
	}
	if len(origins) == 0 {
		conf.AllowAllOrigins = true
		conf.AllowCredentials = false
	} else {
		conf.AllowOrigins = origins
	}
	return cors.New(conf)
}
