// Package api serves pipeline outputs over a small read-only JSON API.
package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/PolloDK/FK01-Encuestas/internal/logger"
	"github.com/PolloDK/FK01-Encuestas/internal/telemetry"
)

type RouterConfig struct {
	Handler *Handler
	Metrics *telemetry.Metrics
	Log     *logger.Logger
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLog(cfg.Log))

	router.GET("/healthcheck", HealthCheck)
	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := router.Group("/api")
	{
		api.GET("/predictions", cfg.Handler.Predictions)
		api.GET("/features/latest", cfg.Handler.LatestFeatures)
		api.GET("/status", cfg.Handler.Status)
		api.GET("/runs", cfg.Handler.Runs)
	}
	return router
}

func requestLog(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request served",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
		)
	}
}
