// Package api is the HTTP surface of the kline service: raw candles, MACD
// and RSI per resolution, a placeholder chart page and /healthz.
package api

import (
	"log/slog"
	"net/http"

	"kline-service/internal/metrics"
	"kline-service/internal/query"

	"github.com/gin-gonic/gin"
)

// Config wires the router's collaborators. Health and Metrics are optional.
type Config struct {
	Query   *query.Service
	Health  http.Handler
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(cfg *Config) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery(), requestID(), accessLog(logger.With("component", "api"), cfg.Metrics))

	h := NewHandler(cfg.Query)
	router.GET("/", h.Chart)
	router.GET("/kline/:resolution", h.GetKlines)

	indicators := router.Group("/indicators")
	{
		indicators.GET("/macd/:resolution", h.GetMACD)
		indicators.GET("/rsi/:resolution", h.GetRSI)
	}

	if cfg.Health != nil {
		router.GET("/healthz", gin.WrapH(cfg.Health))
	}
	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})

	return router
}
