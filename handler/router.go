package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/franklinjsmith-create/SupplyVerify/config"
	"github.com/franklinjsmith-create/SupplyVerify/metrics"
	"github.com/franklinjsmith-create/SupplyVerify/middleware"
	"github.com/franklinjsmith-create/SupplyVerify/service"
)

// RouterDeps are the collaborators the HTTP layer needs.
type RouterDeps struct {
	Config  *config.Config
	Store   service.SessionStore
	Runner  *service.Runner
	Metrics *metrics.Metrics
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter wires middleware and routes. Verification routes require a
// bearer token only when auth is configured.
func NewRouter(deps RouterDeps) *gin.Engine {
	cfg := deps.Config

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(deps.Metrics))
	router.Use(middleware.RequestLogger())
	router.Use(corsMiddleware())
	router.Use(noCacheMiddleware())

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router.GET("/health", Health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	verifyHandler := NewVerifyHandler(deps.Store, deps.Runner, cfg.Server.MaxUploadMB)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(cfg.Server.RateLimit, cfg.Server.RateWindow))

	protected := api.Group("/")
	if cfg.Auth.Enabled() {
		authHandler := NewAuthHandler(cfg)
		api.POST("/auth/login", authHandler.Login)

		protected.Use(middleware.AuthMiddleware(&cfg.Auth))
		protected.GET("/auth/me", authHandler.GetCurrentUser)
	}
	protected.POST("/verify", verifyHandler.Upload)
	protected.POST("/verify-text", verifyHandler.UploadText)
	protected.GET("/progress/:session_id", verifyHandler.Progress)

	return router
}

// Health reports liveness.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// corsMiddleware handles CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Authorization, Accept, Origin, X-Request-ID")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")
		h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Progress is polled; responses must never be served from a cache.
func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
		}
		c.Next()
	}
}
