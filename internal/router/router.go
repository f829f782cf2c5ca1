package router

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	healthhandler "github.com/hitpixel/pillflow-api/internal/handler/health"
	"github.com/hitpixel/pillflow-api/internal/middleware"
)

// Handler registers a group of routes under the API prefix.
type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type Router struct {
	engine   *gin.Engine
	auth     *middleware.AuthMiddleware
	metrics  *routerMetrics
	cacheTTL time.Duration
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

type Config struct {
	RateLimitPerSecond float64
	RateLimitBurst     int
	CacheTTL           time.Duration
	MetricsPrefix      string
}

func New(auth *middleware.AuthMiddleware, cfg Config) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	r := &Router{
		engine:   engine,
		auth:     auth,
		metrics:  newRouterMetrics(cfg.MetricsPrefix),
		cacheTTL: cfg.CacheTTL,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		r.metricsMiddleware(),
	)

	if cfg.RateLimitPerSecond > 0 {
		rl := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
		engine.Use(rl.RateLimit())
	}

	return r
}

// Setup mounts operational endpoints plus the authenticated API surface.
// Cacheable handlers get a short response cache; anything involved in
// access decisions or grant state is registered uncached.
func (r *Router) Setup(health *healthhandler.Handler, uncached []Handler, cacheable []Handler) {
	health.RegisterRoutes(r.engine)
	r.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.engine.Group("/api/v1")
	api.Use(func(c *gin.Context) {
		c.Header("X-API-Version", "1.0")
		c.Next()
	})
	api.Use(r.auth.Authenticate())

	for _, h := range uncached {
		h.RegisterRoutes(api)
	}

	cached := api.Group("")
	if r.cacheTTL > 0 {
		cached.Use(middleware.ResponseCache(r.cacheTTL))
	}
	for _, h := range cacheable {
		h.RegisterRoutes(cached)
	}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func newRouterMetrics(prefix string) *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: prefix + "_request_duration_seconds",
				Help: "Duration of HTTP requests in seconds",
			},
			[]string{"method", "path", "status"},
		),
		requestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := fmt.Sprintf("%d", c.Writer.Status())
		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
