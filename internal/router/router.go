package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/task-notifier/internal/middleware"
	"github.com/jwalitptl/task-notifier/pkg/metrics"
)

type Handler interface {
	RegisterRoutes(*gin.RouterGroup)
}

type ProtectedHandler interface {
	RegisterRoutes(*gin.RouterGroup, *middleware.AuthMiddleware)
}

type Router struct {
	engine        *gin.Engine
	auth          *middleware.AuthMiddleware
	healthH       Handler
	notificationH ProtectedHandler
	metricsH      gin.HandlerFunc
	websocketH    gin.HandlerFunc
	metrics       *metrics.Metrics
}

type RouterConfig struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
	// MaxBodyBytes caps admin API request bodies; 0 disables the limit.
	MaxBodyBytes int64
	// MetricsPath is left unregistered when empty.
	MetricsPath   string
	WebsocketPath string
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	healthH Handler,
	notificationH ProtectedHandler,
	metricsH gin.HandlerFunc,
	websocketH gin.HandlerFunc,
	m *metrics.Metrics,
	config RouterConfig,
) *Router {
	engine := gin.New()

	r := &Router{
		engine:        engine,
		auth:          auth,
		healthH:       healthH,
		notificationH: notificationH,
		metricsH:      metricsH,
		websocketH:    websocketH,
		metrics:       m,
	}

	engine.Use(
		middleware.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		middleware.ErrorHandler(),
		middleware.SecurityHeaders(),
		r.metricsMiddleware(),
		middleware.CORS(config.CORSConfig),
	)

	if config.RateLimit > 0 {
		rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  config.RateLimit,
			Burst: config.RateBurst,
		})
		engine.Use(rateLimiter.RateLimit())
	}

	r.setup(config)
	return r
}

func (r *Router) setup(config RouterConfig) {
	r.healthH.RegisterRoutes(&r.engine.RouterGroup)

	if config.MetricsPath != "" && r.metricsH != nil {
		r.engine.GET(config.MetricsPath, r.metricsH)
	}

	wsPath := config.WebsocketPath
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.engine.GET(wsPath, r.websocketH)

	api := r.engine.Group("/api/v1")
	api.Use(middleware.BodyLimit(config.MaxBodyBytes), r.auth.Authenticate())
	r.notificationH.RegisterRoutes(api, r.auth)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		r.metrics.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
