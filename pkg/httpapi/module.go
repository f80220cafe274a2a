package httpapi

import (
	"net/http"
	"time"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/health"
	"wavesight-core/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("httpapi",
	fx.Provide(
		NewEngine,
		NewHandler,
		NewV1,
	),
	fx.Invoke(registerHealthEndpoint),
)

// V1 is the authenticated /v1 route group.
type V1 struct {
	*gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), middleware.Error())
	return r
}

func NewHandler(r *gin.Engine) http.Handler {
	return r
}

func NewV1(r *gin.Engine) V1 {
	return V1{r.Group("/v1", middleware.Authenticate())}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/livez", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "/healthz" || path == "/livez" || path == "/metrics" {
			return
		}

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		}
		if span := trace.SpanFromContext(c.Request.Context()).SpanContext(); span.IsValid() {
			fields = append(fields, zap.String("trace_id", span.TraceID().String()))
		}
		if id, ok := middleware.IdentityFrom(c.Request.Context()); ok {
			fields = append(fields, zap.String("user_id", id.UserID))
		}

		zap.L().Info("http request", fields...)
	}
}
