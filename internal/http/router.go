package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/classr/internal/http/handlers"
	httpMW "github.com/yungbote/classr/internal/http/middleware"
	"github.com/yungbote/classr/internal/observability"
	"github.com/yungbote/classr/internal/platform/logger"
	"github.com/yungbote/classr/internal/remote"
)

type RouterConfig struct {
	Log *logger.Logger

	RPCHandler      *httpH.RPCHandler
	ResourceHandler *httpH.ResourceHandler
	JobHandler      *httpH.JobHandler
	HealthHandler   *httpH.HealthHandler

	// APIKey protects /api with basic auth; empty disables auth.
	APIKey      string
	CORSOrigins []string
	// MaxUploadBytes caps multipart bodies; 0 keeps gin's default.
	MaxUploadBytes int64
	// Tracing wraps requests in otel spans.
	Tracing bool
	// Metrics is served on /metrics when set.
	Metrics *observability.Metrics
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.Tracing {
		r.Use(otelgin.Middleware("classr"))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, "/healthz", "/metrics"))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
		r.Use(limitBody(cfg.MaxUploadBytes))
	}

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	api.Use(httpMW.BasicAuth(remote.APIUser, cfg.APIKey))
	{
		if cfg.RPCHandler != nil {
			api.POST("", cfg.RPCHandler.Serve)
			api.POST("/", cfg.RPCHandler.Serve)
		}

		// Resources
		if cfg.ResourceHandler != nil {
			api.GET(remote.DownloadPath+":uid", cfg.ResourceHandler.Download)
			api.POST("/resource.upload", cfg.ResourceHandler.Upload)
		}

		// Jobs
		if cfg.JobHandler != nil {
			api.POST("/job.place", cfg.JobHandler.Place)
			api.GET("/job.download/:uid", cfg.JobHandler.Download)
		}
	}

	return r
}

func limitBody(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}
