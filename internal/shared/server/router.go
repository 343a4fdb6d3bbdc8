package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"paper-backend/internal/documents"
	"paper-backend/internal/services/health"
	"paper-backend/internal/shared/config"
	"paper-backend/internal/shared/metrics"
	"paper-backend/internal/shared/server/middleware"
	"paper-backend/internal/shared/server/respond"
)

// RouterDeps carries the handlers the router mounts.
type RouterDeps struct {
	Config          config.Config
	DocumentHandler *documents.Handler
	Health          *health.Service
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	healthSvc := deps.Health
	if healthSvc == nil {
		healthSvc = health.NewService()
	}
	healthHandler := func(c *gin.Context) {
		report := healthSvc.Status(c.Request.Context())
		status := http.StatusOK
		if !report.OK {
			status = http.StatusServiceUnavailable
		}
		respond.JSON(c, status, report)
	}
	r.GET("/metrics", metrics.Handler())
	r.GET("/healthz", healthHandler)

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler)

	authed := api.Group("")
	authed.Use(
		middleware.Auth(deps.Config.Env),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules:        rateLimitRules(deps.Config),
			DefaultGroup: middleware.GroupRead,
			GroupFor:     rateLimitGroup,
			Limiter:      deps.RateLimiter,
		}),
	)
	registerMeRoutes(authed)
	if deps.DocumentHandler != nil {
		deps.DocumentHandler.RegisterRoutes(authed)
	}

	return r
}

func rateLimitRules(cfg config.Config) map[string]middleware.RateLimitRule {
	rules := map[string]middleware.RateLimitRule{}
	if cfg.UploadRatePerMinute > 0 {
		rules[middleware.GroupUpload] = perMinute(cfg.UploadRatePerMinute)
	}
	if cfg.ReadRatePerMinute > 0 {
		rules[middleware.GroupRead] = perMinute(cfg.ReadRatePerMinute)
	}
	return rules
}

func perMinute(n int) middleware.RateLimitRule {
	return middleware.RateLimitRule{Rate: float64(n) / 60, Burst: n}
}

// rateLimitGroup puts the endpoints that store new files under the upload budget.
func rateLimitGroup(c *gin.Context) string {
	if c.Request.Method != http.MethodPost {
		return middleware.GroupRead
	}
	path := strings.TrimSuffix(c.FullPath(), "/")
	switch path {
	case "/api/v1/documents", "/api/v1/documents/batch":
		return middleware.GroupUpload
	default:
		return middleware.GroupRead
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
