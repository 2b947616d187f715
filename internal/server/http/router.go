package http

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nikitavbv/sandbox/internal/app/dispatch"
	"github.com/nikitavbv/sandbox/internal/auth"
)

// RouterConfig configures cross-cutting router behavior.
type RouterConfig struct {
	Environment    string
	AllowedOrigins []string
	WorkerToken    string
	StallThreshold time.Duration
}

// NewRouter builds the Dispatcher API's gin engine, wiring every
// dispatch, worker, auth, and storage route as JSON-over-HTTP in place
// of a framed RPC service.
func NewRouter(service *dispatch.Service, tokens *auth.TokenManager, cfg RouterConfig) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(ErrorMiddleware())

	corsCfg := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "x-access-token")
	engine.Use(cors.New(corsCfg))

	handler := NewHandler(service, cfg.StallThreshold)

	engine.GET("/health", handler.HandleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	requireAuth := AuthMiddleware(tokens, cfg.WorkerToken)
	optionalAuth := OptionalAuthMiddleware(tokens, cfg.WorkerToken)

	dispatchGroup := engine.Group("/v1/dispatch")
	{
		dispatchGroup.GET("/reflection", requireAuth, handler.HandleReflection)
		// CreateTask and GetTask accept anonymous callers (nullable user id);
		// every other dispatch route requires a valid token.
		dispatchGroup.POST("/tasks", optionalAuth, handler.HandleCreateTask)
		dispatchGroup.GET("/tasks", requireAuth, handler.HandleListTasks)
		dispatchGroup.GET("/tasks/:id", optionalAuth, handler.HandleGetTask)
		dispatchGroup.GET("/tasks/:id/messages", requireAuth, handler.HandleListMessages)
		dispatchGroup.POST("/tasks/:id/messages", requireAuth, handler.HandleUserAppendMessage)

		dispatchGroup.POST("/worker/lease", requireAuth, handler.HandleLeaseNextTask)
		dispatchGroup.POST("/worker/progress", requireAuth, handler.HandleReportProgress)
		dispatchGroup.POST("/worker/assets", requireAuth, handler.HandleUploadAsset)
		dispatchGroup.POST("/worker/messages", requireAuth, handler.HandleWorkerAppendMessage)
	}

	storageGroup := engine.Group("/v1/storage")
	storageGroup.Use(requireAuth)
	{
		storageGroup.GET("/:asset_id", handler.HandleGetAsset)
	}

	authGroup := engine.Group("/v1/auth")
	{
		authGroup.POST("/oauth/exchange", handler.HandleOAuthExchange)
		authGroup.GET("/oauth/callback", handler.HandleOAuthCallback)
	}

	return engine
}
