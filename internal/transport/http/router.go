package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"outbox/backend/internal/config"
	"outbox/backend/internal/health"
	"outbox/backend/internal/middleware"
	"outbox/backend/internal/monitoring"
	"outbox/backend/internal/queue"
	"outbox/backend/internal/settings"
	"outbox/backend/internal/storage"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config    *config.Config
	Manager   *queue.Manager
	APIKeys   *queue.APIKeyService
	Settings  *settings.Service
	Store     storage.Store
	Health    *health.HealthChecker
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()

	mon := middleware.NewMonitoringMiddleware(deps.Metrics, deps.Logger)
	router.Use(mon.Recovery())
	router.Use(mon.HTTPMetrics())

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-API-Key"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	messageHandler := NewMessageHandler(deps.Manager, deps.Config.Mail.DefaultSender, deps.Logger)
	apiKeyHandler := NewAPIKeyHandler(deps.APIKeys)
	adminHandler := NewAdminHandler(deps.Settings, deps.Store, deps.Logger)
	apiKeyAuth := middleware.NewAPIKeyAuth(deps.APIKeys)

	// 健康检查与指标
	router.GET("/healthz", gin.WrapH(deps.Health.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Health.CheckHealth())
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// V1 API，全部要求 API Key
	v1 := router.Group("/api/v1")
	v1.Use(apiKeyAuth.RequireAPIKey())
	{
		messages := v1.Group("/messages")
		{
			messages.POST("", messageHandler.Submit)
			messages.GET("", messageHandler.List)
			messages.GET("/:uuid", messageHandler.Get)
			messages.POST("/:uuid/retry", messageHandler.Retry)
			messages.POST("/:uuid/cancel", messageHandler.Cancel)
		}

		v1.GET("/stats", messageHandler.Stats)

		admin := v1.Group("/admin")
		{
			admin.GET("/apikeys", apiKeyHandler.List)
			admin.POST("/apikeys", apiKeyHandler.Create)
			admin.PATCH("/apikeys/:id", apiKeyHandler.SetEnabled)
			admin.DELETE("/apikeys/:id", apiKeyHandler.Delete)

			admin.GET("/settings", adminHandler.ListSettings)
			admin.PUT("/settings", adminHandler.SetSetting)

			admin.GET("/audit", adminHandler.ListAudit)
		}
	}

	return router
}
