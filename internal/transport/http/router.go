package httptransport

import (
	"net/http"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ecphub/backend/internal/config"
	"ecphub/backend/internal/health"
	"ecphub/backend/internal/middleware"
	"ecphub/backend/internal/monitoring"
	"ecphub/backend/internal/service"
	"ecphub/backend/internal/websocket"
)

// RouterDependencies 路由器依赖项
type RouterDependencies struct {
	Config        *config.Config
	IntakeService *service.IntakeService
	EventService  *service.EventService
	Metrics       *monitoring.Metrics   // 为 nil 时不暴露 /metrics
	Health        *health.HealthChecker // 为 nil 时不暴露 /health/*
	WebSocketHub  *websocket.Hub        // 为 nil 时不暴露 /ws/events
	Logger        *zap.Logger
}

// NewRouter 创建并返回 Gin 路由实例。
func NewRouter(deps RouterDependencies) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()

	if deps.Metrics != nil {
		monitor := middleware.NewMonitoringMiddleware(deps.Metrics, logger)
		router.Use(monitor.PanicRecovery())
		router.Use(monitor.HTTPMetrics())
	} else {
		router.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
			logger.Error("panic recovered", zap.Any("error", err), zap.String("path", c.Request.URL.Path))
			Fail(c, http.StatusInternalServerError, "internal server error")
		}))
	}
	router.Use(middleware.RequestLogger(logger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.BodySizeLimit(middleware.DefaultBodyLimit))

	// CORS 配置
	corsConfig := gincors.Config{
		AllowOrigins:     deps.Config.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// 如果允许所有来源，则需清空凭证支持。
	for _, origin := range corsConfig.AllowOrigins {
		if origin == "*" {
			corsConfig.AllowCredentials = false
			corsConfig.AllowOrigins = nil
			corsConfig.AllowAllOrigins = true
			break
		}
	}
	router.Use(gincors.New(corsConfig))

	intake := NewIntakeHandler(deps.IntakeService)
	events := NewEventHandler(deps.EventService)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth", intake.Auth)
	router.GET("/emails/unread-with-attachments", intake.ListUnreadWithAttachments)
	router.POST("/parse-latest-schedule", intake.ParseLatestSchedule)

	router.GET("/events", events.ListEvents)
	router.POST("/events", events.CreateEvent)

	if deps.WebSocketHub != nil {
		router.GET("/ws/events", websocket.HandleWebSocket(deps.WebSocketHub))
	}

	if deps.Health != nil {
		router.GET("/health/live", gin.WrapH(deps.Health.LiveHandler()))
		router.GET("/health/ready", gin.WrapH(deps.Health.ReadyHandler()))
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.HTTPHandler()))
	}

	return router
}
