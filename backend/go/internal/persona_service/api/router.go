package api

import (
	"time"

	"PersonaGen/backend/go/internal/config"
	"PersonaGen/backend/go/pkg/logger"
	"PersonaGen/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, cfg config.MiddlewareConfig, log *logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log), CORS(cfg.CORS.AllowedOrigins))

	if cfg.RateLimiter.Enabled {
		limiter := ratelimiter.NewKeyedLimiter(cfg.RateLimiter.Rate, cfg.RateLimiter.Burst, 10*time.Minute)
		r.Use(RateLimit(limiter))
	}

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)

		// 人格档案路由组
		personality := api.Group("/personality")
		{
			personality.POST("", h.CreatePersonality)
			personality.GET("/:profileId", h.GetPersonality)
		}

		// 对话路由组
		chat := api.Group("/chat")
		{
			chat.POST("", h.Chat)
			chat.GET("/:profileId", h.GetHistory)
			chat.DELETE("/:profileId", h.ClearHistory)
		}
	}

	return r
}
