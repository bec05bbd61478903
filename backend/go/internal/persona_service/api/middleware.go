package api

import (
	"net/http"
	"time"

	"PersonaGen/backend/go/internal/models"
	"PersonaGen/backend/go/pkg/logger"
	"PersonaGen/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
)

// RequestLogger 创建一个 Gin 中间件，请求结束后记录一条结构化访问日志。
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		info := models.RequestInfo{
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			RemoteAddr: c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			Status:     c.Writer.Status(),
			LatencyMS:  time.Since(start).Milliseconds(),
		}
		entry := log.WithRequest(info)
		switch {
		case info.Status >= http.StatusInternalServerError:
			entry.Error("request failed")
		case info.Status >= http.StatusBadRequest:
			entry.Warn("request rejected")
		default:
			entry.Info("request handled")
		}
	}
}

// CORS 把 go-chi/cors 适配为 Gin 中间件；allowedOrigins 中的 "*" 表示任意来源。
// 预检请求由 cors 直接应答，不再进入路由；来自未授权来源的请求拿不到 CORS 响应头。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	policy := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})

	return func(c *gin.Context) {
		passed := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			passed = true
			c.Request = r
		})
		policy.Handler(next).ServeHTTP(c.Writer, c.Request)
		if !passed {
			c.Abort()
			return
		}
		c.Next()
	}
}

// RateLimit 创建一个按客户端 IP 限流的 Gin 中间件。
func RateLimit(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests"})
			c.Abort()
			return
		}
		c.Next()
	}
}
