package api

import (
	"backend/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes 注册所有 API 路由
func RegisterRoutes(router *gin.Engine, container *AppContainer, handlers *Handlers) {
	// 认证 API（公开，不需要 JWT）
	registerAuthRoutes(router, handlers)

	// 问答 API（公开，匿名学生也可提问）
	registerAssistantRoutes(router, handlers)

	// 需要登录的 API
	api := router.Group("/api")
	api.Use(auth.AuthMiddleware(container.JWTService))
	registerSessionRoutes(api, handlers)
	api.GET("/auth/me", handlers.Auth.Me)

	// Prometheus 指标
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// registerAuthRoutes 注册认证相关路由（公开）
func registerAuthRoutes(router *gin.Engine, h *Handlers) {
	authGroup := router.Group("/api/auth")
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/google", h.Auth.GoogleAuth)
	}
}

// registerAssistantRoutes 注册课程问答路由
func registerAssistantRoutes(router *gin.Engine, h *Handlers) {
	api := router.Group("/api")
	{
		api.POST("/question", h.Assistant.Ask)
		api.POST("/syllabus", h.Assistant.AskSyllabus)
		api.POST("/index", h.Assistant.Reindex)
		api.GET("/health", h.Assistant.Health)
	}
}

// registerSessionRoutes 注册聊天会话同步路由
func registerSessionRoutes(apiGroup *gin.RouterGroup, h *Handlers) {
	sessions := apiGroup.Group("/sessions")
	{
		sessions.POST("", h.Sessions.Save)
		sessions.GET("", h.Sessions.List)
		sessions.DELETE("/:id", h.Sessions.Delete)
	}
}
