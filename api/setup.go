package api

import (
	"os"
	"strings"
	"time"

	"backend/api/handlers/assistant"
	authHandlers "backend/api/handlers/auth"
	sessionHandlers "backend/api/handlers/sessions"
	"backend/internal/auth"
	"backend/internal/config"
	"backend/internal/logger"
	"backend/internal/models"
	"backend/internal/rag"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers 聚合所有 HTTP 处理器
type Handlers struct {
	Auth      *authHandlers.AuthHandler
	Sessions  *sessionHandlers.SessionHandler
	Assistant *assistant.QuestionHandler
}

// AppContainer 应用级服务容器
type AppContainer struct {
	JWTService     *auth.JWTService
	UserService    *models.UserService
	SessionService *models.ChatSessionService
	RAGService     *rag.Service
}

// SetupRouter 设置并返回 Gin 路由
func SetupRouter(db *gorm.DB, cfg *config.Config, ragService *rag.Service) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(), Metrics(), CORS())

	// 初始化认证服务
	jwtSecret := strings.TrimSpace(cfg.JWT.Secret)
	if jwtSecret == "" {
		// 生产模式必须显式配置密钥，防止使用弱默认值
		if strings.EqualFold(cfg.Server.Mode, "release") {
			logger.Fatal("JWT secret 未配置，生产环境禁止使用默认密钥")
		}
		jwtSecret = "default_jwt_secret_key_change_in_production" // 本地/测试默认值
		logger.Warn("JWT secret 未配置，已回退为开发默认值，请在生产环境设置强随机密钥")
	}
	jwtService := auth.NewJWTService(jwtSecret, cfg.JWT.Issuer, time.Duration(cfg.JWT.ExpiryHours)*time.Hour)

	// Google 登录校验器，未配置 Client ID 时不校验受众
	googleVerifier := auth.NewGoogleVerifier(os.Getenv("GOOGLE_CLIENT_ID"))

	container := &AppContainer{
		JWTService:     jwtService,
		UserService:    models.NewUserService(db),
		SessionService: models.NewChatSessionService(db),
		RAGService:     ragService,
	}

	handlers := &Handlers{
		Auth:      authHandlers.NewAuthHandler(jwtService, container.UserService, googleVerifier),
		Sessions:  sessionHandlers.NewSessionHandler(container.SessionService),
		Assistant: assistant.NewQuestionHandler(ragService),
	}

	RegisterRoutes(router, container, handlers)

	return router
}
