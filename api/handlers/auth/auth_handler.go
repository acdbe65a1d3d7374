package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"backend/internal/auth"
	"backend/internal/logger"
	"backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler 认证处理器
type AuthHandler struct {
	jwtService     *auth.JWTService
	userService    *models.UserService
	googleVerifier *auth.GoogleVerifier
}

// NewAuthHandler 创建认证处理器
func NewAuthHandler(
	jwtService *auth.JWTService,
	userService *models.UserService,
	googleVerifier *auth.GoogleVerifier,
) *AuthHandler {
	return &AuthHandler{
		jwtService:     jwtService,
		userService:    userService,
		googleVerifier: googleVerifier,
	}
}

// RegisterRequest 注册请求
type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// GoogleAuthRequest Google 登录请求
type GoogleAuthRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// TokenResponse 令牌响应
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int64        `json:"expires_in"` // 秒
	User        *models.User `json:"user"`
}

// Register 用户注册
// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "密码加密失败"})
		return
	}

	user := &models.User{
		Email:        strings.TrimSpace(strings.ToLower(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		AuthProvider: "local",
	}

	if err := h.userService.CreateUser(c.Request.Context(), user); err != nil {
		switch {
		case errors.Is(err, models.ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "邮箱已被注册"})
		case errors.Is(err, models.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "用户名已被占用"})
		default:
			logger.Error("创建用户失败", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "创建用户失败"})
		}
		return
	}

	h.issueToken(c, user)
}

// Login 用户登录
// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	user, err := h.userService.FindByEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "邮箱或密码错误"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询用户失败"})
		return
	}

	if user.PasswordHash == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "该账户未设置密码，请使用 Google 登录"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "邮箱或密码错误"})
		return
	}

	if err := h.userService.TouchLastLogin(c.Request.Context(), user); err != nil {
		logger.Warn("更新最后登录时间失败", zap.Error(err))
	}

	h.issueToken(c, user)
}

// GoogleAuth Google 账户登录
// 前端完成 OAuth 流程后将 ID Token 发来校验，按邮箱合并已有账户
// POST /api/auth/google
func (h *AuthHandler) GoogleAuth(c *gin.Context) {
	var req GoogleAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	profile, err := h.googleVerifier.Verify(c.Request.Context(), req.IDToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Google 登录校验失败: " + err.Error()})
		return
	}

	ctx := c.Request.Context()

	// 1. 按 Google 账户 ID 查找
	user, err := h.userService.FindByGoogleID(ctx, profile.Sub)
	if err != nil && !errors.Is(err, models.ErrUserNotFound) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询用户失败"})
		return
	}

	// 2. 未绑定时按邮箱合并已有账户
	if user == nil {
		user, err = h.userService.FindByEmail(ctx, profile.Email)
		if err != nil && !errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "查询用户失败"})
			return
		}
		if user != nil {
			if err := h.userService.LinkGoogleAccount(ctx, user.ID, profile.Sub, profile.Picture); err != nil {
				logger.Warn("绑定 Google 账户失败", zap.Error(err))
			}
		}
	}

	// 3. 都没有则创建新账户
	if user == nil {
		user = &models.User{
			Email:        profile.Email,
			FullName:     profile.Name,
			AvatarURL:    profile.Picture,
			AuthProvider: "google",
			GoogleID:     profile.Sub,
		}
		if err := h.userService.CreateUser(ctx, user); err != nil {
			logger.Error("创建 Google 用户失败", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "创建用户失败"})
			return
		}
	}

	if err := h.userService.TouchLastLogin(ctx, user); err != nil {
		logger.Warn("更新最后登录时间失败", zap.Error(err))
	}

	h.issueToken(c, user)
}

// Me 获取当前用户信息
// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := c.GetString(auth.UserIDKey)

	user, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "用户不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询用户失败"})
		return
	}

	c.JSON(http.StatusOK, user)
}

// issueToken 签发访问令牌并返回
func (h *AuthHandler) issueToken(c *gin.Context, user *models.User) {
	token, err := h.jwtService.GenerateToken(user.ID, user.Email)
	if err != nil {
		logger.Error("签发令牌失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签发令牌失败"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(h.jwtService.Expiry() / time.Second),
		User:        user,
	})
}
