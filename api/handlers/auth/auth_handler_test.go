package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	internalAuth "backend/internal/auth"
	"backend/internal/logger"
	"backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	_ = logger.Init("error", "console", "stdout")
	os.Exit(m.Run())
}

func setupAuthRouter(t *testing.T, tokenInfoURL string) (*gin.Engine, *models.UserService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:auth_handler_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	jwtService := internalAuth.NewJWTService("test-secret", "course-assistant", time.Hour)
	userService := models.NewUserService(db)
	verifier := internalAuth.NewGoogleVerifier("")
	if tokenInfoURL != "" {
		verifier = verifier.WithEndpoint(tokenInfoURL)
	}

	handler := NewAuthHandler(jwtService, userService, verifier)

	router := gin.New()
	router.POST("/api/auth/register", handler.Register)
	router.POST("/api/auth/login", handler.Login)
	router.POST("/api/auth/google", handler.GoogleAuth)

	authed := router.Group("/api", internalAuth.AuthMiddleware(jwtService))
	authed.GET("/auth/me", handler.Me)

	return router, userService
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRegisterAndLogin(t *testing.T) {
	router, _ := setupAuthRouter(t, "")

	w := postJSON(router, "/api/auth/register", gin.H{
		"email":    "student@example.com",
		"password": "secret123",
		"username": "student1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.Equal(t, "Bearer", resp.TokenType)
	require.Equal(t, "student@example.com", resp.User.Email)
	// 密码哈希不返回给客户端
	require.NotContains(t, w.Body.String(), "password")

	w = postJSON(router, "/api/auth/login", gin.H{
		"email":    "Student@Example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotNil(t, resp.User.LastLoginAt)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	router, _ := setupAuthRouter(t, "")

	body := gin.H{"email": "a@b.com", "password": "secret123"}
	require.Equal(t, http.StatusOK, postJSON(router, "/api/auth/register", body).Code)
	require.Equal(t, http.StatusConflict, postJSON(router, "/api/auth/register", body).Code)
}

func TestRegisterValidation(t *testing.T) {
	router, _ := setupAuthRouter(t, "")

	// 缺少邮箱
	w := postJSON(router, "/api/auth/register", gin.H{"password": "secret123"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// 密码太短
	w = postJSON(router, "/api/auth/register", gin.H{"email": "a@b.com", "password": "123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWrongPassword(t *testing.T) {
	router, _ := setupAuthRouter(t, "")

	postJSON(router, "/api/auth/register", gin.H{"email": "a@b.com", "password": "secret123"})

	w := postJSON(router, "/api/auth/login", gin.H{"email": "a@b.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(router, "/api/auth/login", gin.H{"email": "nobody@b.com", "password": "secret123"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGoogleAuthCreatesAndMergesAccount(t *testing.T) {
	tokenInfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"g-42","email":"student@example.com","name":"Student","picture":"http://p"}`))
	}))
	defer tokenInfo.Close()

	router, userService := setupAuthRouter(t, tokenInfo.URL)

	// 第一次 Google 登录创建新账户
	w := postJSON(router, "/api/auth/google", gin.H{"id_token": "valid"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "google", resp.User.AuthProvider)
	firstID := resp.User.ID

	// 第二次登录复用同一账户
	w = postJSON(router, "/api/auth/google", gin.H{"id_token": "valid"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, firstID, resp.User.ID)

	found, err := userService.FindByGoogleID(context.Background(), "g-42")
	require.NoError(t, err)
	require.Equal(t, firstID, found.ID)
}

func TestGoogleAuthLinksExistingEmailAccount(t *testing.T) {
	tokenInfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"g-99","email":"local@example.com","name":"Local"}`))
	}))
	defer tokenInfo.Close()

	router, userService := setupAuthRouter(t, tokenInfo.URL)

	// 先注册本地账户
	postJSON(router, "/api/auth/register", gin.H{"email": "local@example.com", "password": "secret123"})

	// Google 登录合并到同一账户
	w := postJSON(router, "/api/auth/google", gin.H{"id_token": "valid"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	found, err := userService.FindByGoogleID(context.Background(), "g-99")
	require.NoError(t, err)
	require.Equal(t, resp.User.ID, found.ID)
	require.Equal(t, "local", found.AuthProvider)
}

func TestGoogleAuthInvalidToken(t *testing.T) {
	tokenInfo := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer tokenInfo.Close()

	router, _ := setupAuthRouter(t, tokenInfo.URL)

	w := postJSON(router, "/api/auth/google", gin.H{"id_token": "bad"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeRequiresAuth(t *testing.T) {
	router, _ := setupAuthRouter(t, "")

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMeReturnsCurrentUser(t *testing.T) {
	router, _ := setupAuthRouter(t, "")

	w := postJSON(router, "/api/auth/register", gin.H{"email": "a@b.com", "password": "secret123"})
	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	w2 := httptest.NewRecorder()
	router.ServeHTTP(w2, req)

	require.Equal(t, http.StatusOK, w2.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(w2.Body.Bytes(), &user))
	require.Equal(t, "a@b.com", user.Email)
}
