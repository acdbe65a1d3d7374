package sessions

import (
	"errors"
	"net/http"

	"backend/internal/auth"
	"backend/internal/logger"
	"backend/internal/models"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SessionHandler 聊天会话处理器，负责跨设备的历史记录同步
type SessionHandler struct {
	sessionService *models.ChatSessionService
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessionService *models.ChatSessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

// SaveSessionRequest 保存会话请求
type SaveSessionRequest struct {
	ID       string         `json:"id"` // 为空时创建新会话
	Title    string         `json:"title"`
	Messages datatypes.JSON `json:"messages" binding:"required"`
}

// Save 保存会话（创建或覆盖）
// POST /api/sessions
func (h *SessionHandler) Save(c *gin.Context) {
	var req SaveSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "参数错误: " + err.Error()})
		return
	}

	session := &models.ChatSession{
		ID:       req.ID,
		UserID:   c.GetString(auth.UserIDKey),
		Title:    req.Title,
		Messages: req.Messages,
	}

	if err := h.sessionService.SaveSession(c.Request.Context(), session); err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
			return
		}
		logger.Error("保存会话失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存会话失败"})
		return
	}

	c.JSON(http.StatusOK, session)
}

// List 列出当前用户的全部会话
// GET /api/sessions
func (h *SessionHandler) List(c *gin.Context) {
	sessions, err := h.sessionService.ListSessions(c.Request.Context(), c.GetString(auth.UserIDKey))
	if err != nil {
		logger.Error("查询会话列表失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询会话列表失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// Delete 删除某个会话
// DELETE /api/sessions/:id
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := c.Param("id")

	err := h.sessionService.DeleteSession(c.Request.Context(), c.GetString(auth.UserIDKey), sessionID)
	if err != nil {
		if errors.Is(err, models.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
			return
		}
		logger.Error("删除会话失败", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "删除会话失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "会话已删除"})
}
