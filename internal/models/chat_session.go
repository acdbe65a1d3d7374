package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrSessionNotFound 表示会话不存在或不属于该用户
var ErrSessionNotFound = errors.New("models: chat session not found")

// ChatSession 聊天会话，用于跨设备同步历史记录
type ChatSession struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"type:uuid;not null;index:idx_chat_session_user" json:"user_id"`
	Title     string         `gorm:"type:varchar(255)" json:"title"`
	Messages  datatypes.JSON `gorm:"type:json" json:"messages"` // [{role, content}, ...]
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatSessionService 聊天会话服务
type ChatSessionService struct {
	db *gorm.DB
}

// NewChatSessionService 创建聊天会话服务
func NewChatSessionService(db *gorm.DB) *ChatSessionService {
	return &ChatSessionService{db: db}
}

// SaveSession 保存会话（按 ID upsert，仅限本人）
func (s *ChatSessionService) SaveSession(ctx context.Context, session *ChatSession) error {
	if session.ID == "" {
		return s.db.WithContext(ctx).Create(session).Error
	}

	var existing ChatSession
	err := s.db.WithContext(ctx).
		Where("id = ?", session.ID).
		First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.db.WithContext(ctx).Create(session).Error
	}
	if err != nil {
		return err
	}
	if existing.UserID != session.UserID {
		return ErrSessionNotFound
	}

	return s.db.WithContext(ctx).Model(&ChatSession{}).
		Where("id = ?", session.ID).
		Updates(map[string]interface{}{
			"title":      session.Title,
			"messages":   session.Messages,
			"updated_at": time.Now(),
		}).Error
}

// ListSessions 列出用户的全部会话，最近更新在前
func (s *ChatSessionService) ListSessions(ctx context.Context, userID string) ([]*ChatSession, error) {
	var sessions []*ChatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// DeleteSession 删除用户的某个会话
func (s *ChatSessionService) DeleteSession(ctx context.Context, userID, sessionID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Delete(&ChatSession{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}
