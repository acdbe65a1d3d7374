package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 表示用户不存在
	ErrUserNotFound = errors.New("models: user not found")
	// ErrEmailTaken 表示邮箱已被注册
	ErrEmailTaken = errors.New("models: email already registered")
	// ErrUsernameTaken 表示用户名已被占用
	ErrUsernameTaken = errors.New("models: username already taken")
)

// User 用户账户
type User struct {
	ID           string     `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string     `gorm:"type:varchar(255);not null;uniqueIndex" json:"email"`
	Username     string     `gorm:"type:varchar(100);index" json:"username"`
	PasswordHash string     `gorm:"type:text" json:"-"` // 不返回给客户端
	FullName     string     `gorm:"type:varchar(255)" json:"full_name"`
	AvatarURL    string     `gorm:"type:text" json:"avatar_url"`
	AuthProvider string     `gorm:"type:varchar(50);default:local" json:"auth_provider"` // local, google
	GoogleID     string     `gorm:"type:varchar(255);index" json:"-"`
	LastLoginAt  *time.Time `json:"last_login"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"not null" json:"updated_at"`
}

// BeforeCreate GORM 钩子：创建前设置 ID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// UserService 用户账户服务
type UserService struct {
	db *gorm.DB
}

// NewUserService 创建用户服务
func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

// CreateUser 创建用户，邮箱/用户名冲突时返回对应错误
func (s *UserService) CreateUser(ctx context.Context, user *User) error {
	user.Email = normalizeEmail(user.Email)

	// 冲突检查放在插入前，SQLite 的唯一约束错误不便区分字段
	var count int64
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("LOWER(email) = ?", user.Email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrEmailTaken
	}

	if user.Username != "" {
		if err := s.db.WithContext(ctx).Model(&User{}).
			Where("username = ?", user.Username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
	}

	return s.db.WithContext(ctx).Create(user).Error
}

// FindByEmail 按邮箱查询用户
func (s *UserService) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = ?", normalizeEmail(email)).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByID 按 ID 查询用户
func (s *UserService) FindByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByGoogleID 按 Google 账户 ID 查询用户
func (s *UserService) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// TouchLastLogin 更新最后登录时间，成功后同步回写到传入的 user
func (s *UserService) TouchLastLogin(ctx context.Context, user *User) error {
	now := time.Now()
	if err := s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", user.ID).
		Update("last_login_at", now).Error; err != nil {
		return err
	}
	user.LastLoginAt = &now
	return nil
}

// LinkGoogleAccount 为已有账户绑定 Google 身份
func (s *UserService) LinkGoogleAccount(ctx context.Context, userID, googleID, avatarURL string) error {
	updates := map[string]interface{}{
		"google_id": googleID,
	}
	if avatarURL != "" {
		updates["avatar_url"] = avatarURL
	}
	return s.db.WithContext(ctx).Model(&User{}).
		Where("id = ?", userID).
		Updates(updates).Error
}

// normalizeEmail 规范化邮箱
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
