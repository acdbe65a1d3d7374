package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	RAG      RAGConfig      `mapstructure:"rag"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
}

// DatabaseConfig 应用数据库配置（SQLite 文件）
type DatabaseConfig struct {
	Path        string `mapstructure:"path"`         // 数据库文件路径，默认 ./data/app.db
	AutoMigrate bool   `mapstructure:"auto_migrate"` // 是否自动迁移表结构
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, /path/to/log
}

// JWTConfig JWT 令牌配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	Issuer      string `mapstructure:"issuer"`
	ExpiryHours int    `mapstructure:"expiry_hours"` // 访问令牌有效期（小时），默认 168
}

// OpenAIConfig OpenAI 配置
type OpenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	OrgID          string `mapstructure:"org_id"`
	ChatModel      string `mapstructure:"chat_model"`      // 默认 gpt-3.5-turbo
	EmbeddingModel string `mapstructure:"embedding_model"` // 默认 text-embedding-3-small
}

// RAGConfig RAG 相关配置
type RAGConfig struct {
	DocumentsDir string `mapstructure:"documents_dir"`  // 课程资料目录
	IndexDir     string `mapstructure:"index_dir"`      // 向量索引持久化目录
	ChunkSize    int    `mapstructure:"chunk_size"`     // 分块大小（字符数），默认 1000
	ChunkOverlap int    `mapstructure:"chunk_overlap"`  // 相邻分块重叠（字符数），默认 200
	TopK         int    `mapstructure:"top_k"`          // 普通问答检索数量，默认 4
	SyllabusTopK int    `mapstructure:"syllabus_top_k"` // 教学大纲模式检索数量，默认 6
	CourseTitle  string `mapstructure:"course_title"`   // 课程名称，用于系统提示词
	BuildOnStart bool   `mapstructure:"build_on_start"` // 启动时若无索引则自动构建
}

var globalConfig *Config

// Load 加载配置
// env: 环境名称（dev, prod, test）
// configPath: 配置文件路径（可选）
func Load(env string, configPath string) (*Config, error) {
	v := viper.New()

	if configPath == "" {
		v.SetConfigName(env) // dev.yaml, prod.yaml
		v.AddConfigPath("./config")
		v.AddConfigPath("../config")
		v.AddConfigPath("../../config")
	} else {
		v.SetConfigFile(configPath)
	}

	v.SetConfigType("yaml")

	// 读取环境变量（优先级高于配置文件）
	v.SetEnvPrefix("APP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 支持嵌套配置：APP_OPENAI_API_KEY

	// 敏感项不写进配置文件，显式绑定保证仅有环境变量时也能 Unmarshal 到
	for _, key := range []string{"openai.api_key", "openai.base_url", "openai.org_id", "jwt.secret"} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyDefaults(&cfg)

	globalConfig = &cfg
	return &cfg, nil
}

// applyDefaults 填充未显式配置的默认值
func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = "release"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/app.db"
	}
	if cfg.JWT.ExpiryHours == 0 {
		cfg.JWT.ExpiryHours = 168 // 7 天
	}
	if cfg.OpenAI.ChatModel == "" {
		cfg.OpenAI.ChatModel = "gpt-3.5-turbo"
	}
	if cfg.OpenAI.EmbeddingModel == "" {
		cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.RAG.DocumentsDir == "" {
		cfg.RAG.DocumentsDir = "./documents"
	}
	if cfg.RAG.IndexDir == "" {
		cfg.RAG.IndexDir = "./vectorstore"
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 1000
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 200
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 4
	}
	if cfg.RAG.SyllabusTopK == 0 {
		cfg.RAG.SyllabusTopK = 6
	}
	if cfg.RAG.CourseTitle == "" {
		cfg.RAG.CourseTitle = "WPC300 - Problem Solving and Actionable Analytics"
	}
}

// Get 获取全局配置
func Get() *Config {
	if globalConfig == nil {
		panic("配置未初始化，请先调用 Load()")
	}
	return globalConfig
}
