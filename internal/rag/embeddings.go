package rag

import "context"

// EmbeddingProvider 抽象不同向量模型/服务的统一接口
// 索引构建与查询必须使用同一模型，模型标识随索引一并持久化
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	GetModel() string
	GetProviderName() string
}
