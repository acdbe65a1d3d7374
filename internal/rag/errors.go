package rag

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDocumentsFound 构建索引时资料目录下没有任何可用文档
	ErrNoDocumentsFound = errors.New("rag: no documents found")

	// ErrIndexUnavailable 持久化索引不存在或存储目录不可写
	ErrIndexUnavailable = errors.New("rag: vector index unavailable")

	// ErrEmbeddingSpaceMismatch 持久化索引与当前配置的嵌入模型不一致
	// 不同模型的向量空间不可比较，继续检索会静默产生错误排序，必须快速失败
	ErrEmbeddingSpaceMismatch = errors.New("rag: embedding model mismatch")
)

// EmbeddingServiceError 嵌入服务调用失败（网络、认证、配额等），不在内部重试
type EmbeddingServiceError struct {
	Err error
}

func (e *EmbeddingServiceError) Error() string {
	return fmt.Sprintf("嵌入服务调用失败: %v", e.Err)
}

func (e *EmbeddingServiceError) Unwrap() error {
	return e.Err
}

// GenerationServiceError 答案生成调用失败或在流式输出中途中断
// 流式场景下已发送的片段仍然有效，错误通过流的错误通道通知消费者
type GenerationServiceError struct {
	Err error
}

func (e *GenerationServiceError) Error() string {
	return fmt.Sprintf("答案生成调用失败: %v", e.Err)
}

func (e *GenerationServiceError) Unwrap() error {
	return e.Err
}
