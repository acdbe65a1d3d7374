package rag

import "context"

// StreamChunk 流式答案的一个文本片段
type StreamChunk struct {
	Content string
	Done    bool
}

// AnswerGenerator 抽象答案生成服务
// 流式变体按生成顺序产出片段；片段通道关闭或 Done 片段表示流结束；
// 失败通过错误通道给出，已产出的片段仍然有效
type AnswerGenerator interface {
	Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error)
	GenerateStream(ctx context.Context, systemPrompt, contextBlock, question string) (<-chan StreamChunk, <-chan error)
}
