package rag

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sashabaranov/go-openai"
)

// answerTemperature 较低的温度让回答更贴近事实
const answerTemperature = 0.3

// OpenAIGenerator 基于 OpenAI Chat Completions 的答案生成器
type OpenAIGenerator struct {
	client *openai.Client
	model  string // 默认 gpt-3.5-turbo
}

// NewOpenAIGenerator 创建 OpenAI 答案生成器
func NewOpenAIGenerator(apiKey, baseURL, model string) *OpenAIGenerator {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}

	if model == "" {
		model = openai.GPT3Dot5Turbo
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

// buildMessages 组装对话消息：系统提示词 + 上下文注入系统消息，问题原样放入用户消息
func buildMessages(systemPrompt, contextBlock, question string) []openai.ChatCompletionMessage {
	systemContent := fmt.Sprintf("%s\n\nContext from course materials:\n%s", systemPrompt, contextBlock)
	userContent := fmt.Sprintf("Student Question: %s\n\nPlease provide a helpful response based on the course materials.", question)

	return []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemContent},
		{Role: openai.ChatMessageRoleUser, Content: userContent},
	}
}

// Generate 同步生成完整答案
func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    buildMessages(systemPrompt, contextBlock, question),
		Temperature: answerTemperature,
	})
	if err != nil {
		return "", &GenerationServiceError{Err: err}
	}

	if len(resp.Choices) == 0 {
		return "", &GenerationServiceError{Err: fmt.Errorf("API 返回空响应")}
	}

	return resp.Choices[0].Message.Content, nil
}

// GenerateStream 流式生成答案
// 片段按生成顺序写入通道；消费者取消 ctx 即可提前终止，底层连接随之释放
func (g *OpenAIGenerator) GenerateStream(ctx context.Context, systemPrompt, contextBlock, question string) (<-chan StreamChunk, <-chan error) {
	chunkChan := make(chan StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		stream, err := g.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       g.model,
			Messages:    buildMessages(systemPrompt, contextBlock, question),
			Temperature: answerTemperature,
			Stream:      true,
		})
		if err != nil {
			errChan <- &GenerationServiceError{Err: err}
			return
		}
		defer stream.Close()

		for {
			response, err := stream.Recv()
			if err != nil {
				// EOF 表示正常结束
				if errors.Is(err, io.EOF) {
					select {
					case chunkChan <- StreamChunk{Done: true}:
					case <-ctx.Done():
					}
					return
				}
				errChan <- &GenerationServiceError{Err: err}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			select {
			case chunkChan <- StreamChunk{Content: response.Choices[0].Delta.Content}:
			case <-ctx.Done():
				// 消费者已放弃，停止转发并释放连接
				return
			}
		}
	}()

	return chunkChan, errChan
}
