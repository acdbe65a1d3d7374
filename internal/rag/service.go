package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"backend/internal/metrics"
)

// Service RAG 问答服务
// 组合加载、分块、向量索引、检索与答案生成；对外提供同步/流式问答与索引构建
//
// 索引是唯一的跨请求共享状态：检索只读不可变快照，可任意并发；
// 重建在互斥锁内构建新快照并整体替换指针，进行中的检索继续使用旧快照
type Service struct {
	loader     *Loader
	chunker    *Chunker
	store      *IndexStore
	embeddings EmbeddingProvider
	generator  AnswerGenerator

	systemPrompt string
	topK         int
	syllabusTopK int

	current atomic.Pointer[VectorIndex]
	buildMu sync.Mutex // 重建互斥，不阻塞检索
}

// ServiceOptions 服务配置
type ServiceOptions struct {
	CourseTitle  string
	TopK         int // 普通问答检索数量，默认 4
	SyllabusTopK int // 教学大纲模式检索数量，默认 6
}

// NewService 创建 RAG 问答服务
func NewService(
	loader *Loader,
	chunker *Chunker,
	store *IndexStore,
	embeddings EmbeddingProvider,
	generator AnswerGenerator,
	opts ServiceOptions,
) *Service {
	if opts.TopK <= 0 {
		opts.TopK = 4
	}
	if opts.SyllabusTopK <= 0 {
		opts.SyllabusTopK = 6
	}

	return &Service{
		loader:       loader,
		chunker:      chunker,
		store:        store,
		embeddings:   embeddings,
		generator:    generator,
		systemPrompt: BuildSystemPrompt(opts.CourseTitle),
		topK:         opts.TopK,
		syllabusTopK: opts.SyllabusTopK,
	}
}

// Index 返回当前索引快照，未初始化时为 nil
func (s *Service) Index() *VectorIndex {
	return s.current.Load()
}

// EnsureIndex 启动时初始化索引：磁盘上有就加载，没有则完整构建
func (s *Service) EnsureIndex(ctx context.Context) error {
	if s.store.Exists() {
		return s.loadExisting()
	}
	return s.BuildIndex(ctx, false)
}

// LoadIndex 仅加载磁盘上已有的索引，没有就保持未初始化
func (s *Service) LoadIndex() error {
	if !s.store.Exists() {
		return nil
	}
	return s.loadExisting()
}

// BuildIndex 构建向量索引
// force 为 false 且磁盘上已有索引时直接复用，不重新嵌入——
// 资料目录的增删在显式重建之前对检索不可见；
// force 为 true 时丢弃旧索引，从资料目录完整重建
//
// 构建失败不影响已加载的索引，也不落盘任何不完整状态
func (s *Service) BuildIndex(ctx context.Context, force bool) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	if !force && s.store.Exists() {
		// 已有持久化索引：仅在内存中尚未加载时加载
		if s.current.Load() != nil {
			return nil
		}
		return s.loadExisting()
	}

	// 1. 加载资料
	documents, err := s.loader.LoadDocuments()
	if err != nil {
		metrics.IndexBuildsTotal.WithLabelValues("failed").Inc()
		return err
	}

	// 2. 分块
	chunks, err := s.chunker.ChunkAll(documents)
	if err != nil {
		metrics.IndexBuildsTotal.WithLabelValues("failed").Inc()
		return err
	}

	// 3. 批量向量化
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	vectors, err := s.embedBatch(ctx, texts)
	if err != nil {
		metrics.IndexBuildsTotal.WithLabelValues("failed").Inc()
		return err
	}

	dimension := 0
	if len(vectors) > 0 {
		dimension = len(vectors[0])
	}

	index := &VectorIndex{
		chunks:  chunks,
		vectors: vectors,
		manifest: Manifest{
			EmbeddingProvider: s.embeddings.GetProviderName(),
			EmbeddingModel:    s.embeddings.GetModel(),
			Dimension:         dimension,
			ChunkCount:        len(chunks),
			BuiltAt:           time.Now().UTC(),
		},
	}

	// 4. 持久化（临时文件 + 原子重命名）
	if err := s.store.Save(index); err != nil {
		metrics.IndexBuildsTotal.WithLabelValues("failed").Inc()
		return err
	}

	// 5. 整体替换当前快照，进行中的检索继续使用旧快照
	s.current.Store(index)

	metrics.IndexBuildsTotal.WithLabelValues("success").Inc()
	metrics.IndexChunks.Set(float64(index.Len()))

	return nil
}

// loadExisting 从磁盘加载索引并设为当前快照
func (s *Service) loadExisting() error {
	index, err := s.store.Load(s.embeddings.GetProviderName(), s.embeddings.GetModel())
	if err != nil {
		return err
	}

	s.current.Store(index)
	metrics.IndexChunks.Set(float64(index.Len()))
	return nil
}

// Retrieve 检索与问题最相关的 top-k 分块
// 问题使用与索引构建相同的嵌入模型向量化（由配置保证，加载时校验）
func (s *Service) Retrieve(ctx context.Context, question string, topK int) ([]*SearchResult, error) {
	index := s.current.Load()
	if index == nil {
		metrics.RAGRetrievalsTotal.WithLabelValues("failed").Inc()
		return nil, fmt.Errorf("%w: 索引尚未构建", ErrIndexUnavailable)
	}

	if topK <= 0 {
		topK = s.topK
	}

	start := time.Now()

	queryVector, err := s.embeddings.Embed(ctx, question)
	if err != nil {
		metrics.RAGRetrievalsTotal.WithLabelValues("failed").Inc()
		return nil, wrapEmbeddingError(err)
	}

	results := index.Search(queryVector, topK)

	metrics.RAGRetrievalDuration.Observe(time.Since(start).Seconds())
	metrics.RAGRetrievalsTotal.WithLabelValues("success").Inc()

	return results, nil
}

// AnswerRequest 问答请求
type AnswerRequest struct {
	Question      string
	TopK          int  // 0 表示使用模式默认值
	SyllabusFocus bool // 教学大纲模式：附加引导语并扩大检索范围
}

// effectiveQuestion 返回实际用于嵌入与提问的问题文本
func (r *AnswerRequest) effectiveQuestion() string {
	if r.SyllabusFocus {
		return SyllabusFocusPrefix + r.Question
	}
	return r.Question
}

// resolveTopK 确定检索数量
func (s *Service) resolveTopK(req *AnswerRequest) int {
	if req.TopK > 0 {
		return req.TopK
	}
	if req.SyllabusFocus {
		return s.syllabusTopK
	}
	return s.topK
}

// Answer 同步问答：检索、拼接上下文、生成完整答案
func (s *Service) Answer(ctx context.Context, req *AnswerRequest) (string, error) {
	question := req.effectiveQuestion()

	results, err := s.Retrieve(ctx, question, s.resolveTopK(req))
	if err != nil {
		metrics.RAGAnswersTotal.WithLabelValues("sync", "failed").Inc()
		return "", err
	}

	answer, err := s.generator.Generate(ctx, s.systemPrompt, FormatContext(results), question)
	if err != nil {
		metrics.RAGAnswersTotal.WithLabelValues("sync", "failed").Inc()
		return "", wrapGenerationError(err)
	}

	metrics.RAGAnswersTotal.WithLabelValues("sync", "success").Inc()
	return answer, nil
}

// AnswerStream 流式问答
// 返回的片段通道按生成顺序产出，消费一次即尽，重复提问需要重新调用；
// 检索或生成失败通过错误通道给出；消费者取消 ctx 即提前终止
func (s *Service) AnswerStream(ctx context.Context, req *AnswerRequest) (<-chan StreamChunk, <-chan error) {
	chunkChan := make(chan StreamChunk, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		question := req.effectiveQuestion()

		results, err := s.Retrieve(ctx, question, s.resolveTopK(req))
		if err != nil {
			metrics.RAGAnswersTotal.WithLabelValues("stream", "failed").Inc()
			errChan <- err
			return
		}

		genChunks, genErrs := s.generator.GenerateStream(ctx, s.systemPrompt, FormatContext(results), question)

		for {
			select {
			case chunk, ok := <-genChunks:
				if !ok {
					// 片段通道关闭时可能仍有挂起的生成错误，先清空错误通道再宣告成功
					if genErr, pending := <-genErrs; pending && genErr != nil {
						metrics.RAGAnswersTotal.WithLabelValues("stream", "failed").Inc()
						errChan <- wrapGenerationError(genErr)
						return
					}
					metrics.RAGAnswersTotal.WithLabelValues("stream", "success").Inc()
					return
				}
				select {
				case chunkChan <- chunk:
				case <-ctx.Done():
					return
				}
				if chunk.Done {
					metrics.RAGAnswersTotal.WithLabelValues("stream", "success").Inc()
					return
				}

			case err, ok := <-genErrs:
				if ok && err != nil {
					metrics.RAGAnswersTotal.WithLabelValues("stream", "failed").Inc()
					errChan <- wrapGenerationError(err)
				}
				return

			case <-ctx.Done():
				return
			}
		}
	}()

	return chunkChan, errChan
}

// embedBatch 批量向量化并统一错误类型
func (s *Service) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.embeddings.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, wrapEmbeddingError(err)
	}
	if len(vectors) != len(texts) {
		return nil, &EmbeddingServiceError{
			Err: fmt.Errorf("向量数量不匹配: 期望 %d, 实际 %d", len(texts), len(vectors)),
		}
	}
	return vectors, nil
}

// wrapEmbeddingError 保证嵌入失败以 EmbeddingServiceError 暴露
func wrapEmbeddingError(err error) error {
	var typed *EmbeddingServiceError
	if errors.As(err, &typed) {
		return err
	}
	return &EmbeddingServiceError{Err: err}
}

// wrapGenerationError 保证生成失败以 GenerationServiceError 暴露
func wrapGenerationError(err error) error {
	var typed *GenerationServiceError
	if errors.As(err, &typed) {
		return err
	}
	return &GenerationServiceError{Err: err}
}
