package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeEmbedder 按固定词表统计词频作为向量，检索结果可预测
type fakeEmbedder struct {
	mu         sync.Mutex
	batchCalls int
	failWith   error
}

var fakeVocabulary = []string{"midterm", "project", "grading"}

func (f *fakeEmbedder) embed(text string) []float32 {
	lower := strings.ToLower(text)
	vector := make([]float32, len(fakeVocabulary)+1)
	for i, word := range fakeVocabulary {
		vector[i] = float32(strings.Count(lower, word))
	}
	vector[len(fakeVocabulary)] = 0.01 // 保证向量非零
	return vector
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.embed(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batchCalls++
	f.mu.Unlock()

	if f.failWith != nil {
		return nil, f.failWith
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = f.embed(text)
	}
	return vectors, nil
}

func (f *fakeEmbedder) GetModel() string        { return "fake-embedding-model" }
func (f *fakeEmbedder) GetProviderName() string { return "fake" }

// fakeGenerator 记录收到的提示词并返回固定答案
type fakeGenerator struct {
	mu           sync.Mutex
	answer       string
	failWith     error
	failMid      bool // 先产出部分片段再报错，模拟连接中断
	systemPrompt string
	contextBlock string
	question     string
}

func (f *fakeGenerator) record(systemPrompt, contextBlock, question string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.systemPrompt = systemPrompt
	f.contextBlock = contextBlock
	f.question = question
}

func (f *fakeGenerator) Generate(ctx context.Context, systemPrompt, contextBlock, question string) (string, error) {
	f.record(systemPrompt, contextBlock, question)
	if f.failWith != nil {
		return "", f.failWith
	}
	return f.answer, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, systemPrompt, contextBlock, question string) (<-chan StreamChunk, <-chan error) {
	f.record(systemPrompt, contextBlock, question)

	chunkChan := make(chan StreamChunk, 4)
	errChan := make(chan error, 1)

	go func() {
		defer close(chunkChan)
		defer close(errChan)

		if f.failWith != nil && !f.failMid {
			errChan <- f.failWith
			return
		}

		// 将答案拆成多个片段，模拟增量输出
		runes := []rune(f.answer)
		half := len(runes) / 2
		chunkChan <- StreamChunk{Content: string(runes[:half])}
		if f.failWith != nil {
			errChan <- f.failWith
			return
		}
		chunkChan <- StreamChunk{Content: string(runes[half:])}
		chunkChan <- StreamChunk{Done: true}
	}()

	return chunkChan, errChan
}

func writeCourseDocs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	docs := map[string]string{
		"exam.txt":    "The midterm exam is on February 28, 2026, covering modules 1-4. The midterm is worth 30% of the final grade.",
		"project.txt": "The final project is due May 1, 2026. Work in teams of three, project deliverables include a report.",
		"grading.txt": "Grading breakdown: exams 40%, projects 40%, participation 20%. Grading disputes must be raised within one week.",
	}
	for name, content := range docs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func newTestService(t *testing.T, docsDir, indexDir string, embedder *fakeEmbedder, generator *fakeGenerator, opts ServiceOptions) *Service {
	t.Helper()
	if embedder == nil {
		embedder = &fakeEmbedder{}
	}
	if generator == nil {
		generator = &fakeGenerator{answer: "ok"}
	}
	if opts.CourseTitle == "" {
		opts.CourseTitle = "WPC300"
	}
	return NewService(
		NewLoader(docsDir),
		NewChunker(1000, 200),
		NewIndexStore(indexDir),
		embedder,
		generator,
		opts,
	)
}

func TestBuildIndexAndRetrieve(t *testing.T) {
	docsDir := writeCourseDocs(t)
	indexDir := t.TempDir()
	svc := newTestService(t, docsDir, indexDir, nil, nil, ServiceOptions{})

	require.Nil(t, svc.Index())
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	idx := svc.Index()
	require.NotNil(t, idx)
	require.Equal(t, 3, idx.Len())

	results, err := svc.Retrieve(context.Background(), "When is the midterm?", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Contains(t, results[0].Chunk.Content, "February 28, 2026")

	// topK 超过分块总数时返回全部
	results, err = svc.Retrieve(context.Background(), "grading", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
}

func TestBuildIndexNoDocuments(t *testing.T) {
	indexDir := t.TempDir()
	svc := newTestService(t, t.TempDir(), indexDir, nil, nil, ServiceOptions{})

	err := svc.BuildIndex(context.Background(), false)
	require.ErrorIs(t, err, ErrNoDocumentsFound)

	// 失败的构建不落盘任何东西
	require.Nil(t, svc.Index())
	require.False(t, NewIndexStore(indexDir).Exists())
}

func TestBuildIndexEmbeddingFailure(t *testing.T) {
	docsDir := writeCourseDocs(t)
	indexDir := t.TempDir()
	embedder := &fakeEmbedder{failWith: fmt.Errorf("rate limited")}
	svc := newTestService(t, docsDir, indexDir, embedder, nil, ServiceOptions{})

	err := svc.BuildIndex(context.Background(), false)

	var embedErr *EmbeddingServiceError
	require.ErrorAs(t, err, &embedErr)
	require.False(t, NewIndexStore(indexDir).Exists())
}

func TestBuildIndexReusesPersistedIndex(t *testing.T) {
	docsDir := writeCourseDocs(t)
	indexDir := t.TempDir()

	first := newTestService(t, docsDir, indexDir, nil, nil, ServiceOptions{})
	require.NoError(t, first.BuildIndex(context.Background(), false))

	// 第二个服务实例：磁盘上已有索引，非强制构建直接加载，不重新嵌入
	embedder := &fakeEmbedder{}
	second := newTestService(t, docsDir, indexDir, embedder, nil, ServiceOptions{})
	require.NoError(t, second.BuildIndex(context.Background(), false))
	require.Equal(t, 0, embedder.batchCalls)
	require.Equal(t, 3, second.Index().Len())

	// 强制重建会重新嵌入
	require.NoError(t, second.BuildIndex(context.Background(), true))
	require.Equal(t, 1, embedder.batchCalls)
}

func TestEnsureIndexLoadsExisting(t *testing.T) {
	docsDir := writeCourseDocs(t)
	indexDir := t.TempDir()

	first := newTestService(t, docsDir, indexDir, nil, nil, ServiceOptions{})
	require.NoError(t, first.BuildIndex(context.Background(), false))

	second := newTestService(t, docsDir, indexDir, nil, nil, ServiceOptions{})
	require.NoError(t, second.EnsureIndex(context.Background()))
	require.Equal(t, 3, second.Index().Len())
}

func TestLoadIndexWithoutPersistedIndex(t *testing.T) {
	svc := newTestService(t, t.TempDir(), t.TempDir(), nil, nil, ServiceOptions{})

	require.NoError(t, svc.LoadIndex())
	require.Nil(t, svc.Index())
}

func TestRetrieveWithoutIndex(t *testing.T) {
	svc := newTestService(t, t.TempDir(), t.TempDir(), nil, nil, ServiceOptions{})

	_, err := svc.Retrieve(context.Background(), "anything", 3)
	require.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestAnswerUsesRetrievedContext(t *testing.T) {
	docsDir := writeCourseDocs(t)
	generator := &fakeGenerator{answer: "The midterm exam is on February 28, 2026."}
	svc := newTestService(t, docsDir, t.TempDir(), nil, generator, ServiceOptions{CourseTitle: "WPC300 - Analytics"})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	answer, err := svc.Answer(context.Background(), &AnswerRequest{Question: "When is the midterm?"})
	require.NoError(t, err)
	require.Equal(t, "The midterm exam is on February 28, 2026.", answer)

	require.Contains(t, generator.systemPrompt, "WPC300 - Analytics")
	require.Contains(t, generator.contextBlock, "February 28, 2026")
	require.Equal(t, "When is the midterm?", generator.question)
}

func TestAnswerSyllabusFocus(t *testing.T) {
	docsDir := writeCourseDocs(t)
	generator := &fakeGenerator{answer: "see syllabus"}
	svc := newTestService(t, docsDir, t.TempDir(), nil, generator, ServiceOptions{TopK: 1, SyllabusTopK: 2})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	_, err := svc.Answer(context.Background(), &AnswerRequest{Question: "What topics are covered?", SyllabusFocus: true})
	require.NoError(t, err)

	// 问题前附加引导语
	require.Equal(t, SyllabusFocusPrefix+"What topics are covered?", generator.question)
	// 检索数量使用大纲模式默认值：上下文包含 2 个分块（1 个分隔符）
	require.Equal(t, 1, strings.Count(generator.contextBlock, contextSeparator))

	// 普通模式只取 1 个分块
	_, err = svc.Answer(context.Background(), &AnswerRequest{Question: "What topics are covered?"})
	require.NoError(t, err)
	require.Equal(t, 0, strings.Count(generator.contextBlock, contextSeparator))
}

func TestAnswerWithoutIndex(t *testing.T) {
	svc := newTestService(t, t.TempDir(), t.TempDir(), nil, nil, ServiceOptions{})

	_, err := svc.Answer(context.Background(), &AnswerRequest{Question: "hello"})
	require.ErrorIs(t, err, ErrIndexUnavailable)
}

func TestAnswerGenerationFailure(t *testing.T) {
	docsDir := writeCourseDocs(t)
	generator := &fakeGenerator{failWith: fmt.Errorf("model overloaded")}
	svc := newTestService(t, docsDir, t.TempDir(), nil, generator, ServiceOptions{})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	_, err := svc.Answer(context.Background(), &AnswerRequest{Question: "When is the midterm?"})

	var genErr *GenerationServiceError
	require.ErrorAs(t, err, &genErr)
}

func TestAnswerStreamMatchesSyncAnswer(t *testing.T) {
	docsDir := writeCourseDocs(t)
	generator := &fakeGenerator{answer: "The midterm exam is on February 28, 2026, worth 30%."}
	svc := newTestService(t, docsDir, t.TempDir(), nil, generator, ServiceOptions{})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	chunkChan, errChan := svc.AnswerStream(context.Background(), &AnswerRequest{Question: "When is the midterm?"})

	var builder strings.Builder
	for chunk := range chunkChan {
		builder.WriteString(chunk.Content)
	}
	require.NoError(t, <-errChan)
	require.Equal(t, generator.answer, builder.String())
}

func TestAnswerStreamRetrievalError(t *testing.T) {
	svc := newTestService(t, t.TempDir(), t.TempDir(), nil, nil, ServiceOptions{})

	chunkChan, errChan := svc.AnswerStream(context.Background(), &AnswerRequest{Question: "hello"})

	for range chunkChan {
		t.Fatal("检索失败时不应产出任何片段")
	}
	require.ErrorIs(t, <-errChan, ErrIndexUnavailable)
}

func TestAnswerStreamGenerationError(t *testing.T) {
	docsDir := writeCourseDocs(t)
	generator := &fakeGenerator{failWith: errors.New("stream interrupted")}
	svc := newTestService(t, docsDir, t.TempDir(), nil, generator, ServiceOptions{})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	chunkChan, errChan := svc.AnswerStream(context.Background(), &AnswerRequest{Question: "When is the midterm?"})

	for range chunkChan {
	}
	err := <-errChan

	var genErr *GenerationServiceError
	require.ErrorAs(t, err, &genErr)
}

func TestAnswerStreamErrorAfterFragments(t *testing.T) {
	docsDir := writeCourseDocs(t)
	generator := &fakeGenerator{
		answer:   "The midterm exam is on February 28, 2026.",
		failWith: errors.New("connection reset"),
		failMid:  true,
	}
	svc := newTestService(t, docsDir, t.TempDir(), nil, generator, ServiceOptions{})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	// 中途失败时已产出的片段照常送达，但错误必须随后上报，不能静默截断
	for i := 0; i < 50; i++ {
		chunkChan, errChan := svc.AnswerStream(context.Background(), &AnswerRequest{Question: "When is the midterm?"})

		var got strings.Builder
		for chunk := range chunkChan {
			got.WriteString(chunk.Content)
		}
		require.NotEmpty(t, got.String())

		err := <-errChan
		var genErr *GenerationServiceError
		require.ErrorAs(t, err, &genErr)
	}
}

func TestRebuildSwapsSnapshotAtomically(t *testing.T) {
	docsDir := writeCourseDocs(t)
	indexDir := t.TempDir()
	svc := newTestService(t, docsDir, indexDir, nil, nil, ServiceOptions{})
	require.NoError(t, svc.BuildIndex(context.Background(), false))

	old := svc.Index()
	require.Equal(t, 3, old.Len())

	// 新增一份资料后强制重建
	require.NoError(t, os.WriteFile(filepath.Join(docsDir, "office.txt"), []byte("Office hours: Tuesdays 2-4pm."), 0644))
	require.NoError(t, svc.BuildIndex(context.Background(), true))

	// 旧快照不受影响，仍可检索
	require.Equal(t, 3, old.Len())
	require.NotEmpty(t, old.Search([]float32{1, 0, 0, 0.01}, 1))

	// 新快照整体替换
	current := svc.Index()
	require.NotSame(t, old, current)
	require.Equal(t, 4, current.Len())
}
