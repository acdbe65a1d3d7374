package rag

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/pkoukk/tiktoken-go"
)

// Chunker 文档分块器
// 滑动窗口切分：每块最长 ChunkSize 个字符，相邻分块精确重叠 ChunkOverlap 个字符，
// 切分点优先选择段落、句子、空白等自然边界，找不到时硬切
type Chunker struct {
	ChunkSize    int // 分块大小（字符数）
	ChunkOverlap int // 相邻分块之间的重叠字符数

	encoder *tiktoken.Tiktoken // Token 统计编码器，获取失败时退化为估算
}

// NewChunker 创建分块器
// chunkSize: 每个分块的最大字符数，默认 1000
// chunkOverlap: 相邻分块之间的重叠字符数，默认 200，必须小于 chunkSize
func NewChunker(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 5
	}

	encoder, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		encoder = nil
	}

	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		encoder:      encoder,
	}
}

// ChunkResult 单个文档的分块结果
type ChunkResult struct {
	Content     string // 分块内容（保留原文，重叠部分逐字符一致）
	ChunkIndex  int    // 文档内分块序号（从 0 开始）
	StartOffset int    // 起始偏移量（字符）
	EndOffset   int    // 结束偏移量（字符）
	TokenCount  int    // Token 数量
	ContentHash string // 内容哈希（SHA256）
}

// ChunkDocument 对单个文档分块
// 不同文档之间不携带重叠；短于 ChunkSize 的文档产出恰好一个分块
func (c *Chunker) ChunkDocument(content string) ([]*ChunkResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, fmt.Errorf("文档内容不能为空")
	}

	runes := []rune(content)
	total := len(runes)

	chunks := make([]*ChunkResult, 0, total/c.ChunkSize+1)
	start := 0
	index := 0

	for {
		end := start + c.ChunkSize
		if end >= total {
			end = total
		} else {
			end = c.findBreakPoint(runes, start, end)
		}

		chunks = append(chunks, c.createChunk(string(runes[start:end]), index, start, end))
		index++

		if end >= total {
			break
		}

		// 下一块从上一块结束位置向前 ChunkOverlap 个字符开始（滑动窗口）
		next := end - c.ChunkOverlap
		if next <= start {
			next = end
		}
		start = next
	}

	return chunks, nil
}

// ChunkAll 对一组文档依次分块，产出带全局序号的 Chunk 序列
// 文档顺序与文档内序号均被保留
func (c *Chunker) ChunkAll(documents []*Document) ([]*Chunk, error) {
	chunks := make([]*Chunk, 0, len(documents))
	ordinal := 0

	for docIndex, doc := range documents {
		results, err := c.ChunkDocument(doc.Content)
		if err != nil {
			return nil, fmt.Errorf("文档分块失败 (%s): %w", doc.Source, err)
		}

		for _, r := range results {
			chunks = append(chunks, &Chunk{
				ID:          uuid.New().String(),
				Ordinal:     ordinal,
				DocIndex:    docIndex,
				ChunkIndex:  r.ChunkIndex,
				Content:     r.Content,
				Source:      doc.Source,
				Page:        doc.Page,
				TokenCount:  r.TokenCount,
				ContentHash: r.ContentHash,
			})
			ordinal++
		}
	}

	return chunks, nil
}

// findBreakPoint 在 (minEnd, hardEnd] 区间内向前寻找自然切分点
// 优先级：段落边界 > 句子边界 > 空白，都找不到时在 hardEnd 硬切
func (c *Chunker) findBreakPoint(runes []rune, start, hardEnd int) int {
	// 切分点不能落在重叠区之内，否则下一块无法前进
	minEnd := start + c.ChunkOverlap + 1
	if half := start + (hardEnd-start)/2; half > minEnd {
		minEnd = half
	}

	// 段落边界：连续两个换行
	for i := hardEnd - 1; i > minEnd; i-- {
		if runes[i-1] == '\n' && runes[i] == '\n' {
			return i + 1
		}
	}

	// 句子边界：句末标点后跟空白
	for i := hardEnd - 1; i > minEnd; i-- {
		if isSentenceEnd(runes[i-1]) && unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	// 空白边界
	for i := hardEnd - 1; i > minEnd; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}

	return hardEnd
}

// isSentenceEnd 判断是否为句末标点
func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// createChunk 创建分块结果
func (c *Chunker) createChunk(content string, index, start, end int) *ChunkResult {
	return &ChunkResult{
		Content:     content,
		ChunkIndex:  index,
		StartOffset: start,
		EndOffset:   end,
		TokenCount:  c.countTokens(content),
		ContentHash: hashContent(content),
	}
}

// countTokens 统计 Token 数量
func (c *Chunker) countTokens(text string) int {
	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	// 编码器不可用时按单词数估算
	return len(strings.Fields(text))
}

// hashContent 计算内容哈希
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}
