package rag

// Document 加载阶段的原始文档（或 PDF 的一页），分块后即丢弃，不持久化
type Document struct {
	Content string // 纯文本内容
	Source  string // 来源文件路径
	Page    int    // 页码（从 1 开始，非分页文档为 0）
}

// Chunk 文档分块，嵌入与检索的基本单位
type Chunk struct {
	ID          string // 分块 ID
	Ordinal     int    // 全局序号（跨文档递增），用于检索结果的确定性排序
	DocIndex    int    // 所属文档在加载序列中的下标
	ChunkIndex  int    // 文档内分块序号（从 0 开始）
	Content     string
	Source      string // 继承自所属文档
	Page        int    // 继承自所属文档
	TokenCount  int    // Token 数量（tiktoken 统计）
	ContentHash string // 内容哈希（SHA256）
}

// SearchResult 一次相似度检索的单条结果
type SearchResult struct {
	Chunk      *Chunk  `json:"chunk"`
	Similarity float64 `json:"similarity"` // 余弦相似度，越大越相关
}
