package rag

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	indexDBFile       = "index.db"
	indexManifestFile = "manifest.json"
)

// Manifest 随索引持久化的元数据
// 记录嵌入模型身份：用不同模型查询一个已建好的索引会静默破坏排序，
// 加载时据此校验并快速失败
type Manifest struct {
	EmbeddingProvider string    `json:"embedding_provider"`
	EmbeddingModel    string    `json:"embedding_model"`
	Dimension         int       `json:"dimension"`
	ChunkCount        int       `json:"chunk_count"`
	BuiltAt           time.Time `json:"built_at"`
}

// VectorIndex 不可变的内存索引快照
// 构建完成后只读，可被任意多个检索并发使用；重建产生新快照整体替换
type VectorIndex struct {
	chunks   []*Chunk    // 按全局序号升序
	vectors  [][]float32 // 与 chunks 一一对应
	manifest Manifest
}

// Len 返回索引中的分块数量
func (idx *VectorIndex) Len() int {
	return len(idx.chunks)
}

// Manifest 返回索引元数据
func (idx *VectorIndex) Manifest() Manifest {
	return idx.manifest
}

// Search 余弦相似度检索，返回 top-k 结果
// 结果按相似度降序排列；相似度相同时按全局序号升序，保证确定性
func (idx *VectorIndex) Search(queryVector []float32, topK int) []*SearchResult {
	if topK <= 0 || len(idx.chunks) == 0 {
		return nil
	}

	results := make([]*SearchResult, 0, len(idx.chunks))
	for i, chunk := range idx.chunks {
		results = append(results, &SearchResult{
			Chunk:      chunk,
			Similarity: cosineSimilarity(queryVector, idx.vectors[i]),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results
}

// cosineSimilarity 计算两个向量的余弦相似度
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// indexRecord 索引分块的持久化记录
type indexRecord struct {
	Ordinal     int    `gorm:"primaryKey;autoIncrement:false"`
	ChunkID     string `gorm:"type:uuid;not null"`
	DocIndex    int    `gorm:"not null"`
	ChunkIndex  int    `gorm:"not null"`
	Content     string `gorm:"type:text;not null"`
	Source      string `gorm:"type:text"`
	Page        int
	TokenCount  int
	ContentHash string `gorm:"type:varchar(64)"`
	Embedding   []byte `gorm:"type:blob;not null"` // float32 小端序列化
}

// TableName 指定表名
func (indexRecord) TableName() string {
	return "index_chunks"
}

// IndexStore 向量索引的磁盘存储
// 目录下包含 SQLite 数据文件与 manifest.json，manifest 的存在标志索引完整
// 写入先落临时文件再重命名，重建不会让并发读者观察到中间状态
type IndexStore struct {
	dir string
}

// NewIndexStore 创建索引存储
func NewIndexStore(dir string) *IndexStore {
	return &IndexStore{dir: dir}
}

// Exists 检查磁盘上是否已有完整索引
func (s *IndexStore) Exists() bool {
	_, err := os.Stat(filepath.Join(s.dir, indexManifestFile))
	return err == nil
}

// Load 加载持久化索引
// 索引不存在时返回 ErrIndexUnavailable；
// manifest 中记录的嵌入模型与期望不一致时返回 ErrEmbeddingSpaceMismatch
func (s *IndexStore) Load(expectedProvider, expectedModel string) (*VectorIndex, error) {
	manifestPath := filepath.Join(s.dir, indexManifestFile)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrIndexUnavailable, s.dir)
		}
		return nil, fmt.Errorf("读取索引元数据失败: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("解析索引元数据失败: %w", err)
	}

	if manifest.EmbeddingProvider != expectedProvider || manifest.EmbeddingModel != expectedModel {
		return nil, fmt.Errorf("%w: 索引使用 %s/%s, 当前配置 %s/%s",
			ErrEmbeddingSpaceMismatch,
			manifest.EmbeddingProvider, manifest.EmbeddingModel,
			expectedProvider, expectedModel)
	}

	db, err := s.openDB(filepath.Join(s.dir, indexDBFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer closeDB(db)

	var records []indexRecord
	if err := db.Order("ordinal ASC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("读取索引记录失败: %w", err)
	}

	chunks := make([]*Chunk, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		chunks[i] = &Chunk{
			ID:          r.ChunkID,
			Ordinal:     r.Ordinal,
			DocIndex:    r.DocIndex,
			ChunkIndex:  r.ChunkIndex,
			Content:     r.Content,
			Source:      r.Source,
			Page:        r.Page,
			TokenCount:  r.TokenCount,
			ContentHash: r.ContentHash,
		}
		vectors[i] = decodeEmbedding(r.Embedding)
	}

	return &VectorIndex{chunks: chunks, vectors: vectors, manifest: manifest}, nil
}

// Save 持久化索引
// SQLite 文件与 manifest 均先写临时文件再原子重命名，manifest 最后落盘
func (s *IndexStore) Save(idx *VectorIndex) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: 创建索引目录失败: %v", ErrIndexUnavailable, err)
	}

	dbPath := filepath.Join(s.dir, indexDBFile)
	tmpDBPath := dbPath + ".tmp"
	_ = os.Remove(tmpDBPath)

	db, err := s.openDB(tmpDBPath)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}

	if err := db.AutoMigrate(&indexRecord{}); err != nil {
		closeDB(db)
		return fmt.Errorf("初始化索引表失败: %w", err)
	}

	records := make([]indexRecord, len(idx.chunks))
	for i, chunk := range idx.chunks {
		records[i] = indexRecord{
			Ordinal:     chunk.Ordinal,
			ChunkID:     chunk.ID,
			DocIndex:    chunk.DocIndex,
			ChunkIndex:  chunk.ChunkIndex,
			Content:     chunk.Content,
			Source:      chunk.Source,
			Page:        chunk.Page,
			TokenCount:  chunk.TokenCount,
			ContentHash: chunk.ContentHash,
			Embedding:   encodeEmbedding(idx.vectors[i]),
		}
	}

	if len(records) > 0 {
		if err := db.CreateInBatches(records, 200).Error; err != nil {
			closeDB(db)
			return fmt.Errorf("写入索引记录失败: %w", err)
		}
	}
	closeDB(db)

	if err := os.Rename(tmpDBPath, dbPath); err != nil {
		return fmt.Errorf("%w: 替换索引文件失败: %v", ErrIndexUnavailable, err)
	}

	manifestData, err := json.MarshalIndent(idx.manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化索引元数据失败: %w", err)
	}

	manifestPath := filepath.Join(s.dir, indexManifestFile)
	tmpManifestPath := manifestPath + ".tmp"
	if err := os.WriteFile(tmpManifestPath, manifestData, 0o644); err != nil {
		return fmt.Errorf("%w: 写入索引元数据失败: %v", ErrIndexUnavailable, err)
	}
	if err := os.Rename(tmpManifestPath, manifestPath); err != nil {
		return fmt.Errorf("%w: 替换索引元数据失败: %v", ErrIndexUnavailable, err)
	}

	return nil
}

// Remove 删除磁盘上的索引
func (s *IndexStore) Remove() error {
	// manifest 先删，残留的数据文件不会被当成完整索引
	for _, name := range []string{indexManifestFile, indexDBFile} {
		path := filepath.Join(s.dir, name)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("删除索引文件失败: %w", err)
		}
	}
	return nil
}

// openDB 打开索引 SQLite 文件
func (s *IndexStore) openDB(path string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
}

// closeDB 关闭 gorm 底层连接
func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

// encodeEmbedding 将向量序列化为小端字节
func encodeEmbedding(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeEmbedding 从小端字节还原向量
func decodeEmbedding(data []byte) []float32 {
	vector := make([]float32, len(data)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vector
}
