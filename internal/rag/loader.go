package rag

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"backend/internal/rag/parsers"
)

// Loader 课程资料加载器，扫描资料目录并产出 Document 序列
type Loader struct {
	documentsDir string
	registry     *parsers.ParserRegistry
	pdfParser    *parsers.PDFParser
}

// NewLoader 创建资料加载器
func NewLoader(documentsDir string) *Loader {
	return &Loader{
		documentsDir: documentsDir,
		registry:     parsers.NewParserRegistry(),
		pdfParser:    parsers.NewPDFParser(),
	}
}

// LoadDocuments 加载资料目录下的全部文档
// 文本文件产出一个 Document，PDF 按页产出多个 Document，不支持的类型静默跳过
// 目录下没有任何可解析文档时返回 ErrNoDocumentsFound
func (l *Loader) LoadDocuments() ([]*Document, error) {
	entries, err := os.ReadDir(l.documentsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: 资料目录不存在 %s", ErrNoDocumentsFound, l.documentsDir)
		}
		return nil, fmt.Errorf("读取资料目录失败: %w", err)
	}

	// 按文件名排序，保证分块序号在多次构建之间稳定
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	documents := make([]*Document, 0, len(names))
	for _, name := range names {
		path := filepath.Join(l.documentsDir, name)

		docs, err := l.loadFile(path)
		if err != nil {
			// 单个文件解析失败跳过，不影响其余资料
			continue
		}
		documents = append(documents, docs...)
	}

	if len(documents) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoDocumentsFound, l.documentsDir)
	}

	return documents, nil
}

// loadFile 加载单个文件
func (l *Loader) loadFile(path string) ([]*Document, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".pdf" {
		return l.loadPDF(path)
	}

	if !l.registry.CanParse(path) {
		return nil, &parsers.ErrUnsupported{Extension: ext}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	content, err := l.registry.Parse(path, file)
	if err != nil {
		return nil, err
	}

	return []*Document{{Content: content, Source: path}}, nil
}

// loadPDF 加载 PDF，每页产出一个 Document
func (l *Loader) loadPDF(path string) ([]*Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文件失败: %w", err)
	}
	defer file.Close()

	pages, err := l.pdfParser.ParsePages(file)
	if err != nil {
		return nil, err
	}

	docs := make([]*Document, 0, len(pages))
	for i, page := range pages {
		docs = append(docs, &Document{
			Content: page,
			Source:  path,
			Page:    i + 1,
		})
	}
	return docs, nil
}
