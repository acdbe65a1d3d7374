package parsers

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupported 表示没有解析器支持该扩展名
type ErrUnsupported struct {
	Extension string
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("不支持的文件类型: %s", e.Extension)
}

// ParserRegistry 解析器注册表
type ParserRegistry struct {
	parsers []Parser
}

// NewParserRegistry 创建并注册默认解析器
func NewParserRegistry() *ParserRegistry {
	r := &ParserRegistry{
		parsers: make([]Parser, 0),
	}

	r.Register(NewTextParser())
	r.Register(NewPDFParser())

	return r
}

// Register 注册解析器
func (r *ParserRegistry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// CanParse 检查文件名是否能被某个解析器处理
func (r *ParserRegistry) CanParse(fileName string) bool {
	ext := strings.ToLower(filepath.Ext(fileName))
	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return true
		}
	}
	return false
}

// Parse 选择合适的解析器并解析文档
func (r *ParserRegistry) Parse(fileName string, reader io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))

	for _, p := range r.parsers {
		if p.CanParse(ext) {
			return p.Parse(reader)
		}
	}

	return "", &ErrUnsupported{Extension: ext}
}
