package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"

	"job-agent-go/internal/logger"
)

// MasterCVExtractor 使用 Eino PDF Parser 从主简历PDF中提取原始文本
// 提取结果作为候选人档案的补充上下文参与CV生成
type MasterCVExtractor struct {
	parser *pdf.PDFParser
}

// NewMasterCVExtractor 初始化主简历文本提取器
// 默认配置为不按页面分割，以获取整个文档的连续文本
func NewMasterCVExtractor(ctx context.Context) (*MasterCVExtractor, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{
		ToPages: false, // 我们希望获取整个PDF的文本作为单个字符串
	})
	if err != nil {
		return nil, fmt.Errorf("创建Eino PDF解析器失败: %w", err)
	}

	return &MasterCVExtractor{parser: p}, nil
}

// ExtractFromFile 从给定的PDF文件路径中提取完整的纯文本内容
func (e *MasterCVExtractor) ExtractFromFile(ctx context.Context, filePath string) (string, error) {
	startTime := time.Now()

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("打开主简历PDF失败 %s: %w", filePath, err)
	}
	defer file.Close()

	text, err := e.ExtractFromReader(ctx, file, filePath)
	if err != nil {
		return "", err
	}

	logger.Debug().
		Str("path", filePath).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(startTime)).
		Msg("主简历PDF文本提取完成")
	return text, nil
}

// ExtractFromReader 从 io.Reader 中提取文本
func (e *MasterCVExtractor) ExtractFromReader(ctx context.Context, reader io.Reader, uri string) (string, error) {
	// 解析大文件可能较慢，设置上限
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	docs, err := e.parser.Parse(ctx, reader, einoParser.WithURI(uri))
	if err != nil {
		return "", fmt.Errorf("解析PDF失败 %s: %w", uri, err)
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("PDF解析未返回任何文档: %s", uri)
	}

	// 合并所有文档的内容（以防万一返回了多个）
	var full string
	for i, doc := range docs {
		full += doc.Content
		if i < len(docs)-1 {
			full += "\n\n"
		}
	}
	return full, nil
}

// ExtractFromBytes 从字节数组提取文本内容
func (e *MasterCVExtractor) ExtractFromBytes(ctx context.Context, data []byte, uri string) (string, error) {
	return e.ExtractFromReader(ctx, bytes.NewReader(data), uri)
}
