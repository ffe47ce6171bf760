package processor

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"job-agent-go/internal/config"
	"job-agent-go/internal/types"

	wkhtmltopdf "github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/rs/zerolog"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// DocTypeCV 和 DocTypeCoverLetter 是输出文件名中的文档类型前缀
const (
	DocTypeCV          = "CV"
	DocTypeCoverLetter = "CoverLetter"
)

// pdfStyleTemplate A4版式样式表，各参数来自PDF渲染配置
const pdfStyleTemplate = `
    @page {
        size: A4;
        margin: %dmm;
    }

    * {
        margin: 0;
        padding: 0;
        box-sizing: border-box;
    }

    body {
        font-family: %s;
        font-size: %dpt;
        color: #333333;
        line-height: %s;
    }

    h1 {
        font-size: 24pt;
        color: %s;
        font-weight: 700;
        letter-spacing: 0;
        margin-bottom: 0.3em;
        margin-top: 0;
    }

    h1, h2, h3, p {
        font-variant-numeric: normal;
    }

    h2 {
        font-size: 16pt;
        color: %s;
        font-weight: 600;
        border-bottom: 2px solid %s;
        padding-bottom: 0.2em;
        margin-top: 1em;
        margin-bottom: 0.5em;
    }

    h3 {
        font-size: %dpt;
        color: %s;
        margin-top: 0.8em;
        margin-bottom: 0.3em;
        font-weight: bold;
    }

    p {
        margin: 0.3em 0;
    }

    ul {
        margin: 0.3em 0;
        padding-left: 1.5em;
    }

    li {
        margin: 0.2em 0;
    }

    strong {
        color: %s;
    }

    a {
        color: %s;
        text-decoration: none;
    }

    hr {
        border: none;
        border-top: 1px solid #ddd;
        margin: 1em 0;
    }
`

// Renderer 把Markdown文档渲染为带版式的PDF
type Renderer struct {
	cfg    config.PDFConfig
	md     goldmark.Markdown
	logger zerolog.Logger
}

// RendererOption 是渲染器的配置选项
type RendererOption func(*Renderer)

// WithRendererLogger 设置日志记录器
func WithRendererLogger(l zerolog.Logger) RendererOption {
	return func(r *Renderer) {
		r.logger = l
	}
}

// NewRenderer 创建PDF渲染器。配置了wkhtmltopdf路径时覆盖PATH查找。
func NewRenderer(cfg config.PDFConfig, options ...RendererOption) *Renderer {
	if cfg.WkhtmltopdfPath != "" {
		wkhtmltopdf.SetPath(cfg.WkhtmltopdfPath)
	}

	r := &Renderer{
		cfg: cfg,
		// 换行转<br>保持简历条目的视觉结构与Markdown源一致
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				html.WithHardWraps(),
				html.WithUnsafe(),
			),
		),
		logger: zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// RenderHTML 把Markdown转换为带内联样式的完整HTML文档
func (r *Renderer) RenderHTML(markdownContent string) (string, error) {
	var body bytes.Buffer
	if err := r.md.Convert([]byte(markdownContent), &body); err != nil {
		return "", fmt.Errorf("Markdown转HTML失败: %w", err)
	}

	headingColor := "#2c3e50"
	css := fmt.Sprintf(pdfStyleTemplate,
		r.cfg.MarginMM,
		r.cfg.FontFamily,
		r.cfg.FontSizePt,
		r.cfg.LineHeight,
		headingColor,
		headingColor,
		r.cfg.AccentColor,
		r.cfg.FontSizePt,
		headingColor,
		headingColor,
		r.cfg.AccentColor,
	)

	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
%s
    </style>
</head>
<body>
%s
</body>
</html>`, css, body.String()), nil
}

// RenderPDF 渲染Markdown内容并把PDF写入outputPath
func (r *Renderer) RenderPDF(ctx context.Context, markdownContent, outputPath string) error {
	fullHTML, err := r.RenderHTML(markdownContent)
	if err != nil {
		return err
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return fmt.Errorf("初始化wkhtmltopdf失败: %w", err)
	}

	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)
	margin := uint(r.cfg.MarginMM)
	pdfg.MarginTop.Set(margin)
	pdfg.MarginBottom.Set(margin)
	pdfg.MarginLeft.Set(margin)
	pdfg.MarginRight.Set(margin)

	page := wkhtmltopdf.NewPageReader(strings.NewReader(fullHTML))
	page.DisableExternalLinks.Set(false)
	pdfg.AddPage(page)

	if err := pdfg.CreateContext(ctx); err != nil {
		return fmt.Errorf("生成PDF失败: %w", err)
	}
	if err := pdfg.WriteFile(outputPath); err != nil {
		return fmt.Errorf("写入PDF文件失败 %s: %w", outputPath, err)
	}

	r.logger.Info().Str("path", outputPath).Int("bytes", pdfg.Buffer().Len()).Msg("PDF渲染完成")
	return nil
}

// GenerateFilename 按 {类型}_{公司}_{职位}_{日期}.pdf 生成下载文件名，
// 空格和斜杠替换为下划线，其余非法字符剔除
func GenerateFilename(analysis *types.JobAnalysis, docType string, now time.Time) string {
	jobTitle := "Job"
	company := "Company"
	if analysis != nil {
		if analysis.JobTitle != "" {
			jobTitle = analysis.JobTitle
		}
		if analysis.Company != "" {
			company = analysis.Company
		}
	}
	return fmt.Sprintf("%s_%s_%s_%s.pdf",
		docType,
		sanitizeFilenamePart(company),
		sanitizeFilenamePart(jobTitle),
		now.Format("20060102"),
	)
}

func sanitizeFilenamePart(s string) string {
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")

	var b strings.Builder
	for _, c := range s {
		if c == '_' || c == '-' || unicode.IsLetter(c) || unicode.IsDigit(c) {
			b.WriteRune(c)
		}
	}
	return b.String()
}
