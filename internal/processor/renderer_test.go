package processor

import (
	"testing"
	"time"

	"job-agent-go/internal/config"
	"job-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPDFConfig() config.PDFConfig {
	return config.PDFConfig{
		FontFamily:  "Helvetica, Arial, sans-serif",
		FontSizePt:  10,
		MarginMM:    18,
		AccentColor: "#2c3e50",
		LineHeight:  "1.45",
	}
}

func TestRenderHTML(t *testing.T) {
	r := NewRenderer(testPDFConfig())

	html, err := r.RenderHTML("# Jane Doe\n\n## Work Experience\n\n- Built [things](https://example.com)")
	require.NoError(t, err)

	assert.Contains(t, html, "<h1")
	assert.Contains(t, html, "<h2")
	assert.Contains(t, html, `href="https://example.com"`)
	// 配置参数进入样式表
	assert.Contains(t, html, "margin: 18mm")
	assert.Contains(t, html, "font-size: 10pt")
	assert.Contains(t, html, "border-bottom: 2px solid #2c3e50")
	assert.Contains(t, html, "line-height: 1.45")
	assert.Contains(t, html, `<meta charset="UTF-8">`)
}

func TestRenderHTMLHardWraps(t *testing.T) {
	r := NewRenderer(testPDFConfig())

	html, err := r.RenderHTML("line one\nline two")
	require.NoError(t, err)
	assert.Contains(t, html, "<br")
}

func TestGenerateFilename(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	analysis := &types.JobAnalysis{
		JobTitle: "Backend Engineer / Platform",
		Company:  "Acme Corp",
	}
	assert.Equal(t, "CV_Acme_Corp_Backend_Engineer___Platform_20260830.pdf",
		GenerateFilename(analysis, DocTypeCV, now))

	// 非法字符剔除，重音字母保留
	analysis = &types.JobAnalysis{JobTitle: "Ingeniero (Señor)", Company: "Acmé!"}
	assert.Equal(t, "CoverLetter_Acmé_Ingeniero_Señor_20260830.pdf",
		GenerateFilename(analysis, DocTypeCoverLetter, now))

	// 空字段回退默认值
	assert.Equal(t, "CV_Company_Job_20260830.pdf", GenerateFilename(nil, DocTypeCV, now))
	assert.Equal(t, "CV_Company_Job_20260830.pdf", GenerateFilename(&types.JobAnalysis{}, DocTypeCV, now))
}

func TestSanitizeFilenamePart(t *testing.T) {
	assert.Equal(t, "a_b-c", sanitizeFilenamePart("a b-c"))
	assert.Equal(t, "x_y", sanitizeFilenamePart("x/y"))
	assert.Equal(t, "name", sanitizeFilenamePart("na.m,e!"))
}
