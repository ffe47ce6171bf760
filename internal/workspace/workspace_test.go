package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	base := t.TempDir()
	return New(filepath.Join(base, "work"), filepath.Join(base, "out"))
}

// TestSaveLoadJSON JSON读写往返
func TestSaveLoadJSON(t *testing.T) {
	ws := newTestWorkspace(t)

	type payload struct {
		Title string `json:"title"`
		Count int    `json:"count"`
	}
	in := payload{Title: "Backend Engineer", Count: 3}

	require.NoError(t, ws.SaveJSON(FileJobAnalysis, in))
	require.True(t, ws.Exists(FileJobAnalysis))

	var out payload
	require.NoError(t, ws.LoadJSON(FileJobAnalysis, &out))
	assert.Equal(t, in, out)
}

// TestSaveLoadText 文本读写往返
func TestSaveLoadText(t *testing.T) {
	ws := newTestWorkspace(t)

	require.NoError(t, ws.SaveText(FileTailoredCV, "# CV\ncontent"))

	text, err := ws.LoadText(FileTailoredCV)
	require.NoError(t, err)
	assert.Equal(t, "# CV\ncontent", text)
}

// TestLoadMissingFile 读取不存在的文件应返回错误
func TestLoadMissingFile(t *testing.T) {
	ws := newTestWorkspace(t)

	_, err := ws.LoadText(FileCoverLetter)
	require.Error(t, err)

	var v map[string]interface{}
	require.Error(t, ws.LoadJSON(FileCVDatabase, &v))
}

// TestResolveDownloadTraversalGuard 路径穿越应被拒绝
func TestResolveDownloadTraversalGuard(t *testing.T) {
	ws := newTestWorkspace(t)
	require.NoError(t, ws.SaveText("doc.pdf", "fake"))

	// 正常路径可解析
	path, err := ws.ResolveDownload("doc.pdf")
	require.NoError(t, err)
	assert.Equal(t, "doc.pdf", filepath.Base(path))

	// 穿越路径被拒绝
	_, err = ws.ResolveDownload("../../etc/passwd")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "拒绝访问")

	// 不存在的文件
	_, err = ws.ResolveDownload("missing.pdf")
	require.Error(t, err)
}

// TestSaveDocuments PDF复制到输出目录
func TestSaveDocuments(t *testing.T) {
	ws := newTestWorkspace(t)

	// 没有PDF时应报错
	_, err := ws.SaveDocuments()
	require.Error(t, err)

	require.NoError(t, ws.SaveText("CV_Acme_Engineer_20260830.pdf", "%PDF-1.5 fake"))
	require.NoError(t, ws.SaveText("notes.md", "not a pdf"))

	saved, err := ws.SaveDocuments()
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, "CV_Acme_Engineer_20260830.pdf", saved[0])

	// 文件确实被复制到输出目录
	data, err := os.ReadFile(filepath.Join(ws.OutputDir, saved[0]))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.5 fake", string(data))
}
