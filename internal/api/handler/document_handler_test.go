package handler

import (
	"testing"

	"job-agent-go/internal/config"
	"job-agent-go/internal/workspace"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestDocumentHandler 构造一个不带存储后端的文档处理器
func newTestDocumentHandler(t *testing.T) *DocumentHandler {
	t.Helper()
	dir := t.TempDir()
	ws := workspace.New(dir, dir+"/output")
	require.NoError(t, ws.EnsureDirs())
	return NewDocumentHandler(&config.Config{}, nil, ws)
}

// TestHandleDownloadMissingFile 工作区内不存在的文件返回400
func TestHandleDownloadMissingFile(t *testing.T) {
	dh := newTestDocumentHandler(t)
	h := server.New()
	h.GET("/api/v1/documents/download/*filepath", dh.HandleDownload)

	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/documents/download/missing.pdf", nil)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "文件不存在")
}

// TestHandleGetApplicationWithoutDatabase 未配置数据库时返回400
func TestHandleGetApplicationWithoutDatabase(t *testing.T) {
	dh := newTestDocumentHandler(t)
	h := server.New()
	h.GET("/api/v1/applications/:id", dh.HandleGetApplication)

	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/applications/some-id", nil)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "数据库未配置")
}

// TestHandleUpdateApplicationStatusWithoutDatabase 未配置数据库时返回400
func TestHandleUpdateApplicationStatusWithoutDatabase(t *testing.T) {
	dh := newTestDocumentHandler(t)
	h := server.New()
	h.PATCH("/api/v1/applications/:id/status", dh.HandleUpdateApplicationStatus)

	w := performJSON(t, h, "PATCH", "/api/v1/applications/some-id/status", `{"status": "submitted"}`)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "数据库未配置")
}

// TestHandleDownloadArchivedDocumentWithoutStorage 存储后端缺失时返回400
func TestHandleDownloadArchivedDocumentWithoutStorage(t *testing.T) {
	dh := newTestDocumentHandler(t)
	h := server.New()
	h.GET("/api/v1/applications/:id/documents/:doc_id/content", dh.HandleDownloadArchivedDocument)

	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/applications/a/documents/d/content", nil)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "未配置")
}
