package handler

import (
	"bytes"
	"testing"

	"job-agent-go/internal/config"
	"job-agent-go/internal/processor"
	"job-agent-go/internal/workspace"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPipelineHandler 构造一个指向临时工作区的处理器，
// 只覆盖进入业务逻辑前就返回的校验分支
func newTestPipelineHandler(t *testing.T) *PipelineHandler {
	t.Helper()
	dir := t.TempDir()
	ws := workspace.New(dir, dir+"/output")
	require.NoError(t, ws.EnsureDirs())
	cfg := &config.Config{}
	return NewPipelineHandler(cfg, &processor.Components{}, ws, nil)
}

func performJSON(t *testing.T, h *server.Hertz, method, path, body string) *ut.ResponseRecorder {
	t.Helper()
	return ut.PerformRequest(h.Engine, method, path,
		&ut.Body{Body: bytes.NewBufferString(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"},
	)
}

// TestHandleAnalyzeJobMissingInput url与text都缺失时返回400
func TestHandleAnalyzeJobMissingInput(t *testing.T) {
	ph := newTestPipelineHandler(t)
	h := server.New()
	h.POST("/api/v1/job/analyze", ph.HandleAnalyzeJob)

	w := performJSON(t, h, "POST", "/api/v1/job/analyze", `{}`)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "url或text")
}

// TestHandleGenerateLetterConflictingLimits max_words与max_chars互斥
func TestHandleGenerateLetterConflictingLimits(t *testing.T) {
	ph := newTestPipelineHandler(t)
	h := server.New()
	h.POST("/api/v1/letter/generate", ph.HandleGenerateLetter)

	w := performJSON(t, h, "POST", "/api/v1/letter/generate", `{"max_words": 300, "max_chars": 1500}`)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "只能指定一个")
}

// TestHandleGenerateCVWithoutAnalysis 工作区内没有岗位分析时返回400
func TestHandleGenerateCVWithoutAnalysis(t *testing.T) {
	ph := newTestPipelineHandler(t)
	h := server.New()
	h.POST("/api/v1/cv/generate", ph.HandleGenerateCV)

	w := performJSON(t, h, "POST", "/api/v1/cv/generate", `{"comments": "focus on backend"}`)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "未找到岗位分析")
}

// TestHandleGithubReposNotConfigured 未配置GitHub集成时返回400
func TestHandleGithubReposNotConfigured(t *testing.T) {
	ph := newTestPipelineHandler(t)
	h := server.New()
	h.POST("/api/v1/github/repos", ph.HandleGithubRepos)

	w := performJSON(t, h, "POST", "/api/v1/github/repos", `{"force": true}`)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "GitHub集成未配置")
}
