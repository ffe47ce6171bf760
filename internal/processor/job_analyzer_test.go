package processor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"job-agent-go/internal/agent"
	"job-agent-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAnalysisCache 基于内存map的分析缓存，用于测试
type fakeAnalysisCache struct {
	entries map[string]*types.JobAnalysis
	sets    int
}

func newFakeAnalysisCache() *fakeAnalysisCache {
	return &fakeAnalysisCache{entries: make(map[string]*types.JobAnalysis)}
}

func (c *fakeAnalysisCache) GetJobAnalysis(_ context.Context, key string) (*types.JobAnalysis, bool, error) {
	a, ok := c.entries[key]
	return a, ok, nil
}

func (c *fakeAnalysisCache) SetJobAnalysis(_ context.Context, key string, analysis *types.JobAnalysis, _ time.Duration) error {
	c.entries[key] = analysis
	c.sets++
	return nil
}

const sampleAnalysisResponse = "Here is the analysis:\n```json\n" + `{
  "language": "es",
  "job_title": "Backend Engineer",
  "company": "Acme",
  "location": "Remote",
  "job_level": "senior",
  "required_skills": ["Go", "MySQL"],
  "preferred_skills": ["Redis"],
  "keywords": ["microservices"],
  "tone": "technical",
  "culture_signals": ["remote-first"],
  "key_responsibilities": ["build services"],
  "application_instructions": "apply online",
  "salary_range": null,
  "gaps_to_watch": ["Kubernetes"]
}` + "\n```"

func TestAnalyzeTextParsesStructuredResult(t *testing.T) {
	mockLLM := agent.NewMockChatClient(sampleAnalysisResponse, nil)
	analyzer, err := NewJobAnalyzer(mockLLM)
	require.NoError(t, err)

	analysis, err := analyzer.AnalyzeText(context.Background(), "Backend Engineer at Acme. Go required.")
	require.NoError(t, err)

	assert.Equal(t, "es", analysis.Language)
	assert.Equal(t, "Backend Engineer", analysis.JobTitle)
	assert.Equal(t, "Acme", analysis.Company)
	assert.Equal(t, []string{"Go", "MySQL"}, analysis.RequiredSkills)
	assert.Equal(t, []string{"Kubernetes"}, analysis.GapsToWatch)

	// 岗位原文会作为source附带在结果上
	require.NotNil(t, analysis.Source)
	assert.Equal(t, "Backend Engineer at Acme. Go required.", analysis.Source.RawText)

	// 提示词包含岗位原文和输出schema关键字段
	messages := mockLLM.LastMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Content, "Backend Engineer at Acme")
	assert.Contains(t, messages[0].Content, `"required_skills"`)
	assert.Contains(t, messages[0].Content, `"gaps_to_watch"`)
}

func TestAnalyzeTextTruncatesLongSource(t *testing.T) {
	mockLLM := agent.NewMockChatClient(sampleAnalysisResponse, nil)
	analyzer, err := NewJobAnalyzer(mockLLM)
	require.NoError(t, err)

	longText := strings.Repeat("a", 600)
	analysis, err := analyzer.AnalyzeText(context.Background(), longText)
	require.NoError(t, err)

	require.NotNil(t, analysis.Source)
	assert.Len(t, analysis.Source.RawText, 503)
	assert.True(t, strings.HasSuffix(analysis.Source.RawText, "..."))
}

func TestAnalyzeTextEmptyInput(t *testing.T) {
	analyzer, err := NewJobAnalyzer(agent.NewMockChatClient("ignored", nil))
	require.NoError(t, err)

	_, err = analyzer.AnalyzeText(context.Background(), "   \n  ")
	assert.Error(t, err)
}

func TestAnalyzeTextNoJSONInResponse(t *testing.T) {
	mockLLM := agent.NewMockChatClient("I cannot analyze this posting.", nil)
	analyzer, err := NewJobAnalyzer(mockLLM)
	require.NoError(t, err)

	_, err = analyzer.AnalyzeText(context.Background(), "some job text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "无法从LLM响应中提取")
}

// fakeTextCache 基于内存map的岗位原文缓存，用于测试
type fakeTextCache struct {
	entries map[string]string
	sets    int
}

func newFakeTextCache() *fakeTextCache {
	return &fakeTextCache{entries: make(map[string]string)}
}

func (c *fakeTextCache) GetJobText(_ context.Context, urlHash string) (string, bool, error) {
	text, ok := c.entries[urlHash]
	return text, ok, nil
}

func (c *fakeTextCache) SetJobText(_ context.Context, urlHash, text string, _ time.Duration) error {
	c.entries[urlHash] = text
	c.sets++
	return nil
}

// TestAnalyzeURLPostingTextCacheHit 原文缓存命中时不再抓取页面
func TestAnalyzeURLPostingTextCacheHit(t *testing.T) {
	textCache := newFakeTextCache()
	url := "https://jobs.example.com/backend-engineer"
	textCache.entries[hashJobText(url)] = "Backend Engineer at Acme. Go required."

	mockLLM := agent.NewMockChatClient(sampleAnalysisResponse, nil)
	analyzer, err := NewJobAnalyzer(mockLLM, WithPostingTextCache(textCache))
	require.NoError(t, err)

	// URL指向不存在的域名，缓存未命中时抓取必然失败
	analysis, err := analyzer.AnalyzeURL(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, "Acme", analysis.Company)
	require.NotNil(t, analysis.Source)
	assert.Equal(t, url, analysis.Source.URL)
	// 命中缓存时不回写
	assert.Equal(t, 0, textCache.sets)
}

func TestAnalyzeTextCacheHitSkipsLLM(t *testing.T) {
	cache := newFakeAnalysisCache()
	mockLLM := agent.NewMockChatClient(sampleAnalysisResponse, nil)
	analyzer, err := NewJobAnalyzer(mockLLM, WithAnalysisCache(cache, time.Hour))
	require.NoError(t, err)

	// 第一次调用回源LLM并写缓存
	first, err := analyzer.AnalyzeText(context.Background(), "cached job text")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.sets)
	assert.Len(t, mockLLM.ReceivedMessages, 1)

	// 第二次命中缓存，LLM不再被调用
	second, err := analyzer.AnalyzeText(context.Background(), "cached job text")
	require.NoError(t, err)
	assert.Len(t, mockLLM.ReceivedMessages, 1)
	assert.Equal(t, first.JobTitle, second.JobTitle)
}

func TestNewJobAnalyzerNilModel(t *testing.T) {
	_, err := NewJobAnalyzer(nil)
	assert.Error(t, err)
}

func TestIsRetryableLLMError(t *testing.T) {
	assert.True(t, isRetryableLLMError(context.DeadlineExceeded))
	assert.True(t, isRetryableLLMError(errors.New("connection reset by peer")))
	assert.False(t, isRetryableLLMError(errors.New("invalid api key")))
	assert.False(t, isRetryableLLMError(nil))
}
