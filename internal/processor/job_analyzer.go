package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"job-agent-go/internal/constants"
	"job-agent-go/internal/parser"
	"job-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// jobAnalysisPromptTemplate 岗位分析的提示词模板，要求LLM以固定JSON结构输出
const jobAnalysisPromptTemplate = `Analyze this job posting and extract structured information.

Job Posting:
%s

Please provide a JSON response with:
{
    "language": "primary language of job posting (ISO 639-1 codes: 'en' for English, 'es' for Spanish, 'fr' for French, etc.)",
    "job_title": "exact title from posting",
    "company": "company name",
    "location": "location or remote status",
    "job_level": "entry/mid/senior/lead/etc",
    "required_skills": ["list of must-have skills"],
    "preferred_skills": ["list of nice-to-have skills"],
    "keywords": ["important terminology used in posting"],
    "tone": "formal/casual/enthusiastic/technical/etc",
    "culture_signals": ["indicators about company culture"],
    "key_responsibilities": ["main job duties"],
    "application_instructions": "any specific instructions for applying",
    "salary_range": "if mentioned, otherwise null",
    "gaps_to_watch": ["requirements that may be hard to match"]
}

Be thorough and extract all relevant information.`

// ErrScrapeFailed 岗位页面抓取失败，HTTP层据此区分422与500
var ErrScrapeFailed = errors.New("抓取岗位页面失败")

// AnalysisCache 岗位分析结果的缓存接口，由Redis存储层实现
type AnalysisCache interface {
	GetJobAnalysis(ctx context.Context, key string) (*types.JobAnalysis, bool, error)
	SetJobAnalysis(ctx context.Context, key string, analysis *types.JobAnalysis, ttl time.Duration) error
}

// PostingTextCache 岗位描述原文的缓存接口，按URL哈希缓存抓取结果
type PostingTextCache interface {
	GetJobText(ctx context.Context, urlHash string) (string, bool, error)
	SetJobText(ctx context.Context, urlHash, text string, ttl time.Duration) error
}

// JobAnalyzer 封装岗位描述的LLM结构化分析流程
type JobAnalyzer struct {
	llmModel  model.ToolCallingChatModel
	scraper   *parser.JobScraper
	cache     AnalysisCache
	textCache PostingTextCache
	cacheTTL  time.Duration
	logger    zerolog.Logger

	maxRetries int
	retryDelay time.Duration
}

// JobAnalyzerOption 是岗位分析器的配置选项
type JobAnalyzerOption func(*JobAnalyzer)

// WithAnalysisCache 启用分析结果缓存
func WithAnalysisCache(cache AnalysisCache, ttl time.Duration) JobAnalyzerOption {
	return func(a *JobAnalyzer) {
		a.cache = cache
		a.cacheTTL = ttl
	}
}

// WithPostingTextCache 启用岗位原文缓存，重复分析同一URL时跳过抓取
func WithPostingTextCache(cache PostingTextCache) JobAnalyzerOption {
	return func(a *JobAnalyzer) {
		a.textCache = cache
	}
}

// WithJobScraper 设置自定义网页抓取器
func WithJobScraper(scraper *parser.JobScraper) JobAnalyzerOption {
	return func(a *JobAnalyzer) {
		a.scraper = scraper
	}
}

// WithAnalyzerLogger 设置日志记录器
func WithAnalyzerLogger(l zerolog.Logger) JobAnalyzerOption {
	return func(a *JobAnalyzer) {
		a.logger = l
	}
}

// NewJobAnalyzer 创建岗位分析器实例
func NewJobAnalyzer(llmModel model.ToolCallingChatModel, options ...JobAnalyzerOption) (*JobAnalyzer, error) {
	if llmModel == nil {
		return nil, fmt.Errorf("LLM模型不能为空")
	}

	analyzer := &JobAnalyzer{
		llmModel:   llmModel,
		scraper:    parser.NewJobScraper(),
		cacheTTL:   constants.JobAnalysisCacheDuration,
		logger:     zerolog.Nop(),
		maxRetries: 2,
		retryDelay: 2 * time.Second,
	}

	for _, opt := range options {
		opt(analyzer)
	}

	return analyzer, nil
}

// AnalyzeURL 抓取岗位页面并进行结构化分析，source.url会被写入结果。
// 启用原文缓存时同一URL只抓取一次。
func (a *JobAnalyzer) AnalyzeURL(ctx context.Context, url string) (*types.JobAnalysis, error) {
	urlHash := hashJobText(url)
	var jobText string
	if a.textCache != nil {
		cached, found, err := a.textCache.GetJobText(ctx, urlHash)
		if err != nil {
			a.logger.Warn().Err(err).Msg("读取岗位原文缓存失败，继续抓取页面")
		} else if found {
			a.logger.Debug().Str("url", url).Msg("岗位原文缓存命中，跳过抓取")
			jobText = cached
		}
	}

	if jobText == "" {
		scraped, err := a.scraper.ScrapeJobURL(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrScrapeFailed, err)
		}
		jobText = scraped
		if a.textCache != nil {
			if err := a.textCache.SetJobText(ctx, urlHash, jobText, a.cacheTTL); err != nil {
				a.logger.Warn().Err(err).Msg("写入岗位原文缓存失败")
			}
		}
	}

	analysis, err := a.AnalyzeText(ctx, jobText)
	if err != nil {
		return nil, err
	}
	if analysis.Source != nil {
		analysis.Source.URL = url
	}
	return analysis, nil
}

// AnalyzeText 对岗位描述文本进行LLM分析，返回结构化结果。
// 结果附带source.raw_text（超长时截断），命中缓存时跳过LLM调用。
func (a *JobAnalyzer) AnalyzeText(ctx context.Context, jobText string) (*types.JobAnalysis, error) {
	jobText = strings.TrimSpace(jobText)
	if jobText == "" {
		return nil, fmt.Errorf("岗位描述文本不能为空")
	}

	cacheKey := hashJobText(jobText)
	if a.cache != nil {
		cached, found, err := a.cache.GetJobAnalysis(ctx, cacheKey)
		if err != nil {
			a.logger.Warn().Err(err).Msg("读取岗位分析缓存失败，继续调用LLM")
		} else if found {
			a.logger.Debug().Str("cache_key", cacheKey).Msg("岗位分析缓存命中")
			return cached, nil
		}
	}

	prompt := fmt.Sprintf(jobAnalysisPromptTemplate, jobText)
	responseText, err := a.callLLM(ctx, []*einoschema.Message{
		einoschema.UserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("调用LLM分析岗位失败: %w", err)
	}

	jsonStr := parser.ExtractJSONObject(responseText)
	if jsonStr == "" {
		return nil, errors.New("无法从LLM响应中提取有效的JSON")
	}

	var analysis types.JobAnalysis
	if err := json.Unmarshal([]byte(jsonStr), &analysis); err != nil {
		return nil, fmt.Errorf("解析岗位分析JSON失败: %w", err)
	}

	analysis.Source = &types.JobSource{RawText: truncateRawText(jobText)}

	if a.cache != nil {
		if err := a.cache.SetJobAnalysis(ctx, cacheKey, &analysis, a.cacheTTL); err != nil {
			a.logger.Warn().Err(err).Msg("写入岗位分析缓存失败")
		}
	}

	return &analysis, nil
}

// callLLM 调用LLM并在可重试错误时退避重试
func (a *JobAnalyzer) callLLM(ctx context.Context, messages []*einoschema.Message) (string, error) {
	var lastErr error
	delay := a.retryDelay

	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("重试LLM调用")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
		resp, err := a.llmModel.Generate(callCtx, messages)
		cancel()
		if err == nil {
			return resp.Content, nil
		}

		lastErr = err
		if !isRetryableLLMError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("LLM调用在%d次重试后仍然失败: %w", a.maxRetries, lastErr)
}

// isRetryableLLMError 判断错误是否属于瞬时网络类故障
func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	retryable := []string{
		"timeout",
		"deadline exceeded",
		"connection reset",
		"connection refused",
		"no such host",
		"eof",
		"rate limit",
		"overloaded",
		"529",
	}
	for _, s := range retryable {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// hashJobText 以文本哈希作为缓存键，避免把原文放进键名
func hashJobText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:16])
}

func truncateRawText(text string) string {
	if len(text) > constants.RawTextTruncateLen {
		return text[:constants.RawTextTruncateLen] + "..."
	}
	return text
}
