package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"job-agent-go/internal/constants"
	"job-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// coverLetterSystemPrompt 求职信生成的固定系统提示，定制简历作为第二个system块随请求缓存
const coverLetterSystemPrompt = "You are an expert cover letter writer. You will be given the candidate's tailored CV below. Use it as the basis for generating compelling cover letters."

// CoverLetterGenerator 基于岗位分析和定制简历生成求职信
type CoverLetterGenerator struct {
	llmModel      model.ToolCallingChatModel
	defaultLength string
	logger        zerolog.Logger
	maxRetries    int
	retryDelay    time.Duration
}

// CoverLetterOption 是求职信生成器的配置选项
type CoverLetterOption func(*CoverLetterGenerator)

// WithDefaultLength 设置未指定长度约束时的默认描述
func WithDefaultLength(length string) CoverLetterOption {
	return func(g *CoverLetterGenerator) {
		if length != "" {
			g.defaultLength = length
		}
	}
}

// WithCoverLetterLogger 设置日志记录器
func WithCoverLetterLogger(l zerolog.Logger) CoverLetterOption {
	return func(g *CoverLetterGenerator) {
		g.logger = l
	}
}

// NewCoverLetterGenerator 创建求职信生成器实例
func NewCoverLetterGenerator(llmModel model.ToolCallingChatModel, options ...CoverLetterOption) (*CoverLetterGenerator, error) {
	if llmModel == nil {
		return nil, fmt.Errorf("LLM模型不能为空")
	}

	gen := &CoverLetterGenerator{
		llmModel:      llmModel,
		defaultLength: constants.DefaultLetterLength,
		logger:        zerolog.Nop(),
		maxRetries:    2,
		retryDelay:    2 * time.Second,
	}
	for _, opt := range options {
		opt(gen)
	}
	return gen, nil
}

// BuildLengthConstraint 把字数/字符数上限转换为提示词中的长度描述。
// 两者同时指定属于调用方错误，二者都为零时使用默认描述。
func (g *CoverLetterGenerator) BuildLengthConstraint(maxWords, maxChars int) (string, error) {
	if maxWords > 0 && maxChars > 0 {
		return "", fmt.Errorf("长度约束只能指定max_words或max_chars之一")
	}
	if maxWords > 0 {
		return fmt.Sprintf("approximately %d words", maxWords), nil
	}
	if maxChars > 0 {
		return fmt.Sprintf("approximately %d characters", maxChars), nil
	}
	return g.defaultLength, nil
}

// Generate 生成求职信。定制简历放入system块以复用提示缓存，
// 岗位相关内容放入user消息。
func (g *CoverLetterGenerator) Generate(ctx context.Context, analysis *types.JobAnalysis, tailoredCV string, opts types.LetterOptions) (string, error) {
	if analysis == nil {
		return "", fmt.Errorf("岗位分析不能为空")
	}
	if strings.TrimSpace(tailoredCV) == "" {
		return "", fmt.Errorf("定制简历内容不能为空")
	}

	lengthConstraint, err := g.BuildLengthConstraint(opts.MaxWords, opts.MaxChars)
	if err != nil {
		return "", err
	}

	userPrompt, err := g.buildUserPrompt(analysis, opts.GenerateOptions, lengthConstraint)
	if err != nil {
		return "", err
	}

	messages := []*einoschema.Message{
		einoschema.SystemMessage(coverLetterSystemPrompt),
		einoschema.SystemMessage("CANDIDATE'S TAILORED CV FOR THIS JOB:\n" + tailoredCV),
		einoschema.UserMessage(userPrompt),
	}

	letter, err := g.callLLM(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("调用LLM生成求职信失败: %w", err)
	}

	g.logger.Info().
		Int("letter_len", len(letter)).
		Str("length_constraint", lengthConstraint).
		Msg("求职信生成完成")

	return letter, nil
}

func (g *CoverLetterGenerator) buildUserPrompt(analysis *types.JobAnalysis, opts types.GenerateOptions, lengthConstraint string) (string, error) {
	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化岗位分析失败: %w", err)
	}

	jobLanguage := analysis.Language
	if jobLanguage == "" {
		jobLanguage = "en"
	}
	languageName := LanguageName(jobLanguage)

	languageInstruction := fmt.Sprintf(`
CRITICAL LANGUAGE REQUIREMENT:
- Generate the ENTIRE cover letter in %s language (language code: '%s')
- If '%s' is 'es', write ALL content in Spanish
- If '%s' is 'en', write ALL content in English
- Match linguistic conventions and professional writing style of the target language
- Use native terminology and expressions
`, languageName, jobLanguage, jobLanguage, jobLanguage)

	iterationContext := ""
	if opts.Iteration > 1 && opts.RefinementFeedback != "" {
		iterationContext = fmt.Sprintf(`
REFINEMENT ITERATION %d:
This is iteration %d of the cover letter. The user reviewed the previous version and provided the following feedback:

PREVIOUS ITERATION FEEDBACK:
%s

CRITICAL: Address the feedback above while maintaining the overall professionalism and persuasiveness of the letter.
Focus on the specific changes requested without compromising other strong elements from the previous version.
`, opts.Iteration, opts.Iteration, opts.RefinementFeedback)
	}

	return fmt.Sprintf(`Generate a compelling cover letter for this job application.
%s
%s

JOB ANALYSIS:
%s

USER'S SPECIFIC COMMENTS (HIGH PRIORITY - INCORPORATE PROMINENTLY):
%s

CRITICAL INSTRUCTIONS FOR USER COMMENTS:
1. Treat user comments as PRIMARY DIRECTIVES for the cover letter focus
2. If user says "emphasize X", center the letter narrative around X
3. If user says "mention specific experience Y", weave Y into the letter naturally
4. If user provides tone guidance, follow it precisely
5. User knows what resonates with this employer - prioritize their insights

GENERAL REQUIREMENTS:
1. Maximum 1 page (%s)
2. Match the tone from job analysis (formal/casual/enthusiastic/technical)
3. Structure:
   - Opening: Why this specific role and company (show you've researched them)
   - Body: 2-3 key experiences that directly address main job requirements
   - Closing: Clear call to action and enthusiasm
4. Incorporate user's specified angles naturally and prominently
5. Use company and role terminology from the job posting
6. Be authentic and specific, not generic
7. Show enthusiasm without being over-the-top

OUTPUT FORMAT:
Return a markdown-formatted cover letter ready to be converted to PDF.

Do NOT include:
- Address blocks (will be added during PDF formatting)
- Date (will be added during PDF formatting)

Start with:
## [Job Title] at [Company Name]

Then the letter content.
`, languageInstruction, iterationContext, analysisJSON, opts.Comments, lengthConstraint), nil
}

func (g *CoverLetterGenerator) callLLM(ctx context.Context, messages []*einoschema.Message) (string, error) {
	var lastErr error
	delay := g.retryDelay

	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Info().Int("attempt", attempt).Dur("delay", delay).Msg("重试LLM调用")
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		callCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
		resp, err := g.llmModel.Generate(callCtx, messages)
		cancel()
		if err == nil {
			return resp.Content, nil
		}

		lastErr = err
		if !isRetryableLLMError(err) {
			return "", err
		}
	}

	return "", fmt.Errorf("LLM调用在%d次重试后仍然失败: %w", g.maxRetries, lastErr)
}
