package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"job-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// languageNames 把ISO 639-1语言码映射为提示词中使用的语言名，未知语言码回退英语
var languageNames = map[string]string{
	"en": "ENGLISH",
	"es": "SPANISH",
	"fr": "FRENCH",
	"de": "GERMAN",
	"it": "ITALIAN",
	"pt": "PORTUGUESE",
}

// LanguageName 返回语言码对应的提示词语言名
func LanguageName(code string) string {
	if name, ok := languageNames[code]; ok {
		return name
	}
	return "ENGLISH"
}

// CVGenerator 根据岗位分析和候选人档案生成定制简历，并拆分出差距分析
type CVGenerator struct {
	llmModel   model.ToolCallingChatModel
	logger     zerolog.Logger
	maxRetries int
	retryDelay time.Duration
}

// CVGeneratorOption 是简历生成器的配置选项
type CVGeneratorOption func(*CVGenerator)

// WithCVGeneratorLogger 设置日志记录器
func WithCVGeneratorLogger(l zerolog.Logger) CVGeneratorOption {
	return func(g *CVGenerator) {
		g.logger = l
	}
}

// NewCVGenerator 创建简历生成器实例
func NewCVGenerator(llmModel model.ToolCallingChatModel, options ...CVGeneratorOption) (*CVGenerator, error) {
	if llmModel == nil {
		return nil, fmt.Errorf("LLM模型不能为空")
	}

	gen := &CVGenerator{
		llmModel:   llmModel,
		logger:     zerolog.Nop(),
		maxRetries: 2,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range options {
		opt(gen)
	}
	return gen, nil
}

// Generate 生成定制简历。LLM原始输出经过三层拆分，
// 返回的结果保证简历正文不含差距分析内容。
func (g *CVGenerator) Generate(ctx context.Context, analysis *types.JobAnalysis, profile *types.CandidateProfile, opts types.GenerateOptions) (*SplitResult, error) {
	if analysis == nil {
		return nil, fmt.Errorf("岗位分析不能为空")
	}
	if profile == nil {
		return nil, fmt.Errorf("候选人档案不能为空")
	}

	prompt, err := g.buildPrompt(analysis, profile, opts)
	if err != nil {
		return nil, err
	}

	raw, err := g.callLLM(ctx, []*einoschema.Message{
		einoschema.UserMessage(prompt),
	})
	if err != nil {
		return nil, fmt.Errorf("调用LLM生成简历失败: %w", err)
	}

	result := SplitCVResponse(raw)
	g.logger.Info().
		Str("split_method", result.Method).
		Int("cv_len", len(result.CVContent)).
		Int("gap_len", len(result.GapAnalysis)).
		Msg("定制简历生成完成")

	return &result, nil
}

func (g *CVGenerator) buildPrompt(analysis *types.JobAnalysis, profile *types.CandidateProfile, opts types.GenerateOptions) (string, error) {
	analysisJSON, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化岗位分析失败: %w", err)
	}
	profileJSON, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return "", fmt.Errorf("序列化候选人档案失败: %w", err)
	}

	jobLanguage := analysis.Language
	if jobLanguage == "" {
		jobLanguage = "en"
	}
	languageName := LanguageName(jobLanguage)

	languageInstruction := fmt.Sprintf(`
CRITICAL LANGUAGE REQUIREMENT:
- Generate the ENTIRE CV in %s language (language code: '%s')
- If '%s' is 'es', write ALL content in Spanish (including section headers, summaries, experiences)
- If '%s' is 'en', write ALL content in English
- Match linguistic conventions and terminology of the target language
- Use native terminology for roles, skills, and achievements
`, languageName, jobLanguage, jobLanguage, jobLanguage)

	iterationContext := ""
	if opts.Iteration > 1 && opts.RefinementFeedback != "" {
		iterationContext = fmt.Sprintf(`
REFINEMENT ITERATION %d:
This is iteration %d of the CV. The user reviewed the previous version and provided the following feedback:

PREVIOUS ITERATION FEEDBACK:
%s

CRITICAL: Address the feedback above while maintaining the overall quality and structure of the CV.
Focus on the specific changes requested without losing other strong elements from the previous version.
`, opts.Iteration, opts.Iteration, opts.RefinementFeedback)
	}

	githubSection := buildGithubSection(profile.GithubProjects)

	var b strings.Builder
	b.WriteString("You are an expert CV writer. Generate a tailored CV for this specific job offer.\n")
	b.WriteString(languageInstruction)
	b.WriteString(iterationContext)
	b.WriteString("\n\nJOB ANALYSIS:\n")
	b.Write(analysisJSON)
	b.WriteString("\n\nCANDIDATE'S FULL CV DATABASE:\n")
	b.Write(profileJSON)
	b.WriteString("\n")
	b.WriteString(githubSection)
	b.WriteString(fmt.Sprintf(`USER'S SPECIFIC COMMENTS (HIGH PRIORITY - INCORPORATE PROMINENTLY):
%s

CRITICAL INSTRUCTIONS FOR USER COMMENTS:
1. Treat user comments as PRIMARY DIRECTIVES that override default prioritization
2. If user says "emphasize X", make X the most prominent aspect of the CV
3. If user says "downplay Y", minimize or omit Y even if job requires it
4. If user specifies particular projects, experiences, or skills to highlight, feature them prominently
5. User knows their audience best - follow their guidance explicitly and without compromise

GENERAL REQUIREMENTS:
1. Maximum 2 pages
2. Reorder and emphasize experiences that match job requirements
3. Rewrite achievement bullets using the job's keywords and terminology naturally
4. Highlight the angles mentioned in user comments above all else
5. Match the tone from the job analysis (formal/casual/technical)
6. Remove or de-emphasize experiences less relevant to this specific role
7. Start with a tailored professional summary that speaks directly to this job

OUTPUT FORMAT:
Return a markdown-formatted CV with clear sections.

After the CV, provide a gap analysis section that identifies:
- Key requirements from the job that the candidate lacks or has limited experience with
- Suggestions for how to address these gaps (e.g., emphasize transferable skills, reframe existing experience)

Structure:
# [Candidate Name]
📧 [email] | 🔗 [LinkedIn](linkedin_url) | 💼 [Portfolio](portfolio_url) | 🐙 [GitHub](github_url) | 🌐 [Website](website_url)

IMPORTANT: Use emoji prefix format for contact information:
- 📧 for email (plain text, not a link)
- 🔗 for LinkedIn (clickable link with "LinkedIn" as display text)
- 💼 for Portfolio (clickable link with "Portfolio" as display text)
- 🐙 for GitHub (clickable link with "GitHub" as display text)
- 🌐 for Website (clickable link with "Website" as display text, if separate from portfolio)

Use the actual URLs from the candidate's personal_info to create clickable markdown links.

## Professional Summary
[Tailored summary for this specific role]

## Work Experience
[Most relevant first, rewritten for this job]

## Education
[Relevant education]

## Skills
[Prioritized by job relevance]

## [Other relevant sections]

---GAP_ANALYSIS_SEPARATOR---
## Gap Analysis
- [Identified gaps and suggestions]

CRITICAL SEPARATOR INSTRUCTION:
You MUST use the exact string "---GAP_ANALYSIS_SEPARATOR---" on its own line to separate the CV content from the Gap Analysis section.
Do NOT use "---" or any other separator. The exact text "---GAP_ANALYSIS_SEPARATOR---" is required for automated parsing.
Place all CV content ABOVE the separator. Place all gap analysis, recommendations, and internal notes BELOW the separator.
`, opts.Comments))

	return b.String(), nil
}

// buildGithubSection 在档案带有GitHub项目时追加对应提示段
func buildGithubSection(projects []types.RepoSummary) string {
	if len(projects) == 0 {
		return ""
	}
	projectsJSON, err := json.MarshalIndent(projects, "", "  ")
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`
CANDIDATE'S RELEVANT GITHUB PROJECTS (RECENT WORK):
%s

These are the candidate's most recent, actively maintained projects selected from GitHub.
IMPORTANT: Prioritize these over older static projects when they are relevant to the job.
Include the GitHub URL for each project used in the CV.
`, projectsJSON)
}

func (g *CVGenerator) callLLM(ctx context.Context, messages []*einoschema.Message) (string, error) {
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

		callCtx, cancel := context.WithTimeout(ctx, 180*time.Second)
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
