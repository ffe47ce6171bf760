package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"job-agent-go/internal/types"
	"job-agent-go/internal/workspace"

	"github.com/rs/zerolog"
)

// 流水线步骤名，与SSE事件中的step字段一致
const (
	StepAnalyzingJob          = "analyzing_job"
	StepLoadingCV             = "loading_cv"
	StepFetchingGithub        = "fetching_github"
	StepGeneratingCV          = "generating_cv"
	StepGeneratingCoverLetter = "generating_cover_letter"
	StepCreatingPDFs          = "creating_pdfs"
)

// 流水线事件类型
const (
	EventProgress   = "progress"
	EventStepResult = "step_result"
	EventError      = "error"
	EventComplete   = "complete"
)

// StepEvent 流水线在执行过程中对外发布的事件
type StepEvent struct {
	Event   string         `json:"event"`
	Step    string         `json:"step,omitempty"`
	Message string         `json:"message,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// StepCallback 接收流水线事件。CLI打印进度，HTTP层转成SSE帧。
type StepCallback func(event StepEvent)

// PipelineInput 一次完整生成流程的输入
type PipelineInput struct {
	URL                 string `json:"url,omitempty"`
	Text                string `json:"text,omitempty"`
	Comments            string `json:"comments"`
	GenerateCoverLetter bool   `json:"generate_cover_letter"`
	MaxWords            int    `json:"max_words,omitempty"`
	Iteration           int    `json:"iteration,omitempty"`
	RefinementFeedback  string `json:"refinement_feedback,omitempty"`
}

// PipelineResult 流水线的最终产物路径（相对工作区）
type PipelineResult struct {
	CVPDFPath          string `json:"cv_pdf_path"`
	CoverLetterPDFPath string `json:"cover_letter_pdf_path,omitempty"`
	SplitMethod        string `json:"split_method,omitempty"`
}

// RunRecorder 可选的运行记录接口，由MySQL存储层实现
type RunRecorder interface {
	RecordRun(ctx context.Context, record RunRecord) error
}

// RunRecord 一次流水线运行的落库字段
type RunRecord struct {
	JobTitle           string
	Company            string
	Language           string
	SplitMethod        string
	Iteration          int
	CVPDFPath          string
	CoverLetterPDFPath string
	Status             string
}

// Pipeline 串联岗位分析、档案加载、GitHub筛选、文档生成和PDF渲染。
// 中间产物持久化到工作区，各步骤通过回调上报进度。
type Pipeline struct {
	analyzer  *JobAnalyzer
	profiles  *ProfileLoader
	repos     *RepoService
	cvGen     *CVGenerator
	letterGen *CoverLetterGenerator
	renderer  *Renderer
	ws        *workspace.Workspace
	recorder  RunRecorder
	logger    zerolog.Logger
}

// PipelineOption 是流水线的配置选项
type PipelineOption func(*Pipeline)

// WithRepoService 启用GitHub项目上下文
func WithRepoService(repos *RepoService) PipelineOption {
	return func(p *Pipeline) {
		p.repos = repos
	}
}

// WithRunRecorder 启用运行记录落库
func WithRunRecorder(recorder RunRecorder) PipelineOption {
	return func(p *Pipeline) {
		p.recorder = recorder
	}
}

// WithPipelineLogger 设置日志记录器
func WithPipelineLogger(l zerolog.Logger) PipelineOption {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// NewPipeline 创建流水线实例
func NewPipeline(
	analyzer *JobAnalyzer,
	profiles *ProfileLoader,
	cvGen *CVGenerator,
	letterGen *CoverLetterGenerator,
	renderer *Renderer,
	ws *workspace.Workspace,
	options ...PipelineOption,
) (*Pipeline, error) {
	if analyzer == nil || profiles == nil || cvGen == nil || letterGen == nil || renderer == nil || ws == nil {
		return nil, fmt.Errorf("流水线依赖不完整")
	}

	p := &Pipeline{
		analyzer:  analyzer,
		profiles:  profiles,
		cvGen:     cvGen,
		letterGen: letterGen,
		renderer:  renderer,
		ws:        ws,
		logger:    zerolog.Nop(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p, nil
}

// Validate 在流式输出开始前检查输入。
// 首轮需要url或text之一，细化轮次需要已有的岗位分析。
func (p *Pipeline) Validate(input PipelineInput) error {
	iteration := input.Iteration
	if iteration <= 0 {
		iteration = 1
	}
	if iteration <= 1 && input.URL == "" && strings.TrimSpace(input.Text) == "" {
		return fmt.Errorf("必须提供url或text之一")
	}
	if iteration > 1 && !p.ws.Exists(workspace.FileJobAnalysis) {
		return fmt.Errorf("无法细化：未找到上一轮的岗位分析")
	}
	return nil
}

// Run 执行完整流水线。emit为nil时不上报事件。
// 任一步骤失败即发布error事件并终止，成功时以complete事件收尾。
func (p *Pipeline) Run(ctx context.Context, input PipelineInput, emit StepCallback) (*PipelineResult, error) {
	if emit == nil {
		emit = func(StepEvent) {}
	}
	if err := p.Validate(input); err != nil {
		return nil, err
	}
	if err := p.ws.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("初始化工作区失败: %w", err)
	}

	iteration := input.Iteration
	if iteration <= 0 {
		iteration = 1
	}
	genOpts := types.GenerateOptions{
		Comments:           input.Comments,
		Iteration:          iteration,
		RefinementFeedback: input.RefinementFeedback,
	}

	// 岗位分析：细化轮次复用上一轮结果
	var analysis *types.JobAnalysis
	if iteration <= 1 {
		emit(StepEvent{Event: EventProgress, Step: StepAnalyzingJob, Message: "Analyzing job offer..."})
		var err error
		if input.URL != "" {
			analysis, err = p.analyzer.AnalyzeURL(ctx, input.URL)
		} else {
			analysis, err = p.analyzer.AnalyzeText(ctx, input.Text)
		}
		if err != nil {
			return nil, p.fail(emit, StepAnalyzingJob, err)
		}
		if err := p.ws.SaveJSON(workspace.FileJobAnalysis, analysis); err != nil {
			return nil, p.fail(emit, StepAnalyzingJob, err)
		}
	} else {
		analysis = &types.JobAnalysis{}
		if err := p.ws.LoadJSON(workspace.FileJobAnalysis, analysis); err != nil {
			return nil, p.fail(emit, StepAnalyzingJob, err)
		}
	}
	emit(StepEvent{Event: EventStepResult, Step: StepAnalyzingJob, Data: map[string]any{"job_analysis": analysis}})

	emit(StepEvent{Event: EventProgress, Step: StepLoadingCV, Message: "Loading CV database..."})
	profile, err := p.profiles.Load(ctx)
	if err != nil {
		return nil, p.fail(emit, StepLoadingCV, err)
	}

	// GitHub失败只降级，不中断流水线
	emit(StepEvent{Event: EventProgress, Step: StepFetchingGithub, Message: "Scanning GitHub for relevant projects..."})
	var githubProjects []types.RepoSummary
	if p.repos != nil {
		githubProjects = p.fetchGithubProjects(ctx, analysis)
		if len(githubProjects) > 0 {
			profile.GithubProjects = githubProjects
			if err := p.ws.SaveJSON(workspace.FileGithubSelected, githubProjects); err != nil {
				p.logger.Warn().Err(err).Msg("保存GitHub筛选结果失败")
			}
		}
	}
	if err := p.ws.SaveJSON(workspace.FileCVDatabase, profile); err != nil {
		return nil, p.fail(emit, StepLoadingCV, err)
	}
	emit(StepEvent{Event: EventStepResult, Step: StepFetchingGithub, Data: map[string]any{"github_projects": githubProjects}})

	emit(StepEvent{Event: EventProgress, Step: StepGeneratingCV, Message: "Generating tailored CV..."})
	split, err := p.cvGen.Generate(ctx, analysis, profile, genOpts)
	if err != nil {
		return nil, p.fail(emit, StepGeneratingCV, err)
	}
	if err := p.ws.SaveText(workspace.FileTailoredCV, split.CVContent); err != nil {
		return nil, p.fail(emit, StepGeneratingCV, err)
	}
	if err := p.ws.SaveText(workspace.FileCVGaps, split.GapAnalysis); err != nil {
		return nil, p.fail(emit, StepGeneratingCV, err)
	}
	emit(StepEvent{Event: EventStepResult, Step: StepGeneratingCV, Data: map[string]any{
		"cv_markdown":  split.CVContent,
		"gaps":         split.GapAnalysis,
		"split_method": split.Method,
	}})

	if input.GenerateCoverLetter {
		emit(StepEvent{Event: EventProgress, Step: StepGeneratingCoverLetter, Message: "Generating cover letter..."})
		letter, err := p.letterGen.Generate(ctx, analysis, split.CVContent, types.LetterOptions{
			GenerateOptions: genOpts,
			MaxWords:        input.MaxWords,
		})
		if err != nil {
			return nil, p.fail(emit, StepGeneratingCoverLetter, err)
		}
		if err := p.ws.SaveText(workspace.FileCoverLetter, letter); err != nil {
			return nil, p.fail(emit, StepGeneratingCoverLetter, err)
		}
		emit(StepEvent{Event: EventStepResult, Step: StepGeneratingCoverLetter, Data: map[string]any{
			"cover_letter_markdown": letter,
		}})
	}

	emit(StepEvent{Event: EventProgress, Step: StepCreatingPDFs, Message: "Creating PDFs..."})
	result, err := p.RenderDocuments(ctx, analysis, !input.GenerateCoverLetter)
	if err != nil {
		return nil, p.fail(emit, StepCreatingPDFs, err)
	}
	result.SplitMethod = split.Method

	if p.recorder != nil {
		record := RunRecord{
			JobTitle:           analysis.JobTitle,
			Company:            analysis.Company,
			Language:           analysis.Language,
			SplitMethod:        split.Method,
			Iteration:          iteration,
			CVPDFPath:          result.CVPDFPath,
			CoverLetterPDFPath: result.CoverLetterPDFPath,
			Status:             "completed",
		}
		if err := p.recorder.RecordRun(ctx, record); err != nil {
			p.logger.Warn().Err(err).Msg("记录流水线运行失败")
		}
	}

	emit(StepEvent{Event: EventComplete, Data: map[string]any{
		"cv_pdf_path":           result.CVPDFPath,
		"cover_letter_pdf_path": result.CoverLetterPDFPath,
	}})

	return result, nil
}

// RenderDocuments 把工作区内的Markdown文档渲染为PDF。
// 定制简历必须存在；求职信仅在不跳过且存在时渲染。
func (p *Pipeline) RenderDocuments(ctx context.Context, analysis *types.JobAnalysis, skipCoverLetter bool) (*PipelineResult, error) {
	cvContent, err := p.ws.LoadText(workspace.FileTailoredCV)
	if err != nil {
		return nil, fmt.Errorf("未找到定制简历，请先生成: %w", err)
	}

	now := time.Now()
	result := &PipelineResult{}

	cvFilename := GenerateFilename(analysis, DocTypeCV, now)
	if err := p.renderer.RenderPDF(ctx, cvContent, p.ws.Path(cvFilename)); err != nil {
		return nil, err
	}
	result.CVPDFPath = cvFilename

	if !skipCoverLetter {
		letter, err := p.ws.LoadText(workspace.FileCoverLetter)
		if err != nil {
			return nil, fmt.Errorf("未找到求职信，请先生成: %w", err)
		}
		clFilename := GenerateFilename(analysis, DocTypeCoverLetter, now)
		if err := p.renderer.RenderPDF(ctx, letter, p.ws.Path(clFilename)); err != nil {
			return nil, err
		}
		result.CoverLetterPDFPath = clFilename
	}

	return result, nil
}

// fetchGithubProjects 拉取并筛选岗位相关仓库，任何失败都返回空列表
func (p *Pipeline) fetchGithubProjects(ctx context.Context, analysis *types.JobAnalysis) []types.RepoSummary {
	allRepos, err := p.repos.FetchAllRepos(ctx, false)
	if err != nil {
		p.logger.Warn().Err(err).Msg("拉取GitHub仓库失败，跳过项目上下文")
		return nil
	}
	if len(allRepos) == 0 {
		return nil
	}
	selected, err := p.repos.SelectRelevantRepos(ctx, allRepos, analysis)
	if err != nil {
		p.logger.Warn().Err(err).Msg("筛选GitHub仓库失败，跳过项目上下文")
		return nil
	}
	return selected
}

func (p *Pipeline) fail(emit StepCallback, step string, err error) error {
	p.logger.Error().Err(err).Str("step", step).Msg("流水线步骤失败")
	emit(StepEvent{Event: EventError, Step: step, Message: err.Error()})
	return fmt.Errorf("步骤%s失败: %w", step, err)
}
