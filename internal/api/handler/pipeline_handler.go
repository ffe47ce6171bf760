package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"job-agent-go/internal/config"
	"job-agent-go/internal/constants"
	"job-agent-go/internal/logger"
	"job-agent-go/internal/processor"
	"job-agent-go/internal/storage"
	"job-agent-go/internal/types"
	"job-agent-go/internal/workspace"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/google/uuid"
	"github.com/hertz-contrib/sse"
)

// pipelineLockTTL 覆盖一次完整生成流程的耗时上限
const pipelineLockTTL = 10 * time.Minute

// PipelineHandler 暴露流水线各步骤的HTTP接口
type PipelineHandler struct {
	cfg    *config.Config
	comps  *processor.Components
	ws     *workspace.Workspace
	redis  *storage.Redis
	logger *log.Logger
}

// NewPipelineHandler 创建流水线处理器。
// st可为nil，此时SSE流水线不做并发互斥。
func NewPipelineHandler(cfg *config.Config, comps *processor.Components, ws *workspace.Workspace, st *storage.Storage) *PipelineHandler {
	h := &PipelineHandler{
		cfg:    cfg,
		comps:  comps,
		ws:     ws,
		logger: log.New(os.Stdout, "[PipelineHandler] ", log.LstdFlags|log.Lshortfile),
	}
	if st != nil {
		h.redis = st.Redis
	}
	return h
}

// AnalyzeJobRequest 岗位分析请求，url与text至少提供一个
type AnalyzeJobRequest struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// HandleAnalyzeJob 分析岗位描述并持久化结果。
// POST /api/v1/job/analyze
func (h *PipelineHandler) HandleAnalyzeJob(ctx context.Context, c *app.RequestContext) {
	var req AnalyzeJobRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}
	if req.URL == "" && req.Text == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "必须提供url或text之一"})
		return
	}

	var analysis *types.JobAnalysis
	var err error
	if req.URL != "" {
		analysis, err = h.comps.Analyzer.AnalyzeURL(ctx, req.URL)
	} else {
		analysis, err = h.comps.Analyzer.AnalyzeText(ctx, req.Text)
	}
	if err != nil {
		if errors.Is(err, processor.ErrScrapeFailed) {
			c.JSON(consts.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := h.ws.SaveJSON(workspace.FileJobAnalysis, analysis); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存岗位分析失败: " + err.Error()})
		return
	}
	c.JSON(consts.StatusOK, analysis)
}

// HandleLoadProfile 加载候选人档案并持久化到工作区。
// POST /api/v1/profile/load
func (h *PipelineHandler) HandleLoadProfile(ctx context.Context, c *app.RequestContext) {
	profile, err := h.comps.Profiles.Load(ctx)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if err := h.ws.SaveJSON(workspace.FileCVDatabase, profile); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存档案失败: " + err.Error()})
		return
	}
	c.JSON(consts.StatusOK, profile)
}

// GithubReposRequest GitHub仓库拉取请求
type GithubReposRequest struct {
	Force bool `json:"force"`
}

// HandleGithubRepos 拉取候选人的GitHub仓库列表。
// POST /api/v1/github/repos
func (h *PipelineHandler) HandleGithubRepos(ctx context.Context, c *app.RequestContext) {
	if h.comps.Repos == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "GitHub集成未配置"})
		return
	}

	var req GithubReposRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}

	repos, err := h.comps.Repos.FetchAllRepos(ctx, req.Force)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]any{"repos": repos, "count": len(repos)})
}

// GenerateCVRequest 定制简历生成请求
type GenerateCVRequest struct {
	Comments           string `json:"comments"`
	Iteration          int    `json:"iteration"`
	RefinementFeedback string `json:"refinement_feedback"`
	IncludeGithub      bool   `json:"include_github"`
}

// HandleGenerateCV 基于已有岗位分析生成定制简历。
// POST /api/v1/cv/generate
func (h *PipelineHandler) HandleGenerateCV(ctx context.Context, c *app.RequestContext) {
	var req GenerateCVRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}

	analysis, ok := h.loadAnalysis(c)
	if !ok {
		return
	}

	profile, err := h.comps.Profiles.Load(ctx)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "加载候选人档案失败: " + err.Error()})
		return
	}

	if req.IncludeGithub && h.comps.Repos != nil {
		var selected []types.RepoSummary
		if err := h.ws.LoadJSON(workspace.FileGithubSelected, &selected); err == nil && len(selected) > 0 {
			profile.GithubProjects = selected
		}
	}

	split, err := h.comps.CVGen.Generate(ctx, analysis, profile, types.GenerateOptions{
		Comments:           req.Comments,
		Iteration:          req.Iteration,
		RefinementFeedback: req.RefinementFeedback,
	})
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := h.ws.SaveText(workspace.FileTailoredCV, split.CVContent); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存简历失败: " + err.Error()})
		return
	}
	if err := h.ws.SaveText(workspace.FileCVGaps, split.GapAnalysis); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存差距分析失败: " + err.Error()})
		return
	}

	c.JSON(consts.StatusOK, map[string]any{
		"cv_markdown":  split.CVContent,
		"gaps":         split.GapAnalysis,
		"split_method": split.Method,
	})
}

// GenerateLetterRequest 求职信生成请求，max_words与max_chars互斥
type GenerateLetterRequest struct {
	Comments           string `json:"comments"`
	MaxWords           int    `json:"max_words"`
	MaxChars           int    `json:"max_chars"`
	Iteration          int    `json:"iteration"`
	RefinementFeedback string `json:"refinement_feedback"`
}

// HandleGenerateLetter 基于岗位分析与定制简历生成求职信。
// POST /api/v1/letter/generate
func (h *PipelineHandler) HandleGenerateLetter(ctx context.Context, c *app.RequestContext) {
	var req GenerateLetterRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}
	if req.MaxWords > 0 && req.MaxChars > 0 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "max_words与max_chars只能指定一个"})
		return
	}

	analysis, ok := h.loadAnalysis(c)
	if !ok {
		return
	}

	tailoredCV, err := h.ws.LoadText(workspace.FileTailoredCV)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "未找到定制简历，请先生成"})
		return
	}

	letter, err := h.comps.LetterGen.Generate(ctx, analysis, tailoredCV, types.LetterOptions{
		GenerateOptions: types.GenerateOptions{
			Comments:           req.Comments,
			Iteration:          req.Iteration,
			RefinementFeedback: req.RefinementFeedback,
		},
		MaxWords: req.MaxWords,
		MaxChars: req.MaxChars,
	})
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := h.ws.SaveText(workspace.FileCoverLetter, letter); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "保存求职信失败: " + err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]string{"cover_letter_markdown": letter})
}

// RenderDocumentsRequest PDF渲染请求
type RenderDocumentsRequest struct {
	SkipCoverLetter bool `json:"skip_cover_letter"`
}

// HandleRenderDocuments 把工作区内的Markdown渲染为PDF。
// POST /api/v1/documents/render
func (h *PipelineHandler) HandleRenderDocuments(ctx context.Context, c *app.RequestContext) {
	var req RenderDocumentsRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}

	analysis, ok := h.loadAnalysis(c)
	if !ok {
		return
	}

	result, err := h.comps.Pipeline.RenderDocuments(ctx, analysis, req.SkipCoverLetter)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, result)
}

// HandleGeneratePipeline 一键执行完整流水线，以SSE推送进度。
// 流式输出开始前的校验错误以普通400返回。
// POST /api/v1/pipeline/generate
func (h *PipelineHandler) HandleGeneratePipeline(ctx context.Context, c *app.RequestContext) {
	var input processor.PipelineInput
	if err := c.BindAndValidate(&input); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}
	if err := h.comps.Pipeline.Validate(input); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	// 每次流水线执行分配独立的运行ID，便于日志关联
	runID := uuid.NewString()
	c.Response.Header.Set("X-Run-ID", runID)

	// 工作区是单份的，Redis可用时同一时刻只允许一条流水线
	if h.redis != nil {
		lockKey := fmt.Sprintf(constants.KeyPipelineLock, "workspace")
		lockValue, err := h.redis.AcquireLock(ctx, lockKey, pipelineLockTTL)
		if err != nil {
			h.logger.Printf("获取流水线锁失败: %v", err)
		} else if lockValue == "" {
			c.JSON(consts.StatusConflict, map[string]string{"error": "已有流水线在运行，请稍后再试"})
			return
		} else {
			defer func() {
				if _, err := h.redis.ReleaseLock(context.Background(), lockKey, lockValue); err != nil {
					h.logger.Printf("释放流水线锁失败: %v", err)
				}
			}()
		}
	}

	c.SetStatusCode(http.StatusOK)
	stream := sse.NewStream(c)

	emit := func(ev processor.StepEvent) {
		payload, err := json.Marshal(ev)
		if err != nil {
			logger.Error().Err(err).Msg("序列化流水线事件失败")
			return
		}
		if err := stream.Publish(&sse.Event{
			Event: ev.Event,
			Data:  payload,
		}); err != nil {
			logger.Warn().Err(err).Msg("推送SSE事件失败，客户端可能已断开")
		}
	}

	h.logger.Printf("流水线开始执行 runID=%s iteration=%d", runID, input.Iteration)
	if _, err := h.comps.Pipeline.Run(ctx, input, emit); err != nil {
		// 错误事件已由流水线通过emit发出，这里只记录
		h.logger.Printf("流水线执行失败 runID=%s: %v", runID, err)
	}
}

// loadAnalysis 加载已保存的岗位分析，不存在时返回400
func (h *PipelineHandler) loadAnalysis(c *app.RequestContext) (*types.JobAnalysis, bool) {
	if !h.ws.Exists(workspace.FileJobAnalysis) {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "未找到岗位分析，请先分析岗位"})
		return nil, false
	}
	analysis := &types.JobAnalysis{}
	if err := h.ws.LoadJSON(workspace.FileJobAnalysis, analysis); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "读取岗位分析失败: " + err.Error()})
		return nil, false
	}
	return analysis, true
}
