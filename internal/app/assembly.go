package app

import (
	"context"

	"job-agent-go/internal/agent"
	"job-agent-go/internal/config"
	appCoreLogger "job-agent-go/internal/logger"
	"job-agent-go/internal/parser"
	"job-agent-go/internal/processor"
	"job-agent-go/internal/storage"
	"job-agent-go/internal/workspace"
)

// BuildComponents 按配置装配流水线各组件，HTTP服务和CLI共用。
// Redis、GitHub、MySQL均为可选，缺失时对应能力降级。
func BuildComponents(ctx context.Context, cfg *config.Config, storageManager *storage.Storage, ws *workspace.Workspace) (*processor.Components, error) {
	baseModel, err := agent.NewAnthropicChatModel(
		cfg.Anthropic.APIKey,
		cfg.Anthropic.Model,
		cfg.Anthropic.APIURL,
		agent.WithMaxTokens(cfg.Anthropic.MaxTokens),
	)
	if err != nil {
		return nil, err
	}

	// 求职信会把整份CV放进系统提示，单独启用提示缓存
	letterModel, err := agent.NewAnthropicChatModel(
		cfg.Anthropic.APIKey,
		cfg.GetModelForTask("cover_letter"),
		cfg.Anthropic.APIURL,
		agent.WithMaxTokens(cfg.Anthropic.MaxTokens),
		agent.WithSystemCache(),
	)
	if err != nil {
		return nil, err
	}

	analyzerOptions := []processor.JobAnalyzerOption{
		processor.WithJobScraper(parser.NewJobScraper()),
		processor.WithAnalyzerLogger(appCoreLogger.Logger),
	}
	if storageManager.Redis != nil {
		analyzerOptions = append(analyzerOptions,
			processor.WithAnalysisCache(storageManager.Redis, storageManager.Redis.CacheExpireDuration()),
			processor.WithPostingTextCache(storageManager.Redis))
	}
	analyzer, err := processor.NewJobAnalyzer(baseModel.ForModel(cfg.GetModelForTask("job_analysis")), analyzerOptions...)
	if err != nil {
		return nil, err
	}

	profileOptions := []processor.ProfileLoaderOption{
		processor.WithProfileLogger(appCoreLogger.Logger),
	}
	if cfg.Workspace.MasterCVPath != "" {
		extractor, err := parser.NewMasterCVExtractor(ctx)
		if err != nil {
			return nil, err
		}
		profileOptions = append(profileOptions, processor.WithMasterCVExtractor(extractor))
	}
	profiles := processor.NewProfileLoader(cfg.Workspace, profileOptions...)

	var repos *processor.RepoService
	if cfg.GitHub.Username != "" {
		repoOptions := []processor.RepoServiceOption{
			processor.WithRepoLogger(appCoreLogger.Logger),
		}
		if storageManager.Redis != nil {
			repoOptions = append(repoOptions,
				processor.WithRepoCache(storageManager.Redis, storageManager.Redis.CacheExpireDuration()))
		}
		repos, err = processor.NewRepoService(cfg.GitHub, baseModel.ForModel(cfg.GetModelForTask("repo_selection")), repoOptions...)
		if err != nil {
			return nil, err
		}
	}

	cvGen, err := processor.NewCVGenerator(
		baseModel.ForModel(cfg.GetModelForTask("cv_generation")),
		processor.WithCVGeneratorLogger(appCoreLogger.Logger),
	)
	if err != nil {
		return nil, err
	}

	letterGen, err := processor.NewCoverLetterGenerator(
		letterModel,
		processor.WithDefaultLength(cfg.Letter.DefaultLength),
		processor.WithCoverLetterLogger(appCoreLogger.Logger),
	)
	if err != nil {
		return nil, err
	}

	renderer := processor.NewRenderer(cfg.PDF, processor.WithRendererLogger(appCoreLogger.Logger))

	pipelineOptions := []processor.PipelineOption{
		processor.WithPipelineLogger(appCoreLogger.Logger),
	}
	if repos != nil {
		pipelineOptions = append(pipelineOptions, processor.WithRepoService(repos))
	}
	if storageManager.MySQL != nil {
		recorderOptions := []storage.RecorderOption{
			storage.WithRecorderLogger(appCoreLogger.Logger),
			storage.WithRecorderPipelineVersion(cfg.ActivePipelineVersion),
		}
		if storageManager.MinIO != nil {
			recorderOptions = append(recorderOptions, storage.WithRecorderMinIO(storageManager.MinIO))
		}
		if cfg.RabbitMQ.ApplicationEventsExchange != "" {
			recorderOptions = append(recorderOptions,
				storage.WithRecorderEventTarget(cfg.RabbitMQ.ApplicationEventsExchange, cfg.RabbitMQ.DocumentsGeneratedRoutingKey))
		}
		recorder, err := storage.NewApplicationRecorder(storageManager.MySQL, ws, recorderOptions...)
		if err != nil {
			return nil, err
		}
		pipelineOptions = append(pipelineOptions, processor.WithRunRecorder(recorder))
	}

	pipeline, err := processor.NewPipeline(analyzer, profiles, cvGen, letterGen, renderer, ws, pipelineOptions...)
	if err != nil {
		return nil, err
	}

	return &processor.Components{
		Analyzer:  analyzer,
		Profiles:  profiles,
		Repos:     repos,
		CVGen:     cvGen,
		LetterGen: letterGen,
		Renderer:  renderer,
		Pipeline:  pipeline,
	}, nil
}
