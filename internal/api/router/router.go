package router

import (
	"context"
	"strings"

	"job-agent-go/internal/api/handler"
	"job-agent-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, pipelineHandler *handler.PipelineHandler, documentHandler *handler.DocumentHandler) {
	api := h.Group("/api/v1")

	// 配置了API密钥时启用认证，健康检查除外
	if cfg.Server.APIKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithFilter(func(c context.Context, ctx *app.RequestContext) bool {
				return strings.HasSuffix(string(ctx.Path()), "/health")
			}),
			keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
				return key == cfg.Server.APIKey, nil
			}),
		))
	}

	api.POST("/job/analyze", pipelineHandler.HandleAnalyzeJob)
	api.POST("/profile/load", pipelineHandler.HandleLoadProfile)
	api.POST("/github/repos", pipelineHandler.HandleGithubRepos)
	api.POST("/cv/generate", pipelineHandler.HandleGenerateCV)
	api.POST("/letter/generate", pipelineHandler.HandleGenerateLetter)
	api.POST("/documents/render", pipelineHandler.HandleRenderDocuments)
	api.POST("/pipeline/generate", pipelineHandler.HandleGeneratePipeline)

	api.GET("/documents", documentHandler.HandleListDocuments)
	api.GET("/documents/download/*filepath", documentHandler.HandleDownload)
	api.POST("/documents/save", documentHandler.HandleSaveDocuments)
	api.GET("/applications", documentHandler.HandleListApplications)
	api.GET("/applications/:id", documentHandler.HandleGetApplication)
	api.PATCH("/applications/:id/status", documentHandler.HandleUpdateApplicationStatus)
	api.GET("/applications/:id/documents/:doc_id/content", documentHandler.HandleDownloadArchivedDocument)

	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})
}
