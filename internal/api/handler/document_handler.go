package handler

import (
	"context"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"job-agent-go/internal/config"
	"job-agent-go/internal/logger"
	"job-agent-go/internal/storage"
	"job-agent-go/internal/workspace"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/gorm"
)

// presignedURLExpiry 预签名下载链接的有效期
const presignedURLExpiry = time.Hour

// DocumentHandler 负责产出文档的下载、归档和历史查询
type DocumentHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	ws      *workspace.Workspace
	logger  *log.Logger
}

// NewDocumentHandler 创建文档处理器。storage可为nil，此时仅提供本地文件操作。
func NewDocumentHandler(cfg *config.Config, st *storage.Storage, ws *workspace.Workspace) *DocumentHandler {
	return &DocumentHandler{
		cfg:     cfg,
		storage: st,
		ws:      ws,
		logger:  log.New(os.Stdout, "[DocumentHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// HandleDownload 下载工作区内的文件，拒绝路径穿越。
// GET /api/v1/documents/download/*filepath
func (h *DocumentHandler) HandleDownload(ctx context.Context, c *app.RequestContext) {
	name := strings.TrimPrefix(c.Param("filepath"), "/")
	if name == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "文件名不能为空"})
		return
	}

	path, err := h.ws.ResolveDownload(name)
	if err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if _, err := os.Stat(path); err != nil {
		c.JSON(consts.StatusNotFound, map[string]string{"error": "文件不存在"})
		return
	}
	c.File(path)
}

// HandleListDocuments 列出工作区内已渲染的PDF。
// GET /api/v1/documents
func (h *DocumentHandler) HandleListDocuments(ctx context.Context, c *app.RequestContext) {
	pdfs, err := h.ws.ListPDFs()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]any{"documents": pdfs, "count": len(pdfs)})
}

// HandleSaveDocuments 把工作区内的PDF复制到输出目录，并归档到对象存储。
// POST /api/v1/documents/save
func (h *DocumentHandler) HandleSaveDocuments(ctx context.Context, c *app.RequestContext) {
	saved, err := h.ws.SaveDocuments()
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if len(saved) == 0 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "工作区内没有可保存的PDF"})
		return
	}

	// MinIO归档失败只降级，本地副本已落盘
	var archived []string
	if h.storage != nil && h.storage.MinIO != nil {
		for _, name := range saved {
			objectKey, err := h.archiveToMinIO(ctx, name)
			if err != nil {
				logger.Warn().Err(err).Str("filename", name).Msg("归档文档到MinIO失败")
				continue
			}
			archived = append(archived, objectKey)
		}
	}

	c.JSON(consts.StatusOK, map[string]any{
		"saved":    saved,
		"archived": archived,
	})
}

func (h *DocumentHandler) archiveToMinIO(ctx context.Context, name string) (string, error) {
	path := h.ws.Path(name)
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}

	objectKey, _, err := h.storage.MinIO.UploadDocument(ctx, "manual-save", name, f, info.Size())
	return objectKey, err
}

// HandleListApplications 分页列出历史申请记录。
// GET /api/v1/applications
func (h *DocumentHandler) HandleListApplications(ctx context.Context, c *app.RequestContext) {
	if h.storage == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "数据库未配置"})
		return
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}

	apps, total, err := h.storage.MySQL.ListApplications(ctx, limit, offset)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]any{
		"applications": apps,
		"total":        total,
		"limit":        limit,
		"offset":       offset,
	})
}

// HandleGetApplication 查询单条申请记录及其文档，已归档的文档附带预签名下载链接。
// GET /api/v1/applications/:id
func (h *DocumentHandler) HandleGetApplication(ctx context.Context, c *app.RequestContext) {
	if h.storage == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "数据库未配置"})
		return
	}

	applicationID := c.Param("id")
	application, err := h.storage.MySQL.GetApplicationByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "申请记录不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	docs, err := h.storage.MySQL.ListDocumentsByApplication(ctx, applicationID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	type documentView struct {
		DocumentID  string `json:"document_id"`
		DocType     string `json:"doc_type"`
		Filename    string `json:"filename"`
		SizeBytes   int64  `json:"size_bytes"`
		DownloadURL string `json:"download_url,omitempty"`
	}
	views := make([]documentView, 0, len(docs))
	for _, d := range docs {
		v := documentView{
			DocumentID: d.DocumentID,
			DocType:    d.DocType,
			Filename:   d.Filename,
			SizeBytes:  d.SizeBytes,
		}
		// 预签名失败只降级为不带链接
		if d.ObjectKey != "" && h.storage.MinIO != nil {
			url, err := h.storage.MinIO.GetPresignedURL(ctx, d.ObjectKey, presignedURLExpiry)
			if err != nil {
				logger.Warn().Err(err).Str("object_key", d.ObjectKey).Msg("生成预签名下载链接失败")
			} else {
				v.DownloadURL = url
			}
		}
		views = append(views, v)
	}

	c.JSON(consts.StatusOK, map[string]any{
		"application": application,
		"documents":   views,
	})
}

// UpdateStatusRequest 申请状态更新请求
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// HandleUpdateApplicationStatus 更新申请记录状态。
// PATCH /api/v1/applications/:id/status
func (h *DocumentHandler) HandleUpdateApplicationStatus(ctx context.Context, c *app.RequestContext) {
	if h.storage == nil || h.storage.MySQL == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "数据库未配置"})
		return
	}

	var req UpdateStatusRequest
	if err := c.BindAndValidate(&req); err != nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "请求体格式错误: " + err.Error()})
		return
	}
	status := strings.ToUpper(strings.TrimSpace(req.Status))
	if status == "" || len(status) > 50 {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "status不能为空且不超过50个字符"})
		return
	}

	applicationID := c.Param("id")
	if _, err := h.storage.MySQL.GetApplicationByID(ctx, applicationID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "申请记录不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := h.storage.MySQL.UpdateApplicationStatus(ctx, applicationID, status); err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	c.JSON(consts.StatusOK, map[string]string{
		"application_id": applicationID,
		"status":         status,
	})
}

// HandleDownloadArchivedDocument 从对象存储取回某次申请的归档文档。
// GET /api/v1/applications/:id/documents/:doc_id/content
func (h *DocumentHandler) HandleDownloadArchivedDocument(ctx context.Context, c *app.RequestContext) {
	if h.storage == nil || h.storage.MySQL == nil || h.storage.MinIO == nil {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "对象存储或数据库未配置"})
		return
	}

	applicationID := c.Param("id")
	docID := c.Param("doc_id")
	docs, err := h.storage.MySQL.ListDocumentsByApplication(ctx, applicationID)
	if err != nil {
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	for _, d := range docs {
		if d.DocumentID != docID {
			continue
		}
		if d.ObjectKey == "" {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "该文档未归档到对象存储"})
			return
		}
		data, err := h.storage.MinIO.DownloadDocument(ctx, d.ObjectKey)
		if err != nil {
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(d.Filename)+`"`)
		c.Data(consts.StatusOK, "application/pdf", data)
		return
	}
	c.JSON(consts.StatusNotFound, map[string]string{"error": "文档记录不存在"})
}
