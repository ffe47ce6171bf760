package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"job-agent-go/internal/constants"
	"job-agent-go/internal/processor"
	"job-agent-go/internal/storage/models"
	"job-agent-go/internal/workspace"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

// ApplicationRecorder 把一次流水线运行落为申请记录。
// 文档先上传MinIO，再与outbox事件在同一事务内写库。
type ApplicationRecorder struct {
	mysql           *MySQL
	minio           *MinIO
	ws              *workspace.Workspace
	exchange        string
	routingKey      string
	pipelineVersion string
	logger          zerolog.Logger
}

// 确保ApplicationRecorder实现了流水线的RunRecorder接口
var _ processor.RunRecorder = (*ApplicationRecorder)(nil)

// RecorderOption 是ApplicationRecorder的配置选项
type RecorderOption func(*ApplicationRecorder)

// WithRecorderMinIO 启用文档归档到对象存储
func WithRecorderMinIO(m *MinIO) RecorderOption {
	return func(r *ApplicationRecorder) {
		r.minio = m
	}
}

// WithRecorderEventTarget 设置outbox事件的目标交换机与路由键
func WithRecorderEventTarget(exchange, routingKey string) RecorderOption {
	return func(r *ApplicationRecorder) {
		r.exchange = exchange
		r.routingKey = routingKey
	}
}

// WithRecorderPipelineVersion 设置写入申请记录的流水线版本
func WithRecorderPipelineVersion(version string) RecorderOption {
	return func(r *ApplicationRecorder) {
		if version != "" {
			r.pipelineVersion = version
		}
	}
}

// WithRecorderLogger 设置日志记录器
func WithRecorderLogger(l zerolog.Logger) RecorderOption {
	return func(r *ApplicationRecorder) {
		r.logger = l
	}
}

// NewApplicationRecorder 创建申请记录器
func NewApplicationRecorder(mysql *MySQL, ws *workspace.Workspace, options ...RecorderOption) (*ApplicationRecorder, error) {
	if mysql == nil {
		return nil, fmt.Errorf("MySQL存储不能为空")
	}
	if ws == nil {
		return nil, fmt.Errorf("工作区不能为空")
	}

	r := &ApplicationRecorder{
		mysql:           mysql,
		ws:              ws,
		pipelineVersion: constants.DefaultPipelineVer,
		logger:          zerolog.Nop(),
	}
	for _, opt := range options {
		opt(r)
	}
	return r, nil
}

// RecordRun 落库一次流水线运行。
// MinIO上传失败仅降级为本地路径记录，不阻断落库。
func (r *ApplicationRecorder) RecordRun(ctx context.Context, record processor.RunRecord) error {
	appID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("生成申请ID失败: %w", err)
	}

	app := &models.Application{
		ApplicationID:   appID.String(),
		JobTitle:        record.JobTitle,
		Company:         record.Company,
		Language:        record.Language,
		SplitMethod:     record.SplitMethod,
		PipelineVersion: r.pipelineVersion,
		Iteration:       record.Iteration,
		Status:          record.Status,
	}

	// 岗位分析快照随申请记录一起保存
	if analysisJSON, loadErr := r.ws.LoadText(workspace.FileJobAnalysis); loadErr == nil {
		app.JobAnalysisJSON = datatypes.JSON(analysisJSON)
	}

	var docs []models.GeneratedDocument
	if doc := r.buildDocument(ctx, app.ApplicationID, processor.DocTypeCV, record.CVPDFPath); doc != nil {
		docs = append(docs, *doc)
	}
	if doc := r.buildDocument(ctx, app.ApplicationID, processor.DocTypeCoverLetter, record.CoverLetterPDFPath); doc != nil {
		docs = append(docs, *doc)
	}

	var outbox *models.OutboxMessage
	if r.exchange != "" {
		outbox, err = r.buildOutboxMessage(app, docs)
		if err != nil {
			return err
		}
	}

	if err := r.mysql.SaveApplicationWithDocuments(ctx, app, docs, outbox); err != nil {
		// 落库失败时清掉已上传的归档对象，避免残留无主文件
		r.cleanupUploads(docs)
		return err
	}

	r.logger.Info().
		Str("application_id", app.ApplicationID).
		Str("company", app.Company).
		Int("documents", len(docs)).
		Msg("申请记录已保存")
	return nil
}

// cleanupUploads 删除本次运行已归档到MinIO的对象
func (r *ApplicationRecorder) cleanupUploads(docs []models.GeneratedDocument) {
	if r.minio == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, d := range docs {
		if d.ObjectKey == "" {
			continue
		}
		if err := r.minio.DeleteDocument(ctx, d.ObjectKey); err != nil {
			r.logger.Warn().Err(err).Str("object_key", d.ObjectKey).Msg("清理归档对象失败")
		}
	}
}

// buildDocument 组装单份文档记录，filename为空时返回nil
func (r *ApplicationRecorder) buildDocument(ctx context.Context, applicationID, docType, filename string) *models.GeneratedDocument {
	if filename == "" {
		return nil
	}

	// 文档ID在上传前生成，outbox事件里才能带上
	docID, err := uuid.NewV7()
	if err != nil {
		r.logger.Warn().Err(err).Msg("生成文档ID失败")
		return nil
	}

	localPath := r.ws.Path(filename)
	doc := &models.GeneratedDocument{
		DocumentID: docID.String(),
		DocType:    docType,
		Filename:   filename,
		LocalPath:  localPath,
	}

	info, err := os.Stat(localPath)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", localPath).Msg("读取文档信息失败")
		return doc
	}
	doc.SizeBytes = info.Size()

	if r.minio != nil {
		objectKey, _, err := r.uploadToMinIO(ctx, applicationID, filename, localPath, info.Size())
		if err != nil {
			r.logger.Warn().Err(err).Str("filename", filename).Msg("归档文档到MinIO失败")
		} else {
			doc.ObjectKey = objectKey
		}
	}
	return doc
}

func (r *ApplicationRecorder) uploadToMinIO(ctx context.Context, applicationID, filename, localPath string, size int64) (string, string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", "", fmt.Errorf("打开文档文件失败: %w", err)
	}
	defer f.Close()
	return r.minio.UploadDocument(ctx, applicationID, filename, f, size)
}

func (r *ApplicationRecorder) buildOutboxMessage(app *models.Application, docs []models.GeneratedDocument) (*models.OutboxMessage, error) {
	refs := make([]GeneratedDocumentRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, GeneratedDocumentRef{
			DocumentID: d.DocumentID,
			DocType:    d.DocType,
			Filename:   d.Filename,
			ObjectKey:  d.ObjectKey,
			SizeBytes:  d.SizeBytes,
		})
	}

	msg := DocumentsGeneratedMessage{
		ApplicationID: app.ApplicationID,
		JobTitle:      app.JobTitle,
		Company:       app.Company,
		Language:      app.Language,
		Iteration:     app.Iteration,
		SplitMethod:   app.SplitMethod,
		PipelineVer:   app.PipelineVersion,
		Documents:     refs,
		GeneratedAt:   time.Now(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("序列化文档生成事件失败: %w", err)
	}

	return &models.OutboxMessage{
		EventType:        EventTypeDocumentsGenerated,
		Payload:          string(payload),
		TargetExchange:   r.exchange,
		TargetRoutingKey: r.routingKey,
		Status:           models.OutboxStatusPending,
	}, nil
}
