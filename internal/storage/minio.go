package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"job-agent-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
)

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// UploadDocument 上传生成的文档，返回对象键和MD5
	UploadDocument(ctx context.Context, applicationID, filename string, reader io.Reader, fileSize int64) (string, string, error)

	// DownloadDocument 下载文档
	DownloadDocument(ctx context.Context, objectKey string) ([]byte, error)

	// GetPresignedURL 获取预签名下载URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// DeleteDocument 删除文档
	DeleteDocument(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 保存流水线生成的PDF文档
type MinIO struct {
	client          *minio.Client
	cfg             *config.MinIOConfig
	documentsBucket string
	logger          *log.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger *log.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	documentsBucket := cfg.DocumentsBucket
	if documentsBucket == "" {
		documentsBucket = "generated-documents"
	}

	m := &MinIO{
		client:          client,
		cfg:             cfg,
		documentsBucket: documentsBucket,
		logger:          logger,
	}

	if err := m.ensureBucketExists(documentsBucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保文档存储桶 %s 存在失败: %w", documentsBucket, err)
	}

	// 过期天数大于0时设置自动清理规则
	if cfg.DocumentExpireDays > 0 {
		if err := m.setupBucketLifecycle(context.Background(), documentsBucket, "expire-documents", cfg.DocumentExpireDays); err != nil {
			logger.Printf("[MinIO] Warning: Failed to set up lifecycle rules: %v", err)
		}
	}

	logger.Printf("[MinIO] Client initialized successfully for endpoint: %s, bucket: %s", cfg.Endpoint, documentsBucket)
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(bucketName, location string) error {
	exists, err := m.client.BucketExists(context.Background(), bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if !exists {
		err = m.client.MakeBucket(context.Background(), bucketName, minio.MakeBucketOptions{Region: location})
		if err != nil {
			return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
		}
		m.logger.Printf("[MinIO] Bucket %s created.", bucketName)
	}
	return nil
}

// setupBucketLifecycle 为指定存储桶设置生命周期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	config := lifecycle.NewConfiguration()
	config.Rules = []lifecycle.Rule{
		{
			ID:     ruleID,
			Status: "Enabled",
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}

	if err := m.client.SetBucketLifecycle(ctx, bucketName, config); err != nil {
		return err
	}
	m.logger.Printf("[MinIO] Lifecycle rule %s set on bucket %s: expire after %d days.", ruleID, bucketName, expiryDays)
	return nil
}

// UploadDocument 流式上传文档并同时计算MD5
// 对象键格式: applications/<applicationID>/<filename>
func (m *MinIO) UploadDocument(ctx context.Context, applicationID, filename string, reader io.Reader, fileSize int64) (string, string, error) {
	if applicationID == "" || filename == "" {
		return "", "", fmt.Errorf("applicationID和filename不能为空")
	}
	objectKey := fmt.Sprintf("applications/%s/%s", applicationID, filename)
	contentType := getContentType(filepath.Ext(filename))

	md5Hash := md5.New()
	teeReader := io.TeeReader(reader, md5Hash)

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-UploadDocument] Uploading: ObjectKey='%s', Size=%d, ContentType='%s'", objectKey, fileSize, contentType)
	}

	info, err := m.client.PutObject(ctx, m.documentsBucket, objectKey, teeReader,
		fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", "", fmt.Errorf("上传文档 %s/%s 失败: %w", m.documentsBucket, objectKey, err)
	}

	md5Hex := hex.EncodeToString(md5Hash.Sum(nil))

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-UploadDocument] Successfully uploaded %s, ETag: %s, Size: %d, MD5: %s",
			objectKey, info.ETag, info.Size, md5Hex)
	}
	return objectKey, md5Hex, nil
}

// UploadDocumentBytes 从字节数组上传文档
func (m *MinIO) UploadDocumentBytes(ctx context.Context, applicationID, filename string, data []byte) (string, string, error) {
	return m.UploadDocument(ctx, applicationID, filename, bytes.NewReader(data), int64(len(data)))
}

// DownloadDocument 下载文档
func (m *MinIO) DownloadDocument(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.documentsBucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.documentsBucket, objectKey, err)
	}
	defer obj.Close()

	// GetObject是惰性的，Stat确认对象确实存在
	stat, err := obj.Stat()
	if err != nil {
		return nil, fmt.Errorf("获取对象 %s/%s 状态失败: %w", m.documentsBucket, objectKey, err)
	}

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.documentsBucket, objectKey, err)
	}

	if m.cfg.EnableTestLogging && m.logger.Writer() != io.Discard {
		m.logger.Printf("[MinIO-DownloadDocument] Downloaded %d bytes from %s (ContentType=%s)", len(data), objectKey, stat.ContentType)
	}
	return data, nil
}

// GetPresignedURL 获取预签名下载URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.documentsBucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteDocument 删除文档
func (m *MinIO) DeleteDocument(ctx context.Context, objectKey string) error {
	err := m.client.RemoveObject(ctx, m.documentsBucket, objectKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// 获取内容类型
func getContentType(ext string) string {
	ext = strings.ToLower(ext)
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".md", ".markdown":
		return "text/markdown"
	case ".txt":
		return "text/plain"
	case ".json":
		return "application/json"
	case ".html", ".htm":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
