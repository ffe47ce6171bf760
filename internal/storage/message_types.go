package storage

import "time"

// EventTypeDocumentsGenerated 一次申请的文档生成完成事件
const EventTypeDocumentsGenerated = "application.documents.generated"

// GeneratedDocumentRef 事件中携带的单份文档引用
type GeneratedDocumentRef struct {
	DocumentID string `json:"document_id"`         // 文档ID
	DocType    string `json:"doc_type"`            // CV或CoverLetter
	Filename   string `json:"filename"`            // 生成的文件名
	ObjectKey  string `json:"object_key,omitempty"` // MinIO中的对象键，未上传时为空
	SizeBytes  int64  `json:"size_bytes,omitempty"` // 文件大小
}

// DocumentsGeneratedMessage 文档生成完成消息，经outbox中继发布
type DocumentsGeneratedMessage struct {
	ApplicationID string                 `json:"application_id"` // 申请ID，聚合根
	JobTitle      string                 `json:"job_title"`      // 岗位名称
	Company       string                 `json:"company"`        // 公司名称
	Language      string                 `json:"language"`       // 产出文档的语言代码
	Iteration     int                    `json:"iteration"`        // 第几轮生成
	SplitMethod   string                 `json:"split_method"`     // 简历与差距分析的切分方式
	PipelineVer   string                 `json:"pipeline_version"` // 生成时的流水线版本
	Documents     []GeneratedDocumentRef `json:"documents"`      // 本次生成的文档列表
	GeneratedAt   time.Time              `json:"generated_at"`   // 生成完成时间
}
