package models

import (
	"time"

	"gorm.io/datatypes"
)

// Application 一次求职申请的生成记录
type Application struct {
	ApplicationID   string         `gorm:"type:char(36);primaryKey"`
	JobTitle        string         `gorm:"type:varchar(255);not null"`
	Company         string         `gorm:"type:varchar(255);not null;index:idx_applications_company"`
	Language        string         `gorm:"type:varchar(10)"`
	JobAnalysisJSON datatypes.JSON `gorm:"type:json"`
	// SplitMethod 简历拆分采用的方式，仅用于诊断
	SplitMethod string `gorm:"type:varchar(128)"`
	// PipelineVersion 生成该记录时的流水线版本
	PipelineVersion string `gorm:"type:varchar(20)"`
	Iteration       int    `gorm:"default:1"`
	Comments    string `gorm:"type:text"`
	Status      string `gorm:"type:varchar(50);default:'COMPLETED';index:idx_applications_status"`
	CreatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_applications_created_at"`
	UpdatedAt   time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Application) TableName() string {
	return "applications"
}

// GeneratedDocument 申请流程产出的单份文档（简历或求职信PDF）
type GeneratedDocument struct {
	DocumentID    string `gorm:"type:char(36);primaryKey"`
	ApplicationID string `gorm:"type:char(36);not null;index:idx_gd_application_id"`
	// DocType 取值 CV 或 CoverLetter
	DocType   string `gorm:"type:varchar(20);not null"`
	Filename  string `gorm:"type:varchar(512);not null"`
	LocalPath string `gorm:"type:varchar(1024)"`
	// ObjectKey 对象存储中的键，未上传时为空
	ObjectKey string    `gorm:"type:varchar(1024)"`
	SizeBytes int64     `gorm:"default:0"`
	CreatedAt time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`

	Application *Application `gorm:"foreignKey:ApplicationID;references:ApplicationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (GeneratedDocument) TableName() string {
	return "generated_documents"
}

// Outbox消息状态
const (
	OutboxStatusPending   = "PENDING"
	OutboxStatusProcessed = "PROCESSED"
	OutboxStatusFailed    = "FAILED"
)

// OutboxMessage 待异步发布的事件，与业务写入同事务落库
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"`
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:json;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage     string     `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
