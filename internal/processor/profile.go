package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"job-agent-go/internal/config"
	"job-agent-go/internal/parser"
	"job-agent-go/internal/types"

	"github.com/rs/zerolog"
)

// ProfileLoader 加载候选人档案。档案主体来自JSON文件，
// 配置了主简历PDF时用提取出的原始文本补充raw_text字段。
type ProfileLoader struct {
	profilePath  string
	masterCVPath string
	extractor    *parser.MasterCVExtractor
	logger       zerolog.Logger
}

// ProfileLoaderOption 是档案加载器的配置选项
type ProfileLoaderOption func(*ProfileLoader)

// WithMasterCVExtractor 设置主简历PDF文本提取器
func WithMasterCVExtractor(extractor *parser.MasterCVExtractor) ProfileLoaderOption {
	return func(l *ProfileLoader) {
		l.extractor = extractor
	}
}

// WithProfileLogger 设置日志记录器
func WithProfileLogger(logger zerolog.Logger) ProfileLoaderOption {
	return func(l *ProfileLoader) {
		l.logger = logger
	}
}

// NewProfileLoader 创建档案加载器
func NewProfileLoader(cfg config.WorkspaceConfig, options ...ProfileLoaderOption) *ProfileLoader {
	l := &ProfileLoader{
		profilePath:  cfg.ProfilePath,
		masterCVPath: cfg.MasterCVPath,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// Load 读取候选人档案。PDF提取失败不阻断加载，仅缺少raw_text。
func (l *ProfileLoader) Load(ctx context.Context) (*types.CandidateProfile, error) {
	if l.profilePath == "" {
		return nil, fmt.Errorf("未配置候选人档案路径")
	}

	data, err := os.ReadFile(l.profilePath)
	if err != nil {
		return nil, fmt.Errorf("读取候选人档案失败 %s: %w", l.profilePath, err)
	}

	var profile types.CandidateProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("解析候选人档案JSON失败: %w", err)
	}

	if profile.RawText == "" && l.extractor != nil && l.masterCVPath != "" {
		rawText, err := l.extractor.ExtractFromFile(ctx, l.masterCVPath)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", l.masterCVPath).Msg("主简历PDF提取失败，档案不含raw_text")
		} else {
			profile.RawText = rawText
		}
	}

	return &profile, nil
}
