package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"job-agent-go/internal/logger"
	"job-agent-go/internal/tracing"
)

var llmTracer = otel.Tracer("job-agent-go/agent/anthropic")

const (
	defaultAnthropicAPIURL  = "https://api.anthropic.com/v1/messages"
	defaultAnthropicModel   = "claude-sonnet-4-20250514"
	anthropicAPIVersion     = "2023-06-01"
	defaultAnthropicMaxToks = 4096
)

// --- Anthropic Messages API Structures ---

// AnthropicCacheControl 提示缓存控制，目前仅支持 ephemeral
type AnthropicCacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// AnthropicSystemBlock 系统提示块，可携带cache_control以复用大体积上下文
type AnthropicSystemBlock struct {
	Type         string                 `json:"type"` // "text"
	Text         string                 `json:"text"`
	CacheControl *AnthropicCacheControl `json:"cache_control,omitempty"`
}

type AnthropicMessage struct {
	Role    string `json:"role"` // "user" / "assistant"
	Content string `json:"content"`
}

// AnthropicTool Anthropic工具定义，input_schema为JSON Schema对象
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type AnthropicRequest struct {
	Model     string                 `json:"model"`
	MaxTokens int                    `json:"max_tokens"`
	System    []AnthropicSystemBlock `json:"system,omitempty"`
	Messages  []AnthropicMessage     `json:"messages"`
	Tools     []AnthropicTool        `json:"tools,omitempty"`
}

// AnthropicContentBlock 响应内容块，text或tool_use
type AnthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	// tool_use 字段
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

type AnthropicResponse struct {
	ID         string                  `json:"id"`
	Type       string                  `json:"type"`
	Role       string                  `json:"role"`
	Model      string                  `json:"model"`
	Content    []AnthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
}

// AnthropicChatModel 实现了 model.ChatModel 和 model.ToolCallingChatModel 接口，
// 通过 Anthropic Messages HTTP API 与 Claude 模型交互。
type AnthropicChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	maxTokens  int
	httpClient *http.Client
	boundTools []AnthropicTool
	// cacheSystem 为true时对系统提示块附加ephemeral cache_control，
	// 求职信生成会把整份CV放进系统提示，缓存可显著降低重复调用成本
	cacheSystem bool
}

// AnthropicOption AnthropicChatModel的配置选项
type AnthropicOption func(*AnthropicChatModel)

// WithMaxTokens 设置单次调用的max_tokens上限
func WithMaxTokens(maxTokens int) AnthropicOption {
	return func(a *AnthropicChatModel) {
		if maxTokens > 0 {
			a.maxTokens = maxTokens
		}
	}
}

// WithSystemCache 启用系统提示的ephemeral缓存
func WithSystemCache() AnthropicOption {
	return func(a *AnthropicChatModel) {
		a.cacheSystem = true
	}
}

// WithHTTPClient 替换HTTP客户端，测试时指向httptest server
func WithHTTPClient(client *http.Client) AnthropicOption {
	return func(a *AnthropicChatModel) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// NewAnthropicChatModel 创建一个新的 AnthropicChatModel 实例。
func NewAnthropicChatModel(apiKey string, modelName string, apiURL string, options ...AnthropicOption) (*AnthropicChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}

	mn := modelName
	if strings.TrimSpace(mn) == "" {
		mn = defaultAnthropicModel
	}

	url := apiURL
	if strings.TrimSpace(url) == "" {
		url = defaultAnthropicAPIURL
	}

	m := &AnthropicChatModel{
		apiKey:     apiKey,
		modelName:  mn,
		apiURL:     url,
		maxTokens:  defaultAnthropicMaxToks,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		boundTools: make([]AnthropicTool, 0),
	}

	for _, option := range options {
		option(m)
	}

	logger.Debug().Str("api_url", m.apiURL).Str("model", m.modelName).Msg("Anthropic LLM 客户端已创建")
	return m, nil
}

// ForModel 返回一个使用指定模型名的浅拷贝，用于按任务切换模型
func (a *AnthropicChatModel) ForModel(modelName string) *AnthropicChatModel {
	if strings.TrimSpace(modelName) == "" || modelName == a.modelName {
		return a
	}
	clone := *a
	clone.modelName = modelName
	return &clone
}

// Generate 实现 model.ChatModel 接口
// eino的system角色消息会被转换为Anthropic的system块，其余按role透传
func (a *AnthropicChatModel) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	// 工具绑定通过 WithTools/BindTools 完成，通用选项在此仅作确认
	for _, opt := range options {
		_ = opt
	}

	var systemBlocks []AnthropicSystemBlock
	var apiMessages []AnthropicMessage
	for _, msg := range messages {
		if msg == nil {
			continue
		}
		if msg.Role == schema.System {
			systemBlocks = append(systemBlocks, AnthropicSystemBlock{Type: "text", Text: msg.Content})
			continue
		}
		apiMessages = append(apiMessages, AnthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	if len(apiMessages) == 0 {
		return nil, fmt.Errorf("消息列表中没有可发送的user/assistant消息")
	}

	ctx, span := llmTracer.Start(ctx, "Anthropic.Generate",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("llm.model", a.modelName),
			attribute.Int("llm.message_count", len(apiMessages)),
			attribute.String("llm.prompt_preview", tracing.SafePromptContent(apiMessages[0].Content)),
		),
	)
	defer span.End()

	// 缓存标记只打在最后一个system块上，前缀块随缓存内容一并命中
	if a.cacheSystem && len(systemBlocks) > 0 {
		systemBlocks[len(systemBlocks)-1].CacheControl = &AnthropicCacheControl{Type: "ephemeral"}
	}

	reqPayload := AnthropicRequest{
		Model:     a.modelName,
		MaxTokens: a.maxTokens,
		System:    systemBlocks,
		Messages:  apiMessages,
	}
	if len(a.boundTools) > 0 {
		reqPayload.Tools = a.boundTools
	}

	jsonData, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.apiURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}

	httpReq.Header.Set("x-api-key", a.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)
	httpReq.Header.Set("Content-Type", "application/json")

	logger.Debug().Str("model", a.modelName).Int("messages", len(apiMessages)).Msg("发送Anthropic请求")

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		wrapped := fmt.Errorf("发送 HTTP 请求失败: %w", err)
		tracing.RecordError(span, wrapped, tracing.ErrorTypeLLM)
		return nil, wrapped
	}
	defer httpResp.Body.Close()

	bodyBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		wrapped := fmt.Errorf("读取响应体失败: %w", err)
		tracing.RecordError(span, wrapped, tracing.ErrorTypeLLM)
		return nil, wrapped
	}

	if httpResp.StatusCode != http.StatusOK {
		wrapped := fmt.Errorf("API 请求失败，状态 %s: %s", httpResp.Status, tracing.TruncateString(string(bodyBytes), tracing.DefaultMaxLength))
		tracing.RecordHTTPError(span, wrapped, httpResp.StatusCode)
		return nil, wrapped
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w。响应体: %s", err, string(bodyBytes))
	}

	if len(apiResp.Content) == 0 {
		return nil, fmt.Errorf("从 API 收到空内容: %s", string(bodyBytes))
	}

	// 拼接所有text块，收集tool_use块
	var textParts []string
	var toolCalls []schema.ToolCall
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			toolCalls = append(toolCalls, schema.ToolCall{
				ID: block.ID,
				Function: schema.FunctionCall{
					Name:      block.Name,
					Arguments: string(block.Input),
				},
			})
		}
	}

	resultMessage := &schema.Message{
		Role:    schema.Assistant,
		Content: strings.Join(textParts, ""),
	}
	if len(toolCalls) > 0 {
		resultMessage.ToolCalls = toolCalls
	}

	span.SetAttributes(
		attribute.Int("llm.response_length", len(resultMessage.Content)),
		attribute.Int("llm.tool_calls", len(toolCalls)),
		attribute.String("llm.stop_reason", apiResp.StopReason),
	)
	span.SetStatus(codes.Ok, "")

	return resultMessage, nil
}

// Stream 实现 model.ChatModel 接口 (placeholder)
func (a *AnthropicChatModel) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("AnthropicChatModel 的 Stream 方法未实现")
}

// BindTools 实现 model.ChatModel 接口
// 由于无法可靠地从 schema.ParamsOneOf 外部导出参数细节，
// 未显式定义schema的工具统一使用空对象schema
func (a *AnthropicChatModel) BindTools(tools []*schema.ToolInfo) error {
	a.boundTools = make([]AnthropicTool, 0, len(tools))
	for _, toolInfo := range tools {
		if toolInfo == nil {
			continue
		}
		a.boundTools = append(a.boundTools, AnthropicTool{
			Name:        toolInfo.Name,
			Description: toolInfo.Desc,
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		})
	}

	logger.Debug().Int("tools", len(a.boundTools)).Msg("Anthropic模型工具绑定完成")
	return nil
}

// WithTools 实现 model.ToolCallingChatModel 接口
func (a *AnthropicChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	if err := a.BindTools(tools); err != nil {
		return nil, err
	}
	return a, nil
}

var _ model.ChatModel = (*AnthropicChatModel)(nil)
var _ model.ToolCallingChatModel = (*AnthropicChatModel)(nil)
