package agent

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewAnthropicChatModel 验证构造参数校验与默认值
func TestNewAnthropicChatModel(t *testing.T) {
	// 空API Key应报错
	_, err := NewAnthropicChatModel("", "", "")
	require.Error(t, err)

	m, err := NewAnthropicChatModel("test-key", "", "")
	require.NoError(t, err)
	assert.Equal(t, defaultAnthropicModel, m.modelName)
	assert.Equal(t, defaultAnthropicAPIURL, m.apiURL)
	assert.Equal(t, defaultAnthropicMaxToks, m.maxTokens)
}

// TestForModel 验证按任务切换模型的浅拷贝语义
func TestForModel(t *testing.T) {
	m, err := NewAnthropicChatModel("test-key", "model-a", "")
	require.NoError(t, err)

	clone := m.ForModel("model-b")
	assert.Equal(t, "model-b", clone.modelName)
	// 原实例不受影响
	assert.Equal(t, "model-a", m.modelName)
	// 相同模型名或空模型名返回自身
	assert.Same(t, m, m.ForModel("model-a"))
	assert.Same(t, m, m.ForModel(""))
}

// TestGenerate 验证请求构造与响应解析
func TestGenerate(t *testing.T) {
	var gotReq AnthropicRequest
	var gotAPIKey, gotVersion string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAPIKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))

		resp := AnthropicResponse{
			ID:   "msg_01",
			Type: "message",
			Role: "assistant",
			Content: []AnthropicContentBlock{
				{Type: "text", Text: "Hello "},
				{Type: "text", Text: "world"},
			},
			StopReason: "end_turn",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel("test-key", "test-model", server.URL, WithMaxTokens(1000), WithSystemCache())
	require.NoError(t, err)

	result, err := m.Generate(context.Background(), []*schema.Message{
		schema.SystemMessage("You are helpful."),
		schema.UserMessage("Say hello."),
	})
	require.NoError(t, err)

	// 请求侧断言
	assert.Equal(t, "test-key", gotAPIKey)
	assert.Equal(t, anthropicAPIVersion, gotVersion)
	assert.Equal(t, "test-model", gotReq.Model)
	assert.Equal(t, 1000, gotReq.MaxTokens)
	require.Len(t, gotReq.System, 1)
	assert.Equal(t, "You are helpful.", gotReq.System[0].Text)
	// 启用了系统提示缓存
	require.NotNil(t, gotReq.System[0].CacheControl)
	assert.Equal(t, "ephemeral", gotReq.System[0].CacheControl.Type)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, "user", gotReq.Messages[0].Role)

	// 响应侧断言：多个text块被拼接
	assert.Equal(t, schema.Assistant, result.Role)
	assert.Equal(t, "Hello world", result.Content)
}

// TestGenerateAPIError 非200响应应返回错误并携带响应体
func TestGenerateAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": {"type": "rate_limit_error"}}`))
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel("test-key", "test-model", server.URL)
	require.NoError(t, err)

	_, err = m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_limit_error")
}

// TestGenerateToolUse tool_use块应映射为schema.ToolCall
func TestGenerateToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := AnthropicResponse{
			Role: "assistant",
			Content: []AnthropicContentBlock{
				{Type: "text", Text: "Let me check."},
				{Type: "tool_use", ID: "toolu_01", Name: "lookup", Input: json.RawMessage(`{"q":"golang"}`)},
			},
			StopReason: "tool_use",
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	m, err := NewAnthropicChatModel("test-key", "", server.URL)
	require.NoError(t, err)

	result, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("find golang")})
	require.NoError(t, err)

	require.Len(t, result.ToolCalls, 1)
	assert.Equal(t, "toolu_01", result.ToolCalls[0].ID)
	assert.Equal(t, "lookup", result.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"q":"golang"}`, result.ToolCalls[0].Function.Arguments)
}
