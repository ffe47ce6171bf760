package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfigWithTaskModels 验证任务专用模型的 map 结构能否被成功加载
func TestLoadConfigWithTaskModels(t *testing.T) {
	// 1. 创建一个临时的 YAML 配置文件，内容包含正确的 map 结构
	correctYAMLContent := `
anthropic:
  api_url: "https://api.anthropic.com/v1/messages"
  model: "claude-sonnet-4-20250514"
  task_models:
    job_analysis: "claude-haiku-4-20250514"
    cv_generation: "claude-sonnet-4-20250514"
server:
  address: ":9090"
`
	// 创建一个临时目录来存放配置文件
	tmpDir, err := os.MkdirTemp("", "config-test")
	require.NoError(t, err, "无法创建临时目录")
	defer os.RemoveAll(tmpDir) // 测试结束后清理目录

	// 配置文件路径
	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(correctYAMLContent), 0644)
	require.NoError(t, err, "无法写入临时配置文件")

	// 2. 调用 LoadConfig 函数加载配置
	config, err := LoadConfig(configPath)

	// 3. 断言结果
	require.NoError(t, err, "加载具有正确语法的配置不应返回错误")
	require.NotNil(t, config, "配置对象不应为 nil")

	// 验证 task_models
	expectedTaskModels := map[string]string{
		"job_analysis":  "claude-haiku-4-20250514",
		"cv_generation": "claude-sonnet-4-20250514",
	}
	assert.Equal(t, expectedTaskModels, config.Anthropic.TaskModels, "Anthropic.TaskModels 的值与预期不符")

	// 验证其他字段是否也被加载
	assert.Equal(t, ":9090", config.Server.Address, "Server.Address 的值与预期不符")
}

// TestGetModelForTask 验证任务模型查找的回退逻辑
func TestGetModelForTask(t *testing.T) {
	config := createDefaultConfig()
	config.Anthropic.Model = "claude-sonnet-4-20250514"
	config.Anthropic.TaskModels = map[string]string{
		"job_analysis":   "claude-haiku-4-20250514",
		"repo_selection": "",
	}

	// 有专用模型时返回专用模型
	assert.Equal(t, "claude-haiku-4-20250514", config.GetModelForTask("job_analysis"))
	// 专用模型为空字符串时回退到默认模型
	assert.Equal(t, "claude-sonnet-4-20250514", config.GetModelForTask("repo_selection"))
	// 未配置的任务回退到默认模型
	assert.Equal(t, "claude-sonnet-4-20250514", config.GetModelForTask("cover_letter"))
}

// TestApplyDefaults 验证缺省字段的默认值填充
func TestApplyDefaults(t *testing.T) {
	minimalYAMLContent := `
anthropic:
  api_key: "key-from-file"
`
	tmpDir, err := os.MkdirTemp("", "config-test-defaults")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	err = os.WriteFile(configPath, []byte(minimalYAMLContent), 0644)
	require.NoError(t, err)

	config, err := LoadConfigFromFileOnly(configPath)
	require.NoError(t, err)
	require.NotNil(t, config)

	assert.Equal(t, "https://api.anthropic.com/v1/messages", config.Anthropic.APIURL)
	assert.Equal(t, 4096, config.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.github.com", config.GitHub.APIURL)
	assert.Equal(t, "workspace", config.Workspace.Dir)
	assert.Equal(t, "output", config.Workspace.OutputDir)
	assert.Equal(t, "approximately 300-400 words", config.Letter.DefaultLength)
	assert.Equal(t, 24, config.Redis.CacheExpireHours)
	assert.Equal(t, ":8080", config.Server.Address)
	// LoadConfigFromFileOnly 不读环境变量
	assert.Equal(t, "key-from-file", config.Anthropic.APIKey)
}

// TestCreateSampleConfig 生成示例配置文件，已存在时拒绝覆盖
func TestCreateSampleConfig(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-sample")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, CreateSampleConfig(configPath))

	// 生成的文件可被正常加载
	config, err := LoadConfigFromFileOnly(configPath)
	require.NoError(t, err)
	assert.NotEmpty(t, config.Anthropic.APIURL)

	// 二次生成不覆盖已有文件
	err = CreateSampleConfig(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "已存在")
}
