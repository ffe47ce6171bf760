package tracing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMaskPII 验证不同长度敏感值的掩码规则
func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "13*******78", MaskPII("13812345678"))

	masked := MaskPII("myemail@example.com")
	assert.True(t, strings.HasPrefix(masked, "my"))
	assert.True(t, strings.HasSuffix(masked, "om"))
	assert.NotContains(t, masked, "@")
}

// TestTruncateString 验证截断保留首尾并插入省略号
func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))

	long := strings.Repeat("x", 50)
	got := TruncateString(long, 21)
	assert.Contains(t, got, "...")
	assert.LessOrEqual(t, len([]rune(got)), 21)

	// maxLength过小时直接硬截断
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

// TestSafeAttributeValue 敏感字段名走掩码，普通字段走截断
func TestSafeAttributeValue(t *testing.T) {
	masked := SafeAttributeValue("user_email", "someone@example.com", DefaultMaxLength)
	assert.NotEqual(t, "someone@example.com", masked)
	assert.Contains(t, masked, "*")

	plain := SafeAttributeValue("repo", "job-agent-go", DefaultMaxLength)
	assert.Equal(t, "job-agent-go", plain)
}

// TestSafeRedisKey 超长Redis键被压缩到上限以内
func TestSafeRedisKey(t *testing.T) {
	key := "app:job:analysis:" + strings.Repeat("f", 200)
	got := SafeRedisKey(key)
	assert.LessOrEqual(t, len([]rune(got)), MaxRedisLength)
	assert.Contains(t, got, "...")
}
