package parser

import (
	"regexp"
	"strings"
)

var (
	jsonObjectBlockRe = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")
	jsonArrayBlockRe  = regexp.MustCompile("(?s)```json\\s*(\\[.*?\\])\\s*```")
)

// ExtractJSONObject 从LLM响应文本中提取JSON对象
// 优先匹配 ```json ... ``` 代码块，失败时回退到花括号配对扫描
// 未找到时返回空字符串，由调用方决定如何报错
func ExtractJSONObject(text string) string {
	matches := jsonObjectBlockRe.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	return extractBalanced(text, '{', '}')
}

// ExtractJSONArray 从LLM响应文本中提取JSON数组，用于仓库筛选等列表型输出
// 未找到时返回空字符串，由调用方决定如何报错
func ExtractJSONArray(text string) string {
	matches := jsonArrayBlockRe.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	return extractBalanced(text, '[', ']')
}

// extractBalanced 寻找第一个open字符，按嵌套层级配对到对应的close字符
func extractBalanced(text string, open, close byte) string {
	start := strings.IndexByte(text, open)
	if start == -1 {
		return ""
	}

	level := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case open:
			level++
		case close:
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}
