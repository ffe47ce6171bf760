package processor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSplitDeterministicSeparator 验证字面分隔符的拆分（Layer 1）
func TestSplitDeterministicSeparator(t *testing.T) {
	raw := "# CV\n...content...\n---GAP_ANALYSIS_SEPARATOR---\n## Gap Analysis\nMissing AWS experience."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\n...content...", result.CVContent)
	assert.Equal(t, "## Gap Analysis\nMissing AWS experience.", result.GapAnalysis)
	assert.Equal(t, "deterministic_separator", result.Method)
}

// TestSplitSeparatorWithoutHeadingAfter 分隔符之后缺少标题时需要补上固定标题
func TestSplitSeparatorWithoutHeadingAfter(t *testing.T) {
	raw := "# CV\nBody.\n---GAP_ANALYSIS_SEPARATOR---\nMissing Kubernetes experience."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\nBody.", result.CVContent)
	assert.Equal(t, "## Gap Analysis\nMissing Kubernetes experience.", result.GapAnalysis)
	assert.Equal(t, "deterministic_separator", result.Method)
}

// TestSplitSeparatorFirstOccurrenceWins 多个分隔符时仅在第一个处拆分
func TestSplitSeparatorFirstOccurrenceWins(t *testing.T) {
	raw := "CV text\n---GAP_ANALYSIS_SEPARATOR---\nfirst tail\n---GAP_ANALYSIS_SEPARATOR---\nsecond tail"

	result := SplitCVResponse(raw)

	assert.Equal(t, "CV text", result.CVContent)
	// 第二个分隔符只是差距分析正文的一部分
	assert.Contains(t, result.GapAnalysis, "---GAP_ANALYSIS_SEPARATOR---")
	assert.Contains(t, result.GapAnalysis, "second tail")
	assert.Equal(t, "deterministic_separator", result.Method)
}

// TestSplitMarkerFallback 验证备用标题拆分（Layer 2）
func TestSplitMarkerFallback(t *testing.T) {
	raw := "# CV\n...\n## Gap Analysis\nSome gaps."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\n...", result.CVContent)
	assert.Equal(t, "## Gap Analysis\nSome gaps.", result.GapAnalysis)
	assert.Equal(t, "marker:## Gap Analysis", result.Method)
}

// TestSplitMarkerListOrderOverPosition 列表顺序优先于文本位置
func TestSplitMarkerListOrderOverPosition(t *testing.T) {
	// "## Analyse des Écarts" 在文本中出现得更早，
	// 但 "## Gap Analysis" 在标记列表中排在前面，应当胜出
	raw := "# CV\n## Analyse des Écarts\nquelque chose\n## Gap Analysis\nGaps here."

	result := SplitCVResponse(raw)

	assert.Equal(t, "marker:## Gap Analysis", result.Method)
	// 拆分点在 "## Gap Analysis" 处，更早出现的法语标记留在CV侧
	assert.Equal(t, "# CV\n## Analyse des Écarts\nquelque chose", result.CVContent)
	assert.Equal(t, "## Gap Analysis\nGaps here.", result.GapAnalysis)
}

// TestSplitNoMarkerUsesPlaceholder 无分隔符且无标记时使用占位文本
func TestSplitNoMarkerUsesPlaceholder(t *testing.T) {
	raw := "# CV\n...content with no gap section at all"

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\n...content with no gap section at all", result.CVContent)
	assert.Equal(t, "## Gap Analysis\nNo significant gaps identified.", result.GapAnalysis)
	assert.Equal(t, "none", result.Method)
}

// TestSplitLayer3StripsLeakedLine 验证泄漏内容的整行清除与迁移（Layer 3）
func TestSplitLayer3StripsLeakedLine(t *testing.T) {
	raw := "# CV\nSummary...\nThis is a 95% match rating for this role.\nMore CV text after."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\nSummary...", result.CVContent)
	// 命中行及其后的所有内容迁移到差距分析侧，不会被丢弃
	assert.Equal(t, "This is a 95% match rating for this role.\nMore CV text after.\n\n## Gap Analysis\nNo significant gaps identified.", result.GapAnalysis)
	assert.Equal(t, "none+layer3_strip:% match", result.Method)
}

// TestSplitLayer3EarliestPositionWins 位置最早的禁用模式优先
func TestSplitLayer3EarliestPositionWins(t *testing.T) {
	// "sugerencia:" 出现在 "match rating" 之前
	raw := "# CV\nSugerencia: emphasize cloud work.\nThe match rating is high."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV", result.CVContent)
	assert.Equal(t, "none+layer3_strip:sugerencia:", result.Method)
	// 清除的内容保留原始大小写
	assert.Contains(t, result.GapAnalysis, "Sugerencia: emphasize cloud work.")
}

// TestSplitLayer3CaseInsensitive 禁用模式匹配不区分大小写
func TestSplitLayer3CaseInsensitive(t *testing.T) {
	raw := "# CV\nGood stuff.\nGAP ANALYSIS: missing things."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\nGood stuff.", result.CVContent)
	assert.Equal(t, "none+layer3_strip:gap analysis", result.Method)
	assert.Contains(t, result.GapAnalysis, "GAP ANALYSIS: missing things.")
}

// TestSplitLayer3MatchOnFirstLine 命中发生在首行时CV被整体清空
func TestSplitLayer3MatchOnFirstLine(t *testing.T) {
	raw := "Gap analysis follows for this candidate."

	result := SplitCVResponse(raw)

	assert.Equal(t, "", result.CVContent)
	assert.Equal(t, "none+layer3_strip:gap analysis", result.Method)
	assert.Contains(t, result.GapAnalysis, "Gap analysis follows for this candidate.")
}

// TestSplitLayer3RunsAfterLayer1 Layer 1命中后Layer 3仍须检查CV侧残留
func TestSplitLayer3RunsAfterLayer1(t *testing.T) {
	raw := "# CV\nGood part.\nNote: 90% match for this role.\n---GAP_ANALYSIS_SEPARATOR---\n## Gap Analysis\nDetails."

	result := SplitCVResponse(raw)

	assert.Equal(t, "# CV\nGood part.", result.CVContent)
	assert.Equal(t, "deterministic_separator+layer3_strip:% match", result.Method)
	assert.Contains(t, result.GapAnalysis, "Note: 90% match for this role.")
	assert.Contains(t, result.GapAnalysis, "## Gap Analysis\nDetails.")
}

// TestSplitEmptyInput 空输入不应panic，返回占位结果
func TestSplitEmptyInput(t *testing.T) {
	result := SplitCVResponse("")

	assert.Equal(t, "", result.CVContent)
	assert.Equal(t, GapPlaceholder, result.GapAnalysis)
	assert.Equal(t, "none", result.Method)
}

// TestSplitWhitespaceOnlyInput 纯空白输入等同于空输入
func TestSplitWhitespaceOnlyInput(t *testing.T) {
	result := SplitCVResponse("   \n\t\n  ")

	assert.Equal(t, "", result.CVContent)
	assert.Equal(t, GapPlaceholder, result.GapAnalysis)
	assert.Equal(t, "none", result.Method)
}

// TestSplitIdempotentOnGapOutput 将差距分析结果回喂不应产生二次处理伪影
func TestSplitIdempotentOnGapOutput(t *testing.T) {
	first := SplitCVResponse("# CV\nbody\n---GAP_ANALYSIS_SEPARATOR---\ngap detail")
	require.Equal(t, "## Gap Analysis\ngap detail", first.GapAnalysis)

	second := SplitCVResponse(first.GapAnalysis)

	// 整个输入以标记开头，CV侧为空，内容原样落在差距分析侧
	assert.Equal(t, "", second.CVContent)
	assert.Equal(t, first.GapAnalysis, second.GapAnalysis)
}

// TestSplitCVContentNeverContainsForbiddenLine 最终CV中不残留以禁用模式行
func TestSplitCVContentNeverContainsForbiddenLine(t *testing.T) {
	inputs := []string{
		"cv\nrecommendations: do this",
		"cv\nAnálisis de Gaps\nmore",
		"header\nDurante la entrevista conviene...",
		"---GAP_ANALYSIS_SEPARATOR---\ntail",
		"",
	}

	for _, raw := range inputs {
		result := SplitCVResponse(raw)
		lower := strings.ToLower(result.CVContent)
		for _, pattern := range ForbiddenPatterns {
			assert.NotContains(t, lower, pattern, "输入 %q 的CV结果残留了禁用模式", raw)
		}
		assert.NotEmpty(t, result.GapAnalysis)
	}
}

// TestMarkerTableOrder 标记与模式表的顺序是语义的一部分，防止无意重排
func TestMarkerTableOrder(t *testing.T) {
	require.Equal(t, "## Gap Analysis", GapMarkers[0])
	require.Equal(t, "## Gap Analysis and Recommendations", GapMarkers[len(GapMarkers)-1])
	require.Len(t, GapMarkers, 13)

	require.Equal(t, "gap analysis", ForbiddenPatterns[0])
	require.Equal(t, "% match", ForbiddenPatterns[len(ForbiddenPatterns)-1])
	require.Len(t, ForbiddenPatterns, 17)
}
