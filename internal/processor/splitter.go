package processor

import "strings"

// GapSeparator 是与生成器约定的CV与差距分析之间的字面分隔符
// 生成提示中要求模型在两部分之间单独一行输出该标记
const GapSeparator = "---GAP_ANALYSIS_SEPARATOR---"

// GapHeading 差距分析部分的固定标题
const GapHeading = "## Gap Analysis"

// GapPlaceholder 未找到任何差距分析内容时的占位文本
const GapPlaceholder = "## Gap Analysis\nNo significant gaps identified."

// SplitMethodSeparator Layer 1命中时的方法标识
const SplitMethodSeparator = "deterministic_separator"

// SplitMethodNone 三层均未命中时的方法标识
const SplitMethodNone = "none"

// GapMarkers Layer 2的备用标题列表，多语言版本的"Gap Analysis"/"Recommendations"
// 顺序即优先级：列表中靠前的标记优先于文本中更早出现的标记
var GapMarkers = []string{
	"## Gap Analysis",
	"## Análisis de Ajuste al Puesto",
	"## Análisis de Brechas",
	"## Analyse des Écarts",
	"## Lückenanalyse",
	"## Analisi delle Lacune",
	"## Análise de Lacunas",
	"## Análisis de Gaps y Recomendaciones",
	"## Análisis de Gaps",
	"## Gaps y Recomendaciones",
	"## Recommendations",
	"## Recomendaciones",
	"## Gap Analysis and Recommendations",
}

// ForbiddenPatterns Layer 3的泄漏检测模式，全部小写，匹配时不区分大小写
// 命中规则：文本中位置最早的模式优先，位置相同时列表顺序在前的优先
var ForbiddenPatterns = []string{
	"gap analysis", "análisis de gaps", "análisis de brechas",
	"análisis de ajuste", "recomendaciones finales", "recommendations",
	"mitigación", "fortalezas compensatorias", "fortalezas excepcionales",
	"gaps identificados", "gaps y recomendaciones", "sugerencia cv",
	"sugerencia:", "durante la entrevista", "fit prácticamente perfecto",
	"match rating", "% match",
}

// SplitResult CV/差距分析的拆分结果
type SplitResult struct {
	// CVContent 可直接渲染为最终文档的CV正文
	CVContent string `json:"cv_content"`
	// GapAnalysis 差距分析内容，永不为空
	GapAnalysis string `json:"gap_analysis"`
	// Method 记录命中的拆分策略，仅用于诊断
	// 取值: deterministic_separator / marker:<marker> / none，
	// Layer 3触发时追加 +layer3_strip:<pattern>
	Method string `json:"method"`
}

// SplitCVResponse 将LLM的原始回复拆分为CV正文与差距分析两部分
// 三层防御逐层回退：字面分隔符 → 多语言标题 → 泄漏内容清除
// 对任意字符串输入都返回结果，不产生错误
func SplitCVResponse(raw string) SplitResult {
	cvContent := raw
	gapAnalysis := GapPlaceholder
	method := SplitMethodNone

	// Layer 1: 字面分隔符，最高优先级，仅拆分第一次出现的位置
	if idx := strings.Index(raw, GapSeparator); idx >= 0 {
		cvContent = raw[:idx]
		tail := strings.TrimSpace(raw[idx+len(GapSeparator):])
		if strings.HasPrefix(tail, GapHeading) {
			gapAnalysis = tail
		} else {
			gapAnalysis = GapHeading + "\n" + tail
		}
		method = SplitMethodSeparator
	} else {
		// Layer 2: 备用标题，按列表顺序取第一个在文本中出现的标记
		for _, marker := range GapMarkers {
			if idx := strings.Index(raw, marker); idx >= 0 {
				cvContent = raw[:idx]
				gapAnalysis = raw[idx:]
				method = "marker:" + marker
				break
			}
		}
	}

	cvContent = strings.TrimSpace(cvContent)

	// Layer 3: 始终执行，扫描拆分后的CV正文中残留的分析类内容
	cvLower := strings.ToLower(cvContent)
	firstPos := len(cvContent)
	firstPattern := ""
	for _, pattern := range ForbiddenPatterns {
		if pos := strings.Index(cvLower, pattern); pos >= 0 && pos < firstPos {
			firstPos = pos
			firstPattern = pattern
		}
	}

	if firstPattern != "" {
		// 回退到命中行的行首，整行起全部迁移到差距分析侧
		lineStart := strings.LastIndexByte(cvContent[:firstPos], '\n') + 1
		leaked := cvContent[lineStart:]
		cvContent = strings.TrimRight(cvContent[:lineStart], " \t\r\n")
		gapAnalysis = strings.TrimSpace(leaked) + "\n\n" + gapAnalysis
		method += "+layer3_strip:" + firstPattern
	}

	return SplitResult{
		CVContent:   cvContent,
		GapAnalysis: gapAnalysis,
		Method:      method,
	}
}
