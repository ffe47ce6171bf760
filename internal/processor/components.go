package processor

// Components 聚合流水线的各个处理组件，供API层和CLI统一持有。
// Repos为nil时GitHub项目上下文被禁用。
type Components struct {
	Analyzer  *JobAnalyzer
	Profiles  *ProfileLoader
	Repos     *RepoService
	CVGen     *CVGenerator
	LetterGen *CoverLetterGenerator
	Renderer  *Renderer
	Pipeline  *Pipeline
}
