package types

// JobSource 记录岗位描述的来源信息
type JobSource struct {
	URL string `json:"url,omitempty"`
	// RawText 为截断后的岗位原文，仅用于追溯
	RawText string `json:"raw_text,omitempty"`
}

// JobAnalysis 岗位分析结果，由LLM从岗位描述中提取的结构化数据
type JobAnalysis struct {
	// Language 岗位描述的语言代码 (en/es/fr/de/it/pt)
	Language string `json:"language"`

	JobTitle string `json:"job_title"`
	Company  string `json:"company"`
	Location string `json:"location,omitempty"`
	JobLevel string `json:"job_level,omitempty"`

	// RequiredSkills 硬性要求的技能
	RequiredSkills []string `json:"required_skills"`
	// PreferredSkills 加分项技能
	PreferredSkills []string `json:"preferred_skills,omitempty"`
	// Keywords ATS筛选关键词
	Keywords []string `json:"keywords,omitempty"`

	// Tone 岗位描述的语气 (formal/casual/technical...)
	Tone string `json:"tone,omitempty"`
	// CultureSignals 公司文化信号
	CultureSignals []string `json:"culture_signals,omitempty"`
	// KeyResponsibilities 核心职责
	KeyResponsibilities []string `json:"key_responsibilities,omitempty"`
	// ApplicationInstructions 投递说明中的特殊要求
	ApplicationInstructions string `json:"application_instructions,omitempty"`
	SalaryRange             string `json:"salary_range,omitempty"`
	// GapsToWatch 分析阶段预判的潜在差距
	GapsToWatch []string `json:"gaps_to_watch,omitempty"`

	Source *JobSource `json:"source,omitempty"`
}

// WorkExperience 候选人的一段工作经历
type WorkExperience struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location,omitempty"`
	StartDate    string   `json:"start_date,omitempty"`
	EndDate      string   `json:"end_date,omitempty"`
	Achievements []string `json:"achievements,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
}

// Education 教育经历
type Education struct {
	Degree      string `json:"degree"`
	Institution string `json:"institution"`
	Location    string `json:"location,omitempty"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
	Details     string `json:"details,omitempty"`
}

// Project 个人项目
type Project struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Technologies []string `json:"technologies,omitempty"`
	URL          string   `json:"url,omitempty"`
}

// PersonalInfo 候选人基本信息
type PersonalInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	GitHub   string `json:"github,omitempty"`
	Website  string `json:"website,omitempty"`
}

// CandidateProfile 候选人档案（主简历数据库）
type CandidateProfile struct {
	PersonalInfo      PersonalInfo     `json:"personal_info"`
	ProfessionalTitle string           `json:"professional_title,omitempty"`
	Summary           string           `json:"summary,omitempty"`
	WorkExperience    []WorkExperience `json:"work_experience,omitempty"`
	Education         []Education      `json:"education,omitempty"`
	// Skills 按类别分组的技能列表
	Skills    map[string][]string `json:"skills,omitempty"`
	Projects  []Project           `json:"projects,omitempty"`
	Languages []string            `json:"languages,omitempty"`
	// RawText 从主简历PDF中提取的原始文本，仅作为补充上下文
	RawText string `json:"raw_text,omitempty"`
	// GithubProjects CV生成前注入的相关GitHub项目
	GithubProjects []RepoSummary `json:"github_projects,omitempty"`
}

// RepoSummary GitHub仓库摘要，用于CV生成的项目上下文
type RepoSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Technologies 主语言 + 语言占比分析合并去重后的技术列表
	Technologies []string `json:"technologies"`
	HTMLURL      string   `json:"html_url"`
	Private      bool     `json:"private"`
	// LastActivity 最近一次push时间 (ISO8601)
	LastActivity string `json:"last_activity,omitempty"`
	// IsRecent 最近12个月内是否有push
	IsRecent bool `json:"is_recent"`
	// RelevanceReason LLM给出的与岗位相关的理由
	RelevanceReason string `json:"relevance_reason,omitempty"`
	// ReadmeSummary README截断摘要
	ReadmeSummary string `json:"readme_summary,omitempty"`
}

// GenerateOptions CV/求职信生成的公共选项
type GenerateOptions struct {
	// Comments 用户附加指示
	Comments string `json:"comments,omitempty"`
	// Iteration 第几轮生成，>1时携带RefinementFeedback
	Iteration int `json:"iteration,omitempty"`
	// RefinementFeedback 上一轮产出的修改意见
	RefinementFeedback string `json:"refinement_feedback,omitempty"`
}

// LetterOptions 求职信长度约束，MaxWords与MaxChars互斥
type LetterOptions struct {
	GenerateOptions
	MaxWords int `json:"max_words,omitempty"`
	MaxChars int `json:"max_chars,omitempty"`
}
