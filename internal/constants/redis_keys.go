package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// GithubModulePrefix GitHub仓库模块
	GithubModulePrefix = "github"
	// DocumentModulePrefix 生成文档模块
	DocumentModulePrefix = "document"

	// EntityAnalysis 岗位分析结果实体
	EntityAnalysis = "analysis"
	// EntityText 文本实体
	EntityText = "text"
	// EntityRepos 仓库列表实体
	EntityRepos = "repos"
	// EntityReadme 仓库README实体
	EntityReadme = "readme"
	// EntityLock 分布式锁实体
	EntityLock = "lock"

	// KeyJobAnalysis 岗位分析结果缓存 (STRING, JSON)
	// 格式: app:job:analysis:{urlHash}
	KeyJobAnalysis = AppPrefix + ":" + JobModulePrefix + ":" + EntityAnalysis + ":%s"

	// KeyJobPostingText 岗位描述原文缓存 (STRING)
	// 格式: app:job:text:{urlHash}
	KeyJobPostingText = AppPrefix + ":" + JobModulePrefix + ":" + EntityText + ":%s"

	// KeyGithubRepos 用户仓库列表缓存 (STRING, JSON)
	// 格式: app:github:repos:{username}
	KeyGithubRepos = AppPrefix + ":" + GithubModulePrefix + ":" + EntityRepos + ":%s"

	// KeyGithubReadme 仓库README缓存 (STRING)
	// 格式: app:github:readme:{username}:{repo}
	KeyGithubReadme = AppPrefix + ":" + GithubModulePrefix + ":" + EntityReadme + ":%s:%s"

	// KeyPipelineLock 流水线分布式锁 (STRING)
	// 格式: app:document:lock:{applicationID}
	KeyPipelineLock = AppPrefix + ":" + DocumentModulePrefix + ":" + EntityLock + ":%s"
)
