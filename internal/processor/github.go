package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"job-agent-go/internal/config"
	"job-agent-go/internal/constants"
	"job-agent-go/internal/parser"
	"job-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// repoSelectionPromptTemplate 仓库筛选的提示词模板，要求LLM返回JSON数组
const repoSelectionPromptTemplate = `Select the 3-5 GitHub repositories most relevant to this job application.

JOB:
%s

REPOSITORIES:
%s

Return a JSON array of selected repos. Each entry must have:
- "name": exact repo name from the list
- "relevance_reason": 1-2 sentence explanation of why this repo is relevant

Prioritize:
1. Repos using technologies required by the job
2. Recent activity (is_recent: true) over stale repos
3. Repos with clear descriptions showing relevant work

Return ONLY the JSON array, no other text.`

// RepoCache GitHub数据的缓存接口，由Redis存储层实现
type RepoCache interface {
	GetRepoList(ctx context.Context, username string) ([]types.RepoSummary, bool, error)
	SetRepoList(ctx context.Context, username string, repos []types.RepoSummary, ttl time.Duration) error
	GetReadme(ctx context.Context, owner, repo string) (string, bool, error)
	SetReadme(ctx context.Context, owner, repo, content string, ttl time.Duration) error
}

// RepoService 拉取并筛选候选人的GitHub仓库，用于丰富简历的项目上下文
type RepoService struct {
	httpClient   *http.Client
	apiURL       string
	token        string
	username     string
	excludeRepos map[string]bool
	llmModel     model.ToolCallingChatModel
	cache        RepoCache
	cacheTTL     time.Duration
	logger       zerolog.Logger
}

// RepoServiceOption 是仓库服务的配置选项
type RepoServiceOption func(*RepoService)

// WithRepoCache 启用仓库列表与README缓存
func WithRepoCache(cache RepoCache, ttl time.Duration) RepoServiceOption {
	return func(s *RepoService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithRepoHTTPClient 设置自定义HTTP客户端
func WithRepoHTTPClient(client *http.Client) RepoServiceOption {
	return func(s *RepoService) {
		s.httpClient = client
	}
}

// WithRepoLogger 设置日志记录器
func WithRepoLogger(l zerolog.Logger) RepoServiceOption {
	return func(s *RepoService) {
		s.logger = l
	}
}

// NewRepoService 创建GitHub仓库服务
func NewRepoService(cfg config.GitHubConfig, llmModel model.ToolCallingChatModel, options ...RepoServiceOption) (*RepoService, error) {
	if cfg.Username == "" {
		return nil, fmt.Errorf("GitHub用户名不能为空")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("GitHub令牌不能为空")
	}

	apiURL := strings.TrimRight(cfg.APIURL, "/")
	if apiURL == "" {
		apiURL = "https://api.github.com"
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 30 * time.Second
	}

	excluded := make(map[string]bool, len(cfg.ExcludeRepos))
	for _, name := range cfg.ExcludeRepos {
		excluded[strings.ToLower(name)] = true
	}

	svc := &RepoService{
		httpClient:   &http.Client{Timeout: timeout},
		apiURL:       apiURL,
		token:        cfg.Token,
		username:     cfg.Username,
		excludeRepos: excluded,
		llmModel:     llmModel,
		cacheTTL:     constants.GithubCacheDuration,
		logger:       zerolog.Nop(),
	}
	for _, opt := range options {
		opt(svc)
	}
	return svc, nil
}

// FetchAllRepos 拉取用户的全部仓库并做过滤。force为true时跳过缓存读取。
// 过滤规则：归档仓库剔除；fork仓库只在本人提交数达到阈值时保留。
func (s *RepoService) FetchAllRepos(ctx context.Context, force bool) ([]types.RepoSummary, error) {
	if !force && s.cache != nil {
		cached, found, err := s.cache.GetRepoList(ctx, s.username)
		if err != nil {
			s.logger.Warn().Err(err).Msg("读取仓库列表缓存失败，回源GitHub API")
		} else if found {
			s.logger.Debug().Int("count", len(cached)).Msg("仓库列表缓存命中")
			return cached, nil
		}
	}

	raw, err := s.listAllRepos(ctx)
	if err != nil {
		return nil, err
	}

	var results []types.RepoSummary
	skippedForks, skippedArchived := 0, 0
	for _, repo := range raw {
		if s.excludeRepos[strings.ToLower(repo.Name)] {
			continue
		}
		if repo.Archived {
			skippedArchived++
			continue
		}
		if repo.Fork {
			keep, err := s.hasOwnContributions(ctx, repo.Owner.Login, repo.Name)
			if err != nil {
				s.logger.Warn().Err(err).Str("repo", repo.Name).Msg("查询fork贡献失败，跳过该仓库")
				keep = false
			}
			if !keep {
				skippedForks++
				continue
			}
		}

		languages, err := s.fetchLanguages(ctx, repo.Owner.Login, repo.Name)
		if err != nil {
			s.logger.Warn().Err(err).Str("repo", repo.Name).Msg("拉取语言占比失败")
			languages = nil
		}

		results = append(results, types.RepoSummary{
			Name:         repo.Name,
			Description:  repo.Description,
			Technologies: mergeTechnologies(repo.Language, languages, repo.Topics),
			HTMLURL:      repo.HTMLURL,
			Private:      repo.Private,
			LastActivity: repo.PushedAt,
			IsRecent:     isRecentPush(repo.PushedAt),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].LastActivity > results[j].LastActivity
	})

	s.logger.Info().
		Int("count", len(results)).
		Int("skipped_forks", skippedForks).
		Int("skipped_archived", skippedArchived).
		Msg("GitHub仓库拉取完成")

	if s.cache != nil {
		if err := s.cache.SetRepoList(ctx, s.username, results, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Msg("写入仓库列表缓存失败")
		}
	}

	return results, nil
}

// SelectRelevantRepos 用LLM从全量仓库中挑选与岗位最相关的3-5个，
// 并为选中仓库补充README摘要
func (s *RepoService) SelectRelevantRepos(ctx context.Context, repos []types.RepoSummary, analysis *types.JobAnalysis) ([]types.RepoSummary, error) {
	if s.llmModel == nil {
		return nil, fmt.Errorf("仓库筛选需要LLM模型")
	}
	if len(repos) == 0 {
		return nil, nil
	}
	if analysis == nil {
		return nil, fmt.Errorf("岗位分析不能为空")
	}

	// 送入LLM的仓库摘要不带URL和README，控制提示词体积
	type condensedRepo struct {
		Name         string   `json:"name"`
		Description  string   `json:"description"`
		Technologies []string `json:"technologies"`
		LastActivity string   `json:"last_activity"`
		IsRecent     bool     `json:"is_recent"`
	}
	summaries := make([]condensedRepo, 0, len(repos))
	for _, r := range repos {
		summaries = append(summaries, condensedRepo{
			Name:         r.Name,
			Description:  r.Description,
			Technologies: r.Technologies,
			LastActivity: r.LastActivity,
			IsRecent:     r.IsRecent,
		})
	}

	jobContext := map[string]any{
		"job_title":        analysis.JobTitle,
		"company":          analysis.Company,
		"required_skills":  analysis.RequiredSkills,
		"preferred_skills": analysis.PreferredSkills,
	}

	jobJSON, err := json.MarshalIndent(jobContext, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化岗位上下文失败: %w", err)
	}
	reposJSON, err := json.MarshalIndent(summaries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("序列化仓库列表失败: %w", err)
	}

	prompt := fmt.Sprintf(repoSelectionPromptTemplate, jobJSON, reposJSON)
	resp, err := s.llmModel.Generate(ctx, []*einoschema.Message{einoschema.UserMessage(prompt)})
	if err != nil {
		return nil, fmt.Errorf("调用LLM筛选仓库失败: %w", err)
	}

	arrayJSON := parser.ExtractJSONArray(resp.Content)
	if arrayJSON == "" {
		return nil, errors.New("无法从LLM响应中提取JSON数组")
	}

	var selections []struct {
		Name            string `json:"name"`
		RelevanceReason string `json:"relevance_reason"`
	}
	if err := json.Unmarshal([]byte(arrayJSON), &selections); err != nil {
		return nil, fmt.Errorf("解析仓库筛选结果失败: %w", err)
	}

	repoByName := make(map[string]types.RepoSummary, len(repos))
	for _, r := range repos {
		repoByName[r.Name] = r
	}

	var selected []types.RepoSummary
	for _, sel := range selections {
		repo, ok := repoByName[sel.Name]
		if !ok {
			s.logger.Warn().Str("repo", sel.Name).Msg("LLM返回了列表之外的仓库名，已忽略")
			continue
		}
		repo.RelevanceReason = sel.RelevanceReason
		repo.ReadmeSummary = s.fetchReadme(ctx, repo.HTMLURL)
		selected = append(selected, repo)
	}

	s.logger.Info().Int("selected", len(selected)).Msg("岗位相关仓库筛选完成")
	return selected, nil
}

// githubRepo GitHub /user/repos 响应中本服务关心的字段
type githubRepo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	HTMLURL     string   `json:"html_url"`
	Private     bool     `json:"private"`
	Fork        bool     `json:"fork"`
	Archived    bool     `json:"archived"`
	PushedAt    string   `json:"pushed_at"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// listAllRepos 分页拉取全部仓库，沿Link头的rel="next"翻页
func (s *RepoService) listAllRepos(ctx context.Context) ([]githubRepo, error) {
	var all []githubRepo

	nextURL := s.apiURL + "/user/repos?" + url.Values{
		"type":     {"all"},
		"sort":     {"pushed"},
		"per_page": {"100"},
	}.Encode()

	for nextURL != "" {
		var page []githubRepo
		header, err := s.githubGetJSON(ctx, nextURL, "application/vnd.github+json", &page)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		nextURL = parseNextLink(header.Get("Link"))
	}

	return all, nil
}

// hasOwnContributions 判断本人在fork仓库的提交数是否达到保留阈值
func (s *RepoService) hasOwnContributions(ctx context.Context, owner, repo string) (bool, error) {
	var contributors []struct {
		Login         string `json:"login"`
		Contributions int    `json:"contributions"`
	}
	contribURL := fmt.Sprintf("%s/repos/%s/%s/contributors", s.apiURL, owner, repo)
	if _, err := s.githubGetJSON(ctx, contribURL, "application/vnd.github+json", &contributors); err != nil {
		return false, err
	}
	for _, c := range contributors {
		if strings.EqualFold(c.Login, s.username) {
			return c.Contributions >= constants.MinForkContributions, nil
		}
	}
	return false, nil
}

func (s *RepoService) fetchLanguages(ctx context.Context, owner, repo string) (map[string]int64, error) {
	var languages map[string]int64
	langURL := fmt.Sprintf("%s/repos/%s/%s/languages", s.apiURL, owner, repo)
	if _, err := s.githubGetJSON(ctx, langURL, "application/vnd.github+json", &languages); err != nil {
		return nil, err
	}
	return languages, nil
}

// fetchReadme 获取仓库README原文并截断，失败时返回空串不中断流程
func (s *RepoService) fetchReadme(ctx context.Context, htmlURL string) string {
	owner, name, ok := splitRepoURL(htmlURL)
	if !ok {
		return ""
	}

	if s.cache != nil {
		cached, found, err := s.cache.GetReadme(ctx, owner, name)
		if err == nil && found {
			return cached
		}
	}

	readmeURL := fmt.Sprintf("%s/repos/%s/%s/readme", s.apiURL, owner, name)
	body, err := s.githubGetRaw(ctx, readmeURL, "application/vnd.github.raw")
	if err != nil {
		s.logger.Warn().Err(err).Str("repo", name).Msg("拉取README失败")
		return ""
	}

	content := body
	if len(content) > constants.ReadmeTruncateLen {
		content = content[:constants.ReadmeTruncateLen]
	}

	if s.cache != nil {
		if err := s.cache.SetReadme(ctx, owner, name, content, s.cacheTTL); err != nil {
			s.logger.Warn().Err(err).Str("repo", name).Msg("写入README缓存失败")
		}
	}
	return content
}

func (s *RepoService) githubGetJSON(ctx context.Context, rawURL, accept string, out any) (http.Header, error) {
	body, header, err := s.githubGet(ctx, rawURL, accept)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return nil, fmt.Errorf("解析GitHub响应失败: %w", err)
	}
	return header, nil
}

func (s *RepoService) githubGetRaw(ctx context.Context, rawURL, accept string) (string, error) {
	body, _, err := s.githubGet(ctx, rawURL, accept)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (s *RepoService) githubGet(ctx context.Context, rawURL, accept string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("构建GitHub请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("请求GitHub API失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("读取GitHub响应失败: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GitHub API返回状态码 %d: %s", resp.StatusCode, string(body))
	}
	return body, resp.Header, nil
}

// parseNextLink 从Link头中解析rel="next"的分页URL，没有下一页时返回空串
func parseNextLink(linkHeader string) string {
	for _, part := range strings.Split(linkHeader, ",") {
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		segment := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		return strings.Trim(segment, "<>")
	}
	return ""
}

// mergeTechnologies 合并主语言、语言占比和topics，大小写不敏感去重且保留首次出现的写法
func mergeTechnologies(primaryLanguage string, languages map[string]int64, topics []string) []string {
	sources := make([]string, 0, 1+len(languages)+len(topics))
	if primaryLanguage != "" {
		sources = append(sources, primaryLanguage)
	}

	langNames := make([]string, 0, len(languages))
	for name := range languages {
		langNames = append(langNames, name)
	}
	// 按字节数降序，让占比高的语言排在前面
	sort.SliceStable(langNames, func(i, j int) bool {
		return languages[langNames[i]] > languages[langNames[j]]
	})
	sources = append(sources, langNames...)
	sources = append(sources, topics...)

	seen := make(map[string]bool, len(sources))
	result := make([]string, 0, len(sources))
	for _, tech := range sources {
		key := strings.ToLower(tech)
		if !seen[key] {
			seen[key] = true
			result = append(result, tech)
		}
	}
	return result
}

// isRecentPush 判断最近一次push是否落在活跃窗口内
func isRecentPush(pushedAt string) bool {
	if pushedAt == "" {
		return false
	}
	pushed, err := time.Parse(time.RFC3339, pushedAt)
	if err != nil {
		return false
	}
	return time.Since(pushed) <= constants.RecentPushWindow
}

// splitRepoURL 从 https://github.com/owner/name 形式的URL中取出owner和name
func splitRepoURL(htmlURL string) (owner, name string, ok bool) {
	trimmed := strings.TrimRight(htmlURL, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return "", "", false
	}
	return parts[len(parts)-2], parts[len(parts)-1], true
}
