package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"job-agent-go/internal/agent"
	"job-agent-go/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newGithubTestServer 模拟GitHub API：两页仓库列表、语言占比、fork贡献者和README
func newGithubTestServer(t *testing.T) *httptest.Server {
	recent := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
	stale := time.Now().Add(-400 * 24 * time.Hour).UTC().Format(time.RFC3339)

	var server *httptest.Server
	mux := http.NewServeMux()

	mux.HandleFunc("/user/repos", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "2022-11-28", r.Header.Get("X-GitHub-Api-Version"))

		page := r.URL.Query().Get("page")
		w.Header().Set("Content-Type", "application/json")
		if page == "" || page == "1" {
			assert.Equal(t, "pushed", r.URL.Query().Get("sort"))
			assert.Equal(t, "100", r.URL.Query().Get("per_page"))
			w.Header().Set("Link", fmt.Sprintf(`<%s/user/repos?page=2>; rel="next", <%s/user/repos?page=2>; rel="last"`, server.URL, server.URL))
			fmt.Fprintf(w, `[
				{"name": "job-agent", "description": "pipeline tool", "language": "Go",
				 "topics": ["go", "llm"], "html_url": "https://github.com/jane/job-agent",
				 "private": false, "fork": false, "archived": false, "pushed_at": %q,
				 "owner": {"login": "jane"}},
				{"name": "old-archived", "language": "Python", "html_url": "https://github.com/jane/old-archived",
				 "fork": false, "archived": true, "pushed_at": %q, "owner": {"login": "jane"}}
			]`, recent, stale)
			return
		}
		fmt.Fprintf(w, `[
			{"name": "some-fork", "language": "C", "html_url": "https://github.com/jane/some-fork",
			 "fork": true, "archived": false, "pushed_at": %q, "owner": {"login": "jane"}}
		]`, stale)
	})

	mux.HandleFunc("/repos/jane/job-agent/languages", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Go": 12000, "Makefile": 300, "go": 100}`)
	})
	mux.HandleFunc("/repos/jane/some-fork/contributors", func(w http.ResponseWriter, r *http.Request) {
		// 本人贡献不足阈值，该fork会被剔除
		fmt.Fprint(w, `[{"login": "Jane", "contributions": 3}]`)
	})
	mux.HandleFunc("/repos/jane/job-agent/readme", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.raw", r.Header.Get("Accept"))
		fmt.Fprint(w, strings.Repeat("r", 1200))
	})

	server = httptest.NewServer(mux)
	return server
}

func newTestRepoService(t *testing.T, serverURL string, llm *agent.MockChatClient) *RepoService {
	svc, err := NewRepoService(config.GitHubConfig{
		Username: "jane",
		Token:    "test-token",
		APIURL:   serverURL,
	}, llm)
	require.NoError(t, err)
	return svc
}

func TestFetchAllReposPaginationAndFilters(t *testing.T) {
	server := newGithubTestServer(t)
	defer server.Close()

	svc := newTestRepoService(t, server.URL, nil)
	repos, err := svc.FetchAllRepos(context.Background(), false)
	require.NoError(t, err)

	// 归档仓库和贡献不足的fork都被剔除
	require.Len(t, repos, 1)
	repo := repos[0]
	assert.Equal(t, "job-agent", repo.Name)
	assert.True(t, repo.IsRecent)
	// 主语言在前，大小写不敏感去重保留首个写法
	assert.Equal(t, []string{"Go", "Makefile", "llm"}, repo.Technologies)
}

func TestFetchAllReposExcludeList(t *testing.T) {
	server := newGithubTestServer(t)
	defer server.Close()

	svc, err := NewRepoService(config.GitHubConfig{
		Username:     "jane",
		Token:        "test-token",
		APIURL:       server.URL,
		ExcludeRepos: []string{"Job-Agent"},
	}, nil)
	require.NoError(t, err)

	repos, err := svc.FetchAllRepos(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestSelectRelevantRepos(t *testing.T) {
	server := newGithubTestServer(t)
	defer server.Close()

	selection, _ := json.Marshal([]map[string]string{
		{"name": "job-agent", "relevance_reason": "Uses Go like the job requires."},
		{"name": "not-in-list", "relevance_reason": "ignored"},
	})
	mockLLM := agent.NewMockChatClient(string(selection), nil)

	svc := newTestRepoService(t, server.URL, mockLLM)
	repos, err := svc.FetchAllRepos(context.Background(), false)
	require.NoError(t, err)

	selected, err := svc.SelectRelevantRepos(context.Background(), repos, sampleAnalysis("en"))
	require.NoError(t, err)

	// 列表之外的仓库名被忽略
	require.Len(t, selected, 1)
	assert.Equal(t, "job-agent", selected[0].Name)
	assert.Equal(t, "Uses Go like the job requires.", selected[0].RelevanceReason)
	// README截断到固定长度
	assert.Len(t, selected[0].ReadmeSummary, 1000)

	// 提示词带岗位上下文但不带URL
	prompt := mockLLM.LastMessages()[0].Content
	assert.Contains(t, prompt, `"job_title"`)
	assert.Contains(t, prompt, "Backend Engineer")
	assert.NotContains(t, prompt, "html_url")
}

func TestSelectRelevantReposNoArrayInResponse(t *testing.T) {
	server := newGithubTestServer(t)
	defer server.Close()

	mockLLM := agent.NewMockChatClient("I could not pick any repositories.", nil)
	svc := newTestRepoService(t, server.URL, mockLLM)
	repos, err := svc.FetchAllRepos(context.Background(), false)
	require.NoError(t, err)

	_, err = svc.SelectRelevantRepos(context.Background(), repos, sampleAnalysis("en"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON数组")
}

func TestSelectRelevantReposEmptyInput(t *testing.T) {
	svc := newTestRepoService(t, "http://unused.invalid", agent.NewMockChatClient("[]", nil))
	selected, err := svc.SelectRelevantRepos(context.Background(), nil, sampleAnalysis("en"))
	require.NoError(t, err)
	assert.Empty(t, selected)
}

func TestNewRepoServiceValidation(t *testing.T) {
	_, err := NewRepoService(config.GitHubConfig{Token: "t"}, nil)
	assert.Error(t, err)
	_, err = NewRepoService(config.GitHubConfig{Username: "jane"}, nil)
	assert.Error(t, err)
}

func TestMergeTechnologies(t *testing.T) {
	result := mergeTechnologies("Go", map[string]int64{"Go": 100, "Python": 50}, []string{"go", "cli", "Python"})
	assert.Equal(t, []string{"Go", "Python", "cli"}, result)

	// 没有主语言时从语言占比开始
	result = mergeTechnologies("", map[string]int64{"Rust": 10}, nil)
	assert.Equal(t, []string{"Rust"}, result)
}

func TestParseNextLink(t *testing.T) {
	link := `<https://api.github.com/user/repos?page=2>; rel="next", <https://api.github.com/user/repos?page=5>; rel="last"`
	assert.Equal(t, "https://api.github.com/user/repos?page=2", parseNextLink(link))
	assert.Equal(t, "", parseNextLink(`<https://api.github.com/user/repos?page=5>; rel="last"`))
	assert.Equal(t, "", parseNextLink(""))
}

func TestIsRecentPush(t *testing.T) {
	assert.True(t, isRecentPush(time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)))
	assert.False(t, isRecentPush(time.Now().Add(-400*24*time.Hour).UTC().Format(time.RFC3339)))
	assert.False(t, isRecentPush(""))
	assert.False(t, isRecentPush("not-a-date"))
}

func TestSplitRepoURL(t *testing.T) {
	owner, name, ok := splitRepoURL("https://github.com/jane/job-agent/")
	require.True(t, ok)
	assert.Equal(t, "jane", owner)
	assert.Equal(t, "job-agent", name)

	_, _, ok = splitRepoURL("x")
	assert.False(t, ok)
}
