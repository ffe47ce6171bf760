package parser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"job-agent-go/internal/constants"
	"job-agent-go/internal/logger"
)

// JobScraper 岗位描述抓取器，从招聘页面URL抽取纯文本
type JobScraper struct {
	client *http.Client
}

// NewJobScraper 创建岗位抓取器
func NewJobScraper() *JobScraper {
	return &JobScraper{
		client: &http.Client{
			Timeout: constants.ScrapeTimeout,
		},
	}
}

// ScrapeJobURL 抓取岗位页面并返回清洗后的文本
// 流程：GET页面 → 去除script/style节点 → 收集文本 → 压缩空白
func (s *JobScraper) ScrapeJobURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("构建岗位页面请求失败: %w", err)
	}
	// 部分招聘站点会拒绝非浏览器UA
	req.Header.Set("User-Agent", constants.ScrapeUserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求岗位页面失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("岗位页面返回非成功状态码: %d", resp.StatusCode)
	}

	text, err := ExtractVisibleText(resp.Body)
	if err != nil {
		return "", fmt.Errorf("解析岗位页面HTML失败: %w", err)
	}

	cleaned := CollapseWhitespace(text)
	if cleaned == "" {
		return "", fmt.Errorf("岗位页面未包含可提取的文本: %s", url)
	}

	logger.Debug().Str("url", url).Int("chars", len(cleaned)).Msg("岗位页面抓取完成")
	return cleaned, nil
}

// ExtractVisibleText 遍历HTML树收集可见文本，跳过script/style/noscript节点
func ExtractVisibleText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript":
				return
			}
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return sb.String(), nil
}

// CollapseWhitespace 压缩抓取文本中的空白
// 逐行strip后再按连续两个空格切分短语，丢弃空片段，用换行重连
func CollapseWhitespace(text string) string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, phrase := range strings.Split(line, "  ") {
			phrase = strings.TrimSpace(phrase)
			if phrase != "" {
				chunks = append(chunks, phrase)
			}
		}
	}
	return strings.Join(chunks, "\n")
}
